// Package nesenv turns the emulator's duplex frame-pull / input-push control
// protocol into a synchronous reset/step environment for RL training.
package nesenv

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meadori/vibetrain/internal/emuclient"
	"github.com/meadori/vibetrain/internal/hz"
	"github.com/meadori/vibetrain/internal/reward"
)

// Info is the auxiliary per-step diagnostics map.
type Info map[string]any

// Step is the result of one environment step.
type Step struct {
	Obs    Observation
	Reward float64
	Done   bool

	// Truncated is always false: episode length capping is the caller's job.
	Truncated bool

	Info Info
}

type Config struct {
	// Actions defaults to the full Bitmask space.
	Actions ActionSpace

	// Reward defaults to the generic PixelDelta policy.
	Reward reward.Policy

	// StateFile, when set, makes Reset load this emulator save state instead
	// of hardware-resetting the console.
	StateFile string

	// FrameRate is the per-step settle wait, default 60hz. The wait is a
	// fixed real-time delay, not frame-accurate synchronization: the adapter
	// cannot know when the remote side has actually rendered.
	FrameRate hz.Hz

	// InputRate is the republish cadence of the held action, default 60hz.
	InputRate hz.Hz

	Discipline Discipline

	Logger *slog.Logger
}

// Env is a synchronous NES environment over the emulator control service.
// Not safe for concurrent use: one reset/step caller at a time, which is how
// an RL training loop behaves anyway. The only concurrency inside is the
// input republisher goroutine.
type Env struct {
	client   emuclient.ControlClient
	actions  ActionSpace
	policy   reward.Policy
	fetcher  *frameFetcher
	streamer *streamer

	stateFile string
	frameWait time.Duration
	logger    *slog.Logger

	closed bool
}

// settle waits after ResetSystem and LoadState: a full reboot needs a few
// frames, a state load just one.
const (
	resetSettle = 100 * time.Millisecond
)

// New opens the input stream and starts the republisher. ctx bounds the
// lifetime of the stream, so pass one that stays alive until Close.
func New(ctx context.Context, client emuclient.ControlClient, cfg Config) (*Env, error) {
	if cfg.Actions == nil {
		cfg.Actions = Bitmask{}
	}
	if cfg.Reward == nil {
		cfg.Reward = reward.NewPixelDelta()
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 60
	}
	if cfg.InputRate <= 0 {
		cfg.InputRate = 60
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	stream, err := client.StreamInput(ctx)
	if err != nil {
		return nil, fmt.Errorf("start environment: %w", err)
	}

	e := &Env{
		client:    client,
		actions:   cfg.Actions,
		policy:    cfg.Reward,
		fetcher:   &frameFetcher{client: client, logger: cfg.Logger},
		stateFile: cfg.StateFile,
		frameWait: cfg.FrameRate.Interval(),
		logger:    cfg.Logger,
	}
	e.streamer = startStreamer(stream, cfg.InputRate.Interval(), cfg.Discipline, Buttons{Player: 1}, cfg.Logger)

	return e, nil
}

// ActionCount is the size of the configured action space.
func (e *Env) ActionCount() int {
	return e.actions.Size()
}

// Reset returns the console to its episode start state and fetches the first
// observation. A failed reset RPC is logged and swallowed: the environment
// must stay usable even when the emulator hiccups, and the blank-frame
// fallback covers the observation. No reward is computed.
func (e *Env) Reset(ctx context.Context) (Observation, Info, error) {
	if err := e.usable(); err != nil {
		return nil, nil, err
	}

	if e.stateFile != "" {
		if err := e.client.LoadState(ctx, e.stateFile); err != nil {
			e.logger.Warn("load state failed, continuing: " + err.Error())
		}
		if err := e.wait(ctx, e.frameWait); err != nil {
			return nil, nil, err
		}
	} else {
		if err := e.client.ResetSystem(ctx); err != nil {
			e.logger.Warn("system reset failed, continuing: " + err.Error())
		}
		if err := e.wait(ctx, resetSettle); err != nil {
			return nil, nil, err
		}
	}

	obs := e.fetcher.fetch(ctx)
	e.policy.Reset(obs)

	return obs, Info{}, nil
}

// Step decodes the action, holds it for the republisher, waits one frame
// interval for the remote side to apply and render it, then fetches the new
// observation and evaluates the reward policy.
//
// Remote failures never surface as errors (fail-soft fallbacks apply); Step
// errors only on an out-of-range action, a closed environment, a dead input
// stream, or context cancellation.
func (e *Env) Step(ctx context.Context, action int) (Step, error) {
	if err := e.usable(); err != nil {
		return Step{}, err
	}

	b, err := e.actions.Decode(action)
	if err != nil {
		return Step{}, err
	}

	e.streamer.hold(b)

	if err := e.wait(ctx, e.frameWait); err != nil {
		return Step{}, err
	}

	obs := e.fetcher.fetch(ctx)
	sample := e.policy.Evaluate(ctx, obs)

	info := Info{"fallback_frames": e.fetcher.fallbacks}
	for k, v := range sample.Info {
		info[k] = v
	}

	return Step{
		Obs:    obs,
		Reward: sample.Reward,
		Done:   sample.Done,
		Info:   info,
	}, nil
}

// Close stops the input republisher and closes the send side of the stream.
// The control connection itself belongs to the caller. Idempotent.
func (e *Env) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	e.streamer.stop()
	<-e.streamer.WaitC()

	return e.streamer.Err()
}

func (e *Env) usable() error {
	if e.closed {
		return fmt.Errorf("environment is closed")
	}

	select {
	case <-e.streamer.WaitC():
		// Loss of the outbound control channel is the one non-recoverable
		// failure: without it the emulator no longer hears us.
		if err := e.streamer.Err(); err != nil {
			return fmt.Errorf("environment unusable: %w", err)
		}
		return fmt.Errorf("environment unusable: input stream closed")
	default:
		return nil
	}
}

func (e *Env) wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
