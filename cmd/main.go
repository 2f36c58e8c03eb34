package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"runtime"
	"time"

	"github.com/alecthomas/kong"

	"github.com/meadori/vibetrain/internal/dqn"
	"github.com/meadori/vibetrain/internal/emuclient"
	"github.com/meadori/vibetrain/internal/hz"
	"github.com/meadori/vibetrain/internal/logger"
	"github.com/meadori/vibetrain/internal/nesenv"
	"github.com/meadori/vibetrain/internal/reward"
	"github.com/meadori/vibetrain/internal/stubemu"
)

// EnvFlags is the environment wiring shared by the train and play commands.
type EnvFlags struct {
	Host        string        `arg:"" optional:"" default:"localhost:50051" help:"Emulator control service address"`
	StateFile   string        `help:"Save state to load on every reset instead of a hardware reset" placeholder:"FILE"`
	ActionSpace string        `enum:"bitmask,combos" default:"bitmask" help:"Action encoding: full 256-way button bitmask, or the curated 8-way platformer combos"`
	Reward      string        `enum:"pixel,memory" default:"pixel" help:"Reward policy: generic pixel-delta, or the game-specific RAM probe"`
	Discipline  string        `enum:"replace,queue" default:"replace" help:"Held-action discipline: replace-latest or queue-of-one"`
	FrameRate   hz.Hz         `default:"60" help:"Per-step settle rate"`
	InputRate   hz.Hz         `default:"60" help:"Held-input republish rate"`
	CallTimeout time.Duration `default:"2s" help:"Deadline for each unary call to the emulator"`
}

func (f *EnvFlags) buildEnv(ctx context.Context, client *emuclient.Client) (*nesenv.Env, error) {
	var space nesenv.ActionSpace = nesenv.Bitmask{}
	if f.ActionSpace == "combos" {
		space = nesenv.Combos{}
	}

	var policy reward.Policy = reward.NewPixelDelta()
	if f.Reward == "memory" {
		policy = reward.NewMemoryProbe(client)
	}

	disc := nesenv.ReplaceLatest
	if f.Discipline == "queue" {
		disc = nesenv.QueueOne
	}

	return nesenv.New(ctx, client, nesenv.Config{
		Actions:    space,
		Reward:     policy,
		StateFile:  f.StateFile,
		FrameRate:  f.FrameRate,
		InputRate:  f.InputRate,
		Discipline: disc,
	})
}

type Train struct {
	EnvFlags

	Episodes    int     `default:"500" help:"Number of training episodes"`
	MaxSteps    int     `default:"10000" help:"Step cap per episode"`
	BatchSize   int     `default:"32"`
	BufferSize  int     `default:"50000" help:"Replay buffer capacity"`
	Gamma       float64 `default:"0.99"`
	LearnRate   float64 `default:"0.0001"`
	TargetEvery int     `default:"1000" help:"Steps between target network syncs"`
	Seed        int64   `default:"1"`
	Checkpoint  string  `default:"models/dqn_nes.ckpt" help:"Where to write policy weights after each episode"`
	Resume      bool    `help:"Load the checkpoint before training"`
}

func (t *Train) Validate() error {
	if t.Episodes <= 0 || t.MaxSteps <= 0 {
		return fmt.Errorf("episodes and max steps must be positive")
	}

	if t.BatchSize <= 0 || t.BatchSize > t.BufferSize {
		return fmt.Errorf("batch size must be positive and at most the buffer size")
	}

	if t.Gamma <= 0 || t.Gamma > 1 {
		return fmt.Errorf("gamma must be in (0, 1]")
	}

	return nil
}

func (t *Train) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, err := emuclient.Dial(t.Host, emuclient.WithCallTimeout(t.CallTimeout))
	if err != nil {
		return err
	}
	defer client.Close()

	env, err := t.buildEnv(ctx, client)
	if err != nil {
		return err
	}
	defer env.Close()

	if dir := filepath.Dir(t.Checkpoint); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	trainer, err := dqn.NewTrainer(env, dqn.Config{
		Actions:        env.ActionCount(),
		Episodes:       t.Episodes,
		MaxSteps:       t.MaxSteps,
		BatchSize:      t.BatchSize,
		Gamma:          t.Gamma,
		LearnRate:      t.LearnRate,
		BufferSize:     t.BufferSize,
		TargetEvery:    t.TargetEvery,
		Seed:           t.Seed,
		CheckpointPath: t.Checkpoint,
	})
	if err != nil {
		return err
	}

	if t.Resume {
		if err := trainer.Model().Load(t.Checkpoint); err != nil {
			return err
		}
		slog.Info("resumed from checkpoint", slog.String("path", t.Checkpoint))
	}

	slog.Info("starting training",
		slog.String("host", t.Host),
		slog.Int("actions", env.ActionCount()),
		slog.Int("episodes", t.Episodes))

	return trainer.Run(ctx)
}

type Play struct {
	EnvFlags

	Checkpoint string `default:"models/dqn_nes.ckpt" help:"Policy weights to play from"`
	Episodes   int    `default:"1"`
	MaxSteps   int    `default:"10000" help:"Step cap per episode"`
}

func (p *Play) Validate() error {
	if p.Episodes <= 0 || p.MaxSteps <= 0 {
		return fmt.Errorf("episodes and max steps must be positive")
	}

	return nil
}

func (p *Play) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, err := emuclient.Dial(p.Host, emuclient.WithCallTimeout(p.CallTimeout))
	if err != nil {
		return err
	}
	defer client.Close()

	env, err := p.buildEnv(ctx, client)
	if err != nil {
		return err
	}
	defer env.Close()

	model, err := dqn.NewModel(env.ActionCount(), 1, 0)
	if err != nil {
		return err
	}

	if err := model.Load(p.Checkpoint); err != nil {
		return err
	}

	_, err = dqn.Play(ctx, env, model, p.Episodes, p.MaxSteps, slog.Default())
	return err
}

type Serve struct {
	Port int `arg:"" default:"50051" help:"Port to listen on"`
}

func (s *Serve) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("port must be in (0, 65536)")
	}

	return nil
}

func (s *Serve) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return stubemu.Run(ctx, s.Port, slog.Default())
}

func main() {
	_, thisFile, _, _ := runtime.Caller(0)
	logger.SetupSLog(path.Dir(path.Dir(thisFile)))

	var cli struct {
		Train *Train `cmd:"" default:"withargs" help:"Train a DQN agent against a running emulator"`
		Play  *Play  `cmd:"" help:"Run greedy rollouts from a trained checkpoint"`
		Serve *Serve `cmd:"" help:"Run a stub emulator service for offline smoke testing"`
	}

	ctx := kong.Parse(&cli,
		kong.Name("vibetrain"),
		kong.Description("RL training harness for the vibemulator NES emulator - drives the console over its gRPC control service and trains a DQN agent on the frame stream"),
		kong.UsageOnError(),
	)
	err := ctx.Run()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
