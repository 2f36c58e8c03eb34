package dqn

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"gorgonia.org/tensor"

	"github.com/meadori/vibetrain/internal/nesenv"
)

// Environment is the synchronous control surface the trainer drives.
// *nesenv.Env implements it; tests substitute fakes.
type Environment interface {
	Reset(ctx context.Context) (nesenv.Observation, nesenv.Info, error)
	Step(ctx context.Context, action int) (nesenv.Step, error)
}

type Config struct {
	Actions   int // action space size
	Episodes  int
	MaxSteps  int // per episode
	BatchSize int

	Gamma      float64
	LearnRate  float64
	BufferSize int
	// TargetEvery is the global-step interval between target-network syncs.
	TargetEvery int
	Epsilon     EpsilonSchedule
	Seed        int64

	// CheckpointPath, when set, receives the policy weights at the end of
	// every episode.
	CheckpointPath string

	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.Episodes <= 0 {
		c.Episodes = 500
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = 10000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.Gamma == 0 {
		c.Gamma = 0.99
	}
	if c.LearnRate == 0 {
		c.LearnRate = 1e-4
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 50000
	}
	if c.TargetEvery <= 0 {
		c.TargetEvery = 1000
	}
	if c.Epsilon == (EpsilonSchedule{}) {
		c.Epsilon = DefaultEpsilon()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Trainer runs the epsilon-greedy DQN loop against an environment.
type Trainer struct {
	cfg    Config
	env    Environment
	model  *Model
	replay *Replay
	rng    *rand.Rand
	logger *slog.Logger

	steps int
}

func NewTrainer(env Environment, cfg Config) (*Trainer, error) {
	cfg.setDefaults()

	if cfg.Actions <= 0 {
		return nil, fmt.Errorf("action space size must be positive")
	}

	model, err := NewModel(cfg.Actions, cfg.BatchSize, cfg.LearnRate)
	if err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}

	return &Trainer{
		cfg:    cfg,
		env:    env,
		model:  model,
		replay: NewReplay(cfg.BufferSize, cfg.Seed),
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		logger: cfg.Logger,
	}, nil
}

// Model exposes the trainer's model, mainly so a caller can Load a checkpoint
// before resuming training.
func (t *Trainer) Model() *Model {
	return t.model
}

// Run executes the configured number of episodes. It returns early on
// context cancellation or when the environment becomes unusable.
func (t *Trainer) Run(ctx context.Context) error {
	for ep := 0; ep < t.cfg.Episodes; ep++ {
		total, steps, err := t.episode(ctx)
		if err != nil {
			return err
		}

		t.logger.Info("episode complete",
			slog.Int("episode", ep),
			slog.Int("steps", steps),
			slog.Float64("reward", total),
			slog.Float64("epsilon", t.cfg.Epsilon.At(t.steps)))

		if t.cfg.CheckpointPath != "" {
			if err := t.model.Save(t.cfg.CheckpointPath); err != nil {
				return fmt.Errorf("checkpoint after episode %d: %w", ep, err)
			}
		}
	}

	return nil
}

func (t *Trainer) episode(ctx context.Context) (total float64, steps int, err error) {
	obs, _, err := t.env.Reset(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("reset: %w", err)
	}

	cur := rawPixels(obs)

	for steps = 0; steps < t.cfg.MaxSteps; steps++ {
		if err := ctx.Err(); err != nil {
			return total, steps, err
		}

		action, err := t.selectAction(cur)
		if err != nil {
			return total, steps, err
		}

		res, err := t.env.Step(ctx, action)
		if err != nil {
			return total, steps, fmt.Errorf("step: %w", err)
		}

		next := rawPixels(res.Obs)
		t.replay.Push(Transition{
			Obs:    cur,
			Action: action,
			Reward: float32(res.Reward),
			Next:   next,
			Done:   res.Done,
		})
		cur = next
		total += res.Reward

		if t.replay.Len() >= t.cfg.BatchSize {
			loss, err := t.model.Fit(t.replay.Sample(t.cfg.BatchSize), float32(t.cfg.Gamma))
			if err != nil {
				return total, steps, fmt.Errorf("fit: %w", err)
			}

			if t.steps%100 == 0 {
				t.logger.Debug("optimized", slog.Int("step", t.steps), slog.Float64("loss", float64(loss)))
			}
		}

		if t.steps%t.cfg.TargetEvery == 0 {
			t.model.SyncTarget()
		}

		if res.Done {
			steps++
			break
		}
	}

	return total, steps, nil
}

func (t *Trainer) selectAction(cur []uint8) (int, error) {
	eps := t.cfg.Epsilon.At(t.steps)
	t.steps++

	if t.rng.Float64() < eps {
		return t.rng.Intn(t.cfg.Actions), nil
	}

	q, err := t.model.Predict(encodeObs(cur))
	if err != nil {
		return 0, fmt.Errorf("predict: %w", err)
	}

	return argmax(q), nil
}

// Play runs greedy rollouts with no exploration and no learning, returning
// the total reward of the final episode.
func Play(ctx context.Context, env Environment, model *Model, episodes, maxSteps int, logger *slog.Logger) (float64, error) {
	var total float64

	for ep := 0; ep < episodes; ep++ {
		obs, _, err := env.Reset(ctx)
		if err != nil {
			return 0, fmt.Errorf("reset: %w", err)
		}

		total = 0
		for step := 0; step < maxSteps; step++ {
			if err := ctx.Err(); err != nil {
				return total, err
			}

			q, err := model.Predict(encodeObs(rawPixels(obs)))
			if err != nil {
				return total, fmt.Errorf("predict: %w", err)
			}

			res, err := env.Step(ctx, argmax(q))
			if err != nil {
				return total, fmt.Errorf("step: %w", err)
			}

			obs = res.Obs
			total += res.Reward

			if res.Done {
				break
			}
		}

		logger.Info("rollout complete", slog.Int("episode", ep), slog.Float64("reward", total))
	}

	return total, nil
}

// rawPixels copies an observation's backing bytes. The copy matters: the
// replay buffer outlives the step that produced the observation.
func rawPixels(obs *tensor.Dense) []uint8 {
	return append([]uint8(nil), obs.Data().([]uint8)...)
}
