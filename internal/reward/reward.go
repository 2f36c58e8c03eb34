// Package reward derives a per-step scalar reward and terminal flag for the
// NES environment, either from screen change alone or from polled console RAM.
package reward

import (
	"context"

	"gorgonia.org/tensor"
)

// Sample is the outcome of evaluating one step.
type Sample struct {
	Reward float64
	Done   bool

	// Info carries informational values for the step info map, never inputs
	// to the reward itself.
	Info map[string]any
}

// Policy computes the reward for the newest observation. Implementations are
// fail-soft: a transport fault produces a neutral sample, never an error.
type Policy interface {
	// Reset clears per-episode state using the first observation of the episode.
	Reset(obs *tensor.Dense)

	Evaluate(ctx context.Context, obs *tensor.Dense) Sample
}
