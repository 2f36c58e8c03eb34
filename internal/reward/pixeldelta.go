package reward

import (
	"context"

	"gorgonia.org/tensor"
)

// DefaultDeltaScale turns the mean per-channel pixel difference (0-255) into
// a reward of a magnitude comparable to hand-tuned game rewards.
const DefaultDeltaScale = 0.05

// PixelDelta rewards the agent for making the screen change. With no
// game-specific RAM map, change magnitude is the only available proxy for
// "the agent did something"; it naturally incentivizes pressing Start and
// exploring. The episode never terminates from this policy; the caller's
// step cap ends it.
type PixelDelta struct {
	Scale float64

	last []uint8
}

func NewPixelDelta() *PixelDelta {
	return &PixelDelta{Scale: DefaultDeltaScale}
}

func (p *PixelDelta) Reset(obs *tensor.Dense) {
	p.last = append(p.last[:0], obs.Data().([]uint8)...)
}

func (p *PixelDelta) Evaluate(_ context.Context, obs *tensor.Dense) Sample {
	cur := obs.Data().([]uint8)

	if len(p.last) != len(cur) {
		// First evaluation without a Reset: nothing to diff against.
		p.last = append(p.last[:0], cur...)
		return Sample{}
	}

	// Promote to int32 before subtracting so the diff cannot underflow.
	var total int64
	for i, v := range cur {
		d := int32(v) - int32(p.last[i])
		if d < 0 {
			d = -d
		}
		total += int64(d)
	}

	mean := float64(total) / float64(len(cur))
	p.last = append(p.last[:0], cur...)

	return Sample{Reward: mean * p.Scale}
}
