package dqn

import "math"

// EpsilonSchedule is the exponentially decaying exploration rate:
// End + (Start-End) * exp(-step/Decay).
type EpsilonSchedule struct {
	Start float64
	End   float64
	Decay float64
}

func DefaultEpsilon() EpsilonSchedule {
	return EpsilonSchedule{Start: 1.0, End: 0.1, Decay: 1e6}
}

func (s EpsilonSchedule) At(step int) float64 {
	return s.End + (s.Start-s.End)*math.Exp(-float64(step)/s.Decay)
}
