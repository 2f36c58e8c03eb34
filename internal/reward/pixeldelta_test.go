package reward

import (
	"context"
	"math"
	"testing"

	"gorgonia.org/tensor"
)

func frameOf(t *testing.T, vals []uint8) *tensor.Dense {
	t.Helper()
	return tensor.New(tensor.WithShape(2, 2, 3), tensor.WithBacking(vals))
}

func uniformFrame(v uint8) []uint8 {
	vals := make([]uint8, 12)
	for i := range vals {
		vals[i] = v
	}
	return vals
}

func TestPixelDeltaIdenticalFramesScoreZero(t *testing.T) {
	p := NewPixelDelta()
	p.Reset(frameOf(t, uniformFrame(100)))

	s := p.Evaluate(context.Background(), frameOf(t, uniformFrame(100)))
	if s.Reward != 0 {
		t.Fatalf("expected zero reward, got %v", s.Reward)
	}
	if s.Done {
		t.Fatal("pixel delta must never terminate the episode")
	}
}

func TestPixelDeltaScalesWithMeanDifference(t *testing.T) {
	p := NewPixelDelta()
	p.Reset(frameOf(t, uniformFrame(100)))

	// every byte differs by 10: mean abs diff 10, scaled by 0.05
	s := p.Evaluate(context.Background(), frameOf(t, uniformFrame(110)))
	if math.Abs(s.Reward-0.5) > 1e-9 {
		t.Fatalf("expected reward 0.5, got %v", s.Reward)
	}

	// underflow direction must not matter
	p.Reset(frameOf(t, uniformFrame(110)))
	s = p.Evaluate(context.Background(), frameOf(t, uniformFrame(100)))
	if math.Abs(s.Reward-0.5) > 1e-9 {
		t.Fatalf("expected reward 0.5 on darkening, got %v", s.Reward)
	}
}

func TestPixelDeltaUpdatesStoredFrame(t *testing.T) {
	p := NewPixelDelta()
	p.Reset(frameOf(t, uniformFrame(0)))

	p.Evaluate(context.Background(), frameOf(t, uniformFrame(50)))

	// the second evaluation diffs against the 50-frame, not the reset frame
	s := p.Evaluate(context.Background(), frameOf(t, uniformFrame(50)))
	if s.Reward != 0 {
		t.Fatalf("stored frame not updated, reward %v", s.Reward)
	}
}

func TestPixelDeltaFirstEvaluationWithoutReset(t *testing.T) {
	p := NewPixelDelta()

	s := p.Evaluate(context.Background(), frameOf(t, uniformFrame(200)))
	if s.Reward != 0 || s.Done {
		t.Fatalf("expected neutral sample, got %+v", s)
	}
}
