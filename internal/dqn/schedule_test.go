package dqn

import (
	"math"
	"testing"
)

func TestEpsilonScheduleDecays(t *testing.T) {
	s := DefaultEpsilon()

	if math.Abs(s.At(0)-s.Start) > 1e-9 {
		t.Fatalf("expected start %v at step 0, got %v", s.Start, s.At(0))
	}

	prev := s.At(0)
	for _, step := range []int{1000, 10000, 100000, 1000000, 5000000} {
		cur := s.At(step)
		if cur >= prev {
			t.Fatalf("epsilon not decreasing at step %d: %v >= %v", step, cur, prev)
		}
		if cur < s.End {
			t.Fatalf("epsilon below floor at step %d: %v", step, cur)
		}
		prev = cur
	}

	if got := s.At(100000000); math.Abs(got-s.End) > 1e-6 {
		t.Fatalf("expected epsilon to approach %v, got %v", s.End, got)
	}
}

func TestEncodeObsLayout(t *testing.T) {
	pix := make([]uint8, frameH*frameW*frameC)
	// top-left pixel: R=255, G=51, B=0
	pix[0] = 255
	pix[1] = 51

	out := encodeObs(pix)
	hw := frameH * frameW

	if out[0] != 1.0 {
		t.Fatalf("R plane: expected 1.0, got %v", out[0])
	}
	if math.Abs(float64(out[hw])-51.0/255.0) > 1e-6 {
		t.Fatalf("G plane: expected %v, got %v", 51.0/255.0, out[hw])
	}
	if out[2*hw] != 0 {
		t.Fatalf("B plane: expected 0, got %v", out[2*hw])
	}
}

func TestArgmax(t *testing.T) {
	if got := argmax([]float32{-1, 3, 2}); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := argmax([]float32{5}); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	// ties resolve to the first maximum
	if got := argmax([]float32{2, 2, 1}); got != 0 {
		t.Fatalf("expected 0 on tie, got %d", got)
	}
}
