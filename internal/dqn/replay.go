// Package dqn trains a deep Q-network against the NES environment.
package dqn

import "math/rand"

// Transition is one step of experience. Observations stay as raw uint8 RGB
// frames; they are only promoted to float32 when a batch is assembled.
type Transition struct {
	Obs    []uint8
	Action int
	Reward float32
	Next   []uint8
	Done   bool
}

// Replay is a bounded experience buffer with uniform sampling. Oldest
// transitions are overwritten once capacity is reached.
type Replay struct {
	rng  *rand.Rand
	buf  []Transition
	next int
	full bool
}

func NewReplay(capacity int, seed int64) *Replay {
	return &Replay{
		rng: rand.New(rand.NewSource(seed)),
		buf: make([]Transition, capacity),
	}
}

func (r *Replay) Push(t Transition) {
	r.buf[r.next] = t
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

func (r *Replay) Len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Sample draws n transitions uniformly with replacement. n must not exceed Len.
func (r *Replay) Sample(n int) []Transition {
	out := make([]Transition, n)
	for i := range out {
		out[i] = r.buf[r.rng.Intn(r.Len())]
	}
	return out
}
