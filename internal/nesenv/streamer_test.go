package nesenv

import (
	"errors"
	"testing"
	"time"
)

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}

	t.Fatal(msg)
}

func TestStreamerRepublishesHeldAction(t *testing.T) {
	fs := &fakeStream{}
	s := startStreamer(fs, time.Millisecond, ReplaceLatest, Buttons{}, discardLogger())
	defer s.stop()

	// The initial NOOP state is republished before anything is held.
	eventually(t, func() bool { return len(fs.snapshot()) >= 3 }, "initial state not republished")

	s.hold(Buttons{Right: true})
	eventually(t, func() bool {
		last := fs.last()
		return last != nil && last.Right
	}, "held action never transmitted")

	// and it keeps being retransmitted until replaced
	before := len(fs.snapshot())
	eventually(t, func() bool { return len(fs.snapshot()) > before+2 }, "held action not retransmitted")
	if last := fs.last(); !last.Right {
		t.Fatal("steady-state transmission lost the held action")
	}
}

func TestStreamerReplaceLatestDropsSupersededAction(t *testing.T) {
	fs := &fakeStream{}
	// slow ticks so both holds land within one interval
	s := startStreamer(fs, 50*time.Millisecond, ReplaceLatest, Buttons{}, discardLogger())
	defer s.stop()

	s.hold(Buttons{A: true})
	s.hold(Buttons{B: true})

	eventually(t, func() bool {
		last := fs.last()
		return last != nil && last.B
	}, "latest action never transmitted")

	for _, msg := range fs.snapshot() {
		if msg.A {
			t.Fatal("superseded action should have been dropped")
		}
	}
}

func TestStreamerQueueOneDeliversEveryAction(t *testing.T) {
	fs := &fakeStream{}
	s := startStreamer(fs, time.Millisecond, QueueOne, Buttons{}, discardLogger())
	defer s.stop()

	s.hold(Buttons{A: true})
	s.hold(Buttons{B: true})

	eventually(t, func() bool {
		var sawA bool
		for _, msg := range fs.snapshot() {
			if msg.A {
				sawA = true
			}
			if msg.B {
				return sawA
			}
		}
		return false
	}, "queued actions not delivered in order")
}

func TestStreamerStopClosesSendSide(t *testing.T) {
	fs := &fakeStream{}
	s := startStreamer(fs, time.Millisecond, ReplaceLatest, Buttons{}, discardLogger())

	s.stop()
	<-s.WaitC()

	if !fs.isClosed() {
		t.Fatal("send stream not closed")
	}
	if err := s.Err(); err != nil {
		t.Fatalf("clean stop reported error: %v", err)
	}

	// idempotent
	s.stop()
}

func TestStreamerDiesWhenStreamFails(t *testing.T) {
	fs := &fakeStream{err: errors.New("broken pipe")}
	s := startStreamer(fs, time.Millisecond, ReplaceLatest, Buttons{}, discardLogger())

	select {
	case <-s.WaitC():
	case <-time.After(2 * time.Second):
		t.Fatal("streamer did not report stream death")
	}

	if s.Err() == nil {
		t.Fatal("expected fatal error from dead stream")
	}
}
