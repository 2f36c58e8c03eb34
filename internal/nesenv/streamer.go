package nesenv

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meadori/vibemulator/api"

	"github.com/meadori/vibetrain/internal/emuclient"
)

// Discipline selects what happens when a new action is held while the
// previous one has not been transmitted yet.
type Discipline int

const (
	// ReplaceLatest overwrites the held action in place. The stream always
	// carries the most recent request; an action superseded between two ticks
	// is simply never sent.
	ReplaceLatest Discipline = iota

	// QueueOne appends actions to a FIFO and the republisher drains one entry
	// per tick, so every held action reaches the emulator at least once.
	QueueOne
)

// streamer keeps the emulator's controller perpetually fed with the most
// recently held input. The transport expects a continuously-iterating request
// sequence, not one-shot sends, so a background goroutine republishes the
// current state once per tick until stopped or the stream dies.
//
// hold never blocks the step loop; the republisher observes the new value on
// its next tick.
type streamer struct {
	stream   emuclient.InputStream
	interval time.Duration
	disc     Discipline
	logger   *slog.Logger

	cur atomic.Pointer[api.InputState]

	lock  sync.Mutex
	queue []*api.InputState
	done  bool
	err   error

	stopOnce sync.Once
	stopC    chan struct{}
	doneC    chan struct{}
}

func startStreamer(stream emuclient.InputStream, interval time.Duration, disc Discipline, initial Buttons, logger *slog.Logger) *streamer {
	s := &streamer{
		stream:   stream,
		interval: interval,
		disc:     disc,
		logger:   logger,
		stopC:    make(chan struct{}),
		doneC:    make(chan struct{}),
	}
	s.cur.Store(initial.proto())

	go s.run()

	return s
}

// hold makes b the next transmitted input. Non-blocking under either discipline.
func (s *streamer) hold(b Buttons) {
	msg := b.proto()

	if s.disc == QueueOne {
		s.lock.Lock()
		s.queue = append(s.queue, msg)
		s.lock.Unlock()
		return
	}

	s.cur.Store(msg)
}

// next picks the input for this tick. Under QueueOne a drained entry becomes
// the new steady state, so the last queued action keeps being republished
// once the queue empties.
func (s *streamer) next() *api.InputState {
	if s.disc == QueueOne {
		s.lock.Lock()
		if len(s.queue) > 0 {
			s.cur.Store(s.queue[0])
			s.queue = s.queue[1:]
		}
		s.lock.Unlock()
	}

	return s.cur.Load()
}

func (s *streamer) run() {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-s.stopC:
			if err := s.stream.CloseSend(); err != nil {
				s.logger.Debug("closing input stream: " + err.Error())
			}
			s.finish(nil)
			return
		case <-t.C:
			if err := s.stream.Send(s.next()); err != nil {
				s.finish(fmt.Errorf("input stream send: %w", err))
				return
			}
		}
	}
}

func (s *streamer) finish(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.done {
		return
	}

	if err != nil {
		s.logger.Error("input republisher stopped: " + err.Error())
	}

	s.done = true
	s.err = err
	close(s.doneC)
}

// stop asks the republisher to close the send stream and exit. Idempotent.
func (s *streamer) stop() {
	s.stopOnce.Do(func() {
		close(s.stopC)
	})
}

// WaitC is closed once the republisher has exited, cleanly or not.
func (s *streamer) WaitC() <-chan struct{} {
	return s.doneC
}

func (s *streamer) Err() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.err
}
