package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Task is a handle on a scheduled callback. Stop reports whether the call
// prevented a future run; it never waits for an in-progress run.
type Task interface {
	Stop() bool
}

// Scheduler is the time source and callback scheduler of a controller.
type Scheduler interface {
	Now() time.Time
	// AfterFunc runs fn once after d on a scheduler-owned goroutine.
	AfterFunc(d time.Duration, fn func()) Task
	// Every runs fn every d until the returned task is stopped.
	Every(d time.Duration, fn func()) Task
}

// ClockScheduler implements Scheduler on top of a clockwork.Clock.
type ClockScheduler struct {
	clock clockwork.Clock
}

// NewClockScheduler creates a Scheduler driven by clock.
func NewClockScheduler(clock clockwork.Clock) *ClockScheduler {
	return &ClockScheduler{clock: clock}
}

// NewRealScheduler creates a Scheduler driven by the wall clock.
func NewRealScheduler() *ClockScheduler {
	return NewClockScheduler(clockwork.NewRealClock())
}

func (s *ClockScheduler) Now() time.Time {
	return s.clock.Now()
}

func (s *ClockScheduler) AfterFunc(d time.Duration, fn func()) Task {
	return s.clock.AfterFunc(d, fn)
}

func (s *ClockScheduler) Every(d time.Duration, fn func()) Task {
	t := &repeatingTask{
		ticker: s.clock.NewTicker(d),
		done:   make(chan struct{}),
	}
	go t.loop(fn)
	return t
}

type repeatingTask struct {
	ticker clockwork.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *repeatingTask) loop(fn func()) {
	defer t.ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.Chan():
			// A tick and a stop can be ready together; stop wins.
			select {
			case <-t.done:
				return
			default:
			}
			fn()
		}
	}
}

func (t *repeatingTask) Stop() bool {
	stopped := false
	t.once.Do(func() {
		close(t.done)
		stopped = true
	})
	return stopped
}
