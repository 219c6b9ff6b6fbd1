// Package sessiontest provides deterministic doubles for exercising the
// session engine: a manually advanced scheduler and a recording submission
// service.
package sessiontest

import (
	"sync"
	"time"

	"github.com/stemsi/exstem-proctor/internal/session"
)

// Scheduler is a session.Scheduler whose time only moves on Advance.
// Callbacks run synchronously on the goroutine calling Advance, ordered by
// deadline and then by registration.
type Scheduler struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*task
}

type task struct {
	s       *Scheduler
	at      time.Time
	every   time.Duration
	seq     int
	fn      func()
	stopped bool
}

func (t *task) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// NewScheduler creates a scheduler starting at start.
func NewScheduler(start time.Time) *Scheduler {
	return &Scheduler{now: start}
}

var _ session.Scheduler = (*Scheduler)(nil)

func (s *Scheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *Scheduler) AfterFunc(d time.Duration, fn func()) session.Task {
	return s.add(d, 0, fn)
}

func (s *Scheduler) Every(d time.Duration, fn func()) session.Task {
	return s.add(d, d, fn)
}

func (s *Scheduler) add(d, every time.Duration, fn func()) *task {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &task{s: s, at: s.now.Add(d), every: every, seq: s.seq, fn: fn}
	s.tasks = append(s.tasks, t)
	return t
}

// Pending returns the number of live tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing every task that falls due.
func (s *Scheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		next := s.nextDueLocked(target)
		if next == nil {
			s.now = target
			s.compactLocked()
			s.mu.Unlock()
			return
		}
		s.now = next.at
		if next.every > 0 {
			next.at = next.at.Add(next.every)
		} else {
			next.stopped = true
		}
		fn := next.fn
		s.mu.Unlock()

		fn()
	}
}

func (s *Scheduler) nextDueLocked(target time.Time) *task {
	var best *task
	for _, t := range s.tasks {
		if t.stopped || t.at.After(target) {
			continue
		}
		if best == nil || t.at.Before(best.at) || (t.at.Equal(best.at) && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

func (s *Scheduler) compactLocked() {
	live := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.stopped {
			live = append(live, t)
		}
	}
	s.tasks = live
}
