package session

import (
	"sync"
	"time"
)

// DebounceWindow is the minimum spacing between two accepted defocus signals.
const DebounceWindow = 1000 * time.Millisecond

const inboxCapacity = 64

// SignalKind names the platform event that reported a visibility loss.
type SignalKind string

const (
	SignalWindowBlur SignalKind = "window_blur"
	SignalTabHidden  SignalKind = "tab_hidden"
)

// Valid reports whether k is a known signal kind.
func (k SignalKind) Valid() bool {
	return k == SignalWindowBlur || k == SignalTabHidden
}

// Signal is one raw visibility-loss notification.
type Signal struct {
	Kind SignalKind
	At   time.Time
}

// FocusMonitor turns raw visibility signals into debounced defocus events.
//
// Signals enter through Deliver onto an inbox consumed by one listener
// goroutine between Start and Stop. The debounce state (Observe, Count,
// Events) belongs to the owning Controller and is only touched under its lock.
type FocusMonitor struct {
	window time.Duration

	mu    sync.Mutex
	inbox chan Signal
	done  chan struct{}

	hasAccepted  bool
	lastAccepted time.Time
	events       []time.Time
}

// NewFocusMonitor creates a monitor with the given debounce window.
func NewFocusMonitor(window time.Duration) *FocusMonitor {
	return &FocusMonitor{
		window: window,
		inbox:  make(chan Signal, inboxCapacity),
	}
}

// Observe applies the debounce rule. A signal is accepted only when at least
// one window has elapsed since the previously accepted one; accepted signals
// are appended to the event log.
func (m *FocusMonitor) Observe(sig Signal) bool {
	if m.hasAccepted && sig.At.Sub(m.lastAccepted) < m.window {
		return false
	}
	m.hasAccepted = true
	m.lastAccepted = sig.At
	m.events = append(m.events, sig.At)
	return true
}

// Restore replaces the event log with previously accepted events. The last
// one becomes the debounce reference.
func (m *FocusMonitor) Restore(events []time.Time) {
	m.events = append([]time.Time(nil), events...)
	m.hasAccepted = len(m.events) > 0
	if m.hasAccepted {
		m.lastAccepted = m.events[len(m.events)-1]
	}
}

// Count returns the number of accepted defocus events.
func (m *FocusMonitor) Count() int {
	return len(m.events)
}

// Events returns a copy of the accepted event timestamps in arrival order.
func (m *FocusMonitor) Events() []time.Time {
	out := make([]time.Time, len(m.events))
	copy(out, m.events)
	return out
}

// Start launches the listener goroutine. Signals left in the inbox from a
// previous listening period are discarded first.
func (m *FocusMonitor) Start(handle func(Signal)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return
	}
	for drained := false; !drained; {
		select {
		case <-m.inbox:
		default:
			drained = true
		}
	}
	done := make(chan struct{})
	m.done = done
	go m.listen(m.inbox, done, handle)
}

func (m *FocusMonitor) listen(inbox <-chan Signal, done <-chan struct{}, handle func(Signal)) {
	for {
		select {
		case <-done:
			return
		case sig := <-inbox:
			select {
			case <-done:
				return
			default:
			}
			handle(sig)
		}
	}
}

// Stop removes the listener. Signals delivered afterwards are dropped.
func (m *FocusMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
}

// Listening reports whether a listener is attached.
func (m *FocusMonitor) Listening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done != nil
}

// Deliver enqueues a raw signal without blocking. It returns false when no
// listener is attached or the inbox is full.
func (m *FocusMonitor) Deliver(sig Signal) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done == nil {
		return false
	}
	select {
	case m.inbox <- sig:
		return true
	default:
		return false
	}
}
