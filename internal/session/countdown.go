package session

import "time"

// TickInterval is the fixed decrement step of the countdown.
const TickInterval = time.Second

// WarningThresholds are the remaining-seconds marks that raise a time warning.
var WarningThresholds = []int{300, 60, 30}

// TimerEventKind distinguishes warning and expiry events.
type TimerEventKind int

const (
	TimerWarning TimerEventKind = iota + 1
	TimerExpired
)

// TimerEvent is emitted by the countdown. Threshold is set for warnings.
type TimerEvent struct {
	Kind      TimerEventKind
	Threshold int
}

// Countdown converts a fixed duration into one-shot warning and expiry
// events. It is driven by its owner; it does not schedule anything itself.
type Countdown struct {
	duration  int
	remaining int
	fired     map[int]bool
	expired   bool
}

// NewCountdown creates a countdown of durationSeconds. The duration must be
// positive; callers validate it before construction.
func NewCountdown(durationSeconds int) *Countdown {
	return &Countdown{
		duration:  durationSeconds,
		remaining: durationSeconds,
		fired:     make(map[int]bool, len(WarningThresholds)),
	}
}

// ResumeCountdown creates a countdown that already consumed elapsedSeconds.
// Thresholds above the resumed remaining value count as fired.
func ResumeCountdown(durationSeconds, elapsedSeconds int) *Countdown {
	c := NewCountdown(durationSeconds)
	c.remaining = max(durationSeconds-max(elapsedSeconds, 0), 0)
	for _, th := range WarningThresholds {
		if th > c.remaining {
			c.fired[th] = true
		}
	}
	return c
}

// Tick decrements the remaining time by one second and returns the events
// reached by the new value. After expiry Tick is a no-op.
func (c *Countdown) Tick() []TimerEvent {
	if c.expired {
		return nil
	}
	if c.remaining > 0 {
		c.remaining--
	}
	return c.Poll()
}

// Poll evaluates the current remaining value without moving it. Each
// threshold and the expiry are reported at most once per countdown, however
// often the same value is observed.
func (c *Countdown) Poll() []TimerEvent {
	if c.expired {
		return nil
	}
	var events []TimerEvent
	for _, th := range WarningThresholds {
		if c.remaining == th && !c.fired[th] {
			c.fired[th] = true
			events = append(events, TimerEvent{Kind: TimerWarning, Threshold: th})
		}
	}
	if c.remaining == 0 {
		c.expired = true
		events = append(events, TimerEvent{Kind: TimerExpired})
	}
	return events
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	return c.remaining
}

// Elapsed returns the seconds consumed so far.
func (c *Countdown) Elapsed() int {
	return c.duration - c.remaining
}

// Expired reports whether the expiry event has been emitted.
func (c *Countdown) Expired() bool {
	return c.expired
}
