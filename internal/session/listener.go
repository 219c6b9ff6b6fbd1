package session

import (
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Listener receives the session's outward notifications. Calls are made
// outside the controller lock, so a listener may call back into the
// controller. They may arrive on timer goroutines.
type Listener interface {
	OnWarning(level int, message string)
	OnTimeWarning(thresholdSeconds int)
	OnDefocus(count int, at time.Time)
	OnTerminalState(kind model.AttemptStatus, resultID string)
	OnSubmitFailed(kind model.AttemptStatus, err error)
}

// ListenerFuncs adapts optional functions to a Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Warning       func(level int, message string)
	TimeWarning   func(thresholdSeconds int)
	Defocus       func(count int, at time.Time)
	TerminalState func(kind model.AttemptStatus, resultID string)
	SubmitFailed  func(kind model.AttemptStatus, err error)
}

func (f ListenerFuncs) OnWarning(level int, message string) {
	if f.Warning != nil {
		f.Warning(level, message)
	}
}

func (f ListenerFuncs) OnTimeWarning(thresholdSeconds int) {
	if f.TimeWarning != nil {
		f.TimeWarning(thresholdSeconds)
	}
}

func (f ListenerFuncs) OnDefocus(count int, at time.Time) {
	if f.Defocus != nil {
		f.Defocus(count, at)
	}
}

func (f ListenerFuncs) OnTerminalState(kind model.AttemptStatus, resultID string) {
	if f.TerminalState != nil {
		f.TerminalState(kind, resultID)
	}
}

func (f ListenerFuncs) OnSubmitFailed(kind model.AttemptStatus, err error) {
	if f.SubmitFailed != nil {
		f.SubmitFailed(kind, err)
	}
}

// NopListener ignores every notification.
var NopListener Listener = ListenerFuncs{}
