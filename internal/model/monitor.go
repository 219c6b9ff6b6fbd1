package model

import "time"

// MonitorEventType names the events on a test's proctor feed.
type MonitorEventType string

const (
	MonitorEventStarted      MonitorEventType = "started"
	MonitorEventDefocus      MonitorEventType = "defocus"
	MonitorEventWarning      MonitorEventType = "warning"
	MonitorEventTerminal     MonitorEventType = "terminal"
	MonitorEventSubmitFailed MonitorEventType = "submit_failed"
)

// MonitorEvent is one message published to a test's proctor feed.
type MonitorEvent struct {
	Type        MonitorEventType `json:"type"`
	TestID      string           `json:"test_id"`
	AttemptID   string           `json:"attempt_id"`
	CandidateID int64            `json:"candidate_id"`
	Count       int              `json:"count,omitempty"`
	Level       int              `json:"level,omitempty"`
	Message     string           `json:"message,omitempty"`
	Status      AttemptStatus    `json:"status,omitempty"`
	ResultID    string           `json:"result_id,omitempty"`
	At          time.Time        `json:"at"`
}
