package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates the lifecycle states of a proctored attempt.
type AttemptStatus string

const (
	AttemptStatusNotStarted      AttemptStatus = "NOT_STARTED"
	AttemptStatusActive          AttemptStatus = "ACTIVE"
	AttemptStatusSubmitting      AttemptStatus = "SUBMITTING"
	AttemptStatusSubmitted       AttemptStatus = "SUBMITTED"
	AttemptStatusAutoSubmitted   AttemptStatus = "AUTO_SUBMITTED"
	AttemptStatusFraudTerminated AttemptStatus = "FRAUD_TERMINATED"
)

// IsTerminal reports whether the status is one of the absorbing outcomes.
func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case AttemptStatusSubmitted, AttemptStatusAutoSubmitted, AttemptStatusFraudTerminated:
		return true
	}
	return false
}

// Attempt is the persisted row for one candidate taking one test.
type Attempt struct {
	ID              uuid.UUID     `json:"id"`
	TestID          uuid.UUID     `json:"test_id"`
	CandidateID     int64         `json:"candidate_id"`
	DurationSeconds int           `json:"duration_seconds"`
	Status          AttemptStatus `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
}

// Answer is one entry of the answer buffer.
type Answer struct {
	Value               string `json:"value"`
	UsedAlternateEditor bool   `json:"used_alternate_editor"`
}

// SubmissionPayload is the body of the single submit call of an attempt.
// FraudDetected and FraudReason are only set by the fraud-termination path.
// AlternateEditorQuestions lists every flagged question, answered or not.
type SubmissionPayload struct {
	Answers                  map[string]Answer `json:"answers"`
	AlternateEditorQuestions []string          `json:"alternate_editor_questions,omitempty"`
	TimeTakenSeconds         int               `json:"time_taken_seconds"`
	AutoSubmit               bool              `json:"auto_submit"`
	AttemptID                string            `json:"attempt_id"`
	DefocusCount             int               `json:"defocus_count"`
	DefocusEvents            []time.Time       `json:"defocus_events"`
	FraudDetected            *bool             `json:"fraud_detected,omitempty"`
	FraudReason              string            `json:"fraud_reason,omitempty"`
}

// StartResult is returned by the start operation of the submission service.
// Resumed marks an attempt that was already running; its draft answers and
// recorded defocus events are carried so the session continues where it was.
type StartResult struct {
	AttemptID     string            `json:"attempt_id"`
	StartedAt     time.Time         `json:"started_at"`
	Resumed       bool              `json:"resumed"`
	Answers       map[string]string `json:"answers,omitempty"`
	DefocusEvents []time.Time       `json:"defocus_events,omitempty"`
}

// SubmitResult is returned once a submission is accepted.
type SubmitResult struct {
	ResultID string `json:"result_id"`
}

// SetAnswerRequest is the REST payload for writing one answer.
type SetAnswerRequest struct {
	Value string `json:"value" binding:"max=100000"`
}

// DefocusRequest is the REST payload for a raw visibility-loss signal.
type DefocusRequest struct {
	Kind string `json:"kind" binding:"required,signal_kind"`
}

// Outcome is the terminal status a payload submits the attempt into.
func (p SubmissionPayload) Outcome() AttemptStatus {
	switch {
	case p.FraudDetected != nil && *p.FraudDetected:
		return AttemptStatusFraudTerminated
	case p.AutoSubmit:
		return AttemptStatusAutoSubmitted
	default:
		return AttemptStatusSubmitted
	}
}
