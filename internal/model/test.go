package model

import "github.com/google/uuid"

// SessionSpec is the slice of a test definition the session engine needs.
// Tests and their questions are authored by another service; this is read-only.
type SessionSpec struct {
	TestID          uuid.UUID `json:"test_id"`
	Title           string    `json:"title"`
	DurationSeconds int       `json:"duration_seconds"`
	QuestionIDs     []string  `json:"question_ids"`
}
