package session

import (
	"slices"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// AnswerBuffer is the in-memory record of a candidate's current answers.
// It has a single writer (the owning Controller) and no locking of its own.
type AnswerBuffer struct {
	allowed   map[string]struct{}
	values    map[string]string
	alternate map[string]struct{}
}

// NewAnswerBuffer creates a buffer. When questionIDs is non-empty, only those
// identifiers are accepted as keys.
func NewAnswerBuffer(questionIDs []string) *AnswerBuffer {
	b := &AnswerBuffer{
		values:    make(map[string]string),
		alternate: make(map[string]struct{}),
	}
	if len(questionIDs) > 0 {
		b.allowed = make(map[string]struct{}, len(questionIDs))
		for _, id := range questionIDs {
			b.allowed[id] = struct{}{}
		}
	}
	return b
}

func (b *AnswerBuffer) accepts(questionID string) bool {
	if questionID == "" {
		return false
	}
	if b.allowed == nil {
		return true
	}
	_, ok := b.allowed[questionID]
	return ok
}

// Set inserts or overwrites the answer value. Value shape is not checked.
func (b *AnswerBuffer) Set(questionID, value string) error {
	if !b.accepts(questionID) {
		return ErrUnknownQuestion
	}
	b.values[questionID] = value
	return nil
}

// MarkAlternateEditorUsed flags that a secondary drafting surface was used
// for the question. The flag is metadata only and never creates an answer.
func (b *AnswerBuffer) MarkAlternateEditorUsed(questionID string) error {
	if !b.accepts(questionID) {
		return ErrUnknownQuestion
	}
	b.alternate[questionID] = struct{}{}
	return nil
}

// Len returns the number of answered questions.
func (b *AnswerBuffer) Len() int {
	return len(b.values)
}

// Snapshot returns the set answers as a copy that later writes cannot
// affect. Flags of unanswered questions are not included.
func (b *AnswerBuffer) Snapshot() map[string]model.Answer {
	out := make(map[string]model.Answer, len(b.values))
	for qid, v := range b.values {
		_, alt := b.alternate[qid]
		out[qid] = model.Answer{Value: v, UsedAlternateEditor: alt}
	}
	return out
}

// AlternateEditorQuestions returns every flagged question id in sorted
// order, answered or not. It is nil when nothing is flagged.
func (b *AnswerBuffer) AlternateEditorQuestions() []string {
	if len(b.alternate) == 0 {
		return nil
	}
	out := make([]string, 0, len(b.alternate))
	for qid := range b.alternate {
		out = append(out, qid)
	}
	slices.Sort(out)
	return out
}
