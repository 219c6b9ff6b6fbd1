package sessiontest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// SubmitCall is one recorded Submit invocation.
type SubmitCall struct {
	TestID  string
	Payload model.SubmissionPayload
	At      time.Time
}

// Service is a recording session.SubmissionService. Errors queued with
// FailStart, FailSubmit and FailDefocus and results queued with
// ResumeAttempt are consumed one per call.
type Service struct {
	// Clock stamps recorded submit calls when set.
	Clock interface{ Now() time.Time }
	// BeforeSubmit runs at the start of every Submit call when set.
	BeforeSubmit func()

	mu          sync.Mutex
	starts      []string
	defocus     []time.Time
	submits     []SubmitCall
	startErrs   []error
	resumes     []model.StartResult
	submitErrs  []error
	defocusErrs []error
	seq         int
}

// NewService creates an empty recording service.
func NewService() *Service {
	return &Service{}
}

func (s *Service) FailStart(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startErrs = append(s.startErrs, err)
}

// ResumeAttempt makes the next successful Start return res as an attempt
// that was already running.
func (s *Service) ResumeAttempt(res model.StartResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res.Resumed = true
	s.resumes = append(s.resumes, res)
}

func (s *Service) FailSubmit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitErrs = append(s.submitErrs, err)
}

func (s *Service) FailDefocus(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defocusErrs = append(s.defocusErrs, err)
}

func (s *Service) Start(_ context.Context, testID string) (model.StartResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, testID)
	if err := pop(&s.startErrs); err != nil {
		return model.StartResult{}, err
	}
	if len(s.resumes) > 0 {
		res := s.resumes[0]
		s.resumes = s.resumes[1:]
		return res, nil
	}
	s.seq++
	return model.StartResult{AttemptID: fmt.Sprintf("attempt-%d", s.seq)}, nil
}

func (s *Service) RecordDefocusEvent(_ context.Context, _ string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := pop(&s.defocusErrs); err != nil {
		return err
	}
	s.defocus = append(s.defocus, at)
	return nil
}

func (s *Service) Submit(_ context.Context, testID string, payload model.SubmissionPayload) (model.SubmitResult, error) {
	if s.BeforeSubmit != nil {
		s.BeforeSubmit()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	call := SubmitCall{TestID: testID, Payload: payload}
	if s.Clock != nil {
		call.At = s.Clock.Now()
	}
	s.submits = append(s.submits, call)
	if err := pop(&s.submitErrs); err != nil {
		return model.SubmitResult{}, err
	}
	return model.SubmitResult{ResultID: fmt.Sprintf("result-%d", len(s.submits))}, nil
}

// StartCalls returns the number of Start invocations.
func (s *Service) StartCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.starts)
}

// SubmitCalls returns a copy of the recorded Submit invocations.
func (s *Service) SubmitCalls() []SubmitCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SubmitCall, len(s.submits))
	copy(out, s.submits)
	return out
}

// DefocusRecorded returns the timestamps of successful telemetry calls.
func (s *Service) DefocusRecorded() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Time, len(s.defocus))
	copy(out, s.defocus)
	return out
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}
