package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/session/sessiontest"
)

// ─── Helpers ────────────────────────────────────────────────────────

type recorder struct {
	mu           sync.Mutex
	levels       []int
	timeWarnings []int
	terminal     []model.AttemptStatus
	failures     []error
}

func (r *recorder) listener() session.Listener {
	return session.ListenerFuncs{
		Warning: func(level int, _ string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.levels = append(r.levels, level)
		},
		TimeWarning: func(threshold int) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.timeWarnings = append(r.timeWarnings, threshold)
		},
		TerminalState: func(kind model.AttemptStatus, _ string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.terminal = append(r.terminal, kind)
		},
		SubmitFailed: func(_ model.AttemptStatus, err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.failures = append(r.failures, err)
		},
	}
}

func (r *recorder) warningLevels() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.levels...)
}

type harness struct {
	ctrl  *session.Controller
	sched *sessiontest.Scheduler
	svc   *sessiontest.Service
	rec   *recorder
}

func newHarness(t *testing.T, duration int, questionIDs ...string) *harness {
	t.Helper()

	sched := sessiontest.NewScheduler(epoch)
	svc := sessiontest.NewService()
	svc.Clock = sched
	rec := &recorder{}

	ctrl, err := session.New(session.Options{
		TestID:          "test-1",
		DurationSeconds: duration,
		QuestionIDs:     questionIDs,
		Service:         svc,
		Scheduler:       sched,
		Listener:        rec.listener(),
		Logger:          zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)

	return &harness{ctrl: ctrl, sched: sched, svc: svc, rec: rec}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.ctrl.Start(context.Background()))
}

// defocus delivers one raw signal and waits until the accepted count reaches want.
func (h *harness) defocus(t *testing.T, want int) {
	t.Helper()
	require.True(t, h.ctrl.ReportDefocus(session.SignalTabHidden))
	require.Eventually(t, func() bool {
		return h.ctrl.State().DefocusCount == want
	}, time.Second, time.Millisecond)
}

// ─── Lifecycle ──────────────────────────────────────────────────────

func TestNew_RequiresService(t *testing.T) {
	_, err := session.New(session.Options{DurationSeconds: 60})
	assert.ErrorIs(t, err, session.ErrMissingService)
}

func TestStart_InvalidDurationFailsFast(t *testing.T) {
	h := newHarness(t, 0)

	err := h.ctrl.Start(context.Background())

	assert.ErrorIs(t, err, session.ErrInvalidDuration)
	assert.Equal(t, 0, h.svc.StartCalls())
	assert.Equal(t, model.AttemptStatusNotStarted, h.ctrl.Status())
}

func TestStart_FailureIsRetryable(t *testing.T) {
	h := newHarness(t, 600)
	h.svc.FailStart(errors.New("connection refused"))

	err := h.ctrl.Start(context.Background())

	var startErr *session.StartError
	require.ErrorAs(t, err, &startErr)
	assert.True(t, startErr.Retryable())
	assert.Equal(t, model.AttemptStatusNotStarted, h.ctrl.Status())
	assert.ErrorIs(t, h.ctrl.SetAnswer("q1", "A"), session.ErrNotActive)
	assert.Equal(t, 0, h.sched.Pending(), "nothing may be armed before an attempt id exists")

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, model.AttemptStatusActive, h.ctrl.Status())
	assert.Equal(t, "attempt-1", h.ctrl.State().AttemptID)

	assert.ErrorIs(t, h.ctrl.Start(context.Background()), session.ErrAlreadyStarted)
	assert.Equal(t, 2, h.svc.StartCalls())
}

func TestStart_ResumeRestoresProgress(t *testing.T) {
	h := newHarness(t, 600, "q1", "q2")
	h.svc.ResumeAttempt(model.StartResult{
		AttemptID:     "attempt-7",
		StartedAt:     epoch.Add(-100 * time.Second),
		Answers:       map[string]string{"q1": "A", "q9": "dropped"},
		DefocusEvents: []time.Time{epoch.Add(-50 * time.Second), epoch.Add(-20 * time.Second)},
	})
	h.start(t)

	st := h.ctrl.State()
	assert.Equal(t, model.AttemptStatusActive, st.Status)
	assert.Equal(t, "attempt-7", st.AttemptID)
	assert.Equal(t, 500, st.RemainingSeconds)
	assert.Equal(t, 100, st.ElapsedSeconds)
	assert.Equal(t, 1, st.AnsweredCount)
	assert.Equal(t, 2, st.DefocusCount)

	h.defocus(t, 3)
	require.Eventually(t, func() bool {
		return len(h.rec.warningLevels()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []int{3}, h.rec.warningLevels())

	h.sched.Advance(10 * time.Second)
	_, err := h.ctrl.Submit(context.Background())
	require.NoError(t, err)

	p := h.svc.SubmitCalls()[0].Payload
	assert.Equal(t, "attempt-7", p.AttemptID)
	assert.Equal(t, 110, p.TimeTakenSeconds)
	assert.Equal(t, map[string]model.Answer{"q1": {Value: "A"}}, p.Answers)
	assert.Equal(t, 3, p.DefocusCount)
}

func TestStart_ResumePastDeadlineAutoSubmits(t *testing.T) {
	h := newHarness(t, 600)
	h.svc.ResumeAttempt(model.StartResult{
		AttemptID: "attempt-7",
		StartedAt: epoch.Add(-700 * time.Second),
		Answers:   map[string]string{"q1": "A"},
	})
	h.start(t)

	calls := h.svc.SubmitCalls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Payload.AutoSubmit)
	assert.Nil(t, calls[0].Payload.FraudDetected)
	assert.Equal(t, 600, calls[0].Payload.TimeTakenSeconds)
	assert.Equal(t, model.AttemptStatusAutoSubmitted, h.ctrl.Status())
	assert.Equal(t, []model.AttemptStatus{model.AttemptStatusAutoSubmitted}, h.rec.terminal)
	assert.Equal(t, 0, h.sched.Pending())
}

func TestStart_ResumeAtTerminationCountRearmsGrace(t *testing.T) {
	h := newHarness(t, 600)
	events := make([]time.Time, session.TerminateAt)
	for i := range events {
		events[i] = epoch.Add(time.Duration(i-10) * time.Second)
	}
	h.svc.ResumeAttempt(model.StartResult{
		AttemptID:     "attempt-7",
		StartedAt:     epoch.Add(-time.Minute),
		DefocusEvents: events,
	})
	h.start(t)
	require.True(t, h.ctrl.State().TerminationPending)

	h.sched.Advance(session.GracePeriod)

	calls := h.svc.SubmitCalls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].Payload.FraudDetected)
	assert.Equal(t, session.TerminateAt, calls[0].Payload.DefocusCount)
	assert.Equal(t, model.AttemptStatusFraudTerminated, h.ctrl.Status())
}

func TestSubmit_ManualWithZeroAnswers(t *testing.T) {
	h := newHarness(t, 600)
	h.start(t)
	h.sched.Advance(42 * time.Second)

	resultID, err := h.ctrl.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "result-1", resultID)

	calls := h.svc.SubmitCalls()
	require.Len(t, calls, 1)
	p := calls[0].Payload
	assert.Equal(t, "test-1", calls[0].TestID)
	assert.False(t, p.AutoSubmit)
	assert.Nil(t, p.FraudDetected)
	assert.Empty(t, p.FraudReason)
	assert.NotNil(t, p.Answers)
	assert.Empty(t, p.Answers)
	assert.Equal(t, 42, p.TimeTakenSeconds)
	assert.Equal(t, "attempt-1", p.AttemptID)

	st := h.ctrl.State()
	assert.Equal(t, model.AttemptStatusSubmitted, st.Status)
	assert.Equal(t, 558, st.RemainingSeconds)
	assert.Equal(t, "result-1", st.ResultID)
	assert.Equal(t, 0, h.sched.Pending())
}

func TestSubmit_CarriesAlternateEditorFlag(t *testing.T) {
	h := newHarness(t, 600, "q1", "q2")
	h.start(t)

	require.NoError(t, h.ctrl.MarkAlternateEditorUsed("q1"))
	require.NoError(t, h.ctrl.SetAnswer("q1", "func main() {}"))
	require.NoError(t, h.ctrl.SetAnswer("q2", "B"))
	assert.ErrorIs(t, h.ctrl.SetAnswer("q7", "B"), session.ErrUnknownQuestion)

	_, err := h.ctrl.Submit(context.Background())
	require.NoError(t, err)

	answers := h.svc.SubmitCalls()[0].Payload.Answers
	assert.Equal(t, model.Answer{Value: "func main() {}", UsedAlternateEditor: true}, answers["q1"])
	assert.Equal(t, model.Answer{Value: "B"}, answers["q2"])
}

func TestSubmit_AlternateEditorWithoutAnswerIsMetadataOnly(t *testing.T) {
	h := newHarness(t, 600, "q1", "q2")
	h.start(t)

	require.NoError(t, h.ctrl.SetAnswer("q1", "A"))
	require.NoError(t, h.ctrl.MarkAlternateEditorUsed("q2"))
	assert.Equal(t, 1, h.ctrl.State().AnsweredCount)

	_, err := h.ctrl.Submit(context.Background())
	require.NoError(t, err)

	p := h.svc.SubmitCalls()[0].Payload
	assert.Equal(t, map[string]model.Answer{"q1": {Value: "A"}}, p.Answers)
	assert.Equal(t, []string{"q2"}, p.AlternateEditorQuestions)
}

// ─── End-to-end scenarios ───────────────────────────────────────────

func TestScenario_TimerExpiryAutoSubmits(t *testing.T) {
	h := newHarness(t, 120, "q1", "q2", "q3", "q4", "q5")
	h.start(t)

	require.NoError(t, h.ctrl.SetAnswer("q1", "A"))
	require.NoError(t, h.ctrl.SetAnswer("q2", "C"))
	require.NoError(t, h.ctrl.SetAnswer("q4", "D"))

	h.sched.Advance(119 * time.Second)
	assert.Empty(t, h.svc.SubmitCalls())

	h.sched.Advance(time.Second)

	calls := h.svc.SubmitCalls()
	require.Len(t, calls, 1)
	p := calls[0].Payload
	assert.True(t, p.AutoSubmit)
	assert.Nil(t, p.FraudDetected)
	assert.Empty(t, p.FraudReason)
	assert.Equal(t, 120, p.TimeTakenSeconds)
	assert.Equal(t, map[string]model.Answer{
		"q1": {Value: "A"},
		"q2": {Value: "C"},
		"q4": {Value: "D"},
	}, p.Answers)

	assert.Equal(t, model.AttemptStatusAutoSubmitted, h.ctrl.Status())
	assert.Equal(t, []int{60, 30}, h.rec.timeWarnings)
	assert.Equal(t, []model.AttemptStatus{model.AttemptStatusAutoSubmitted}, h.rec.terminal)
	assert.Equal(t, 0, h.sched.Pending(), "tick task leaked after expiry")

	h.sched.Advance(time.Minute)
	assert.Len(t, h.svc.SubmitCalls(), 1)
}

func TestScenario_FraudTerminationAfterGracePeriod(t *testing.T) {
	h := newHarness(t, 600)
	h.start(t)

	for i := 1; i <= session.TerminateAt; i++ {
		if i > 1 {
			h.sched.Advance(1100 * time.Millisecond)
		}
		h.defocus(t, i)
	}
	st := h.ctrl.State()
	require.True(t, st.TerminationPending)
	fifth := st.DefocusEvents[session.TerminateAt-1]

	require.Eventually(t, func() bool {
		return len(h.rec.warningLevels()) == session.TerminateAt
	}, time.Second, time.Millisecond)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, h.rec.warningLevels())
	assert.Equal(t, model.AttemptStatusActive, h.ctrl.Status(), "termination must wait for the grace period")

	h.sched.Advance(session.GracePeriod - time.Millisecond)
	assert.Empty(t, h.svc.SubmitCalls())

	h.sched.Advance(time.Millisecond)

	calls := h.svc.SubmitCalls()
	require.Len(t, calls, 1)
	p := calls[0].Payload
	require.NotNil(t, p.FraudDetected)
	assert.True(t, *p.FraudDetected)
	assert.Equal(t, session.FraudReason, p.FraudReason)
	assert.Equal(t, session.TerminateAt, p.DefocusCount)
	assert.Len(t, p.DefocusEvents, session.TerminateAt)
	assert.True(t, p.AutoSubmit)
	assert.Equal(t, session.GracePeriod, calls[0].At.Sub(fifth))

	st = h.ctrl.State()
	assert.Equal(t, model.AttemptStatusFraudTerminated, st.Status)
	assert.True(t, st.FraudDetected)
	assert.False(t, st.TerminationPending)
	assert.Equal(t, 0, h.sched.Pending())

	require.Eventually(t, func() bool {
		return len(h.svc.DefocusRecorded()) == session.TerminateAt
	}, time.Second, time.Millisecond)
}

func TestScenario_DefocusDuringGraceTerminatesOnce(t *testing.T) {
	h := newHarness(t, 600)
	h.start(t)
	for i := 1; i <= session.TerminateAt; i++ {
		if i > 1 {
			h.sched.Advance(1100 * time.Millisecond)
		}
		h.defocus(t, i)
	}

	h.sched.Advance(1100 * time.Millisecond)
	h.defocus(t, session.TerminateAt+1)
	require.Eventually(t, func() bool {
		return len(h.rec.warningLevels()) == session.TerminateAt+1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 5}, h.rec.warningLevels())

	h.sched.Advance(session.GracePeriod)
	h.sched.Advance(time.Minute)

	calls := h.svc.SubmitCalls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].Payload.FraudDetected)
	assert.Equal(t, session.TerminateAt+1, calls[0].Payload.DefocusCount)
	assert.Equal(t, model.AttemptStatusFraudTerminated, h.ctrl.Status())
}

func TestScenario_DefocusBurstCountsOnce(t *testing.T) {
	h := newHarness(t, 600)
	h.start(t)

	for i := 0; i < 10; i++ {
		require.True(t, h.ctrl.ReportDefocus(session.SignalWindowBlur))
	}

	require.Eventually(t, func() bool {
		return h.ctrl.State().DefocusCount == 1
	}, time.Second, time.Millisecond)
	assert.Never(t, func() bool {
		return h.ctrl.State().DefocusCount > 1
	}, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, []int{1}, h.rec.warningLevels())
	require.Eventually(t, func() bool {
		return len(h.svc.DefocusRecorded()) == 1
	}, time.Second, time.Millisecond)
}

// ─── Arbitration ────────────────────────────────────────────────────

func TestRace_ExpiryAndGraceInSameInstant(t *testing.T) {
	// Five accepted events at t=1..5s put the grace deadline at t=7s, the
	// same instant the 7s countdown expires. The tick was armed first.
	h := newHarness(t, 7)
	h.start(t)
	for i := 1; i <= session.TerminateAt; i++ {
		h.sched.Advance(time.Second)
		h.defocus(t, i)
	}

	h.sched.Advance(2 * time.Second)

	calls := h.svc.SubmitCalls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Payload.AutoSubmit)
	assert.Nil(t, calls[0].Payload.FraudDetected)
	assert.Equal(t, session.TerminateAt, calls[0].Payload.DefocusCount)
	assert.Equal(t, model.AttemptStatusAutoSubmitted, h.ctrl.Status())
	assert.Equal(t, 0, h.sched.Pending())
}

func TestRace_GraceBeforeExpiry(t *testing.T) {
	h := newHarness(t, 8)
	h.start(t)
	for i := 1; i <= session.TerminateAt; i++ {
		h.sched.Advance(time.Second)
		h.defocus(t, i)
	}

	h.sched.Advance(10 * time.Second)

	calls := h.svc.SubmitCalls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].Payload.FraudDetected)
	assert.Equal(t, model.AttemptStatusFraudTerminated, h.ctrl.Status())
	assert.Equal(t, 7, calls[0].Payload.TimeTakenSeconds)
}

func TestRace_ManualSubmitAgainstExpiry(t *testing.T) {
	for i := 0; i < 50; i++ {
		h := newHarness(t, 1)
		h.start(t)

		var (
			wg        sync.WaitGroup
			manualErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, manualErr = h.ctrl.Submit(context.Background())
		}()
		go func() {
			defer wg.Done()
			h.sched.Advance(time.Second)
		}()
		wg.Wait()

		calls := h.svc.SubmitCalls()
		require.Len(t, calls, 1, "iteration %d", i)

		if calls[0].Payload.AutoSubmit {
			assert.Equal(t, model.AttemptStatusAutoSubmitted, h.ctrl.Status())
			assert.True(t, errors.Is(manualErr, session.ErrSubmitInFlight) || errors.Is(manualErr, session.ErrNotActive),
				"unexpected manual error: %v", manualErr)
		} else {
			assert.Equal(t, model.AttemptStatusSubmitted, h.ctrl.Status())
			assert.NoError(t, manualErr)
		}
	}
}

func TestManualSubmit_CancelsPendingFraudTermination(t *testing.T) {
	h := newHarness(t, 600)
	h.start(t)
	for i := 1; i <= session.TerminateAt; i++ {
		if i > 1 {
			h.sched.Advance(1100 * time.Millisecond)
		}
		h.defocus(t, i)
	}

	_, err := h.ctrl.Submit(context.Background())
	require.NoError(t, err)

	h.sched.Advance(5 * time.Second)

	calls := h.svc.SubmitCalls()
	require.Len(t, calls, 1)
	assert.False(t, calls[0].Payload.AutoSubmit)
	assert.Nil(t, calls[0].Payload.FraudDetected)
	assert.Equal(t, session.TerminateAt, calls[0].Payload.DefocusCount)
	assert.Equal(t, model.AttemptStatusSubmitted, h.ctrl.Status())
}

// ─── Failure handling ───────────────────────────────────────────────

func TestManualSubmitFailure_RevertsToActive(t *testing.T) {
	h := newHarness(t, 600)
	h.start(t)
	require.NoError(t, h.ctrl.SetAnswer("q1", "A"))
	h.sched.Advance(10 * time.Second)
	h.svc.FailSubmit(errors.New("502 bad gateway"))

	_, err := h.ctrl.Submit(context.Background())

	var subErr *session.SubmitError
	require.ErrorAs(t, err, &subErr)
	assert.True(t, subErr.Reverted)
	assert.Equal(t, model.AttemptStatusSubmitted, subErr.Kind)
	assert.Equal(t, model.AttemptStatusActive, h.ctrl.Status())
	assert.Len(t, h.rec.failures, 1)

	// Ticking and answering resume after the revert.
	h.sched.Advance(5 * time.Second)
	assert.Equal(t, 585, h.ctrl.State().RemainingSeconds)
	require.NoError(t, h.ctrl.SetAnswer("q2", "B"))

	_, err = h.ctrl.Submit(context.Background())
	require.NoError(t, err)

	calls := h.svc.SubmitCalls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[1].Payload.Answers, 2)
	assert.Equal(t, 15, calls[1].Payload.TimeTakenSeconds)
	assert.Equal(t, model.AttemptStatusSubmitted, h.ctrl.Status())
}

func TestManualSubmitFailure_RearmsPendingFraudTermination(t *testing.T) {
	h := newHarness(t, 600)
	h.start(t)
	for i := 1; i <= session.TerminateAt; i++ {
		if i > 1 {
			h.sched.Advance(1100 * time.Millisecond)
		}
		h.defocus(t, i)
	}
	h.svc.FailSubmit(errors.New("timeout"))

	_, err := h.ctrl.Submit(context.Background())
	require.Error(t, err)
	require.Equal(t, model.AttemptStatusActive, h.ctrl.Status())

	h.sched.Advance(session.GracePeriod)

	calls := h.svc.SubmitCalls()
	require.Len(t, calls, 2)
	require.NotNil(t, calls[1].Payload.FraudDetected)
	assert.Equal(t, model.AttemptStatusFraudTerminated, h.ctrl.Status())
}

func TestAutoSubmitFailure_KeepsPayloadForRetry(t *testing.T) {
	h := newHarness(t, 2)
	h.start(t)
	require.NoError(t, h.ctrl.SetAnswer("q1", "A"))
	h.svc.FailSubmit(errors.New("503"))

	h.sched.Advance(2 * time.Second)

	st := h.ctrl.State()
	assert.Equal(t, model.AttemptStatusSubmitting, st.Status)
	assert.True(t, st.RetryAvailable)
	require.Len(t, h.rec.failures, 1)
	var subErr *session.SubmitError
	require.ErrorAs(t, h.rec.failures[0], &subErr)
	assert.False(t, subErr.Reverted)
	assert.Equal(t, model.AttemptStatusAutoSubmitted, subErr.Kind)

	assert.ErrorIs(t, h.ctrl.SetAnswer("q1", "B"), session.ErrNotActive)
	_, err := h.ctrl.Submit(context.Background())
	assert.ErrorIs(t, err, session.ErrSubmitInFlight)
	h.sched.Advance(time.Minute)
	require.Len(t, h.svc.SubmitCalls(), 1)

	resultID, err := h.ctrl.RetrySubmit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "result-2", resultID)

	calls := h.svc.SubmitCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0].Payload, calls[1].Payload)
	assert.Equal(t, model.AttemptStatusAutoSubmitted, h.ctrl.Status())

	_, err = h.ctrl.RetrySubmit(context.Background())
	assert.ErrorIs(t, err, session.ErrNothingToRetry)
}

func TestTelemetryFailure_IsSwallowed(t *testing.T) {
	h := newHarness(t, 600)
	h.start(t)
	h.svc.FailDefocus(errors.New("redis down"))

	h.defocus(t, 1)
	h.sched.Advance(1100 * time.Millisecond)
	h.defocus(t, 2)

	require.Eventually(t, func() bool {
		return len(h.svc.DefocusRecorded()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, model.AttemptStatusActive, h.ctrl.Status())
}

// ─── Terminal idempotence ───────────────────────────────────────────

func TestTerminalState_IgnoresFurtherInput(t *testing.T) {
	h := newHarness(t, 600)
	h.start(t)
	require.NoError(t, h.ctrl.SetAnswer("q1", "A"))
	h.defocus(t, 1)

	_, err := h.ctrl.Submit(context.Background())
	require.NoError(t, err)
	before := h.ctrl.State()

	assert.ErrorIs(t, h.ctrl.SetAnswer("q1", "B"), session.ErrNotActive)
	assert.ErrorIs(t, h.ctrl.MarkAlternateEditorUsed("q1"), session.ErrNotActive)
	assert.False(t, h.ctrl.ReportDefocus(session.SignalWindowBlur))
	h.sched.Advance(20 * time.Minute)

	_, err = h.ctrl.Submit(context.Background())
	assert.ErrorIs(t, err, session.ErrNotActive)
	_, err = h.ctrl.RetrySubmit(context.Background())
	assert.ErrorIs(t, err, session.ErrNothingToRetry)

	assert.Equal(t, before, h.ctrl.State())
	assert.Len(t, h.svc.SubmitCalls(), 1)
}

func TestClose_StopsTimersWithoutSubmitting(t *testing.T) {
	h := newHarness(t, 5)
	h.start(t)

	h.ctrl.Close()
	h.sched.Advance(time.Minute)

	assert.Empty(t, h.svc.SubmitCalls())
	assert.Equal(t, 0, h.sched.Pending())
	assert.False(t, h.ctrl.ReportDefocus(session.SignalTabHidden))
}
