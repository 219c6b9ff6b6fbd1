// Package session implements the proctored exam session engine: the attempt
// lifecycle, the countdown, focus-loss detection with debouncing and
// escalation, and the arbitration that guarantees exactly one submission per
// attempt whichever of manual submit, time expiry or fraud termination fires.
//
// A Controller serializes every local transition under one mutex. Network
// calls and listener notifications always happen after the mutex is released.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	defaultSubmitTimeout    = 30 * time.Second
	defaultTelemetryTimeout = 5 * time.Second
)

// SubmissionService is the network boundary of the engine.
type SubmissionService interface {
	Start(ctx context.Context, testID string) (model.StartResult, error)
	// RecordDefocusEvent is best effort; its errors are logged and dropped.
	RecordDefocusEvent(ctx context.Context, attemptID string, at time.Time) error
	Submit(ctx context.Context, testID string, payload model.SubmissionPayload) (model.SubmitResult, error)
}

// Options configures a Controller.
type Options struct {
	TestID          string
	DurationSeconds int
	// QuestionIDs restricts answer keys when non-empty.
	QuestionIDs []string
	Service     SubmissionService
	Scheduler   Scheduler
	Listener    Listener
	Logger      zerolog.Logger
	// SubmitTimeout bounds engine-initiated submissions (expiry and fraud).
	SubmitTimeout    time.Duration
	TelemetryTimeout time.Duration
}

// State is a point-in-time view of a session.
type State struct {
	Status             model.AttemptStatus `json:"status"`
	TestID             string              `json:"test_id"`
	AttemptID          string              `json:"attempt_id,omitempty"`
	StartedAt          *time.Time          `json:"started_at,omitempty"`
	DurationSeconds    int                 `json:"duration_seconds"`
	RemainingSeconds   int                 `json:"remaining_seconds"`
	ElapsedSeconds     int                 `json:"elapsed_seconds"`
	AnsweredCount      int                 `json:"answered_count"`
	DefocusCount       int                 `json:"defocus_count"`
	DefocusEvents      []time.Time         `json:"defocus_events"`
	TerminationPending bool                `json:"termination_pending"`
	FraudDetected      bool                `json:"fraud_detected"`
	FraudReason        string              `json:"fraud_reason,omitempty"`
	ResultID           string              `json:"result_id,omitempty"`
	RetryAvailable     bool                `json:"retry_available"`
}

type pendingSubmit struct {
	kind    model.AttemptStatus
	payload model.SubmissionPayload
}

// Controller owns one Attempt and orchestrates its components.
type Controller struct {
	testID           string
	duration         int
	svc              SubmissionService
	sched            Scheduler
	listener         Listener
	log              zerolog.Logger
	submitTimeout    time.Duration
	telemetryTimeout time.Duration

	mu        sync.Mutex
	status    model.AttemptStatus
	starting  bool
	closed    bool
	attemptID string
	startedAt time.Time

	answers   *AnswerBuffer
	countdown *Countdown
	focus     *FocusMonitor
	policy    FraudPolicy

	// gen is bumped on every teardown; callbacks armed under an older
	// generation are ignored.
	gen   uint64
	tick  Task
	grace Task

	terminationPending bool
	inFlight           bool
	pending            *pendingSubmit

	resultID      string
	fraudDetected bool
}

// New creates a controller in the NotStarted state.
func New(opts Options) (*Controller, error) {
	if opts.Service == nil {
		return nil, ErrMissingService
	}
	if opts.Scheduler == nil {
		opts.Scheduler = NewRealScheduler()
	}
	if opts.Listener == nil {
		opts.Listener = NopListener
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = defaultSubmitTimeout
	}
	if opts.TelemetryTimeout <= 0 {
		opts.TelemetryTimeout = defaultTelemetryTimeout
	}

	return &Controller{
		testID:           opts.TestID,
		duration:         opts.DurationSeconds,
		svc:              opts.Service,
		sched:            opts.Scheduler,
		listener:         opts.Listener,
		log:              opts.Logger.With().Str("component", "session").Str("test_id", opts.TestID).Logger(),
		submitTimeout:    opts.SubmitTimeout,
		telemetryTimeout: opts.TelemetryTimeout,
		status:           model.AttemptStatusNotStarted,
		answers:          NewAnswerBuffer(opts.QuestionIDs),
		focus:            NewFocusMonitor(DebounceWindow),
	}, nil
}

// Start obtains an attempt handle and arms the countdown and focus monitor.
// A non-positive duration fails immediately with ErrInvalidDuration. A failed
// start call returns a *StartError and leaves the session NotStarted.
//
// A resumed attempt continues from its original start time with its draft
// answers and recorded defocus events. One whose time already ran out is
// auto-submitted before Start returns.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.duration <= 0 {
		c.mu.Unlock()
		return ErrInvalidDuration
	}
	if c.status != model.AttemptStatusNotStarted || c.starting {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.starting = true
	c.mu.Unlock()

	res, err := c.svc.Start(ctx, c.testID)
	if err == nil && res.AttemptID == "" {
		err = errors.New("empty attempt id")
	}

	c.mu.Lock()
	c.starting = false

	if err != nil {
		c.mu.Unlock()
		c.log.Warn().Err(err).Msg("Start attempt failed")
		return &StartError{Err: err}
	}

	now := c.sched.Now()
	c.attemptID = res.AttemptID
	c.startedAt = res.StartedAt
	if c.startedAt.IsZero() {
		c.startedAt = now
	}
	if res.Resumed {
		c.countdown = ResumeCountdown(c.duration, int(now.Sub(c.startedAt)/time.Second))
		c.restoreLocked(res)
	} else {
		c.countdown = NewCountdown(c.duration)
	}
	c.status = model.AttemptStatusActive
	c.log = c.log.With().Str("attempt_id", c.attemptID).Logger()

	var sub *pendingSubmit
	switch {
	case c.closed:
	case c.countdown.Remaining() == 0:
		c.countdown.Poll()
		sub = c.beginLocked(model.AttemptStatusAutoSubmitted)
	default:
		c.armLocked()
	}
	remaining := c.countdown.Remaining()
	c.mu.Unlock()

	c.log.Info().
		Int("duration_seconds", c.duration).
		Int("remaining_seconds", remaining).
		Bool("resumed", res.Resumed).
		Msg("Attempt started")

	if sub != nil {
		c.dispatchDetached(sub)
	}
	return nil
}

// restoreLocked loads the state a resumed attempt carries. Answers for
// unknown questions are dropped. A restored count at the termination
// threshold leaves a termination pending for armLocked.
func (c *Controller) restoreLocked(res model.StartResult) {
	for qid, value := range res.Answers {
		if err := c.answers.Set(qid, value); err != nil {
			c.log.Warn().Str("question_id", qid).Msg("Dropped restored answer")
		}
	}
	c.focus.Restore(res.DefocusEvents)
	if c.focus.Count() >= TerminateAt {
		c.terminationPending = true
	}
}

// armLocked starts ticking and monitoring under a fresh generation, and
// re-arms a termination that was decided but not yet executed.
func (c *Controller) armLocked() {
	gen := c.gen
	c.tick = c.sched.Every(TickInterval, func() { c.onTick(gen) })
	c.focus.Start(func(sig Signal) { c.onSignal(gen, sig) })
	if c.terminationPending {
		c.grace = c.sched.AfterFunc(GracePeriod, func() { c.onGraceElapsed(gen) })
	}
}

func (c *Controller) teardownLocked() {
	c.gen++
	if c.tick != nil {
		c.tick.Stop()
		c.tick = nil
	}
	if c.grace != nil {
		c.grace.Stop()
		c.grace = nil
	}
	c.focus.Stop()
}

// SetAnswer records an answer. It fails with ErrNotActive once the session
// has left Active and never changes state in that case.
func (c *Controller) SetAnswer(questionID, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != model.AttemptStatusActive {
		return ErrNotActive
	}
	return c.answers.Set(questionID, value)
}

// MarkAlternateEditorUsed flags the question in the submission metadata.
func (c *Controller) MarkAlternateEditorUsed(questionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != model.AttemptStatusActive {
		return ErrNotActive
	}
	return c.answers.MarkAlternateEditorUsed(questionID)
}

// ReportDefocus enqueues a raw visibility-loss signal stamped with the
// scheduler clock. It returns false when the signal was not queued.
func (c *Controller) ReportDefocus(kind SignalKind) bool {
	if !kind.Valid() {
		return false
	}
	c.mu.Lock()
	active := c.status == model.AttemptStatusActive
	now := c.sched.Now()
	c.mu.Unlock()
	if !active {
		return false
	}
	return c.focus.Deliver(Signal{Kind: kind, At: now})
}

func (c *Controller) onTick(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.status != model.AttemptStatusActive {
		c.mu.Unlock()
		return
	}

	var (
		notify []func()
		sub    *pendingSubmit
	)
	for _, ev := range c.countdown.Tick() {
		switch ev.Kind {
		case TimerWarning:
			threshold := ev.Threshold
			notify = append(notify, func() { c.listener.OnTimeWarning(threshold) })
		case TimerExpired:
			sub = c.beginLocked(model.AttemptStatusAutoSubmitted)
		}
	}
	c.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
	if sub != nil {
		c.dispatchDetached(sub)
	}
}

func (c *Controller) onSignal(gen uint64, sig Signal) {
	c.mu.Lock()
	if gen != c.gen || c.status != model.AttemptStatusActive {
		c.mu.Unlock()
		return
	}
	if !c.focus.Observe(sig) {
		c.mu.Unlock()
		c.log.Debug().Str("kind", string(sig.Kind)).Msg("Defocus signal debounced")
		return
	}

	count := c.focus.Count()
	decision := c.policy.Classify(count)
	attemptID := c.attemptID
	if decision.Terminate && !c.terminationPending {
		c.terminationPending = true
		c.grace = c.sched.AfterFunc(GracePeriod, func() { c.onGraceElapsed(gen) })
	}
	c.mu.Unlock()

	c.log.Info().
		Str("kind", string(sig.Kind)).
		Int("count", count).
		Bool("terminate", decision.Terminate).
		Msg("Defocus event accepted")

	go c.recordDefocus(attemptID, sig.At)

	c.listener.OnDefocus(count, sig.At)
	if decision.Level > 0 {
		c.listener.OnWarning(decision.Level, decision.Message)
	}
}

func (c *Controller) onGraceElapsed(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.status != model.AttemptStatusActive || !c.terminationPending {
		c.mu.Unlock()
		return
	}
	sub := c.beginLocked(model.AttemptStatusFraudTerminated)
	c.mu.Unlock()

	if sub != nil {
		c.dispatchDetached(sub)
	}
}

func (c *Controller) recordDefocus(attemptID string, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), c.telemetryTimeout)
	defer cancel()
	if err := c.svc.RecordDefocusEvent(ctx, attemptID, at); err != nil {
		c.log.Warn().Err(err).Time("at", at).Msg("Defocus telemetry failed")
	}
}

// beginLocked is the submission guard. It moves an Active session into
// Submitting, tears down timers and listeners and freezes the payload. It
// returns nil when another path already holds the guard.
func (c *Controller) beginLocked(kind model.AttemptStatus) *pendingSubmit {
	if c.status != model.AttemptStatusActive || c.inFlight {
		return nil
	}
	c.inFlight = true
	c.status = model.AttemptStatusSubmitting
	c.teardownLocked()

	payload := model.SubmissionPayload{
		Answers:                  c.answers.Snapshot(),
		AlternateEditorQuestions: c.answers.AlternateEditorQuestions(),
		TimeTakenSeconds:         c.countdown.Elapsed(),
		AutoSubmit:               kind != model.AttemptStatusSubmitted,
		AttemptID:                c.attemptID,
		DefocusCount:             c.focus.Count(),
		DefocusEvents:            c.focus.Events(),
	}
	if kind == model.AttemptStatusFraudTerminated {
		detected := true
		payload.FraudDetected = &detected
		payload.FraudReason = FraudReason
	}

	c.pending = &pendingSubmit{kind: kind, payload: payload}
	return c.pending
}

// Submit is the candidate's manual submission. A failed call reverts the
// session to Active so the candidate can retry.
func (c *Controller) Submit(ctx context.Context) (string, error) {
	c.mu.Lock()
	sub := c.beginLocked(model.AttemptStatusSubmitted)
	status := c.status
	c.mu.Unlock()

	if sub == nil {
		if status == model.AttemptStatusSubmitting {
			return "", ErrSubmitInFlight
		}
		return "", ErrNotActive
	}
	return c.dispatch(ctx, sub)
}

// RetrySubmit re-sends the frozen payload of a failed expiry or fraud
// submission.
func (c *Controller) RetrySubmit(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return "", ErrSubmitInFlight
	}
	if c.status != model.AttemptStatusSubmitting || c.pending == nil {
		c.mu.Unlock()
		return "", ErrNothingToRetry
	}
	c.inFlight = true
	sub := c.pending
	c.mu.Unlock()

	return c.dispatch(ctx, sub)
}

func (c *Controller) dispatchDetached(sub *pendingSubmit) {
	ctx, cancel := context.WithTimeout(context.Background(), c.submitTimeout)
	defer cancel()
	_, _ = c.dispatch(ctx, sub)
}

func (c *Controller) dispatch(ctx context.Context, sub *pendingSubmit) (string, error) {
	res, err := c.svc.Submit(ctx, c.testID, sub.payload)

	c.mu.Lock()
	c.inFlight = false

	if err != nil {
		subErr := &SubmitError{Kind: sub.kind, Err: err}
		if sub.kind == model.AttemptStatusSubmitted {
			subErr.Reverted = true
			c.pending = nil
			c.status = model.AttemptStatusActive
			if !c.closed {
				c.armLocked()
			}
		}
		c.mu.Unlock()

		c.log.Error().Err(err).
			Str("kind", string(sub.kind)).
			Bool("reverted", subErr.Reverted).
			Msg("Submit attempt failed")
		c.listener.OnSubmitFailed(sub.kind, subErr)
		return "", subErr
	}

	c.status = sub.kind
	c.pending = nil
	c.resultID = res.ResultID
	c.fraudDetected = sub.kind == model.AttemptStatusFraudTerminated
	c.mu.Unlock()

	c.log.Info().
		Str("kind", string(sub.kind)).
		Str("result_id", res.ResultID).
		Int("answers", len(sub.payload.Answers)).
		Int("defocus_count", sub.payload.DefocusCount).
		Msg("Attempt submitted")
	c.listener.OnTerminalState(sub.kind, res.ResultID)
	return res.ResultID, nil
}

// Close tears down timers and listeners without submitting. The status is
// left as is; a closed controller never re-arms.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.teardownLocked()
}

// Status returns the current lifecycle state.
func (c *Controller) Status() model.AttemptStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// State returns a snapshot of the session.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Status:             c.status,
		TestID:             c.testID,
		AttemptID:          c.attemptID,
		DurationSeconds:    c.duration,
		RemainingSeconds:   c.duration,
		AnsweredCount:      c.answers.Len(),
		DefocusCount:       c.focus.Count(),
		DefocusEvents:      c.focus.Events(),
		TerminationPending: c.terminationPending && !c.status.IsTerminal(),
		FraudDetected:      c.fraudDetected,
		ResultID:           c.resultID,
		RetryAvailable:     c.status == model.AttemptStatusSubmitting && c.pending != nil && !c.inFlight,
	}
	if c.fraudDetected {
		st.FraudReason = FraudReason
	}
	if !c.startedAt.IsZero() {
		started := c.startedAt
		st.StartedAt = &started
	}
	if c.countdown != nil {
		st.RemainingSeconds = c.countdown.Remaining()
		st.ElapsedSeconds = c.countdown.Elapsed()
	}
	return st
}
