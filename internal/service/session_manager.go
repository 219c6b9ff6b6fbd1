package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// ErrSessionNotFound is returned when the candidate has no live session for the test.
var ErrSessionNotFound = errors.New("session not found")

// DefaultRetainTerminal is how long a finished session stays queryable.
const DefaultRetainTerminal = 15 * time.Minute

// SpecSource provides the session spec of a test.
type SpecSource interface {
	GetSessionSpec(ctx context.Context, testID uuid.UUID) (*model.SessionSpec, error)
}

// GatewayFactory binds a backend to a candidate credential.
type GatewayFactory interface {
	For(candidateID int64) CandidateBackend
}

// SessionManagerConfig configures a SessionManager.
type SessionManagerConfig struct {
	SubmitTimeout    time.Duration
	TelemetryTimeout time.Duration
	RetainTerminal   time.Duration
	// Scheduler defaults to the wall clock.
	Scheduler session.Scheduler
}

type sessionKey struct {
	candidateID int64
	testID      uuid.UUID
}

// SessionManager hosts one session.Controller per live (candidate, test) pair.
type SessionManager struct {
	specs     SpecSource
	gateways  GatewayFactory
	publisher EventPublisher
	sched     session.Scheduler
	cfg       SessionManagerConfig
	log       zerolog.Logger

	mu       sync.Mutex
	sessions map[sessionKey]*liveSession
	closed   bool
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager(
	specs SpecSource,
	gateways GatewayFactory,
	publisher EventPublisher,
	cfg SessionManagerConfig,
	log zerolog.Logger,
) *SessionManager {
	if cfg.Scheduler == nil {
		cfg.Scheduler = session.NewRealScheduler()
	}
	if cfg.RetainTerminal <= 0 {
		cfg.RetainTerminal = DefaultRetainTerminal
	}
	return &SessionManager{
		specs:     specs,
		gateways:  gateways,
		publisher: publisher,
		sched:     cfg.Scheduler,
		cfg:       cfg,
		log:       log.With().Str("component", "session_manager").Logger(),
		sessions:  make(map[sessionKey]*liveSession),
	}
}

// ─── Lifecycle ──────────────────────────────────────────────────────

// StartSession starts the candidate's attempt, or returns the state of the
// session already running. A failed start can be retried by calling again.
func (m *SessionManager) StartSession(ctx context.Context, candidateID int64, testID uuid.UUID) (session.State, error) {
	key := sessionKey{candidateID: candidateID, testID: testID}

	ls, err := m.getOrCreate(ctx, key)
	if err != nil {
		return session.State{}, err
	}

	err = ls.ctrl.Start(ctx)
	switch {
	case err == nil:
		st := ls.ctrl.State()
		ls.publish(model.MonitorEvent{Type: model.MonitorEventStarted, Status: st.Status, At: m.sched.Now()})
		return st, nil
	case errors.Is(err, session.ErrAlreadyStarted):
		return ls.ctrl.State(), nil
	case errors.Is(err, session.ErrInvalidDuration),
		errors.Is(err, ErrAttemptExists),
		errors.Is(err, ErrTestNotAvailable),
		errors.Is(err, ErrInvalidTestID):
		// Not retryable through this entry.
		m.remove(key, ls)
		return session.State{}, err
	default:
		return ls.ctrl.State(), err
	}
}

func (m *SessionManager) getOrCreate(ctx context.Context, key sessionKey) (*liveSession, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errors.New("session manager is shut down")
	}
	if ls, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		return ls, nil
	}
	m.mu.Unlock()

	spec, err := m.specs.GetSessionSpec(ctx, key.testID)
	if err != nil {
		return nil, err
	}

	ls := &liveSession{
		mgr:     m,
		key:     key,
		backend: m.gateways.For(key.candidateID),
		subs:    make(map[uint64]session.Listener),
	}
	ctrl, err := session.New(session.Options{
		TestID:           key.testID.String(),
		DurationSeconds:  spec.DurationSeconds,
		QuestionIDs:      spec.QuestionIDs,
		Service:          ls.backend,
		Scheduler:        m.sched,
		Listener:         ls,
		Logger:           m.log.With().Int64("candidate_id", key.candidateID).Logger(),
		SubmitTimeout:    m.cfg.SubmitTimeout,
		TelemetryTimeout: m.cfg.TelemetryTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create controller: %w", err)
	}
	ls.ctrl = ctrl

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[key]; ok {
		ctrl.Close()
		return existing, nil
	}
	m.sessions[key] = ls
	return ls, nil
}

func (m *SessionManager) lookup(candidateID int64, testID uuid.UUID) (*liveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, ok := m.sessions[sessionKey{candidateID: candidateID, testID: testID}]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ls, nil
}

// remove drops ls if it is still the registered session for key.
func (m *SessionManager) remove(key sessionKey, ls *liveSession) {
	m.mu.Lock()
	if m.sessions[key] == ls {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
	ls.ctrl.Close()
}

// Len returns the number of hosted sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every hosted controller without submitting. Attempts stay
// ACTIVE in the database.
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[sessionKey]*liveSession)
	m.mu.Unlock()

	for _, ls := range sessions {
		ls.ctrl.Close()
	}
	m.log.Info().Int("count", len(sessions)).Msg("Sessions closed")
}

// ─── Forwarded operations ───────────────────────────────────────────

// SetAnswer records an answer and autosaves it as a draft.
func (m *SessionManager) SetAnswer(ctx context.Context, candidateID int64, testID uuid.UUID, questionID, value string) error {
	ls, err := m.lookup(candidateID, testID)
	if err != nil {
		return err
	}
	if err := ls.ctrl.SetAnswer(questionID, value); err != nil {
		return err
	}

	attemptID := ls.ctrl.State().AttemptID
	if err := ls.backend.Autosave(ctx, attemptID, questionID, value); err != nil {
		m.log.Warn().Err(err).Str("attempt_id", attemptID).Msg("Autosave failed")
	}
	return nil
}

func (m *SessionManager) MarkAlternateEditorUsed(candidateID int64, testID uuid.UUID, questionID string) error {
	ls, err := m.lookup(candidateID, testID)
	if err != nil {
		return err
	}
	return ls.ctrl.MarkAlternateEditorUsed(questionID)
}

// ReportDefocus forwards one raw visibility-loss signal. The bool reports
// whether the signal was queued; acceptance is decided asynchronously.
func (m *SessionManager) ReportDefocus(candidateID int64, testID uuid.UUID, kind session.SignalKind) (bool, error) {
	ls, err := m.lookup(candidateID, testID)
	if err != nil {
		return false, err
	}
	return ls.ctrl.ReportDefocus(kind), nil
}

func (m *SessionManager) Submit(ctx context.Context, candidateID int64, testID uuid.UUID) (session.State, error) {
	ls, err := m.lookup(candidateID, testID)
	if err != nil {
		return session.State{}, err
	}
	_, err = ls.ctrl.Submit(ctx)
	return ls.ctrl.State(), err
}

func (m *SessionManager) RetrySubmit(ctx context.Context, candidateID int64, testID uuid.UUID) (session.State, error) {
	ls, err := m.lookup(candidateID, testID)
	if err != nil {
		return session.State{}, err
	}
	_, err = ls.ctrl.RetrySubmit(ctx)
	return ls.ctrl.State(), err
}

func (m *SessionManager) State(candidateID int64, testID uuid.UUID) (session.State, error) {
	ls, err := m.lookup(candidateID, testID)
	if err != nil {
		return session.State{}, err
	}
	return ls.ctrl.State(), nil
}

// Subscribe attaches l to the session's notifications until the returned
// function is called.
func (m *SessionManager) Subscribe(candidateID int64, testID uuid.UUID, l session.Listener) (func(), error) {
	ls, err := m.lookup(candidateID, testID)
	if err != nil {
		return nil, err
	}

	ls.mu.Lock()
	id := ls.nextSub
	ls.nextSub++
	ls.subs[id] = l
	ls.mu.Unlock()

	return func() {
		ls.mu.Lock()
		delete(ls.subs, id)
		ls.mu.Unlock()
	}, nil
}

// ─── Fan-out ────────────────────────────────────────────────────────

// liveSession is the controller's Listener: it fans notifications out to
// subscribers and publishes the proctor-relevant ones.
type liveSession struct {
	mgr     *SessionManager
	key     sessionKey
	ctrl    *session.Controller
	backend CandidateBackend

	mu      sync.Mutex
	subs    map[uint64]session.Listener
	nextSub uint64
}

func (ls *liveSession) each(fn func(session.Listener)) {
	ls.mu.Lock()
	subs := make([]session.Listener, 0, len(ls.subs))
	for _, l := range ls.subs {
		subs = append(subs, l)
	}
	ls.mu.Unlock()

	for _, l := range subs {
		fn(l)
	}
}

func (ls *liveSession) publish(ev model.MonitorEvent) {
	if ls.mgr.publisher == nil {
		return
	}
	ev.TestID = ls.key.testID.String()
	ev.CandidateID = ls.key.candidateID
	if ev.AttemptID == "" {
		ev.AttemptID = ls.ctrl.State().AttemptID
	}

	go func() {
		timeout := ls.mgr.cfg.TelemetryTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := ls.mgr.publisher.Publish(ctx, ev.TestID, ev); err != nil {
			ls.mgr.log.Warn().Err(err).Str("type", string(ev.Type)).Msg("Monitor publish failed")
		}
	}()
}

func (ls *liveSession) OnWarning(level int, message string) {
	ls.each(func(l session.Listener) { l.OnWarning(level, message) })
	ls.publish(model.MonitorEvent{Type: model.MonitorEventWarning, Level: level, Message: message, At: ls.mgr.sched.Now()})
}

func (ls *liveSession) OnTimeWarning(thresholdSeconds int) {
	ls.each(func(l session.Listener) { l.OnTimeWarning(thresholdSeconds) })
}

func (ls *liveSession) OnDefocus(count int, at time.Time) {
	ls.each(func(l session.Listener) { l.OnDefocus(count, at) })
	ls.publish(model.MonitorEvent{Type: model.MonitorEventDefocus, Count: count, At: at})
}

func (ls *liveSession) OnTerminalState(kind model.AttemptStatus, resultID string) {
	ls.each(func(l session.Listener) { l.OnTerminalState(kind, resultID) })
	ls.publish(model.MonitorEvent{Type: model.MonitorEventTerminal, Status: kind, ResultID: resultID, At: ls.mgr.sched.Now()})

	ls.mgr.sched.AfterFunc(ls.mgr.cfg.RetainTerminal, func() { ls.mgr.remove(ls.key, ls) })
}

func (ls *liveSession) OnSubmitFailed(kind model.AttemptStatus, err error) {
	ls.each(func(l session.Listener) { l.OnSubmitFailed(kind, err) })
	ls.publish(model.MonitorEvent{Type: model.MonitorEventSubmitFailed, Status: kind, Message: err.Error(), At: ls.mgr.sched.Now()})
}
