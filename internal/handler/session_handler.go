package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// SessionHandler exposes a candidate's live session over REST.
type SessionHandler struct {
	manager *service.SessionManager
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(manager *service.SessionManager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

// target resolves the caller and the test from the request. It writes the
// error response and returns ok=false on failure.
func target(c *gin.Context) (candidateID int64, testID uuid.UUID, ok bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return 0, uuid.Nil, false
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, uuid.Nil, false
	}
	return claims.UserID, testID, true
}

func failSession(c *gin.Context, err error) {
	status, code := mapSessionError(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("code", string(code)).Msg("Session request failed")
	}
	response.Fail(c, status, code)
}

// StartSession godoc
// POST /api/v1/candidate/tests/:test_id/session/start
// Starts the attempt, or returns the running session (idempotent).
func (h *SessionHandler) StartSession(c *gin.Context) {
	candidateID, testID, ok := target(c)
	if !ok {
		return
	}

	st, err := h.manager.StartSession(c.Request.Context(), candidateID, testID)
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, st)
}

// GetState godoc
// GET /api/v1/candidate/tests/:test_id/session
func (h *SessionHandler) GetState(c *gin.Context) {
	candidateID, testID, ok := target(c)
	if !ok {
		return
	}

	st, err := h.manager.State(candidateID, testID)
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, st)
}

// SetAnswer godoc
// PUT /api/v1/candidate/tests/:test_id/session/answers/:question_id
func (h *SessionHandler) SetAnswer(c *gin.Context) {
	candidateID, testID, ok := target(c)
	if !ok {
		return
	}

	var req model.SetAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questionID := c.Param("question_id")
	if err := h.manager.SetAnswer(c.Request.Context(), candidateID, testID, questionID, req.Value); err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question_id": questionID, "status": "saved"})
}

// MarkAlternateEditor godoc
// POST /api/v1/candidate/tests/:test_id/session/answers/:question_id/alternate-editor
func (h *SessionHandler) MarkAlternateEditor(c *gin.Context) {
	candidateID, testID, ok := target(c)
	if !ok {
		return
	}

	questionID := c.Param("question_id")
	if err := h.manager.MarkAlternateEditorUsed(candidateID, testID, questionID); err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question_id": questionID, "used_alternate_editor": true})
}

// ReportDefocus godoc
// POST /api/v1/candidate/tests/:test_id/session/defocus
// Queues one raw visibility-loss signal. Debouncing and escalation happen
// asynchronously; the outcome is visible in the session state.
func (h *SessionHandler) ReportDefocus(c *gin.Context) {
	candidateID, testID, ok := target(c)
	if !ok {
		return
	}

	var req model.DefocusRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	queued, err := h.manager.ReportDefocus(candidateID, testID, session.SignalKind(req.Kind))
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"queued": queued})
}

// Submit godoc
// POST /api/v1/candidate/tests/:test_id/session/submit
func (h *SessionHandler) Submit(c *gin.Context) {
	candidateID, testID, ok := target(c)
	if !ok {
		return
	}

	st, err := h.manager.Submit(c.Request.Context(), candidateID, testID)
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, st)
}

// RetrySubmit godoc
// POST /api/v1/candidate/tests/:test_id/session/submit/retry
// Re-sends a failed expiry or fraud submission.
func (h *SessionHandler) RetrySubmit(c *gin.Context) {
	candidateID, testID, ok := target(c)
	if !ok {
		return
	}

	st, err := h.manager.RetrySubmit(c.Request.Context(), candidateID, testID)
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, st)
}
