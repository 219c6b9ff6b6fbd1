package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/validator"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

const wsRequestTimeout = 30 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a candidate's live session over a WebSocket.
type WSHandler struct {
	manager  *service.SessionManager
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(manager *service.SessionManager, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		manager:  manager,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// wsClient is one connected candidate.
type wsClient struct {
	h           *WSHandler
	conn        *ws.Conn
	log         zerolog.Logger
	candidateID int64
	testID      uuid.UUID
	unsubscribe func()
}

// SessionStream godoc
// WS /ws/v1/candidate/tests/:test_id/session
// Carries answer edits, visibility signals and submit requests in, and
// warnings, countdown notices and the terminal outcome out.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	cl := &wsClient{
		h:           h,
		conn:        conn,
		candidateID: claims.UserID,
		testID:      testID,
		log: h.log.With().
			Int64("candidate_id", claims.UserID).
			Str("test_id", testID.String()).
			Logger(),
	}
	defer cl.detach()

	cl.log.Info().Msg("Candidate connected")

	// Reconnects pick up the running session.
	if st, err := h.manager.State(cl.candidateID, cl.testID); err == nil {
		cl.attach()
		cl.write(ws.StateResponse{Event: ws.EventState, State: st})
	}

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cl.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				cl.log.Debug().Msg("Connection closed")
			}
			return
		}
		cl.handle(data)
	}
}

func (cl *wsClient) handle(data []byte) {
	var env ws.RequestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		cl.fail(string(response.ErrInvalidPayload), "malformed message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsRequestTimeout)
	defer cancel()
	mgr := cl.h.manager

	switch env.Action {
	case ws.ActionPing:
		cl.write(ws.PongResponse{Event: ws.EventPong})

	case ws.ActionStart:
		st, err := mgr.StartSession(ctx, cl.candidateID, cl.testID)
		if err != nil {
			cl.failErr(err)
			return
		}
		cl.attach()
		cl.write(ws.StateResponse{Event: ws.EventState, State: st})

	case ws.ActionAnswer:
		var req ws.AnswerRequest
		if !cl.decode(data, &req) {
			return
		}
		if err := mgr.SetAnswer(ctx, cl.candidateID, cl.testID, req.QID, req.Answer); err != nil {
			cl.failErr(err)
			return
		}
		cl.write(ws.SuccessResponse{Event: ws.EventSuccess, Action: env.Action})

	case ws.ActionAltEditor:
		var req ws.AltEditorRequest
		if !cl.decode(data, &req) {
			return
		}
		if err := mgr.MarkAlternateEditorUsed(cl.candidateID, cl.testID, req.QID); err != nil {
			cl.failErr(err)
			return
		}
		cl.write(ws.SuccessResponse{Event: ws.EventSuccess, Action: env.Action})

	case ws.ActionDefocus:
		var req ws.DefocusRequest
		if !cl.decode(data, &req) {
			return
		}
		// Accepted events come back through the listener.
		if _, err := mgr.ReportDefocus(cl.candidateID, cl.testID, session.SignalKind(req.Kind)); err != nil {
			cl.failErr(err)
		}

	case ws.ActionSubmit:
		// The outcome arrives as terminated or submit_failed.
		if _, err := mgr.Submit(ctx, cl.candidateID, cl.testID); err != nil {
			var subErr *session.SubmitError
			if !errors.As(err, &subErr) {
				cl.failErr(err)
			}
		}

	case ws.ActionRetrySubmit:
		if _, err := mgr.RetrySubmit(ctx, cl.candidateID, cl.testID); err != nil {
			var subErr *session.SubmitError
			if !errors.As(err, &subErr) {
				cl.failErr(err)
			}
		}

	default:
		cl.log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
		cl.fail(string(response.ErrInvalidPayload), "unknown action: "+string(env.Action))
	}
}

func (cl *wsClient) decode(data []byte, dst interface{}) bool {
	if err := json.Unmarshal(data, dst); err != nil {
		cl.fail(string(response.ErrInvalidPayload), "malformed message")
		return false
	}
	if fields := validator.Struct(dst); fields != nil {
		for field, msg := range fields {
			cl.fail(string(response.ErrValidation), field+": "+msg)
			break
		}
		return false
	}
	return true
}

// attach subscribes the connection to session notifications once.
func (cl *wsClient) attach() {
	if cl.unsubscribe != nil {
		return
	}
	unsubscribe, err := cl.h.manager.Subscribe(cl.candidateID, cl.testID, cl.listener())
	if err != nil {
		cl.log.Warn().Err(err).Msg("Subscribe failed")
		return
	}
	cl.unsubscribe = unsubscribe
}

func (cl *wsClient) detach() {
	if cl.unsubscribe != nil {
		cl.unsubscribe()
	}
	cl.log.Info().Msg("Candidate disconnected")
}

func (cl *wsClient) listener() session.Listener {
	return session.ListenerFuncs{
		Warning: func(level int, message string) {
			cl.write(ws.WarningResponse{Event: ws.EventWarning, Level: level, Message: message})
		},
		TimeWarning: func(threshold int) {
			cl.write(ws.TimeWarningResponse{Event: ws.EventTimeWarning, RemainingSeconds: threshold})
		},
		Defocus: func(count int, at time.Time) {
			cl.write(ws.DefocusResponse{Event: ws.EventDefocus, Count: count, At: at})
		},
		TerminalState: func(kind model.AttemptStatus, resultID string) {
			cl.write(ws.TerminatedResponse{Event: ws.EventTerminated, Status: string(kind), ResultID: resultID})
		},
		SubmitFailed: func(kind model.AttemptStatus, err error) {
			var subErr *session.SubmitError
			reverted := errors.As(err, &subErr) && subErr.Reverted
			cl.write(ws.SubmitFailedResponse{
				Event:          ws.EventSubmitFailed,
				Status:         string(kind),
				RetryAvailable: !reverted,
				Error:          response.GetMessage(response.ErrSubmitFailed),
			})
		},
	}
}

func (cl *wsClient) write(v interface{}) {
	if err := cl.conn.WriteTyped(v); err != nil {
		cl.log.Debug().Err(err).Msg("Write failed")
	}
}

func (cl *wsClient) fail(code, msg string) {
	if err := cl.conn.WriteError(code, msg); err != nil {
		cl.log.Debug().Err(err).Msg("Write failed")
	}
}

func (cl *wsClient) failErr(err error) {
	status, code := mapSessionError(err)
	if status >= http.StatusInternalServerError {
		cl.log.Error().Err(err).Str("code", string(code)).Msg("Session request failed")
	}
	cl.fail(string(code), response.GetMessage(code))
}
