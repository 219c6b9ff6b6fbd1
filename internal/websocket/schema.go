package websocket

import "time"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionStart       Action = "start"
	ActionAnswer      Action = "answer"
	ActionAltEditor   Action = "alt_editor"
	ActionDefocus     Action = "defocus"
	ActionSubmit      Action = "submit"
	ActionRetrySubmit Action = "retry_submit"
	ActionPing        Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest writes a single answer.
type AnswerRequest struct {
	Action Action `json:"action"`
	QID    string `json:"q_id" binding:"required"`
	Answer string `json:"ans" binding:"max=100000"`
}

// AltEditorRequest flags that a question was answered in the alternate editor.
type AltEditorRequest struct {
	Action Action `json:"action"`
	QID    string `json:"q_id" binding:"required"`
}

// DefocusRequest reports one raw visibility-loss signal.
type DefocusRequest struct {
	Action Action `json:"action"`
	Kind   string `json:"kind" binding:"required,signal_kind"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState        Event = "state"
	EventWarning      Event = "warning"
	EventTimeWarning  Event = "time_warning"
	EventDefocus      Event = "defocus"
	EventTerminated   Event = "terminated"
	EventSubmitFailed Event = "submit_failed"
	EventSuccess      Event = "success"
	EventError        Event = "error"
	EventPong         Event = "pong"
)

type StateResponse struct {
	Event Event       `json:"event"`
	State interface{} `json:"state"`
}

type WarningResponse struct {
	Event   Event  `json:"event"`
	Level   int    `json:"level"`
	Message string `json:"message"`
}

type TimeWarningResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

type DefocusResponse struct {
	Event Event     `json:"event"`
	Count int       `json:"count"`
	At    time.Time `json:"at"`
}

// TerminatedResponse announces the attempt's terminal state.
type TerminatedResponse struct {
	Event    Event  `json:"event"`
	Status   string `json:"status"`
	ResultID string `json:"result_id"`
}

type SubmitFailedResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
	// RetryAvailable is true when retry_submit re-sends a frozen payload.
	// Otherwise the session is active again and submit may be sent anew.
	RetryAvailable bool   `json:"retry_available"`
	Error          string `json:"error"`
}

type SuccessResponse struct {
	Event  Event  `json:"event"`
	Action Action `json:"action"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
