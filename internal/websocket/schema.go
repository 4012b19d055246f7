package websocket

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stemsi/examcore/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer    Action = "answer"
	ActionViolation Action = "violation"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// Request is one client message. Fields not used by the action are ignored.
type Request struct {
	Action Action `json:"action"`
	// Ref is echoed back so clients can match replies to requests.
	Ref string `json:"ref,omitempty"`

	// answer
	QuestionID uuid.UUID       `json:"question_id,omitempty"`
	Answer     json.RawMessage `json:"answer,omitempty"`

	// violation
	EventType string  `json:"event_type,omitempty"`
	Details   *string `json:"details,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventViolation Event = "violation_recorded"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
)

type SavedResponse struct {
	Event      Event     `json:"event"`
	Ref        string    `json:"ref,omitempty"`
	QuestionID uuid.UUID `json:"question_id"`
}

type ViolationResponse struct {
	Event         Event          `json:"event"`
	Ref           string         `json:"ref,omitempty"`
	Count         int            `json:"violation_count"`
	AutoSubmitted bool           `json:"auto_submitted"`
	Attempt       *model.Attempt `json:"attempt,omitempty"`
}

type SubmittedResponse struct {
	Event   Event          `json:"event"`
	Ref     string         `json:"ref,omitempty"`
	Attempt *model.Attempt `json:"attempt"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Ref   string `json:"ref,omitempty"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event  `json:"event"`
	Ref   string `json:"ref,omitempty"`
}
