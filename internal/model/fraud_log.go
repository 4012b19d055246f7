package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// FraudLog is an append-only record of a suspected cheating event.
type FraudLog struct {
	ID        int64      `json:"id"`
	UserID    *int       `json:"user_id,omitempty"`
	AttemptID *uuid.UUID `json:"attempt_id,omitempty"`
	ExamID    *uuid.UUID `json:"exam_id,omitempty"`
	EventType string     `json:"event_type"`
	Details   *string    `json:"details,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ReportViolationRequest is sent by the student's client.
type ReportViolationRequest struct {
	EventType string  `json:"event_type" binding:"required,event_type"`
	Details   *string `json:"details" binding:"omitempty,max=2000"`
}

// MonitorViolationRequest is sent by a monitoring agent acting for a student.
type MonitorViolationRequest struct {
	UserID    *int    `json:"user_id" binding:"omitempty,min=1"`
	EventType string  `json:"event_type" binding:"required,event_type"`
	Details   *string `json:"details" binding:"omitempty,max=2000"`
	// Terminal asks for the attempt to end regardless of the count rule.
	Terminal bool `json:"terminal"`
}

// ViolationOutcome reports what happened after a violation was logged.
type ViolationOutcome struct {
	Log           *FraudLog `json:"log"`
	Count         int       `json:"violation_count"`
	AutoSubmitted bool      `json:"auto_submitted"`
	Attempt       *Attempt  `json:"attempt,omitempty"`
}

// MaxEventTypeLength bounds the stored event type tag.
const MaxEventTypeLength = 64

// NormalizeEventType lower-cases an event tag and turns spaces and dashes
// into underscores ("TAB_CHANGE", "tab-change" and "Tab change" all become
// "tab_change"). ok is false when the result is empty, too long or holds
// characters other than letters, digits and underscores.
func NormalizeEventType(raw string) (normalized string, ok bool) {
	b := make([]byte, 0, len(raw))
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= 'A' && r <= 'Z':
			b = append(b, byte(r-'A'+'a'))
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b = append(b, byte(r))
		case r == '-' || r == ' ' || r == '.':
			b = append(b, '_')
		default:
			return "", false
		}
	}
	if len(b) == 0 || len(b) > MaxEventTypeLength {
		return "", false
	}
	return string(b), true
}

// MonitorViolationBatchRequest lets an agent flush buffered events for one
// attempt in a single call.
type MonitorViolationBatchRequest struct {
	UserID *int                     `json:"user_id" binding:"omitempty,min=1"`
	Events []ReportViolationRequest `json:"events" binding:"required,min=1,max=100,dive"`
}
