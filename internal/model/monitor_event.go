package model

import (
	"time"

	"github.com/google/uuid"
)

// MonitorEventType names a lifecycle event pushed to live monitors.
type MonitorEventType string

const (
	EventAttemptStarted    MonitorEventType = "attempt_started"
	EventAttemptResumed    MonitorEventType = "attempt_resumed"
	EventResponseRecorded  MonitorEventType = "response_recorded"
	EventAttemptSubmitted  MonitorEventType = "attempt_submitted"
	EventAttemptGraded     MonitorEventType = "attempt_graded"
	EventViolationRecorded MonitorEventType = "violation_recorded"
)

// MonitorEvent is the JSON payload published on an exam's monitor channel.
type MonitorEvent struct {
	Type      MonitorEventType `json:"type"`
	ExamID    uuid.UUID        `json:"exam_id"`
	AttemptID *uuid.UUID       `json:"attempt_id,omitempty"`
	UserID    *int             `json:"user_id,omitempty"`
	At        time.Time        `json:"at"`
	Data      map[string]any   `json:"data,omitempty"`
}

// MonitorSnapshot summarises an exam's attempts for a newly attached monitor.
type MonitorSnapshot struct {
	ExamID     uuid.UUID `json:"exam_id"`
	Title      string    `json:"title"`
	InProgress int       `json:"in_progress"`
	Submitted  int       `json:"submitted"`
	Graded     int       `json:"graded"`
	Violations int       `json:"violations"`
}
