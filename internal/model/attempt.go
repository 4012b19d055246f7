package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt states. The order is
// in_progress -> submitted -> graded and never runs backwards.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusSubmitted  AttemptStatus = "submitted"
	AttemptStatusGraded     AttemptStatus = "graded"
)

func (s AttemptStatus) rank() int {
	switch s {
	case AttemptStatusInProgress:
		return 0
	case AttemptStatusSubmitted:
		return 1
	case AttemptStatusGraded:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next is legal. Grading a
// graded attempt again is allowed (it recomputes the same score).
func (s AttemptStatus) CanTransitionTo(next AttemptStatus) bool {
	from, to := s.rank(), next.rank()
	if from < 0 || to < 0 {
		return false
	}
	if s == AttemptStatusGraded && next == AttemptStatusGraded {
		return true
	}
	return to > from
}

// Terminal reports whether the attempt no longer accepts responses.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptStatusSubmitted || s == AttemptStatusGraded
}

// SubmitReason records what ended an attempt.
type SubmitReason string

const (
	SubmitReasonManual    SubmitReason = "manual"
	SubmitReasonViolation SubmitReason = "violation"
	SubmitReasonTimeout   SubmitReason = "timeout"
)

// Attempt represents one student's run through an exam.
type Attempt struct {
	ID               uuid.UUID     `json:"id"`
	ExamID           uuid.UUID     `json:"exam_id"`
	UserID           int           `json:"user_id"`
	StartedAt        time.Time     `json:"started_at"`
	EndedAt          *time.Time    `json:"ended_at,omitempty"`
	Status           AttemptStatus `json:"status"`
	Active           bool          `json:"is_active"`
	OverTime         bool          `json:"over_time"`
	SubmitReason     *SubmitReason `json:"submit_reason,omitempty"`
	Score            *float64      `json:"score,omitempty"`
	FeedbackReleased bool          `json:"feedback_released"`
	CreatedAt        time.Time     `json:"created_at"`
	Responses        []Response    `json:"responses,omitempty"`
}

// Response is one answer inside an attempt.
type Response struct {
	ID           uuid.UUID       `json:"id"`
	AttemptID    uuid.UUID       `json:"attempt_id"`
	QuestionID   uuid.UUID       `json:"question_id"`
	Answer       json.RawMessage `json:"answer"`
	IsCorrect    *bool           `json:"is_correct,omitempty"`
	PointsEarned *int            `json:"points_earned,omitempty"`
	AnsweredAt   time.Time       `json:"answered_at"`
}

// ForStudent hides per-question correctness until feedback is released.
// The aggregate score stays visible once graded.
func (a Attempt) ForStudent() Attempt {
	if a.FeedbackReleased {
		return a
	}
	out := a
	out.Responses = make([]Response, len(a.Responses))
	for i, r := range a.Responses {
		r.IsCorrect = nil
		r.PointsEarned = nil
		out.Responses[i] = r
	}
	return out
}

// StartAttemptResult is returned when a student starts (or resumes) an attempt.
type StartAttemptResult struct {
	Attempt *Attempt `json:"attempt"`
	Resumed bool     `json:"resumed"`
}

// RecordResponseRequest is the payload for answering a single question.
type RecordResponseRequest struct {
	QuestionID uuid.UUID       `json:"question_id" binding:"required"`
	Answer     json.RawMessage `json:"answer" binding:"required"`
}

// RecordResponsesRequest is the payload for saving several answers at once.
type RecordResponsesRequest struct {
	Responses []RecordResponseRequest `json:"responses" binding:"required,min=1,max=500,dive"`
}

// AttemptFilter narrows attempt listings for an exam.
type AttemptFilter struct {
	Status *AttemptStatus
	UserID *int
}
