package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Exam represents an exam owned by a teacher.
type Exam struct {
	ID               uuid.UUID  `json:"id"`
	OwnerID          int        `json:"owner_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Active           bool       `json:"is_active"`
	Deadline         *time.Time `json:"deadline,omitempty"`
	TimeLimitMinutes *int       `json:"time_limit_minutes,omitempty"`
	// ScoringPolicy overrides the platform default when set ("points" or "normalized").
	ScoringPolicy *string   `json:"scoring_policy,omitempty"`
	QuestionCount int       `json:"question_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TimeLimit returns the exam's time limit, or zero when it has none.
func (e *Exam) TimeLimit() time.Duration {
	if e.TimeLimitMinutes == nil || *e.TimeLimitMinutes <= 0 {
		return 0
	}
	return time.Duration(*e.TimeLimitMinutes) * time.Minute
}

// DeadlinePassed reports whether now is after the exam's deadline.
func (e *Exam) DeadlinePassed(now time.Time) bool {
	return e.Deadline != nil && now.After(*e.Deadline)
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title            string     `json:"title" binding:"required,min=3,max=255"`
	Description      string     `json:"description" binding:"max=5000"`
	Active           *bool      `json:"is_active"`
	Deadline         *time.Time `json:"deadline"`
	TimeLimitMinutes *int       `json:"time_limit_minutes" binding:"omitempty,min=1,max=600"`
	ScoringPolicy    *string    `json:"scoring_policy" binding:"omitempty,scoring_policy"`
}

// UpdateExamRequest is the payload for updating an existing exam. Nil fields
// are left unchanged.
type UpdateExamRequest struct {
	Title            *string    `json:"title" binding:"omitempty,min=3,max=255"`
	Description      *string    `json:"description" binding:"omitempty,max=5000"`
	Active           *bool      `json:"is_active"`
	Deadline         *time.Time `json:"deadline"`
	ClearDeadline    bool       `json:"clear_deadline"`
	TimeLimitMinutes *int       `json:"time_limit_minutes" binding:"omitempty,min=1,max=600"`
	ClearTimeLimit   bool       `json:"clear_time_limit"`
	ScoringPolicy    *string    `json:"scoring_policy" binding:"omitempty,scoring_policy"`
}

// ExamPaper is the Redis-cached paper sent to students (no correct answers).
type ExamPaper struct {
	ExamID           uuid.UUID            `json:"exam_id"`
	Title            string               `json:"title"`
	Description      string               `json:"description"`
	TimeLimitMinutes *int                 `json:"time_limit_minutes,omitempty"`
	Deadline         *time.Time           `json:"deadline,omitempty"`
	Questions        []QuestionForStudent `json:"questions"`
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID           uuid.UUID       `json:"id"`
	Content      string          `json:"content"`
	QuestionType QuestionType    `json:"question_type"`
	Options      json.RawMessage `json:"options,omitempty"`
	Points       int             `json:"points"`
	OrderNum     int             `json:"order_num"`
}
