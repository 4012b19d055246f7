package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Question represents a single exam question.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	ExamID        uuid.UUID       `json:"exam_id"`
	Content       string          `json:"content"`
	QuestionType  QuestionType    `json:"question_type"`
	Options       json.RawMessage `json:"options,omitempty"`
	CorrectAnswer json.RawMessage `json:"correct_answer"`
	Points        int             `json:"points"`
	OrderNum      int             `json:"order_num"`
}

type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeTrueFalse      QuestionType = "true_false"
	QuestionTypeText           QuestionType = "text"
)

// ForStudent strips the correct answer.
func (q Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:           q.ID,
		Content:      q.Content,
		QuestionType: q.QuestionType,
		Options:      q.Options,
		Points:       q.Points,
		OrderNum:     q.OrderNum,
	}
}

// AddQuestionRequest is the payload for adding a question to an exam.
type AddQuestionRequest struct {
	Content       string          `json:"content" binding:"required,min=1,max=5000"`
	QuestionType  QuestionType    `json:"question_type" binding:"required,oneof=multiple_choice true_false text"`
	Options       json.RawMessage `json:"options"`
	CorrectAnswer json.RawMessage `json:"correct_answer" binding:"required"`
	Points        int             `json:"points" binding:"omitempty,min=1,max=1000"`
	OrderNum      int             `json:"order_num" binding:"min=0"`
}

// UpdateQuestionRequest replaces a question's definition. Edits never rescore
// attempts that were already graded.
type UpdateQuestionRequest = AddQuestionRequest
