package model

import (
	"time"

	"github.com/google/uuid"
)

// Class is a group of students run by a teacher.
type Class struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	TeacherID int       `json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ClassExam assigns an exam to a class.
type ClassExam struct {
	ClassID int       `json:"class_id"`
	ExamID  uuid.UUID `json:"exam_id"`
}
