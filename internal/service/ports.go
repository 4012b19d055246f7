package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/repository"
)

// The interfaces below are the narrow views the services need of the
// repositories. The pgx repositories satisfy them; tests use in-memory fakes.

// ExamStore persists exams.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListByOwnerPaginated(ctx context.Context, ownerID, limit, offset int) ([]model.Exam, int64, error)
	Create(ctx context.Context, e *model.Exam) error
	Update(ctx context.Context, e *model.Exam) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// QuestionStore persists questions.
type QuestionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error)
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
	Create(ctx context.Context, q *model.Question) error
	Update(ctx context.Context, q *model.Question) error
	Delete(ctx context.Context, examID, id uuid.UUID) error
}

// AttemptStore persists attempts and their responses with the atomicity
// guarantees of the lifecycle: a unique in-progress attempt per (user, exam),
// status-guarded response writes and a conditional close.
type AttemptStore interface {
	Create(ctx context.Context, a *model.Attempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	GetActive(ctx context.Context, userID int, examID uuid.UUID) (*model.Attempt, error)
	ListByUser(ctx context.Context, userID int) ([]model.Attempt, error)
	ListByExam(ctx context.Context, examID uuid.UUID, f model.AttemptFilter, limit, offset int) ([]repository.AttemptResult, int64, error)
	ListResponses(ctx context.Context, attemptID uuid.UUID) ([]model.Response, error)
	UpsertResponses(ctx context.Context, attemptID uuid.UUID, responses []model.Response) error
	Close(ctx context.Context, id uuid.UUID, p repository.CloseParams, grade repository.GradeFunc) (*model.Attempt, error)
	Regrade(ctx context.Context, id uuid.UUID, grade repository.GradeFunc) (*model.Attempt, error)
	ReleaseFeedback(ctx context.Context, examID uuid.UUID) (int64, error)
	ReleaseAttemptFeedback(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	CountClosed(ctx context.Context, userID int, examID uuid.UUID) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// FraudLogStore appends and reads violation logs.
type FraudLogStore interface {
	Create(ctx context.Context, l *model.FraudLog) error
	CreateBatch(ctx context.Context, logs []model.FraudLog) (int64, error)
	CountByAttempt(ctx context.Context, attemptID uuid.UUID) (int, error)
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.FraudLog, error)
	ListByExam(ctx context.Context, examID uuid.UUID, limit, offset int) ([]model.FraudLog, int64, error)
}

// Directory answers identity and enrollment questions.
type Directory interface {
	GetUserByID(ctx context.Context, id int) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateUser(ctx context.Context, u *model.User) error
	IsEnrolled(ctx context.Context, userID int, examID uuid.UUID) (bool, error)
}

// Catalog is the read side of the exam catalog used by the attempt lifecycle.
type Catalog interface {
	GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	GetQuestion(ctx context.Context, id uuid.UUID) (*model.Question, error)
	ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// PaperCache stores the student-facing exam paper.
type PaperCache interface {
	Get(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error)
	Set(ctx context.Context, paper *model.ExamPaper, ttl time.Duration) error
	Invalidate(ctx context.Context, examID uuid.UUID) error
}

// EventPublisher pushes lifecycle events to live monitors. Implementations
// must not block the caller for long and never fail the operation.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.MonitorEvent)
}

// Caller identifies the user performing an operation.
type Caller struct {
	UserID int
	Role   model.Role
}

// IsAdmin reports whether the caller has platform-wide rights.
func (c Caller) IsAdmin() bool { return c.Role == model.RoleAdmin }

// Page is a normalised pagination request.
type Page struct {
	Page    int
	PerPage int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 20
	}
	if p.PerPage > 100 {
		p.PerPage = 100
	}
	return p
}

// Offset returns the row offset of the page.
func (p Page) Offset() int { return (p.Page - 1) * p.PerPage }

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, model.MonitorEvent) {}
