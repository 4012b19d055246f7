package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examcore/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `e.id, e.owner_id, e.title, e.description, e.is_active, e.deadline,
	e.time_limit_minutes, e.scoring_policy, e.created_at, e.updated_at,
	(SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.id)`

func scanExam(row pgx.Row) (*model.Exam, error) {
	e := &model.Exam{}
	err := row.Scan(&e.ID, &e.OwnerID, &e.Title, &e.Description, &e.Active, &e.Deadline,
		&e.TimeLimitMinutes, &e.ScoringPolicy, &e.CreatedAt, &e.UpdatedAt, &e.QuestionCount)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams e WHERE e.id = $1`, id))
}

// ListByOwnerPaginated retrieves exams owned by ownerID with pagination.
// Pass ownerID=0 to list every exam (admin).
func (r *ExamRepository) ListByOwnerPaginated(ctx context.Context, ownerID, limit, offset int) ([]model.Exam, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exams WHERE ($1 = 0 OR owner_id = $1)`, ownerID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+`
		 FROM exams e
		 WHERE ($1 = 0 OR e.owner_id = $1)
		 ORDER BY e.created_at DESC
		 LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	exams := make([]model.Exam, 0)
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, 0, err
		}
		exams = append(exams, *e)
	}
	return exams, total, rows.Err()
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (owner_id, title, description, is_active, deadline, time_limit_minutes, scoring_policy)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		e.OwnerID, e.Title, e.Description, e.Active, e.Deadline, e.TimeLimitMinutes, e.ScoringPolicy,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Update overwrites an exam's editable fields.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`UPDATE exams
		 SET title = $2, description = $3, is_active = $4, deadline = $5,
		     time_limit_minutes = $6, scoring_policy = $7, updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		e.ID, e.Title, e.Description, e.Active, e.Deadline, e.TimeLimitMinutes, e.ScoringPolicy,
	).Scan(&e.UpdatedAt)
}

// Delete removes an exam; questions and attempts cascade.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
