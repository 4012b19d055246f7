package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/scoring"
)

// GradeFunc scores an attempt from the exam's current questions and the
// attempt's stored responses. It must be pure.
type GradeFunc func(a *model.Attempt, questions []model.Question, responses []model.Response) scoring.Result

// CloseParams describe how an in-progress attempt is ended.
type CloseParams struct {
	EndedAt  time.Time
	OverTime bool
	Reason   model.SubmitReason
}

// AttemptResult combines an attempt with the student's identity for result listings.
type AttemptResult struct {
	model.Attempt
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
}

// AttemptRepository handles attempt and response data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, exam_id, user_id, started_at, ended_at, status, is_active,
	over_time, submit_reason, score, feedback_released, created_at`

func scanAttempt(row pgx.Row, a *model.Attempt) error {
	return row.Scan(&a.ID, &a.ExamID, &a.UserID, &a.StartedAt, &a.EndedAt, &a.Status, &a.Active,
		&a.OverTime, &a.SubmitReason, &a.Score, &a.FeedbackReleased, &a.CreatedAt)
}

// Create inserts a fresh in-progress attempt. The partial unique index on
// (user_id, exam_id) WHERE status = 'in_progress' makes concurrent creates
// race-free; the loser gets ErrActiveAttemptExists.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	err := scanAttempt(r.pool.QueryRow(ctx,
		`INSERT INTO attempts (exam_id, user_id, started_at, status, is_active)
		 VALUES ($1, $2, $3, 'in_progress', TRUE)
		 ON CONFLICT (user_id, exam_id) WHERE status = 'in_progress' DO NOTHING
		 RETURNING `+attemptColumns,
		a.ExamID, a.UserID, a.StartedAt,
	), a)
	if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
		return ErrActiveAttemptExists
	}
	return err
}

// GetByID retrieves an attempt without its responses.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	if err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id), a); err != nil {
		return nil, err
	}
	return a, nil
}

// GetActive retrieves the in-progress attempt for a (user, exam) pair.
func (r *AttemptRepository) GetActive(ctx context.Context, userID int, examID uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	if err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE user_id = $1 AND exam_id = $2 AND status = 'in_progress'`, userID, examID), a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListByUser retrieves all attempts of a user, newest first.
func (r *AttemptRepository) ListByUser(ctx context.Context, userID int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE user_id = $1
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := make([]model.Attempt, 0)
	for rows.Next() {
		var a model.Attempt
		if err := scanAttempt(rows, &a); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListByExam retrieves attempts for an exam with optional filters and pagination.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID, f model.AttemptFilter, limit, offset int) ([]AttemptResult, int64, error) {
	base := ` FROM attempts a JOIN users u ON u.id = a.user_id WHERE a.exam_id = $1`
	args := []any{examID}
	if f.Status != nil {
		args = append(args, *f.Status)
		base += fmt.Sprintf(" AND a.status = $%d", len(args))
	}
	if f.UserID != nil {
		args = append(args, *f.UserID)
		base += fmt.Sprintf(" AND a.user_id = $%d", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*)"+base, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT a.id, a.exam_id, a.user_id, a.started_at, a.ended_at, a.status, a.is_active,
	                 a.over_time, a.submit_reason, a.score, a.feedback_released, a.created_at,
	                 u.name, u.email` + base +
		fmt.Sprintf(" ORDER BY u.name ASC, a.created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	results := make([]AttemptResult, 0)
	for rows.Next() {
		var res AttemptResult
		a := &res.Attempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.UserID, &a.StartedAt, &a.EndedAt, &a.Status, &a.Active,
			&a.OverTime, &a.SubmitReason, &a.Score, &a.FeedbackReleased, &a.CreatedAt,
			&res.UserName, &res.UserEmail); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}

func queryResponses(ctx context.Context, db querier, attemptID uuid.UUID) ([]model.Response, error) {
	rows, err := db.Query(ctx,
		`SELECT id, attempt_id, question_id, answer, is_correct, points_earned, answered_at
		 FROM responses
		 WHERE attempt_id = $1
		 ORDER BY answered_at, id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	responses := make([]model.Response, 0)
	for rows.Next() {
		var resp model.Response
		if err := rows.Scan(&resp.ID, &resp.AttemptID, &resp.QuestionID, &resp.Answer,
			&resp.IsCorrect, &resp.PointsEarned, &resp.AnsweredAt); err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, rows.Err()
}

// ListResponses retrieves every response of an attempt.
func (r *AttemptRepository) ListResponses(ctx context.Context, attemptID uuid.UUID) ([]model.Response, error) {
	return queryResponses(ctx, r.pool, attemptID)
}

// UpsertResponses writes answers for an open attempt. The attempt row is
// locked FOR SHARE so a concurrent submit either waits for these writes
// (and grades them) or wins first, in which case nothing is written.
func (r *AttemptRepository) UpsertResponses(ctx context.Context, attemptID uuid.UUID, responses []model.Response) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		var status model.AttemptStatus
		if err := tx.QueryRow(ctx,
			`SELECT status FROM attempts WHERE id = $1 FOR SHARE`, attemptID,
		).Scan(&status); err != nil {
			return err
		}
		if status != model.AttemptStatusInProgress {
			return ErrAttemptNotInProgress
		}

		for i := range responses {
			resp := &responses[i]
			resp.AttemptID = attemptID
			if err := tx.QueryRow(ctx,
				`INSERT INTO responses (attempt_id, question_id, answer, answered_at)
				 VALUES ($1, $2, $3, $4)
				 ON CONFLICT (attempt_id, question_id)
				 DO UPDATE SET answer = EXCLUDED.answer, answered_at = EXCLUDED.answered_at,
				               is_correct = NULL, points_earned = NULL
				 RETURNING id`,
				attemptID, resp.QuestionID, resp.Answer, resp.AnsweredAt,
			).Scan(&resp.ID); err != nil {
				return fmt.Errorf("upsert response %s: %w", resp.QuestionID, err)
			}
		}
		return nil
	})
}

// Close ends an in-progress attempt with a conditional update, so exactly
// one of several concurrent submitters wins; the others get
// ErrAttemptNotInProgress. When grade is non-nil the attempt is scored and
// marked graded in the same transaction.
func (r *AttemptRepository) Close(ctx context.Context, id uuid.UUID, p CloseParams, grade GradeFunc) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := scanAttempt(tx.QueryRow(ctx,
			`UPDATE attempts
			 SET status = 'submitted', is_active = FALSE, ended_at = $2, over_time = $3, submit_reason = $4
			 WHERE id = $1 AND status = 'in_progress'
			 RETURNING `+attemptColumns,
			id, p.EndedAt, p.OverTime, p.Reason,
		), a)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM attempts WHERE id = $1)`, id).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return pgx.ErrNoRows
			}
			return ErrAttemptNotInProgress
		}
		if err != nil {
			return err
		}

		if grade == nil {
			responses, err := queryResponses(ctx, tx, id)
			if err != nil {
				return err
			}
			a.Responses = responses
			return nil
		}
		return applyGrade(ctx, tx, a, grade)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Regrade recomputes the score of a submitted or graded attempt. Results
// overwrite the previous grade, so repeated runs never accumulate.
func (r *AttemptRepository) Regrade(ctx context.Context, id uuid.UUID, grade GradeFunc) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := scanAttempt(tx.QueryRow(ctx,
			`SELECT `+attemptColumns+` FROM attempts WHERE id = $1 FOR UPDATE`, id), a); err != nil {
			return err
		}
		if a.Status == model.AttemptStatusInProgress {
			return ErrAttemptInProgress
		}
		return applyGrade(ctx, tx, a, grade)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// applyGrade scores a closed attempt inside tx and persists per-response
// verdicts together with the aggregate score and the graded status.
func applyGrade(ctx context.Context, tx pgx.Tx, a *model.Attempt, grade GradeFunc) error {
	questions, err := queryQuestions(ctx, tx, a.ExamID)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	responses, err := queryResponses(ctx, tx, a.ID)
	if err != nil {
		return fmt.Errorf("load responses: %w", err)
	}

	result := grade(a, questions, responses)

	verdicts := make(map[uuid.UUID]scoring.Outcome, len(result.Outcomes))
	batch := &pgx.Batch{}
	for _, o := range result.Outcomes {
		verdicts[o.ResponseID] = o
		batch.Queue(`UPDATE responses SET is_correct = $2, points_earned = $3 WHERE id = $1`,
			o.ResponseID, o.Correct, o.Points)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("store verdicts: %w", err)
		}
	}

	if err := scanAttempt(tx.QueryRow(ctx,
		`UPDATE attempts SET status = 'graded', score = $2 WHERE id = $1 RETURNING `+attemptColumns,
		a.ID, result.Score,
	), a); err != nil {
		return fmt.Errorf("store score: %w", err)
	}

	for i := range responses {
		if o, ok := verdicts[responses[i].ID]; ok {
			correct, points := o.Correct, o.Points
			responses[i].IsCorrect = &correct
			responses[i].PointsEarned = &points
		}
	}
	a.Responses = responses
	return nil
}

// CountClosed counts the user's submitted or graded attempts of an exam.
func (r *AttemptRepository) CountClosed(ctx context.Context, userID int, examID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts
		 WHERE user_id = $1 AND exam_id = $2 AND status <> 'in_progress'`,
		userID, examID,
	).Scan(&n)
	return n, err
}

// ReleaseAttemptFeedback exposes correctness on a single graded attempt.
// Releasing twice is a no-op.
func (r *AttemptRepository) ReleaseAttemptFeedback(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := scanAttempt(r.pool.QueryRow(ctx,
		`UPDATE attempts SET feedback_released = TRUE
		 WHERE id = $1 AND status = 'graded'
		 RETURNING `+attemptColumns, id), a)
	if errors.Is(err, pgx.ErrNoRows) {
		var status model.AttemptStatus
		if err := r.pool.QueryRow(ctx, `SELECT status FROM attempts WHERE id = $1`, id).Scan(&status); err != nil {
			return nil, err
		}
		return nil, ErrAttemptNotGraded
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ReleaseFeedback exposes correctness on every graded attempt of an exam.
func (r *AttemptRepository) ReleaseFeedback(ctx context.Context, examID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts SET feedback_released = TRUE
		 WHERE exam_id = $1 AND status = 'graded' AND NOT feedback_released`, examID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Delete removes an attempt; responses cascade and fraud logs keep their
// rows with the attempt reference nulled.
func (r *AttemptRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM attempts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
