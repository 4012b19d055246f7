package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examcore/internal/model"
)

// FraudLogRepository stores violation events. Rows are only ever inserted.
type FraudLogRepository struct {
	pool *pgxpool.Pool
}

// NewFraudLogRepository creates a new FraudLogRepository.
func NewFraudLogRepository(pool *pgxpool.Pool) *FraudLogRepository {
	return &FraudLogRepository{pool: pool}
}

const fraudLogColumns = `id, user_id, attempt_id, exam_id, event_type, details, created_at`

// Create appends a single violation.
func (r *FraudLogRepository) Create(ctx context.Context, l *model.FraudLog) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO fraud_logs (user_id, attempt_id, exam_id, event_type, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		l.UserID, l.AttemptID, l.ExamID, l.EventType, l.Details, l.CreatedAt,
	).Scan(&l.ID)
}

// CreateBatch appends many violations with a single COPY.
func (r *FraudLogRepository) CreateBatch(ctx context.Context, logs []model.FraudLog) (int64, error) {
	rows := make([][]any, 0, len(logs))
	for _, l := range logs {
		rows = append(rows, []any{l.UserID, l.AttemptID, l.ExamID, l.EventType, l.Details, l.CreatedAt})
	}
	return r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"fraud_logs"},
		[]string{"user_id", "attempt_id", "exam_id", "event_type", "details", "created_at"},
		pgx.CopyFromRows(rows),
	)
}

// CountByAttempt returns how many violations an attempt has accumulated.
func (r *FraudLogRepository) CountByAttempt(ctx context.Context, attemptID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM fraud_logs WHERE attempt_id = $1`, attemptID,
	).Scan(&n)
	return n, err
}

// ListByAttempt returns an attempt's violations, oldest first.
func (r *FraudLogRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.FraudLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+fraudLogColumns+`
		 FROM fraud_logs
		 WHERE attempt_id = $1
		 ORDER BY created_at, id`, attemptID)
	if err != nil {
		return nil, err
	}
	return collectFraudLogs(rows)
}

// ListByExam returns an exam's violations, newest first, with pagination.
func (r *FraudLogRepository) ListByExam(ctx context.Context, examID uuid.UUID, limit, offset int) ([]model.FraudLog, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM fraud_logs WHERE exam_id = $1`, examID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+fraudLogColumns+`
		 FROM fraud_logs
		 WHERE exam_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`, examID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	logs, err := collectFraudLogs(rows)
	return logs, total, err
}

func collectFraudLogs(rows pgx.Rows) ([]model.FraudLog, error) {
	defer rows.Close()

	logs := make([]model.FraudLog, 0)
	for rows.Next() {
		var l model.FraudLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.AttemptID, &l.ExamID, &l.EventType, &l.Details, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
