package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examcore/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

const questionColumns = `id, exam_id, content, question_type, options, correct_answer, points, order_num`

func scanQuestion(row pgx.Row) (*model.Question, error) {
	q := &model.Question{}
	if err := row.Scan(&q.ID, &q.ExamID, &q.Content, &q.QuestionType, &q.Options,
		&q.CorrectAnswer, &q.Points, &q.OrderNum); err != nil {
		return nil, err
	}
	return q, nil
}

// queryQuestions lists an exam's questions through any pgx querier so the
// grading transaction reads the same snapshot it writes.
func queryQuestions(ctx context.Context, db querier, examID uuid.UUID) ([]model.Question, error) {
	rows, err := db.Query(ctx,
		`SELECT `+questionColumns+`
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num, id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := make([]model.Question, 0)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

// ListByExam retrieves all questions for a given exam, ordered by order_num.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	return queryQuestions(ctx, r.pool, examID)
}

// GetByID retrieves a single question.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	return scanQuestion(r.pool.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
}

// Create inserts a new question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (exam_id, content, question_type, options, correct_answer, points, order_num)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		q.ExamID, q.Content, q.QuestionType, q.Options, q.CorrectAnswer, q.Points, q.OrderNum,
	).Scan(&q.ID)
}

// Update replaces a question's definition.
func (r *QuestionRepository) Update(ctx context.Context, q *model.Question) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE questions
		 SET content = $2, question_type = $3, options = $4, correct_answer = $5, points = $6, order_num = $7
		 WHERE id = $1 AND exam_id = $8`,
		q.ID, q.Content, q.QuestionType, q.Options, q.CorrectAnswer, q.Points, q.OrderNum, q.ExamID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes a question from an exam. Responses that referenced it stay
// and are skipped by grading.
func (r *QuestionRepository) Delete(ctx context.Context, examID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1 AND exam_id = $2`, id, examID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
