package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examcore/internal/model"
)

// DirectoryRepository handles users, classes and class/exam assignments.
type DirectoryRepository struct {
	pool *pgxpool.Pool
}

// NewDirectoryRepository creates a new DirectoryRepository.
func NewDirectoryRepository(pool *pgxpool.Pool) *DirectoryRepository {
	return &DirectoryRepository{pool: pool}
}

// GetUserByID retrieves a user by id.
func (r *DirectoryRepository) GetUserByID(ctx context.Context, id int) (*model.User, error) {
	u := &model.User{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, role, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email (case-insensitive).
func (r *DirectoryRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u := &model.User{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, role, created_at FROM users WHERE LOWER(email) = LOWER($1)`, email,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser inserts a new user.
func (r *DirectoryRepository) CreateUser(ctx context.Context, u *model.User) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash, role)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		u.Name, u.Email, u.PasswordHash, u.Role,
	).Scan(&u.ID, &u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

// IsEnrolled reports whether the user belongs to any class assigned to the exam.
func (r *DirectoryRepository) IsEnrolled(ctx context.Context, userID int, examID uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1
		     FROM class_members cm
		     JOIN class_exams ce ON ce.class_id = cm.class_id
		     WHERE cm.user_id = $1 AND ce.exam_id = $2
		 )`, userID, examID,
	).Scan(&ok)
	return ok, err
}

// CreateClass inserts a class, or returns the existing one with the same
// teacher and name.
func (r *DirectoryRepository) CreateClass(ctx context.Context, c *model.Class) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO classes (name, teacher_id)
		 VALUES ($1, $2)
		 ON CONFLICT (teacher_id, name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, created_at`,
		c.Name, c.TeacherID,
	).Scan(&c.ID, &c.CreatedAt)
}

// AddMembers enrols users into a class, ignoring existing memberships.
func (r *DirectoryRepository) AddMembers(ctx context.Context, classID int, userIDs []int) error {
	batch := &pgx.Batch{}
	for _, id := range userIDs {
		batch.Queue(`INSERT INTO class_members (class_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, classID, id)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

// AssignExam makes an exam available to a class.
func (r *DirectoryRepository) AssignExam(ctx context.Context, classID int, examID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO class_exams (class_id, exam_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		classID, examID)
	return err
}
