package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/scoring"
)

// ExamService owns exam and question definitions and serves the cached
// student paper. It is the Catalog consumed by the attempt lifecycle.
type ExamService struct {
	exams     ExamStore
	questions QuestionStore
	cache     PaperCache
	cacheTTL  time.Duration
	log       zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	exams ExamStore,
	questions QuestionStore,
	cache PaperCache,
	cacheTTL time.Duration,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		exams:     exams,
		questions: questions,
		cache:     cache,
		cacheTTL:  cacheTTL,
		log:       log.With().Str("component", "exam_service").Logger(),
	}
}

// GetExam retrieves an exam by id.
func (s *ExamService) GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

// GetQuestion retrieves a question by id.
func (s *ExamService) GetQuestion(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	q, err := s.questions.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

// ListQuestions retrieves an exam's questions in display order.
func (s *ExamService) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	qs, err := s.questions.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return qs, nil
}

// OwnedExam loads an exam and checks that the caller may manage it.
func (s *ExamService) OwnedExam(ctx context.Context, caller Caller, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && exam.OwnerID != caller.UserID {
		return nil, ErrNotExamOwner
	}
	return exam, nil
}

// ListExams returns the caller's exams; admins see every exam.
func (s *ExamService) ListExams(ctx context.Context, caller Caller, page Page) ([]model.Exam, int64, error) {
	page = page.Normalize()
	ownerID := caller.UserID
	if caller.IsAdmin() {
		ownerID = 0
	}
	exams, total, err := s.exams.ListByOwnerPaginated(ctx, ownerID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list exams: %w", err)
	}
	return exams, total, nil
}

// CreateExam creates an exam owned by the caller. Exams are active unless
// the request says otherwise.
func (s *ExamService) CreateExam(ctx context.Context, caller Caller, req model.CreateExamRequest) (*model.Exam, error) {
	exam := &model.Exam{
		OwnerID:          caller.UserID,
		Title:            req.Title,
		Description:      req.Description,
		Active:           req.Active == nil || *req.Active,
		Deadline:         req.Deadline,
		TimeLimitMinutes: req.TimeLimitMinutes,
		ScoringPolicy:    req.ScoringPolicy,
	}
	if err := s.exams.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}
	s.log.Info().Str("exam_id", exam.ID.String()).Int("owner_id", exam.OwnerID).Msg("Exam created")
	return exam, nil
}

// UpdateExam applies a partial update. Graded attempts keep their scores.
func (s *ExamService) UpdateExam(ctx context.Context, caller Caller, examID uuid.UUID, req model.UpdateExamRequest) (*model.Exam, error) {
	exam, err := s.OwnedExam(ctx, caller, examID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		exam.Title = *req.Title
	}
	if req.Description != nil {
		exam.Description = *req.Description
	}
	if req.Active != nil {
		exam.Active = *req.Active
	}
	if req.ClearDeadline {
		exam.Deadline = nil
	} else if req.Deadline != nil {
		exam.Deadline = req.Deadline
	}
	if req.ClearTimeLimit {
		exam.TimeLimitMinutes = nil
	} else if req.TimeLimitMinutes != nil {
		exam.TimeLimitMinutes = req.TimeLimitMinutes
	}
	if req.ScoringPolicy != nil {
		exam.ScoringPolicy = req.ScoringPolicy
	}

	if err := s.exams.Update(ctx, exam); err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}
	s.invalidate(ctx, examID)
	return exam, nil
}

// DeleteExam removes an exam with its questions and attempts.
func (s *ExamService) DeleteExam(ctx context.Context, caller Caller, examID uuid.UUID) error {
	if _, err := s.OwnedExam(ctx, caller, examID); err != nil {
		return err
	}
	if err := s.exams.Delete(ctx, examID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrExamNotFound
		}
		return fmt.Errorf("delete exam: %w", err)
	}
	s.invalidate(ctx, examID)
	return nil
}

// ListOwnedQuestions lists questions, with answers, for the exam owner.
func (s *ExamService) ListOwnedQuestions(ctx context.Context, caller Caller, examID uuid.UUID) ([]model.Question, error) {
	if _, err := s.OwnedExam(ctx, caller, examID); err != nil {
		return nil, err
	}
	return s.ListQuestions(ctx, examID)
}

// AddQuestion validates and stores a new question.
func (s *ExamService) AddQuestion(ctx context.Context, caller Caller, examID uuid.UUID, req model.AddQuestionRequest) (*model.Question, error) {
	if _, err := s.OwnedExam(ctx, caller, examID); err != nil {
		return nil, err
	}

	q := questionFromRequest(examID, req)
	if err := scoring.ValidateQuestion(*q); err != nil {
		return nil, detail(ErrInvalidQuestion, err)
	}
	if err := s.questions.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	s.invalidate(ctx, examID)
	return q, nil
}

// UpdateQuestion replaces a question. Already graded attempts are not rescored.
func (s *ExamService) UpdateQuestion(ctx context.Context, caller Caller, examID, questionID uuid.UUID, req model.UpdateQuestionRequest) (*model.Question, error) {
	if _, err := s.OwnedExam(ctx, caller, examID); err != nil {
		return nil, err
	}

	q := questionFromRequest(examID, req)
	q.ID = questionID
	if err := scoring.ValidateQuestion(*q); err != nil {
		return nil, detail(ErrInvalidQuestion, err)
	}
	if err := s.questions.Update(ctx, q); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("update question: %w", err)
	}
	s.invalidate(ctx, examID)
	return q, nil
}

// DeleteQuestion removes a question. Responses to it are skipped when grading.
func (s *ExamService) DeleteQuestion(ctx context.Context, caller Caller, examID, questionID uuid.UUID) error {
	if _, err := s.OwnedExam(ctx, caller, examID); err != nil {
		return err
	}
	if err := s.questions.Delete(ctx, examID, questionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("delete question: %w", err)
	}
	s.invalidate(ctx, examID)
	return nil
}

// GetPaper returns the student-facing paper of an active exam, served from
// the cache when possible.
func (s *ExamService) GetPaper(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error) {
	if paper, err := s.cache.Get(ctx, examID); err == nil && paper != nil {
		return paper, nil
	} else if err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Paper cache read failed, falling back to database")
	}

	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !exam.Active {
		return nil, ErrExamNotAvailable
	}

	questions, err := s.ListQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}

	paper := &model.ExamPaper{
		ExamID:           exam.ID,
		Title:            exam.Title,
		Description:      exam.Description,
		TimeLimitMinutes: exam.TimeLimitMinutes,
		Deadline:         exam.Deadline,
		Questions:        make([]model.QuestionForStudent, 0, len(questions)),
	}
	for _, q := range questions {
		paper.Questions = append(paper.Questions, q.ForStudent())
	}

	if err := s.cache.Set(ctx, paper, s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to cache exam paper")
	}
	return paper, nil
}

func (s *ExamService) invalidate(ctx context.Context, examID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, examID); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to invalidate exam paper cache")
	}
}

func questionFromRequest(examID uuid.UUID, req model.AddQuestionRequest) *model.Question {
	points := req.Points
	if points == 0 {
		points = 1
	}
	return &model.Question{
		ExamID:        examID,
		Content:       req.Content,
		QuestionType:  req.QuestionType,
		Options:       req.Options,
		CorrectAnswer: req.CorrectAnswer,
		Points:        points,
		OrderNum:      req.OrderNum,
	}
}
