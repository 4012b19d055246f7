package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/config"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/repository"
	"github.com/stemsi/examcore/internal/scoring"
)

// EnrollmentChecker answers whether a student may sit an exam.
type EnrollmentChecker interface {
	IsEnrolled(ctx context.Context, userID int, examID uuid.UUID) (bool, error)
}

// AttemptService runs the attempt lifecycle:
// in_progress -> submitted -> graded.
type AttemptService struct {
	attempts   AttemptStore
	catalog    Catalog
	enrollment EnrollmentChecker
	events     EventPublisher
	cfg        config.AttemptConfig
	now        func() time.Time
	log        zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attempts AttemptStore,
	catalog Catalog,
	enrollment EnrollmentChecker,
	events EventPublisher,
	cfg config.AttemptConfig,
	log zerolog.Logger,
) *AttemptService {
	if events == nil {
		events = noopPublisher{}
	}
	return &AttemptService{
		attempts:   attempts,
		catalog:    catalog,
		enrollment: enrollment,
		events:     events,
		cfg:        cfg,
		now:        time.Now,
		log:        log.With().Str("component", "attempt_service").Logger(),
	}
}

// Start creates an in-progress attempt for the caller. If one already exists
// it is resumed or rejected depending on the duplicate policy. Once the
// caller has used up MaxAttempts finished attempts only a resume is possible.
func (s *AttemptService) Start(ctx context.Context, caller Caller, examID uuid.UUID) (*model.StartAttemptResult, error) {
	exam, err := s.catalog.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !exam.Active {
		return nil, ErrExamNotAvailable
	}

	now := s.now()
	if exam.DeadlinePassed(now) {
		return nil, ErrDeadlinePassed
	}

	if s.cfg.RequireEnrollment {
		ok, err := s.enrollment.IsEnrolled(ctx, caller.UserID, examID)
		if err != nil {
			return nil, fmt.Errorf("check enrollment: %w", err)
		}
		if !ok {
			return nil, ErrNotEnrolled
		}
	}

	if s.cfg.MaxAttempts > 0 {
		closed, err := s.attempts.CountClosed(ctx, caller.UserID, examID)
		if err != nil {
			return nil, fmt.Errorf("count attempts: %w", err)
		}
		if closed >= s.cfg.MaxAttempts {
			return s.resumeWithinLimit(ctx, caller, examID)
		}
	}

	// Two rounds: the conflicting attempt may finish between our insert and
	// the lookup, in which case the second insert succeeds.
	for round := 0; round < 2; round++ {
		a := &model.Attempt{ExamID: examID, UserID: caller.UserID, StartedAt: now}
		err := s.attempts.Create(ctx, a)
		if err == nil {
			s.log.Info().
				Str("attempt_id", a.ID.String()).
				Str("exam_id", examID.String()).
				Int("user_id", caller.UserID).
				Msg("Attempt started")
			s.publish(ctx, model.EventAttemptStarted, a, nil)
			return &model.StartAttemptResult{Attempt: a}, nil
		}
		if !errors.Is(err, repository.ErrActiveAttemptExists) {
			return nil, fmt.Errorf("create attempt: %w", err)
		}

		if s.cfg.DuplicatePolicy == config.DuplicateReject {
			return nil, ErrActiveAttemptExists
		}

		existing, err := s.attempts.GetActive(ctx, caller.UserID, examID)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get active attempt: %w", err)
		}
		return s.resume(ctx, caller, existing)
	}

	return nil, ErrActiveAttemptExists
}

// resumeWithinLimit hands back the open attempt of a caller who has no
// retakes left. Without one, the exam is closed to them.
func (s *AttemptService) resumeWithinLimit(ctx context.Context, caller Caller, examID uuid.UUID) (*model.StartAttemptResult, error) {
	if s.cfg.DuplicatePolicy == config.DuplicateReject {
		return nil, ErrAttemptLimitReached
	}
	existing, err := s.attempts.GetActive(ctx, caller.UserID, examID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAttemptLimitReached
	}
	if err != nil {
		return nil, fmt.Errorf("get active attempt: %w", err)
	}
	return s.resume(ctx, caller, existing)
}

func (s *AttemptService) resume(ctx context.Context, caller Caller, existing *model.Attempt) (*model.StartAttemptResult, error) {
	responses, err := s.attempts.ListResponses(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	existing.Responses = responses

	s.log.Info().
		Str("attempt_id", existing.ID.String()).
		Int("user_id", caller.UserID).
		Msg("Attempt resumed")
	s.publish(ctx, model.EventAttemptResumed, existing, nil)
	return &model.StartAttemptResult{Attempt: existing, Resumed: true}, nil
}

// RecordResponse upserts a single answer.
func (s *AttemptService) RecordResponse(ctx context.Context, caller Caller, attemptID uuid.UUID, req model.RecordResponseRequest) (*model.Response, error) {
	saved, err := s.RecordResponses(ctx, caller, attemptID, []model.RecordResponseRequest{req})
	if err != nil {
		return nil, err
	}
	return &saved[0], nil
}

// RecordResponses upserts answers for an in-progress attempt. Either every
// answer is stored or none is. Answers to the same question overwrite the
// previous value and timestamp.
func (s *AttemptService) RecordResponses(ctx context.Context, caller Caller, attemptID uuid.UUID, reqs []model.RecordResponseRequest) ([]model.Response, error) {
	a, err := s.ownAttempt(ctx, caller, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AttemptStatusInProgress {
		return nil, ErrAttemptNotInProgress
	}

	exam, err := s.catalog.GetExam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if s.overTime(exam, a.StartedAt, now) {
		return nil, ErrTimeLimitExceeded
	}

	responses := make([]model.Response, 0, len(reqs))
	for _, req := range reqs {
		q, err := s.catalog.GetQuestion(ctx, req.QuestionID)
		if err != nil {
			return nil, err
		}
		if q.ExamID != a.ExamID {
			return nil, ErrQuestionNotInExam
		}
		if err := scoring.ValidateAnswer(*q, req.Answer); err != nil {
			return nil, detail(ErrInvalidAnswer, err)
		}
		responses = append(responses, model.Response{
			QuestionID: req.QuestionID,
			Answer:     req.Answer,
			AnsweredAt: now,
		})
	}

	if err := s.attempts.UpsertResponses(ctx, a.ID, responses); err != nil {
		return nil, s.mapStoreErr(err, "record responses")
	}

	s.publish(ctx, model.EventResponseRecorded, a, map[string]any{"count": len(responses)})
	return responses, nil
}

// Submit ends the caller's own attempt.
func (s *AttemptService) Submit(ctx context.Context, caller Caller, attemptID uuid.UUID) (*model.Attempt, error) {
	a, err := s.ownAttempt(ctx, caller, attemptID)
	if err != nil {
		return nil, err
	}
	return s.close(ctx, a, model.SubmitReasonManual)
}

// AutoSubmit force-ends an attempt on behalf of a monitoring agent. It needs
// no user credential, only an attempt that exists and is in progress.
func (s *AttemptService) AutoSubmit(ctx context.Context, attemptID uuid.UUID, reason model.SubmitReason) (*model.Attempt, error) {
	a, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	return s.close(ctx, a, reason)
}

func (s *AttemptService) close(ctx context.Context, a *model.Attempt, reason model.SubmitReason) (*model.Attempt, error) {
	if a.Status != model.AttemptStatusInProgress {
		return nil, ErrAttemptNotInProgress
	}

	exam, err := s.catalog.GetExam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	overTime := s.overTime(exam, a.StartedAt, now)
	if overTime && reason == model.SubmitReasonManual {
		reason = model.SubmitReasonTimeout
	}

	var grade repository.GradeFunc
	if s.cfg.GradeOnSubmit {
		grade = s.grader(exam)
	}

	closed, err := s.attempts.Close(ctx, a.ID, repository.CloseParams{
		EndedAt:  now,
		OverTime: overTime,
		Reason:   reason,
	}, grade)
	if err != nil {
		return nil, s.mapStoreErr(err, "close attempt")
	}

	s.log.Info().
		Str("attempt_id", closed.ID.String()).
		Str("reason", string(reason)).
		Bool("over_time", overTime).
		Str("status", string(closed.Status)).
		Msg("Attempt submitted")

	s.publish(ctx, model.EventAttemptSubmitted, closed, map[string]any{"reason": reason})
	if closed.Status == model.AttemptStatusGraded {
		s.publish(ctx, model.EventAttemptGraded, closed, map[string]any{"score": closed.Score})
	}
	return closed, nil
}

// Grade scores a submitted attempt, or recomputes the score of a graded one.
// Only the exam owner or an admin may grade.
func (s *AttemptService) Grade(ctx context.Context, caller Caller, attemptID uuid.UUID) (*model.Attempt, error) {
	a, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	exam, err := s.catalog.GetExam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && exam.OwnerID != caller.UserID {
		return nil, ErrNotExamOwner
	}
	if a.Status == model.AttemptStatusInProgress {
		return nil, ErrAttemptInProgress
	}

	graded, err := s.attempts.Regrade(ctx, a.ID, s.grader(exam))
	if err != nil {
		return nil, s.mapStoreErr(err, "grade attempt")
	}

	s.log.Info().
		Str("attempt_id", graded.ID.String()).
		Float64("score", *graded.Score).
		Int("grader_id", caller.UserID).
		Msg("Attempt graded")
	s.publish(ctx, model.EventAttemptGraded, graded, map[string]any{"score": graded.Score})
	return graded, nil
}

// Get returns an attempt with its responses. Students only see their own
// attempts, without correctness until feedback is released; teachers see
// attempts of exams they own.
func (s *AttemptService) Get(ctx context.Context, caller Caller, attemptID uuid.UUID) (*model.Attempt, error) {
	a, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	if caller.Role == model.RoleStudent {
		if a.UserID != caller.UserID {
			return nil, ErrNotAttemptOwner
		}
	} else if _, err := s.ownedExam(ctx, caller, a.ExamID); err != nil {
		return nil, err
	}

	responses, err := s.attempts.ListResponses(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	a.Responses = responses

	if caller.Role == model.RoleStudent {
		redacted := a.ForStudent()
		return &redacted, nil
	}
	return a, nil
}

// ListMine returns the caller's attempts, newest first.
func (s *AttemptService) ListMine(ctx context.Context, caller Caller) ([]model.Attempt, error) {
	attempts, err := s.attempts.ListByUser(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, nil
}

// ListByExam returns attempts of an exam the caller owns.
func (s *AttemptService) ListByExam(ctx context.Context, caller Caller, examID uuid.UUID, f model.AttemptFilter, page Page) ([]repository.AttemptResult, int64, error) {
	if _, err := s.ownedExam(ctx, caller, examID); err != nil {
		return nil, 0, err
	}
	page = page.Normalize()
	results, total, err := s.attempts.ListByExam(ctx, examID, f, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list exam attempts: %w", err)
	}
	return results, total, nil
}

// ReleaseFeedback lets students of an exam see per-question correctness.
func (s *AttemptService) ReleaseFeedback(ctx context.Context, caller Caller, examID uuid.UUID) (int64, error) {
	if _, err := s.ownedExam(ctx, caller, examID); err != nil {
		return 0, err
	}
	n, err := s.attempts.ReleaseFeedback(ctx, examID)
	if err != nil {
		return 0, fmt.Errorf("release feedback: %w", err)
	}
	return n, nil
}

// ReleaseAttemptFeedback lets the student of one graded attempt see
// per-question correctness.
func (s *AttemptService) ReleaseAttemptFeedback(ctx context.Context, caller Caller, attemptID uuid.UUID) (*model.Attempt, error) {
	a, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedExam(ctx, caller, a.ExamID); err != nil {
		return nil, err
	}

	released, err := s.attempts.ReleaseAttemptFeedback(ctx, attemptID)
	if err != nil {
		return nil, s.mapStoreErr(err, "release attempt feedback")
	}
	s.log.Info().Str("attempt_id", attemptID.String()).Int("by", caller.UserID).Msg("Attempt feedback released")
	return released, nil
}

// Delete removes an attempt and its responses. Fraud logs survive.
func (s *AttemptService) Delete(ctx context.Context, caller Caller, attemptID uuid.UUID) error {
	a, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if _, err := s.ownedExam(ctx, caller, a.ExamID); err != nil {
		return err
	}
	if err := s.attempts.Delete(ctx, attemptID); err != nil {
		return s.mapStoreErr(err, "delete attempt")
	}
	s.log.Info().Str("attempt_id", attemptID.String()).Int("by", caller.UserID).Msg("Attempt deleted")
	return nil
}

// OwnAttempt returns the attempt if it belongs to the caller.
func (s *AttemptService) OwnAttempt(ctx context.Context, caller Caller, attemptID uuid.UUID) (*model.Attempt, error) {
	return s.ownAttempt(ctx, caller, attemptID)
}

func (s *AttemptService) ownAttempt(ctx context.Context, caller Caller, attemptID uuid.UUID) (*model.Attempt, error) {
	a, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.UserID != caller.UserID {
		return nil, ErrNotAttemptOwner
	}
	return a, nil
}

func (s *AttemptService) getAttempt(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return a, nil
}

func (s *AttemptService) ownedExam(ctx context.Context, caller Caller, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.catalog.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && exam.OwnerID != caller.UserID {
		return nil, ErrNotExamOwner
	}
	return exam, nil
}

// overTime reports whether the exam's time limit (plus grace) has elapsed.
func (s *AttemptService) overTime(exam *model.Exam, startedAt, now time.Time) bool {
	limit := exam.TimeLimit()
	if limit == 0 {
		return false
	}
	return now.Sub(startedAt) > limit+s.cfg.TimeLimitGrace
}

// grader builds the pure grading function for an exam. Over-time attempts
// earn nothing when zero credit is configured; the flag is read from the
// stored attempt so regrades reproduce the original result.
func (s *AttemptService) grader(exam *model.Exam) repository.GradeFunc {
	policy := scoring.Policy(s.cfg.ScoringPolicy)
	if exam.ScoringPolicy != nil && *exam.ScoringPolicy != "" {
		policy = scoring.Policy(*exam.ScoringPolicy)
	}
	zeroCredit := s.cfg.OvertimeZeroCredit
	return func(a *model.Attempt, questions []model.Question, responses []model.Response) scoring.Result {
		return scoring.Grade(questions, responses, scoring.Options{
			Policy:     policy,
			ZeroCredit: zeroCredit && a.OverTime,
		})
	}
}

func (s *AttemptService) mapStoreErr(err error, op string) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrAttemptNotFound
	case errors.Is(err, repository.ErrAttemptNotInProgress):
		return ErrAttemptNotInProgress
	case errors.Is(err, repository.ErrAttemptInProgress):
		return ErrAttemptInProgress
	case errors.Is(err, repository.ErrAttemptNotGraded):
		return ErrAttemptNotGraded
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *AttemptService) publish(ctx context.Context, typ model.MonitorEventType, a *model.Attempt, data map[string]any) {
	id, user := a.ID, a.UserID
	s.events.Publish(ctx, model.MonitorEvent{
		Type:      typ,
		ExamID:    a.ExamID,
		AttemptID: &id,
		UserID:    &user,
		At:        s.now(),
		Data:      data,
	})
}
