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
)

// ErrUserMismatch is returned when a reported user is not the attempt's owner.
var ErrUserMismatch = fmt.Errorf("user does not match the attempt: %w", ErrValidation)

// ViolationInput describes one suspected cheating event.
type ViolationInput struct {
	UserID    *int
	AttemptID uuid.UUID
	EventType string
	Details   *string
}

// AttemptReader looks attempts up by id.
type AttemptReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
}

// FraudLogService records violation events. It never updates or deletes a
// log and has no opinion on severity.
type FraudLogService struct {
	logs     FraudLogStore
	attempts AttemptReader
	catalog  Catalog
	events   EventPublisher
	now      func() time.Time
	log      zerolog.Logger
}

// NewFraudLogService creates a new FraudLogService.
func NewFraudLogService(
	logs FraudLogStore,
	attempts AttemptReader,
	catalog Catalog,
	events EventPublisher,
	log zerolog.Logger,
) *FraudLogService {
	if events == nil {
		events = noopPublisher{}
	}
	return &FraudLogService{
		logs:     logs,
		attempts: attempts,
		catalog:  catalog,
		events:   events,
		now:      time.Now,
		log:      log.With().Str("component", "fraud_log_service").Logger(),
	}
}

// Record appends a violation for an existing attempt.
func (s *FraudLogService) Record(ctx context.Context, in ViolationInput) (*model.FraudLog, error) {
	a, l, err := s.prepare(ctx, nil, in)
	if err != nil {
		return nil, err
	}
	if err := s.logs.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("create fraud log: %w", err)
	}

	s.log.Warn().
		Str("attempt_id", a.ID.String()).
		Int("user_id", a.UserID).
		Str("event_type", l.EventType).
		Msg("Violation recorded")
	s.publishViolation(ctx, a, l.EventType, 1)
	return l, nil
}

// RecordBatch appends several violations for one attempt with a single COPY.
func (s *FraudLogService) RecordBatch(ctx context.Context, attemptID uuid.UUID, inputs []ViolationInput) (int64, error) {
	if len(inputs) == 0 {
		return 0, nil
	}

	var attempt *model.Attempt
	logs := make([]model.FraudLog, 0, len(inputs))
	for _, in := range inputs {
		in.AttemptID = attemptID
		a, l, err := s.prepare(ctx, attempt, in)
		if err != nil {
			return 0, err
		}
		attempt = a
		logs = append(logs, *l)
	}

	n, err := s.logs.CreateBatch(ctx, logs)
	if err != nil {
		return 0, fmt.Errorf("copy fraud logs: %w", err)
	}

	s.log.Warn().
		Str("attempt_id", attemptID.String()).
		Int64("count", n).
		Msg("Violation batch recorded")
	s.publishViolation(ctx, attempt, logs[len(logs)-1].EventType, int(n))
	return n, nil
}

// CountByAttempt returns how many violations an attempt has.
func (s *FraudLogService) CountByAttempt(ctx context.Context, attemptID uuid.UUID) (int, error) {
	n, err := s.logs.CountByAttempt(ctx, attemptID)
	if err != nil {
		return 0, fmt.Errorf("count fraud logs: %w", err)
	}
	return n, nil
}

// ListByAttempt returns an attempt's violations to the exam owner.
func (s *FraudLogService) ListByAttempt(ctx context.Context, caller Caller, attemptID uuid.UUID) ([]model.FraudLog, error) {
	a, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(ctx, caller, a.ExamID); err != nil {
		return nil, err
	}
	logs, err := s.logs.ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list fraud logs: %w", err)
	}
	return logs, nil
}

// ListByExam returns an exam's violations to its owner.
func (s *FraudLogService) ListByExam(ctx context.Context, caller Caller, examID uuid.UUID, page Page) ([]model.FraudLog, int64, error) {
	if err := s.requireOwner(ctx, caller, examID); err != nil {
		return nil, 0, err
	}
	page = page.Normalize()
	logs, total, err := s.logs.ListByExam(ctx, examID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list fraud logs: %w", err)
	}
	return logs, total, nil
}

// prepare validates in and builds its log row. known, when non-nil, is
// reused instead of loading the attempt again.
func (s *FraudLogService) prepare(ctx context.Context, known *model.Attempt, in ViolationInput) (*model.Attempt, *model.FraudLog, error) {
	eventType, ok := model.NormalizeEventType(in.EventType)
	if !ok {
		return nil, nil, ErrInvalidEventType
	}

	a := known
	if a == nil {
		var err error
		if a, err = s.getAttempt(ctx, in.AttemptID); err != nil {
			return nil, nil, err
		}
	}
	if in.UserID != nil && *in.UserID != a.UserID {
		return nil, nil, ErrUserMismatch
	}

	attemptID, examID := a.ID, a.ExamID
	return a, &model.FraudLog{
		UserID:    in.UserID,
		AttemptID: &attemptID,
		ExamID:    &examID,
		EventType: eventType,
		Details:   in.Details,
		CreatedAt: s.now(),
	}, nil
}

func (s *FraudLogService) getAttempt(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a, err := s.attempts.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return a, nil
}

func (s *FraudLogService) requireOwner(ctx context.Context, caller Caller, examID uuid.UUID) error {
	exam, err := s.catalog.GetExam(ctx, examID)
	if err != nil {
		return err
	}
	if !caller.IsAdmin() && exam.OwnerID != caller.UserID {
		return ErrNotExamOwner
	}
	return nil
}

func (s *FraudLogService) publishViolation(ctx context.Context, a *model.Attempt, eventType string, n int) {
	id, user := a.ID, a.UserID
	s.events.Publish(ctx, model.MonitorEvent{
		Type:      model.EventViolationRecorded,
		ExamID:    a.ExamID,
		AttemptID: &id,
		UserID:    &user,
		At:        s.now(),
		Data:      map[string]any{"event_type": eventType, "count": n},
	})
}
