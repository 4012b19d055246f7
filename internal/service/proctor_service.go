package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/config"
	"github.com/stemsi/examcore/internal/model"
)

// ProctorService applies the violation policy on top of the fraud log: a
// violation ends the attempt when it is critical, when the reporter marks
// it terminal, or when the attempt reaches the configured violation count.
type ProctorService struct {
	fraud    *FraudLogService
	attempts *AttemptService
	max      int
	critical map[string]bool
	log      zerolog.Logger
}

// NewProctorService creates a new ProctorService.
func NewProctorService(
	fraud *FraudLogService,
	attempts *AttemptService,
	cfg config.ProctorConfig,
	log zerolog.Logger,
) *ProctorService {
	critical := make(map[string]bool, len(cfg.CriticalViolations))
	for _, ev := range cfg.CriticalViolations {
		if norm, ok := model.NormalizeEventType(ev); ok {
			critical[norm] = true
		}
	}
	return &ProctorService{
		fraud:    fraud,
		attempts: attempts,
		max:      cfg.MaxViolations,
		critical: critical,
		log:      log.With().Str("component", "proctor_service").Logger(),
	}
}

// ReportStudentViolation records a violation reported by the student's own
// client for an attempt they own.
func (s *ProctorService) ReportStudentViolation(ctx context.Context, caller Caller, attemptID uuid.UUID, req model.ReportViolationRequest) (*model.ViolationOutcome, error) {
	if _, err := s.attempts.OwnAttempt(ctx, caller, attemptID); err != nil {
		return nil, err
	}
	userID := caller.UserID
	return s.ReportViolation(ctx, ViolationInput{
		UserID:    &userID,
		AttemptID: attemptID,
		EventType: req.EventType,
		Details:   req.Details,
	}, false)
}

// ReportViolation logs a violation and auto-submits the attempt when the
// policy says so. An attempt that already ended keeps the log and is
// reported with AutoSubmitted=false.
func (s *ProctorService) ReportViolation(ctx context.Context, in ViolationInput, terminal bool) (*model.ViolationOutcome, error) {
	l, err := s.fraud.Record(ctx, in)
	if err != nil {
		return nil, err
	}

	count, err := s.fraud.CountByAttempt(ctx, in.AttemptID)
	if err != nil {
		return nil, err
	}

	out := &model.ViolationOutcome{Log: l, Count: count}
	if !s.shouldEnd(l.EventType, count, terminal) {
		return out, nil
	}
	return s.end(ctx, in.AttemptID, out)
}

// ReportViolations logs a batch of violations for one attempt, then applies
// the same policy as ReportViolation.
func (s *ProctorService) ReportViolations(ctx context.Context, attemptID uuid.UUID, inputs []ViolationInput) (*model.ViolationOutcome, error) {
	if _, err := s.fraud.RecordBatch(ctx, attemptID, inputs); err != nil {
		return nil, err
	}

	count, err := s.fraud.CountByAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	out := &model.ViolationOutcome{Count: count}
	terminal := false
	for _, in := range inputs {
		if norm, ok := model.NormalizeEventType(in.EventType); ok && s.critical[norm] {
			terminal = true
		}
	}
	if !s.shouldEnd("", count, terminal) {
		return out, nil
	}
	return s.end(ctx, attemptID, out)
}

func (s *ProctorService) shouldEnd(eventType string, count int, terminal bool) bool {
	if terminal || s.critical[eventType] {
		return true
	}
	return s.max > 0 && count >= s.max
}

func (s *ProctorService) end(ctx context.Context, attemptID uuid.UUID, out *model.ViolationOutcome) (*model.ViolationOutcome, error) {
	a, err := s.attempts.AutoSubmit(ctx, attemptID, model.SubmitReasonViolation)
	if errors.Is(err, ErrAttemptNotInProgress) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auto-submit after violation: %w", err)
	}

	s.log.Warn().
		Str("attempt_id", attemptID.String()).
		Int("violations", out.Count).
		Msg("Attempt auto-submitted after violation")

	out.AutoSubmitted = true
	out.Attempt = a
	return out, nil
}
