package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/model"
)

// MonitorStats provides the aggregates behind the live monitor.
type MonitorStats interface {
	CountAttemptsByStatus(ctx context.Context, examID uuid.UUID) (map[model.AttemptStatus]int, error)
	CountViolations(ctx context.Context, examID uuid.UUID) (int, error)
}

// MonitorService orchestrates live exam monitoring business logic.
type MonitorService struct {
	stats   MonitorStats
	catalog Catalog
	log     zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(stats MonitorStats, catalog Catalog, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		stats:   stats,
		catalog: catalog,
		log:     log.With().Str("component", "monitor_service").Logger(),
	}
}

// Snapshot returns attempt and violation counts for an exam the caller owns.
// Both aggregates are fetched in parallel.
func (s *MonitorService) Snapshot(ctx context.Context, caller Caller, examID uuid.UUID) (*model.MonitorSnapshot, error) {
	exam, err := s.catalog.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && exam.OwnerID != caller.UserID {
		return nil, ErrNotExamOwner
	}

	var (
		statusCounts map[model.AttemptStatus]int
		violations   int
		statusErr    error
		violationErr error
		wg           sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		statusCounts, statusErr = s.stats.CountAttemptsByStatus(ctx, examID)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		violations, violationErr = s.stats.CountViolations(ctx, examID)
	}()

	wg.Wait()

	// Attempt counts are critical; violation counts are best-effort
	if statusErr != nil {
		return nil, statusErr
	}
	if violationErr != nil {
		s.log.Warn().Err(violationErr).Str("exam_id", examID.String()).Msg("Failed to count violations")
	}

	return &model.MonitorSnapshot{
		ExamID:     exam.ID,
		Title:      exam.Title,
		InProgress: statusCounts[model.AttemptStatusInProgress],
		Submitted:  statusCounts[model.AttemptStatusSubmitted],
		Graded:     statusCounts[model.AttemptStatusGraded],
		Violations: violations,
	}, nil
}
