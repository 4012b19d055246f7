package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/examcore/internal/config"
	"github.com/stemsi/examcore/internal/model"
)

func violation(attemptID uuid.UUID, eventType string) ViolationInput {
	return ViolationInput{AttemptID: attemptID, EventType: eventType}
}

func TestReportViolationThreshold(t *testing.T) {
	h := newHarness(t, defaultAttemptConfig(), config.ProctorConfig{MaxViolations: 3})
	ctx := context.Background()
	exam := h.exam(t)
	q := h.mcQuestion(t, exam.ID, 1, 4)
	a := h.start(t, student, exam.ID)
	h.answer(t, student, a.ID, q.ID, 1)

	for i := 1; i <= 2; i++ {
		out, err := h.proctor.ReportViolation(ctx, violation(a.ID, "tab_switch"), false)
		if err != nil {
			t.Fatalf("violation %d: %v", i, err)
		}
		if out.AutoSubmitted || out.Count != i {
			t.Fatalf("violation %d: outcome %+v", i, out)
		}
	}

	out, err := h.proctor.ReportViolation(ctx, violation(a.ID, "tab_switch"), false)
	if err != nil {
		t.Fatalf("third violation: %v", err)
	}
	if !out.AutoSubmitted || out.Count != 3 {
		t.Fatalf("third violation: outcome %+v, want auto-submitted at count 3", out)
	}
	if out.Attempt.Status != model.AttemptStatusGraded || *out.Attempt.SubmitReason != model.SubmitReasonViolation {
		t.Fatalf("attempt = %s/%s, want graded by violation", out.Attempt.Status, *out.Attempt.SubmitReason)
	}
	if *out.Attempt.Score != 4 {
		t.Errorf("score = %v, want 4", *out.Attempt.Score)
	}

	// Late events are still logged but change nothing.
	out, err = h.proctor.ReportViolation(ctx, violation(a.ID, "tab_switch"), false)
	if err != nil {
		t.Fatalf("late violation: %v", err)
	}
	if out.AutoSubmitted || out.Count != 4 {
		t.Fatalf("late violation: outcome %+v", out)
	}
	if n := h.events.Count(model.EventAttemptSubmitted); n != 1 {
		t.Errorf("attempt_submitted events = %d, want 1", n)
	}
}

func TestReportViolationTriggers(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.ProctorConfig
		eventType string
		terminal  bool
		want      bool
	}{
		{"critical event ends attempt", config.ProctorConfig{MaxViolations: 5, CriticalViolations: []string{"devtools_open"}}, "DevTools-Open", false, true},
		{"terminal flag ends attempt", config.ProctorConfig{MaxViolations: 5}, "face_missing", true, true},
		{"count rule disabled", config.ProctorConfig{MaxViolations: 0}, "tab_switch", false, false},
		{"below threshold", config.ProctorConfig{MaxViolations: 2}, "tab_switch", false, false},
		{"threshold of one", config.ProctorConfig{MaxViolations: 1}, "tab_switch", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, defaultAttemptConfig(), tt.cfg)
			a := h.start(t, student, h.exam(t).ID)

			out, err := h.proctor.ReportViolation(context.Background(), violation(a.ID, tt.eventType), tt.terminal)
			if err != nil {
				t.Fatalf("ReportViolation: %v", err)
			}
			if out.AutoSubmitted != tt.want {
				t.Fatalf("auto_submitted = %v, want %v", out.AutoSubmitted, tt.want)
			}
			stored, _ := h.attempts.GetByID(context.Background(), a.ID)
			if stored.Status.Terminal() != tt.want {
				t.Errorf("stored status = %s", stored.Status)
			}
		})
	}
}

func TestReportViolationRejections(t *testing.T) {
	h := newHarness(t, defaultAttemptConfig(), config.ProctorConfig{MaxViolations: 3})
	ctx := context.Background()
	a := h.start(t, student, h.exam(t).ID)
	wrongUser := otherID

	tests := []struct {
		name    string
		in      ViolationInput
		wantErr error
	}{
		{"unknown attempt", violation(uuid.New(), "tab_switch"), ErrAttemptNotFound},
		{"empty event type", violation(a.ID, "  "), ErrInvalidEventType},
		{"odd characters", violation(a.ID, "tab<switch>"), ErrInvalidEventType},
		{"user does not own attempt", ViolationInput{UserID: &wrongUser, AttemptID: a.ID, EventType: "tab_switch"}, ErrUserMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.proctor.ReportViolation(ctx, tt.in, false)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if n, _ := h.logs.CountByAttempt(ctx, a.ID); n != 0 {
		t.Fatalf("rejected reports stored %d logs", n)
	}
}

func TestReportStudentViolation(t *testing.T) {
	h := newHarness(t, defaultAttemptConfig(), config.ProctorConfig{MaxViolations: 3})
	ctx := context.Background()
	a := h.start(t, student, h.exam(t).ID)
	req := model.ReportViolationRequest{EventType: "Window Blur"}

	if _, err := h.proctor.ReportStudentViolation(ctx, other, a.ID, req); !errors.Is(err, ErrNotAttemptOwner) {
		t.Fatalf("other student: err = %v, want ErrNotAttemptOwner", err)
	}

	out, err := h.proctor.ReportStudentViolation(ctx, student, a.ID, req)
	if err != nil {
		t.Fatalf("ReportStudentViolation: %v", err)
	}
	if out.Log.EventType != "window_blur" {
		t.Errorf("event type = %q, want window_blur", out.Log.EventType)
	}
	if out.Log.UserID == nil || *out.Log.UserID != studentID {
		t.Errorf("user id = %v, want %d", out.Log.UserID, studentID)
	}
	if out.Log.ExamID == nil || *out.Log.ExamID != a.ExamID {
		t.Errorf("exam id = %v, want %s", out.Log.ExamID, a.ExamID)
	}
	if n := h.events.Count(model.EventViolationRecorded); n != 1 {
		t.Errorf("violation_recorded events = %d, want 1", n)
	}
}

func TestReportViolationsBatch(t *testing.T) {
	h := newHarness(t, defaultAttemptConfig(), config.ProctorConfig{MaxViolations: 3})
	ctx := context.Background()
	a := h.start(t, student, h.exam(t).ID)

	out, err := h.proctor.ReportViolations(ctx, a.ID, []ViolationInput{
		{EventType: "tab_switch"},
		{EventType: "copy_paste"},
	})
	if err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if out.AutoSubmitted || out.Count != 2 {
		t.Fatalf("first batch outcome %+v", out)
	}

	out, err = h.proctor.ReportViolations(ctx, a.ID, []ViolationInput{{EventType: "tab_switch"}})
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if !out.AutoSubmitted || out.Count != 3 {
		t.Fatalf("second batch outcome %+v, want auto-submitted", out)
	}

	logs, err := h.fraud.ListByAttempt(ctx, teacher, a.ID)
	if err != nil {
		t.Fatalf("ListByAttempt: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("logs = %d, want 3", len(logs))
	}
	if _, err := h.fraud.ListByAttempt(ctx, Caller{UserID: 42, Role: model.RoleTeacher}, a.ID); !errors.Is(err, ErrNotExamOwner) {
		t.Fatalf("foreign teacher err = %v, want ErrNotExamOwner", err)
	}
}

func TestViolationsSurviveAttemptDeletion(t *testing.T) {
	h := newHarness(t, defaultAttemptConfig(), config.ProctorConfig{})
	ctx := context.Background()
	exam := h.exam(t)
	a := h.start(t, student, exam.ID)

	if _, err := h.proctor.ReportViolation(ctx, violation(a.ID, "tab_switch"), false); err != nil {
		t.Fatalf("ReportViolation: %v", err)
	}
	if err := h.svc.Delete(ctx, teacher, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	logs, total, err := h.fraud.ListByExam(ctx, teacher, exam.ID, Page{})
	if err != nil {
		t.Fatalf("ListByExam: %v", err)
	}
	if total != 1 || len(logs) != 1 {
		t.Fatalf("logs after delete = %d (total %d), want 1", len(logs), total)
	}
}
