package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/middleware"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/response"
	"github.com/stemsi/examcore/internal/service"
	"github.com/stemsi/examcore/internal/validator"
)

// AttemptHandler serves the attempt lifecycle to students and the grading
// side to staff.
type AttemptHandler struct {
	examService    *service.ExamService
	attemptService *service.AttemptService
	fraudService   *service.FraudLogService
	proctorService *service.ProctorService
	log            zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(
	examService *service.ExamService,
	attemptService *service.AttemptService,
	fraudService *service.FraudLogService,
	proctorService *service.ProctorService,
	log zerolog.Logger,
) *AttemptHandler {
	return &AttemptHandler{
		examService:    examService,
		attemptService: attemptService,
		fraudService:   fraudService,
		proctorService: proctorService,
		log:            log.With().Str("component", "attempt_handler").Logger(),
	}
}

// ─── Student ────────────────────────────────────────────────────────

// GetPaper godoc
// GET /api/v1/student/exams/:id/paper
// Returns the exam questions without correct answers.
func (h *AttemptHandler) GetPaper(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	paper, err := h.examService.GetPaper(c.Request.Context(), examID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"paper": paper})
}

// Start godoc
// POST /api/v1/student/exams/:id/attempts
// Starts an attempt. A resumed attempt answers 200 instead of 201.
func (h *AttemptHandler) Start(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	res, err := h.attemptService.Start(c.Request.Context(), middleware.GetCaller(c), examID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	status := http.StatusCreated
	if res.Resumed {
		status = http.StatusOK
	}
	attempt := res.Attempt.ForStudent()
	response.Success(c, status, gin.H{"attempt": attempt, "resumed": res.Resumed})
}

// ListMine godoc
// GET /api/v1/student/attempts
func (h *AttemptHandler) ListMine(c *gin.Context) {
	attempts, err := h.attemptService.ListMine(c.Request.Context(), middleware.GetCaller(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// Get godoc
// GET /api/v1/student/attempts/:id
// GET /api/v1/attempts/:id
func (h *AttemptHandler) Get(c *gin.Context) {
	attemptID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	a, err := h.attemptService.Get(c.Request.Context(), middleware.GetCaller(c), attemptID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": a})
}

// RecordResponse godoc
// PUT /api/v1/student/attempts/:id/responses
// Saves one answer, replacing any earlier answer to the same question.
func (h *AttemptHandler) RecordResponse(c *gin.Context) {
	attemptID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req model.RecordResponseRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	r, err := h.attemptService.RecordResponse(c.Request.Context(), middleware.GetCaller(c), attemptID, req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"response": redactResponse(*r)})
}

// RecordResponses godoc
// PUT /api/v1/student/attempts/:id/responses/batch
// Saves several answers. Either all are stored or none.
func (h *AttemptHandler) RecordResponses(c *gin.Context) {
	attemptID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req model.RecordResponsesRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	saved, err := h.attemptService.RecordResponses(c.Request.Context(), middleware.GetCaller(c), attemptID, req.Responses)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	out := make([]model.Response, len(saved))
	for i, r := range saved {
		out[i] = redactResponse(r)
	}
	response.Success(c, http.StatusOK, gin.H{"responses": out})
}

// Submit godoc
// POST /api/v1/student/attempts/:id/submit
func (h *AttemptHandler) Submit(c *gin.Context) {
	attemptID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	a, err := h.attemptService.Submit(c.Request.Context(), middleware.GetCaller(c), attemptID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	redacted := a.ForStudent()
	response.Success(c, http.StatusOK, gin.H{"attempt": redacted})
}

// ReportViolation godoc
// POST /api/v1/student/attempts/:id/violations
// Logs a violation detected by the student's own client.
func (h *AttemptHandler) ReportViolation(c *gin.Context) {
	attemptID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req model.ReportViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	out, err := h.proctorService.ReportStudentViolation(c.Request.Context(), middleware.GetCaller(c), attemptID, req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	if out.Attempt != nil {
		redacted := out.Attempt.ForStudent()
		out.Attempt = &redacted
	}
	response.Success(c, http.StatusCreated, out)
}

// ─── Staff ──────────────────────────────────────────────────────────

// Grade godoc
// POST /api/v1/attempts/:id/grade
// Scores a submitted attempt. Grading a graded attempt recomputes the
// same score.
func (h *AttemptHandler) Grade(c *gin.Context) {
	attemptID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	a, err := h.attemptService.Grade(c.Request.Context(), middleware.GetCaller(c), attemptID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": a})
}

// ReleaseFeedback godoc
// POST /api/v1/attempts/:id/feedback/release
// Releases correctness of a single graded attempt to its student.
func (h *AttemptHandler) ReleaseFeedback(c *gin.Context) {
	attemptID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	a, err := h.attemptService.ReleaseAttemptFeedback(c.Request.Context(), middleware.GetCaller(c), attemptID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": a})
}

// Delete godoc
// DELETE /api/v1/attempts/:id
// Removes the attempt and its responses. Violation logs stay.
func (h *AttemptHandler) Delete(c *gin.Context) {
	attemptID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := h.attemptService.Delete(c.Request.Context(), middleware.GetCaller(c), attemptID); err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// ListViolations godoc
// GET /api/v1/attempts/:id/violations
func (h *AttemptHandler) ListViolations(c *gin.Context) {
	attemptID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	logs, err := h.fraudService.ListByAttempt(c.Request.Context(), middleware.GetCaller(c), attemptID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"violations": logs, "count": len(logs)})
}

func redactResponse(r model.Response) model.Response {
	r.IsCorrect = nil
	r.PointsEarned = nil
	return r
}
