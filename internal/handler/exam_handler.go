package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/middleware"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/response"
	"github.com/stemsi/examcore/internal/service"
	"github.com/stemsi/examcore/internal/validator"
)

// ExamHandler handles exam and question management for teachers.
type ExamHandler struct {
	examService    *service.ExamService
	attemptService *service.AttemptService
	fraudService   *service.FraudLogService
	log            zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(
	examService *service.ExamService,
	attemptService *service.AttemptService,
	fraudService *service.FraudLogService,
	log zerolog.Logger,
) *ExamHandler {
	return &ExamHandler{
		examService:    examService,
		attemptService: attemptService,
		fraudService:   fraudService,
		log:            log.With().Str("component", "exam_handler").Logger(),
	}
}

// ListExams godoc
// GET /api/v1/exams
// Lists exams with pagination. Admins see all; teachers see only their own.
func (h *ExamHandler) ListExams(c *gin.Context) {
	page := pageQuery(c)
	exams, total, err := h.examService.ListExams(c.Request.Context(), middleware.GetCaller(c), page)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"exams": exams},
		response.NewPagination(page.Page, page.PerPage, total))
}

// CreateExam godoc
// POST /api/v1/exams
func (h *ExamHandler) CreateExam(c *gin.Context) {
	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.CreateExam(c.Request.Context(), middleware.GetCaller(c), req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// GetExam godoc
// GET /api/v1/exams/:id
func (h *ExamHandler) GetExam(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	exam, err := h.examService.OwnedExam(c.Request.Context(), middleware.GetCaller(c), examID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// UpdateExam godoc
// PUT /api/v1/exams/:id
// Partial update; graded attempts keep their scores.
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.UpdateExam(c.Request.Context(), middleware.GetCaller(c), examID, req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// DeleteExam godoc
// DELETE /api/v1/exams/:id
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := h.examService.DeleteExam(c.Request.Context(), middleware.GetCaller(c), examID); err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// ListQuestions godoc
// GET /api/v1/exams/:id/questions
// Returns questions with their correct answers.
func (h *ExamHandler) ListQuestions(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	questions, err := h.examService.ListOwnedQuestions(c.Request.Context(), middleware.GetCaller(c), examID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// AddQuestion godoc
// POST /api/v1/exams/:id/questions
func (h *ExamHandler) AddQuestion(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req model.AddQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q, err := h.examService.AddQuestion(c.Request.Context(), middleware.GetCaller(c), examID, req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"question": q})
}

// UpdateQuestion godoc
// PUT /api/v1/exams/:id/questions/:qid
func (h *ExamHandler) UpdateQuestion(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	questionID, ok := pathUUID(c, "qid")
	if !ok {
		return
	}
	var req model.UpdateQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q, err := h.examService.UpdateQuestion(c.Request.Context(), middleware.GetCaller(c), examID, questionID, req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question": q})
}

// DeleteQuestion godoc
// DELETE /api/v1/exams/:id/questions/:qid
func (h *ExamHandler) DeleteQuestion(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	questionID, ok := pathUUID(c, "qid")
	if !ok {
		return
	}
	if err := h.examService.DeleteQuestion(c.Request.Context(), middleware.GetCaller(c), examID, questionID); err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// ListAttempts godoc
// GET /api/v1/exams/:id/attempts?status=&user_id=&page=&per_page=
func (h *ExamHandler) ListAttempts(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var f model.AttemptFilter
	if s := c.Query("status"); s != "" {
		status := model.AttemptStatus(s)
		switch status {
		case model.AttemptStatusInProgress, model.AttemptStatusSubmitted, model.AttemptStatusGraded:
			f.Status = &status
		default:
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"status": "status must be in_progress, submitted or graded"})
			return
		}
	}
	if s := c.Query("user_id"); s != "" {
		userID, err := strconv.Atoi(s)
		if err != nil || userID < 1 {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"user_id": "user_id must be a positive integer"})
			return
		}
		f.UserID = &userID
	}

	page := pageQuery(c)
	results, total, err := h.attemptService.ListByExam(c.Request.Context(), middleware.GetCaller(c), examID, f, page)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"attempts": results},
		response.NewPagination(page.Page, page.PerPage, total))
}

// ReleaseFeedback godoc
// POST /api/v1/exams/:id/feedback/release
// Lets students see per-question correctness on graded attempts.
func (h *ExamHandler) ReleaseFeedback(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	n, err := h.attemptService.ReleaseFeedback(c.Request.Context(), middleware.GetCaller(c), examID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"released": n})
}

// ListViolations godoc
// GET /api/v1/exams/:id/violations
func (h *ExamHandler) ListViolations(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	page := pageQuery(c)
	logs, total, err := h.fraudService.ListByExam(c.Request.Context(), middleware.GetCaller(c), examID, page)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"violations": logs},
		response.NewPagination(page.Page, page.PerPage, total))
}
