package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/response"
	"github.com/stemsi/examcore/internal/service"
	"github.com/stemsi/examcore/internal/validator"
)

// AgentHandler serves monitoring agents. Agents carry no user credential;
// the route group may require a shared token.
type AgentHandler struct {
	attemptService *service.AttemptService
	proctorService *service.ProctorService
	log            zerolog.Logger
}

// NewAgentHandler creates a new AgentHandler.
func NewAgentHandler(attemptService *service.AttemptService, proctorService *service.ProctorService, log zerolog.Logger) *AgentHandler {
	return &AgentHandler{
		attemptService: attemptService,
		proctorService: proctorService,
		log:            log.With().Str("component", "agent_handler").Logger(),
	}
}

// ReportViolation godoc
// POST /api/v1/monitor/attempts/:id/violations
// Logs one violation. The attempt is auto-submitted when the event is
// critical, marked terminal, or pushes the count over the limit.
func (h *AgentHandler) ReportViolation(c *gin.Context) {
	attemptID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req model.MonitorViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	out, err := h.proctorService.ReportViolation(c.Request.Context(), service.ViolationInput{
		UserID:    req.UserID,
		AttemptID: attemptID,
		EventType: req.EventType,
		Details:   req.Details,
	}, req.Terminal)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, out)
}

// ReportViolations godoc
// POST /api/v1/monitor/attempts/:id/violations/batch
func (h *AgentHandler) ReportViolations(c *gin.Context) {
	attemptID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req model.MonitorViolationBatchRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	inputs := make([]service.ViolationInput, len(req.Events))
	for i, ev := range req.Events {
		inputs[i] = service.ViolationInput{
			UserID:    req.UserID,
			AttemptID: attemptID,
			EventType: ev.EventType,
			Details:   ev.Details,
		}
	}

	out, err := h.proctorService.ReportViolations(c.Request.Context(), attemptID, inputs)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, out)
}

// AutoSubmit godoc
// POST /api/v1/monitor/attempts/:id/auto-submit
// Force-ends an in-progress attempt with reason "violation".
func (h *AgentHandler) AutoSubmit(c *gin.Context) {
	attemptID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	a, err := h.attemptService.AutoSubmit(c.Request.Context(), attemptID, model.SubmitReasonViolation)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	h.log.Warn().
		Str("attempt_id", attemptID.String()).
		Str("client_ip", c.ClientIP()).
		Msg("Attempt auto-submitted by monitoring agent")
	response.Success(c, http.StatusOK, gin.H{"attempt": a})
}
