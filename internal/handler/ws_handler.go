package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/middleware"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/response"
	"github.com/stemsi/examcore/internal/service"
	ws "github.com/stemsi/examcore/internal/websocket"
)

const wsOpTimeout = 10 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler runs an attempt over a single WebSocket: answers, client-side
// violations and the final submit.
type WSHandler struct {
	attemptService *service.AttemptService
	proctorService *service.ProctorService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, proctorService *service.ProctorService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		proctorService: proctorService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/attempts/:id
// Upgrades to WebSocket for autosave and violation reporting. The
// connection closes after the attempt ends.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	attemptID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	caller := middleware.GetCaller(c)

	// Reject foreign or finished attempts with a plain HTTP error.
	a, err := h.attemptService.OwnAttempt(c.Request.Context(), caller, attemptID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	if a.Status != model.AttemptStatusInProgress {
		writeError(c, h.log, service.ErrAttemptNotInProgress)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(ws.MaxMessageSize)

	wsLog := h.log.With().
		Int("user_id", caller.UserID).
		Str("attempt_id", attemptID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	for {
		var msg ws.Request
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		done := false
		switch msg.Action {
		case ws.ActionAnswer:
			h.handleAnswer(conn, wsLog, caller, attemptID, &msg)
		case ws.ActionViolation:
			done = h.handleViolation(conn, wsLog, caller, attemptID, &msg)
		case ws.ActionSubmit:
			done = h.handleSubmit(conn, wsLog, caller, attemptID, &msg)
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong, Ref: msg.Ref})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, msg.Ref, string(response.ErrValidation), "unknown action: "+string(msg.Action))
		}
		if done {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "attempt ended"),
				time.Now().Add(time.Second))
			return
		}
	}
}

func (h *WSHandler) handleAnswer(conn *websocket.Conn, wsLog zerolog.Logger, caller service.Caller, attemptID uuid.UUID, msg *ws.Request) {
	if msg.QuestionID == uuid.Nil || len(msg.Answer) == 0 {
		ws.WriteError(conn, msg.Ref, string(response.ErrValidation), "question_id and answer are required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsOpTimeout)
	defer cancel()

	_, err := h.attemptService.RecordResponse(ctx, caller, attemptID, model.RecordResponseRequest{
		QuestionID: msg.QuestionID,
		Answer:     msg.Answer,
	})
	if err != nil {
		h.writeServiceError(conn, wsLog, msg.Ref, err)
		return
	}
	ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, Ref: msg.Ref, QuestionID: msg.QuestionID})
}

func (h *WSHandler) handleViolation(conn *websocket.Conn, wsLog zerolog.Logger, caller service.Caller, attemptID uuid.UUID, msg *ws.Request) bool {
	ctx, cancel := context.WithTimeout(context.Background(), wsOpTimeout)
	defer cancel()

	out, err := h.proctorService.ReportStudentViolation(ctx, caller, attemptID, model.ReportViolationRequest{
		EventType: msg.EventType,
		Details:   msg.Details,
	})
	if err != nil {
		h.writeServiceError(conn, wsLog, msg.Ref, err)
		return false
	}

	res := ws.ViolationResponse{
		Event:         ws.EventViolation,
		Ref:           msg.Ref,
		Count:         out.Count,
		AutoSubmitted: out.AutoSubmitted,
	}
	if out.Attempt != nil {
		redacted := out.Attempt.ForStudent()
		res.Attempt = &redacted
	}
	ws.WriteTyped(conn, res)
	return out.AutoSubmitted
}

func (h *WSHandler) handleSubmit(conn *websocket.Conn, wsLog zerolog.Logger, caller service.Caller, attemptID uuid.UUID, msg *ws.Request) bool {
	ctx, cancel := context.WithTimeout(context.Background(), wsOpTimeout)
	defer cancel()

	a, err := h.attemptService.Submit(ctx, caller, attemptID)
	if err != nil {
		h.writeServiceError(conn, wsLog, msg.Ref, err)
		return false
	}

	wsLog.Info().Str("status", string(a.Status)).Msg("Attempt submitted over websocket")
	redacted := a.ForStudent()
	ws.WriteTyped(conn, ws.SubmittedResponse{Event: ws.EventSubmitted, Ref: msg.Ref, Attempt: &redacted})
	return true
}

// writeServiceError mirrors writeError for an open socket.
func (h *WSHandler) writeServiceError(conn *websocket.Conn, wsLog zerolog.Logger, ref string, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		wsLog.Error().Err(err).Msg("WebSocket operation failed")
		ws.WriteError(conn, ref, string(code), "internal error")
		return
	}
	ws.WriteError(conn, ref, string(code), err.Error())
}
