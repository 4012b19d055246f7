package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/middleware"
	"github.com/stemsi/examcore/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// Subscriber attaches to an exam's event channel.
type Subscriber interface {
	Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub
}

// MonitorHandler streams live attempt activity for an exam over SSE.
type MonitorHandler struct {
	monitorService *service.MonitorService
	events         Subscriber
	log            zerolog.Logger
}

func NewMonitorHandler(monitorService *service.MonitorService, events Subscriber, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		monitorService: monitorService,
		events:         events,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/exams/:id/monitor
// Sends a snapshot, then forwards every lifecycle event of the exam.
// A fresh snapshot follows activity every refreshInterval.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	caller := middleware.GetCaller(c)
	reqCtx := c.Request.Context()

	// Ownership errors must go out before the stream starts.
	snap, err := h.monitorService.Snapshot(reqCtx, caller, examID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)

	c.SSEvent("snapshot", snap)
	c.Writer.Flush()

	pubsub := h.events.Subscribe(reqCtx, examID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Skip refreshes while nothing is happening.
	dirty := false

	log := h.log.With().Str("exam_id", examID.String()).Int("user_id", caller.UserID).Logger()
	log.Info().Msg("Monitor attached")

	for {
		select {
		case <-reqCtx.Done():
			log.Info().Msg("Monitor detached")
			return

		case msg, open := <-ch:
			if !open {
				return
			}
			// Payloads are already JSON; forward them as-is.
			c.Writer.Write([]byte("event: event\ndata: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
			dirty = true

		case <-refreshTicker.C:
			if !dirty {
				continue
			}
			dirty = false
			h.sendRefresh(c, reqCtx, caller, examID)

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte(": ping\n\n"))
			c.Writer.Flush()
		}
	}
}

func (h *MonitorHandler) sendRefresh(c *gin.Context, parent context.Context, caller service.Caller, examID uuid.UUID) {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()

	snap, err := h.monitorService.Snapshot(ctx, caller, examID)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to refresh monitor snapshot")
		return
	}
	c.SSEvent("snapshot", snap)
	c.Writer.Flush()
}
