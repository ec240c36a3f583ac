package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bipstech/exam-portal/internal/response"
	"github.com/bipstech/exam-portal/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

type MonitorHandler struct {
	monitorService *service.MonitorService
	log            zerolog.Logger
}

func NewMonitorHandler(monitorService *service.MonitorService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorSSE godoc
// GET /api/v1/admin/monitor
// Streams entries, violations, bans and submissions as they happen.
func (h *MonitorHandler) MonitorSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	snapshot, err := h.loadSnapshot(reqCtx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build monitor snapshot")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.SSEvent("message", gin.H{"type": "snapshot", "data": snapshot})
	c.Writer.Flush()

	pubsub := h.monitorService.Subscribe(reqCtx)
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Refresh only after something happened since the last snapshot.
	dirty := false

	h.log.Info().Msg("Admin attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Admin disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Forward raw JSON directly, no deserialization needed.
			writeSSEData(c, []byte(msg.Payload))
			dirty = true

		case <-refreshTicker.C:
			if !dirty {
				continue
			}
			snap, err := h.loadSnapshot(reqCtx)
			if err != nil {
				h.log.Warn().Err(err).Msg("Failed to refresh monitor snapshot")
				continue
			}
			c.SSEvent("message", gin.H{"type": "refresh", "data": snap})
			c.Writer.Flush()
			dirty = false

		case <-keepAliveTicker.C:
			writeSSEData(c, pingPayload)
		}
	}
}

func (h *MonitorHandler) loadSnapshot(parent context.Context) (*service.MonitorSnapshot, error) {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()
	return h.monitorService.Snapshot(ctx)
}

func writeSSEData(c *gin.Context, data []byte) {
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(data)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
