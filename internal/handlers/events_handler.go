package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskmanager/internal/logger"
	"taskmanager/internal/notify"
)

const keepAliveEvery = 25 * time.Second

// EventsHandler streams banners to the UI as server-sent events.
type EventsHandler struct {
	hub *notify.Hub
	log *zap.SugaredLogger
}

func NewEventsHandler(hub *notify.Hub, log *zap.SugaredLogger) *EventsHandler {
	return &EventsHandler{hub: hub, log: logger.OrNop(log)}
}

// GET /events
func (h *EventsHandler) Stream(c *gin.Context) {
	ch := h.hub.Register()
	defer h.hub.Unregister(ch)
	h.log.Debugf("[events][open] clients=%d", h.hub.Clients())

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ping := time.NewTicker(keepAliveEvery)
	defer ping.Stop()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case b, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("banner", b)
			return true
		case <-ping.C:
			c.SSEvent("ping", gin.H{"at": time.Now()})
			return true
		}
	})
	h.log.Debugf("[events][close]")
}
