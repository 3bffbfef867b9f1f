package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskmanager/internal/logger"
	"taskmanager/internal/models"
	"taskmanager/internal/pdf"
)

// QueueReader exposes what is still waiting for the server.
type QueueReader interface {
	PendingTasks(ctx context.Context) ([]models.QueuedMutation, error)
	PendingLogs(ctx context.Context) ([]models.LogEntry, error)
}

type LogHandler struct {
	store interface{ Logs() []models.LogEntry }
	queue QueueReader
	pdf   pdf.Generator
	log   *zap.SugaredLogger
}

func NewLogHandler(s interface{ Logs() []models.LogEntry }, q QueueReader, gen pdf.Generator, log *zap.SugaredLogger) *LogHandler {
	return &LogHandler{store: s, queue: q, pdf: gen, log: logger.OrNop(log)}
}

// @Summary      Activity log
// @Tags         Logs
// @Produce      json
// @Success      200  {array}  models.LogEntry
// @Router       /logs [get]
func (h *LogHandler) List(c *gin.Context) {
	logs := h.store.Logs()
	if logs == nil {
		logs = []models.LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}

// GET /logs/export
func (h *LogHandler) Export(c *gin.Context) {
	pending, err := h.queue.PendingLogs(c.Request.Context())
	if err != nil {
		// отчёт всё равно строим, просто без счётчика
		h.log.Warnf("[log][export][queue][err] %v", err)
	}

	var buf bytes.Buffer
	now := time.Now()
	if err := h.pdf.LogReport(&buf, pdf.LogReportData{Entries: h.store.Logs(), Pending: len(pending), GeneratedAt: now}); err != nil {
		h.log.Errorf("[log][export][err] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build report"})
		return
	}
	name := fmt.Sprintf("activity_%s.pdf", now.Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
