package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskmanager/internal/connectivity"
	"taskmanager/internal/logger"
	"taskmanager/internal/reconcile"
)

// Syncer runs the drain sequence on demand.
type Syncer interface {
	SyncNow(ctx context.Context) error
	LastRun() (reconcile.Run, bool)
}

type SyncHandler struct {
	sync  Syncer
	queue QueueReader
	net   connectivity.State
	log   *zap.SugaredLogger
}

func NewSyncHandler(s Syncer, q QueueReader, net connectivity.State, log *zap.SugaredLogger) *SyncHandler {
	return &SyncHandler{sync: s, queue: q, net: net, log: logger.OrNop(log)}
}

type syncStatus struct {
	Online       bool           `json:"online"`
	PendingTasks int            `json:"pendingTasks"`
	PendingLogs  int            `json:"pendingLogs"`
	LastRun      *reconcile.Run `json:"lastRun,omitempty"`
}

func (h *SyncHandler) status(ctx context.Context) (syncStatus, error) {
	st := syncStatus{Online: h.net.Online()}
	tasks, err := h.queue.PendingTasks(ctx)
	if err != nil {
		return st, err
	}
	logs, err := h.queue.PendingLogs(ctx)
	if err != nil {
		return st, err
	}
	st.PendingTasks, st.PendingLogs = len(tasks), len(logs)
	if run, ok := h.sync.LastRun(); ok {
		st.LastRun = &run
	}
	return st, nil
}

// @Summary      Sync status
// @Description  Connectivity, queue sizes and the last drain result
// @Tags         Sync
// @Produce      json
// @Success      200  {object}  syncStatus
// @Router       /sync/status [get]
func (h *SyncHandler) Status(c *gin.Context) {
	st, err := h.status(c.Request.Context())
	if err != nil {
		h.log.Errorf("[sync][status][err] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read queue"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// POST /sync
func (h *SyncHandler) Sync(c *gin.Context) {
	if !h.net.Online() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "offline"})
		return
	}
	syncErr := h.sync.SyncNow(c.Request.Context())
	st, err := h.status(c.Request.Context())
	if err != nil {
		h.log.Errorf("[sync][run][status][err] %v", err)
	}
	if syncErr != nil {
		h.log.Warnf("[sync][run][err] %v", syncErr)
		c.JSON(http.StatusBadGateway, gin.H{"error": syncErr.Error(), "status": st})
		return
	}
	c.JSON(http.StatusOK, st)
}
