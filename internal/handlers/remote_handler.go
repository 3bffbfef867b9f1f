package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskmanager/internal/logger"
	"taskmanager/internal/models"
	"taskmanager/internal/services"
)

// RemoteHandler is the server API the agents mirror into.
type RemoteHandler struct {
	tasks services.TaskService
	logs  services.LogService
	log   *zap.SugaredLogger
}

func NewRemoteHandler(tasks services.TaskService, logs services.LogService, log *zap.SugaredLogger) *RemoteHandler {
	return &RemoteHandler{tasks: tasks, logs: logs, log: logger.OrNop(log)}
}

// GET /tasks
func (h *RemoteHandler) ListTasks(c *gin.Context) {
	tasks, err := h.tasks.List(c.Request.Context())
	if err != nil {
		h.log.Errorf("[remote][tasks][list][err] %v", err)
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// GET /tasks/:id
func (h *RemoteHandler) GetTask(c *gin.Context) {
	task, err := h.tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// @Summary      Create or replace a task
// @Description  Upsert by id; replaying the same request is harmless
// @Tags         Remote
// @Accept       json
// @Produce      json
// @Param        task  body      models.Task  true  "Task"
// @Success      201   {object}  models.Task
// @Success      200   {object}  models.Task
// @Failure      400   {object}  map[string]string
// @Router       /tasks [post]
func (h *RemoteHandler) CreateTask(c *gin.Context) {
	var task models.Task
	if err := c.ShouldBindJSON(&task); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.save(c, task)
}

// PUT /tasks/:id
func (h *RemoteHandler) UpdateTask(c *gin.Context) {
	var task models.Task
	if err := c.ShouldBindJSON(&task); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	if task.ID != "" && task.ID != id {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id in body does not match path"})
		return
	}
	task.ID = id
	h.save(c, task)
}

func (h *RemoteHandler) save(c *gin.Context, task models.Task) {
	saved, created, err := h.tasks.Save(c.Request.Context(), task)
	if err != nil {
		h.log.Warnf("[remote][tasks][save][err] id=%s: %v", task.ID, err)
		abortErr(c, err)
		return
	}
	h.log.Infof("[remote][tasks][save][ok] id=%s created=%v", saved.ID, created)
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	c.JSON(code, saved)
}

// DELETE /tasks/:id
func (h *RemoteHandler) DeleteTask(c *gin.Context) {
	id := c.Param("id")
	if err := h.tasks.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			h.log.Infof("[remote][tasks][delete][404] id=%s", id)
		} else {
			h.log.Errorf("[remote][tasks][delete][err] id=%s: %v", id, err)
		}
		abortErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /logs
func (h *RemoteHandler) ListLogs(c *gin.Context) {
	logs, err := h.logs.List(c.Request.Context())
	if err != nil {
		h.log.Errorf("[remote][logs][list][err] %v", err)
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

// POST /logs
func (h *RemoteHandler) CreateLog(c *gin.Context) {
	var entry models.LogEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inserted, err := h.logs.Create(c.Request.Context(), entry)
	if err != nil {
		h.log.Warnf("[remote][logs][create][err] id=%s: %v", entry.ID, err)
		abortErr(c, err)
		return
	}
	code := http.StatusOK
	if inserted {
		code = http.StatusCreated
	}
	c.JSON(code, entry)
}
