package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskmanager/internal/logger"
	"taskmanager/internal/models"
)

// TaskStore is what the agent API needs from the store.
type TaskStore interface {
	Tasks() []models.Task
	Task(id string) (models.Task, bool)
	AddTask(ctx context.Context, t models.Task) (models.Task, error)
	UpdateTask(ctx context.Context, t models.Task) (models.Task, error)
	SetStatus(ctx context.Context, id string, status models.TaskStatus) (models.Task, error)
	DeleteTask(ctx context.Context, id string) error
	Logs() []models.LogEntry
}

// TaskHandler serves the local UI. Every write goes through the store pipeline,
// so it succeeds offline too.
type TaskHandler struct {
	store TaskStore
	log   *zap.SugaredLogger
}

func NewTaskHandler(s TaskStore, log *zap.SugaredLogger) *TaskHandler {
	return &TaskHandler{store: s, log: logger.OrNop(log)}
}

type taskRequest struct {
	Title          string                 `json:"title" binding:"required"`
	Description    string                 `json:"description"`
	Location       string                 `json:"location"`
	DateTime       string                 `json:"dateTime"`
	Status         models.TaskStatus      `json:"status"`
	File           *models.FileAttachment `json:"file"`
	LocationCoords *models.Coords         `json:"locationCoords"`
}

func (r taskRequest) task(id string) models.Task {
	return models.Task{
		ID:             id,
		Title:          r.Title,
		Description:    r.Description,
		Location:       r.Location,
		DateTime:       r.DateTime,
		Status:         r.Status,
		File:           r.File,
		LocationCoords: r.LocationCoords,
	}
}

func (r taskRequest) validate() string {
	if r.DateTime == "" {
		return ""
	}
	if _, err := models.ParseTimestamp(r.DateTime); err != nil {
		return "invalid dateTime (RFC3339)"
	}
	return ""
}

// @Summary      List tasks
// @Tags         Tasks
// @Produce      json
// @Param        sort  query     string  false  "addedAt (newest first) or status"
// @Success      200   {array}   models.Task
// @Failure      400   {object}  map[string]string
// @Router       /tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	tasks := h.store.Tasks()
	switch sortBy := c.Query("sort"); sortBy {
	case "":
	case "addedAt":
		models.SortByAddedAt(tasks)
	case "status":
		models.SortByStatus(tasks)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "sort must be addedAt or status"})
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// GET /tasks/:id
func (h *TaskHandler) Get(c *gin.Context) {
	id := c.Param("id")
	task, ok := h.store.Task(id)
	if !ok {
		h.log.Infof("[task][get][404] id=%s", id)
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}

// @Summary      Create task
// @Description  Saves locally, mirrors to the server or queues the change when offline
// @Tags         Tasks
// @Accept       json
// @Produce      json
// @Param        task  body      taskRequest  true  "Task"
// @Success      201   {object}  models.Task
// @Failure      400   {object}  map[string]string
// @Router       /tasks [post]
func (h *TaskHandler) Create(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Infof("[task][create][bind][err] %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if msg := req.validate(); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	created, err := h.store.AddTask(c.Request.Context(), req.task(""))
	if err != nil {
		h.log.Warnf("[task][create][err] %v", err)
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// @Summary      Update task
// @Tags         Tasks
// @Accept       json
// @Produce      json
// @Param        id    path      string       true  "Task id"
// @Param        task  body      taskRequest  true  "Task"
// @Success      200   {object}  models.Task
// @Failure      404   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Router       /tasks/{id} [put]
func (h *TaskHandler) Update(c *gin.Context) {
	id := c.Param("id")
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Infof("[task][update][bind][err] id=%s: %v", id, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if msg := req.validate(); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	updated, err := h.store.UpdateTask(c.Request.Context(), req.task(id))
	if err != nil {
		h.log.Warnf("[task][update][err] id=%s: %v", id, err)
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// POST /tasks/:id/status {"status": "Completed"}
func (h *TaskHandler) SetStatus(c *gin.Context) {
	id := c.Param("id")
	var req struct {
		Status models.TaskStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	updated, err := h.store.SetStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		h.log.Warnf("[task][status][err] id=%s to=%q: %v", id, req.Status, err)
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DELETE /tasks/:id
func (h *TaskHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.DeleteTask(c.Request.Context(), id); err != nil {
		h.log.Warnf("[task][delete][err] id=%s: %v", id, err)
		abortErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
