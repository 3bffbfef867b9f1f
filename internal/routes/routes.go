package routes

import (
	"github.com/gin-gonic/gin"

	"taskmanager/internal/handlers"
)

// SetupAgentRoutes registers the local API consumed by the UI.
func SetupAgentRoutes(
	r *gin.Engine,
	taskHandler *handlers.TaskHandler,
	logHandler *handlers.LogHandler,
	syncHandler *handlers.SyncHandler,
	eventsHandler *handlers.EventsHandler,
) *gin.Engine {
	r.GET("/healthz", handlers.Health)

	// TASKS
	tasks := r.Group("/tasks")
	{
		tasks.GET("", taskHandler.List)
		tasks.POST("", taskHandler.Create)
		tasks.GET("/:id", taskHandler.Get)
		tasks.PUT("/:id", taskHandler.Update)
		tasks.DELETE("/:id", taskHandler.Delete)
		tasks.POST("/:id/status", taskHandler.SetStatus)
	}

	// LOGS
	logs := r.Group("/logs")
	{
		logs.GET("", logHandler.List)
		logs.GET("/export", logHandler.Export)
	}

	// SYNC
	r.GET("/sync/status", syncHandler.Status)
	r.POST("/sync", syncHandler.Sync)

	r.GET("/events", eventsHandler.Stream)
	return r
}

// SetupServerRoutes registers the remote API the agents mirror into.
func SetupServerRoutes(r *gin.Engine, remote *handlers.RemoteHandler) *gin.Engine {
	r.GET("/healthz", handlers.Health)

	tasks := r.Group("/tasks")
	{
		tasks.GET("", remote.ListTasks)
		tasks.POST("", remote.CreateTask)
		tasks.GET("/:id", remote.GetTask)
		tasks.PUT("/:id", remote.UpdateTask)
		tasks.DELETE("/:id", remote.DeleteTask)
	}

	logs := r.Group("/logs")
	{
		logs.GET("", remote.ListLogs)
		logs.POST("", remote.CreateLog)
	}
	return r
}
