package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskmanager/internal/services"
	"taskmanager/internal/store"
)

// statusFor maps domain errors to HTTP codes. Anything unknown is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrTaskNotFound), errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidTask), errors.Is(err, services.ErrInvalid):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func abortErr(c *gin.Context, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(code, gin.H{"error": msg})
}

// Health answers the connectivity probe.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
