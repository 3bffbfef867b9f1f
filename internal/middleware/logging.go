package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger writes one line per request in the same [area][op] style as the handlers.
func RequestLogger(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		line := "[http][%s %s] status=%d took=%s"
		args := []any{c.Request.Method, c.Request.URL.Path, status, time.Since(start).Round(time.Microsecond)}
		switch {
		case status >= 500:
			log.Errorf(line, args...)
		case status >= 400:
			log.Warnf(line, args...)
		default:
			log.Debugf(line, args...)
		}
	}
}

// Recovery turns a panic into a 500 and logs it instead of killing the process.
func Recovery(log *zap.SugaredLogger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Errorf("[http][panic] %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)
		c.AbortWithStatusJSON(500, gin.H{"error": "internal error"})
	})
}
