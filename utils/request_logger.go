package utils

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"photoman/logger"
)

// RequestLogger replaces gin's default text logger
func RequestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()

	status := c.Writer.Status()
	log := logger.Get()
	var event *zerolog.Event
	switch {
	case status >= 500:
		event = log.Error()
	case status >= 400:
		event = log.Warn()
	default:
		event = log.Info()
	}
	if len(c.Errors) > 0 {
		event = event.Str("errors", c.Errors.String())
	}
	event.
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Int("status", status).
		Int("size", c.Writer.Size()).
		Str("ip", c.ClientIP()).
		Dur("took", time.Since(start)).
		Msg("request")
}
