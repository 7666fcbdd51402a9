package utils

import (
	"strings"

	"github.com/gin-gonic/gin"

	"photoman/logger"
)

const maxLoggedBody = 2048

// errorBodyWriter copies 4xx/5xx response bodies into the debug log
type errorBodyWriter struct {
	gin.ResponseWriter
	request string
}

func (w *errorBodyWriter) Write(b []byte) (int, error) {
	if status := w.Status(); status >= 400 {
		log := logger.Get()
		event := log.Debug().Int("status", status).Str("request", w.request)
		if strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") {
			// screens are long, their size is enough
			event = event.Int("html_bytes", len(b))
		} else if len(b) > maxLoggedBody {
			event = event.Bytes("body", b[:maxLoggedBody]).Bool("truncated", true)
		} else {
			event = event.Bytes("body", b)
		}
		event.Msg("error response")
	}
	return w.ResponseWriter.Write(b)
}

// ErrorLogMiddleware is for DEBUG_MODE only. It sees the compressed body
// when gzip runs before it.
func ErrorLogMiddleware(c *gin.Context) {
	c.Writer = &errorBodyWriter{
		ResponseWriter: c.Writer,
		request:        c.Request.Method + " " + c.Request.URL.Path,
	}
	c.Next()
}
