package utils

import (
	"github.com/gin-gonic/gin"

	"recognition-server/logger"
)

type errorLogWriter struct {
	gin.ResponseWriter
	gc *gin.Context
}

func (w errorLogWriter) Write(b []byte) (int, error) {
	status := w.gc.Writer.Status()
	if status >= 400 {
		logger.FromContext(w.gc.Request.Context()).
			WithField("status", status).
			Warnf("Error response body: %s", string(b))
	}
	return w.ResponseWriter.Write(b)
}

// ErrorLogMiddleware logs the body of every 4xx/5xx response.
// It must be installed after gzip (or without it) to see plain bodies.
func ErrorLogMiddleware(c *gin.Context) {
	c.Writer = &errorLogWriter{gc: c, ResponseWriter: c.Writer}
	c.Next()
}
