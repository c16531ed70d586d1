package ginlog

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sgl-project/registry/pkg/logging"
)

const (
	// RequestIDHeader carries a caller supplied request ID; it is echoed back.
	RequestIDHeader = "X-Request-Id"

	requestIDKey     = "request-id"
	requestLoggerKey = "request-logger"
)

// RequestID returns the request ID of c, creating one if the request came
// without an X-Request-Id header.
func RequestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	id := c.GetHeader(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDKey, id)
	return id
}

// Logger returns the request scoped logger set by RequestLogger, or a no-op
// logger outside of it.
func Logger(c *gin.Context) logging.Interface {
	if l, ok := c.Get(requestLoggerKey); ok {
		if logger, ok := l.(logging.Interface); ok {
			return logger
		}
	}
	return logging.NewNopLogger()
}
