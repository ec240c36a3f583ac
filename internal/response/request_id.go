package response

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// ContextKeyRequestID is the Gin context key for the request ID.
	ContextKeyRequestID = "request_id"

	headerRequestID = "X-Request-ID"
)

// RequestIDMiddleware tags every request with an ID. A client-supplied
// X-Request-ID is kept only when it is a UUID so log fields stay bounded.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := uuid.New().String()
		if given, err := uuid.Parse(c.GetHeader(headerRequestID)); err == nil {
			reqID = given.String()
		}
		c.Set(ContextKeyRequestID, reqID)
		c.Header(headerRequestID, reqID)
		c.Next()
	}
}

// RequestID returns the ID assigned by RequestIDMiddleware, or "".
func RequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}
