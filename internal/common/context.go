// internal/common/context.go
package common

import (
	"github.com/gin-gonic/gin"
)

// GetRequestIDFromContext reads the per-request ID set by
// middleware.RequestID, used in handler-level error logging.
func GetRequestIDFromContext(c *gin.Context) (string, bool) {
	requestID, exists := c.Get("request_id")
	if !exists {
		return "", false
	}
	return requestID.(string), true
}

// SetRequestIDInContext stores the request ID. Exposed for tests that build
// a *gin.Context without going through the middleware chain.
func SetRequestIDInContext(c *gin.Context, requestID string) {
	c.Set("request_id", requestID)
}
