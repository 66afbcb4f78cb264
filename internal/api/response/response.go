// Package response writes the Ingress API's two response shapes: a bare
// JSON success body (each endpoint defines its own), and the fixed error
// envelope {error, message, details}.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trackforge/engine/internal/apperr"
)

// JSON writes a successful response body verbatim; handlers pass their own
// endpoint-specific struct or gin.H.
func JSON(c *gin.Context, status int, body interface{}) {
	c.JSON(status, body)
}

type errorBody struct {
	Error   string      `json:"error"`
	Message string      `json:"message,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// Error writes the error envelope for an *apperr.Error, or falls back to a
// generic internal error for anything else.
func Error(c *gin.Context, err error) {
	if ae, ok := apperr.As(err); ok {
		c.JSON(ae.Status, errorBody{Error: string(ae.Code), Message: ae.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, errorBody{Error: string(apperr.CodeInternal), Message: err.Error()})
}

// ValidationError writes a 400 with field-level details, used by request
// binding failures before a Job or search request ever reaches its handler.
func ValidationError(c *gin.Context, details interface{}) {
	c.JSON(http.StatusBadRequest, errorBody{
		Error:   string(apperr.CodeValidation),
		Message: "validation failed",
		Details: details,
	})
}
