package respond

import (
	"github.com/gin-gonic/gin"

	"github.com/geekpunk/CareCompassConcept/internal/shared/telemetry"
)

// ErrorResponse is the API's error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Error sends the standard error body and aborts the request.
func Error(c *gin.Context, status int, message string) {
	fields := map[string]any{
		"status":     status,
		"message":    message,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	if userID := c.GetString("userId"); userID != "" {
		fields["user_id"] = userID
	}
	telemetry.Error("http.error", fields)

	c.AbortWithStatusJSON(status, ErrorResponse{Error: message})
}
