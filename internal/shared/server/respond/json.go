package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSON writes a JSON response with the given status.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// Success writes the standard write-acknowledgement body.
func Success(c *gin.Context) {
	JSON(c, http.StatusOK, gin.H{"status": "success"})
}
