package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geekpunk/CareCompassConcept/internal/shared/server/middleware"
	"github.com/geekpunk/CareCompassConcept/internal/shared/server/respond"
)

// registerMeRoutes attaches the /me endpoint, which echoes the verified
// identity so clients can confirm their token.
func registerMeRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", meHandler)
}

func meHandler(c *gin.Context) {
	identity := middleware.IdentityFromContext(c)
	if identity.UID == "" {
		respond.Error(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	response := gin.H{"userId": identity.UID}
	if identity.Email != "" {
		response["email"] = identity.Email
	}
	respond.JSON(c, http.StatusOK, response)
}
