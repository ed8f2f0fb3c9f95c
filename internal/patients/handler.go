package patients

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geekpunk/CareCompassConcept/internal/shared/metrics"
	"github.com/geekpunk/CareCompassConcept/internal/shared/server/middleware"
	"github.com/geekpunk/CareCompassConcept/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches patient and chat routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/patients", h.list)
	rg.POST("/patients", h.save)
	rg.GET("/patients/:id/chats", h.listChats)
	rg.POST("/patients/:id/chats", h.saveChat)
	rg.GET("/patients/:id/export", h.export)
	rg.POST("/patients/import", h.importBundle)
}

func (h *Handler) list(c *gin.Context) {
	identity := middleware.IdentityFromContext(c)

	records, err := h.Svc.List(c.Request.Context(), identity)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	respond.JSON(c, http.StatusOK, records)
}

func (h *Handler) save(c *gin.Context) {
	identity := middleware.IdentityFromContext(c)

	var patient map[string]any
	if err := c.ShouldBindJSON(&patient); err != nil {
		respond.Error(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if id, ok := patient["id"].(string); ok {
		c.Set("patientId", id)
	}

	if err := h.Svc.Save(c.Request.Context(), identity, patient); err != nil {
		switch {
		case errors.Is(err, ErrMissingID):
			respond.Error(c, http.StatusBadRequest, "Patient ID required")
		case errors.Is(err, ErrForbidden):
			respond.Error(c, http.StatusForbidden, "Forbidden")
		default:
			respond.Error(c, http.StatusInternalServerError, err.Error())
		}
		return
	}
	metrics.IncPatientSave()
	respond.Success(c)
}

func (h *Handler) listChats(c *gin.Context) {
	identity := middleware.IdentityFromContext(c)
	patientID := c.Param("id")
	c.Set("patientId", patientID)

	chats, err := h.Svc.ListChats(c.Request.Context(), identity, patientID)
	if err != nil {
		h.writeOwnershipError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, chats)
}

func (h *Handler) saveChat(c *gin.Context) {
	identity := middleware.IdentityFromContext(c)
	patientID := c.Param("id")
	c.Set("patientId", patientID)

	var chat map[string]any
	if err := c.ShouldBindJSON(&chat); err != nil {
		respond.Error(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.Svc.SaveChat(c.Request.Context(), identity, patientID, chat); err != nil {
		if errors.Is(err, ErrMissingID) {
			respond.Error(c, http.StatusBadRequest, "Chat ID required")
			return
		}
		h.writeOwnershipError(c, err)
		return
	}
	respond.Success(c)
}

func (h *Handler) export(c *gin.Context) {
	identity := middleware.IdentityFromContext(c)
	patientID := c.Param("id")
	c.Set("patientId", patientID)

	bundle, err := h.Svc.Export(c.Request.Context(), identity, patientID)
	if err != nil {
		h.writeOwnershipError(c, err)
		return
	}
	respond.JSON(c, http.StatusOK, bundle)
}

func (h *Handler) importBundle(c *gin.Context) {
	identity := middleware.IdentityFromContext(c)

	var bundle ImportBundle
	if err := c.ShouldBindJSON(&bundle); err != nil || bundle.Patient == nil {
		respond.Error(c, http.StatusBadRequest, "Invalid import data structure")
		return
	}

	count, err := h.Svc.Import(c.Request.Context(), identity, bundle)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingID):
			respond.Error(c, http.StatusBadRequest, "Invalid import data structure")
		case errors.Is(err, ErrForbidden):
			respond.Error(c, http.StatusForbidden, "Forbidden")
		default:
			respond.Error(c, http.StatusInternalServerError, err.Error())
		}
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"status":  "success",
		"message": fmt.Sprintf("Imported patient and %d chats", count),
	})
}

func (h *Handler) writeOwnershipError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "Patient not found")
	case errors.Is(err, ErrForbidden):
		respond.Error(c, http.StatusForbidden, "Forbidden")
	default:
		respond.Error(c, http.StatusInternalServerError, err.Error())
	}
}
