package files

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geekpunk/CareCompassConcept/internal/patients"
	"github.com/geekpunk/CareCompassConcept/internal/shared/metrics"
	"github.com/geekpunk/CareCompassConcept/internal/shared/server/middleware"
	"github.com/geekpunk/CareCompassConcept/internal/shared/server/respond"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the file endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(g *gin.RouterGroup) {
	g.POST("/patients/:id/files", h.upload)
	g.GET("/patients/:id/files", h.list)
	g.GET("/files/:patientId/:fileId/download", h.download)
	g.DELETE("/patients/:id/files/:fileId", h.delete)
}

func (h *Handler) upload(c *gin.Context) {
	identity := middleware.IdentityFromContext(c)
	patientID := c.Param("id")
	c.Set("patientId", patientID)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "No file part in the request")
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "Could not read uploaded file")
		return
	}
	defer f.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	metadata, err := h.svc.Upload(c.Request.Context(), identity, patientID, fileHeader.Filename, contentType, f)
	if err != nil {
		h.fail(c, err)
		return
	}
	metrics.IncFileUpload()
	c.JSON(http.StatusOK, metadata)
}

func (h *Handler) list(c *gin.Context) {
	identity := middleware.IdentityFromContext(c)
	patientID := c.Param("id")
	c.Set("patientId", patientID)

	out, err := h.svc.List(c.Request.Context(), identity, patientID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) download(c *gin.Context) {
	identity := middleware.IdentityFromContext(c)
	patientID := c.Param("patientId")
	c.Set("patientId", patientID)

	url, err := h.svc.DownloadURL(c.Request.Context(), identity, patientID, c.Param("fileId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *Handler) delete(c *gin.Context) {
	identity := middleware.IdentityFromContext(c)
	patientID := c.Param("id")
	c.Set("patientId", patientID)

	if err := h.svc.Delete(c.Request.Context(), identity, patientID, c.Param("fileId")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUnsupported):
		respond.Error(c, http.StatusNotImplemented, "File storage is not configured")
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "Invalid file name")
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "File not found")
	case errors.Is(err, patients.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "Patient not found")
	case errors.Is(err, patients.ErrForbidden):
		respond.Error(c, http.StatusForbidden, "Forbidden")
	default:
		respond.Error(c, http.StatusInternalServerError, err.Error())
	}
}
