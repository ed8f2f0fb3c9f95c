package chat

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geekpunk/CareCompassConcept/internal/files"
	"github.com/geekpunk/CareCompassConcept/internal/llm"
	"github.com/geekpunk/CareCompassConcept/internal/shared/metrics"
	"github.com/geekpunk/CareCompassConcept/internal/shared/server/respond"
	"github.com/geekpunk/CareCompassConcept/internal/shared/telemetry"
)

const apologyText = "I'm having trouble connecting to the service right now. Please check your API key and connection."

// Handler proxies chat turns to the model provider and streams the reply
// back as plain text.
type Handler struct {
	llm   llm.Client
	files *files.Service
}

func NewHandler(client llm.Client, filesSvc *files.Service) *Handler {
	return &Handler{llm: client, files: filesSvc}
}

func (h *Handler) RegisterRoutes(g *gin.RouterGroup) {
	g.POST("/chat", h.chat)
}

type historyEntry struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type chatRequest struct {
	Prompt    string         `json:"prompt"`
	History   []historyEntry `json:"history"`
	Context   string         `json:"context"`
	Image     string         `json:"image"`
	MIMEType  string         `json:"mimeType"`
	FileID    string         `json:"fileId"`
	PatientID string         `json:"patientId"`
}

func (h *Handler) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PatientID != "" {
		c.Set("patientId", req.PatientID)
	}

	history := make([]llm.Message, 0, len(req.History))
	for _, entry := range req.History {
		role := "model"
		if entry.Sender == "user" {
			role = "user"
		}
		history = append(history, llm.Message{Role: role, Text: entry.Text})
	}

	llmReq := llm.Request{
		SystemInstruction: llm.SystemInstruction(req.Context),
		History:           history,
		Prompt:            req.Prompt,
		Image:             h.resolveImage(c, req),
	}

	stream, err := h.llm.StreamChat(c.Request.Context(), llmReq)
	if err != nil {
		telemetry.Error("chat.stream_failed", map[string]any{"err": err.Error()})
		metrics.IncChatError()
		c.JSON(http.StatusInternalServerError, gin.H{"text": apologyText})
		return
	}
	defer stream.Close()

	metrics.IncChatRequest()
	started := metrics.NowMillis()
	defer func() { metrics.ObserveChatStreamDurationMs(metrics.NowMillis() - started) }()

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			// The status line is already out; log and end the stream.
			telemetry.Error("chat.stream_interrupted", map[string]any{"err": err.Error()})
			return
		}
		if _, err := c.Writer.WriteString(chunk); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// resolveImage prefers a stored file reference over inline base64 data. A
// failed file lookup is logged and the text turn proceeds without the image.
func (h *Handler) resolveImage(c *gin.Context, req chatRequest) *llm.Image {
	if req.FileID != "" && req.PatientID != "" && h.files.Enabled() {
		data, mimeType, err := h.files.ResolveImage(c.Request.Context(), req.PatientID, req.FileID)
		if err == nil {
			return &llm.Image{MIMEType: mimeType, Data: data}
		}
		telemetry.Warn("chat.file_resolve_failed", map[string]any{
			"patient_id": req.PatientID,
			"file_id":    req.FileID,
			"err":        err.Error(),
		})
	}
	if req.Image == "" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		telemetry.Warn("chat.inline_image_invalid", map[string]any{"err": err.Error()})
		return nil
	}
	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return &llm.Image{MIMEType: mimeType, Data: data}
}
