package chat_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/geekpunk/CareCompassConcept/internal/chat"
	"github.com/geekpunk/CareCompassConcept/internal/files"
	"github.com/geekpunk/CareCompassConcept/internal/llm"
	"github.com/geekpunk/CareCompassConcept/internal/shared/auth"
	"github.com/geekpunk/CareCompassConcept/internal/shared/server/middleware"
)

// scriptedStream replays fixed chunks.
type scriptedStream struct {
	chunks []string
	pos    int
}

func (s *scriptedStream) Recv() (string, error) {
	if s.pos >= len(s.chunks) {
		return "", io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *scriptedStream) Close() error { return nil }

// scriptedClient records the request and replays chunks or fails.
type scriptedClient struct {
	chunks  []string
	err     error
	lastReq llm.Request
}

func (c *scriptedClient) StreamChat(_ context.Context, req llm.Request) (llm.Stream, error) {
	c.lastReq = req
	if c.err != nil {
		return nil, c.err
	}
	return &scriptedStream{chunks: c.chunks}, nil
}

type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, token string) (auth.Identity, error) {
	return auth.Identity{UID: token}, nil
}

func newChatRouter(client llm.Client) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Auth(stubVerifier{}))
	api := r.Group("/api")
	chat.NewHandler(client, &files.Service{}).RegisterRoutes(api)
	return r
}

func postChat(t *testing.T, router *gin.Engine, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer user-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestChatStreamsPlainText(t *testing.T) {
	client := &scriptedClient{chunks: []string{"Hello", ", ", "world"}}
	router := newChatRouter(client)

	resp := postChat(t, router, map[string]any{
		"prompt": "hi",
		"history": []map[string]any{
			{"sender": "user", "text": "earlier question"},
			{"sender": "assistant", "text": "earlier answer"},
		},
		"context": "Patient: Ada",
	})

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("expected text/plain, got %q", ct)
	}
	if resp.Body.String() != "Hello, world" {
		t.Fatalf("unexpected body %q", resp.Body.String())
	}

	if client.lastReq.Prompt != "hi" {
		t.Fatalf("prompt not forwarded: %q", client.lastReq.Prompt)
	}
	if !strings.Contains(client.lastReq.SystemInstruction, "Patient: Ada") {
		t.Fatal("context missing from system instruction")
	}
	if len(client.lastReq.History) != 2 {
		t.Fatalf("expected 2 history turns, got %d", len(client.lastReq.History))
	}
	if client.lastReq.History[0].Role != "user" || client.lastReq.History[1].Role != "model" {
		t.Fatalf("unexpected roles %v", client.lastReq.History)
	}
}

func TestChatUpstreamFailureReturnsApology(t *testing.T) {
	client := &scriptedClient{err: llm.ErrNotConfigured}
	router := newChatRouter(client)

	resp := postChat(t, router, map[string]any{"prompt": "hi"})
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !strings.Contains(body["text"], "trouble connecting") {
		t.Fatalf("unexpected apology %q", body["text"])
	}
}

func TestChatForwardsInlineImage(t *testing.T) {
	client := &scriptedClient{chunks: []string{"ok"}}
	router := newChatRouter(client)

	resp := postChat(t, router, map[string]any{
		"prompt":   "what is this?",
		"image":    base64.StdEncoding.EncodeToString([]byte{9, 9, 9}),
		"mimeType": "image/png",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	img := client.lastReq.Image
	if img == nil {
		t.Fatal("image not forwarded")
	}
	if img.MIMEType != "image/png" || !bytes.Equal(img.Data, []byte{9, 9, 9}) {
		t.Fatalf("unexpected image %+v", img)
	}
}

func TestChatIgnoresUndecodableInlineImage(t *testing.T) {
	client := &scriptedClient{chunks: []string{"ok"}}
	router := newChatRouter(client)

	resp := postChat(t, router, map[string]any{
		"prompt": "hi",
		"image":  "not-base64!!!",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if client.lastReq.Image != nil {
		t.Fatal("expected image to be dropped")
	}
}

func TestChatRejectsMalformedBody(t *testing.T) {
	client := &scriptedClient{}
	router := newChatRouter(client)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer user-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
