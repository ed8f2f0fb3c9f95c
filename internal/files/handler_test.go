package files_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geekpunk/CareCompassConcept/internal/files"
	"github.com/geekpunk/CareCompassConcept/internal/patients"
	"github.com/geekpunk/CareCompassConcept/internal/shared/auth"
	"github.com/geekpunk/CareCompassConcept/internal/shared/crypto"
	"github.com/geekpunk/CareCompassConcept/internal/shared/server/middleware"
)

// memFileRepo is an in-test implementation of files.Repo.
type memFileRepo struct {
	mu   sync.Mutex
	docs map[string]map[string]any
}

func newMemFileRepo() *memFileRepo {
	return &memFileRepo{docs: map[string]map[string]any{}}
}

func (r *memFileRepo) key(patientID, fileID string) string {
	return patientID + "/" + fileID
}

func (r *memFileRepo) List(_ context.Context, patientID string) ([]map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []map[string]any
	for k, doc := range r.docs {
		if len(k) > len(patientID) && k[:len(patientID)+1] == patientID+"/" {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (r *memFileRepo) Get(_ context.Context, patientID, fileID string) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[r.key(patientID, fileID)]
	if !ok {
		return nil, files.ErrNotFound
	}
	return doc, nil
}

func (r *memFileRepo) Put(_ context.Context, patientID, fileID string, envelope map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[r.key(patientID, fileID)] = envelope
	return nil
}

func (r *memFileRepo) Delete(_ context.Context, patientID, fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, r.key(patientID, fileID))
	return nil
}

// memObjectStore is an in-test object store keyed by storage path. It
// records the expiry passed to PresignGet so tests can pin the URL lifetime.
type memObjectStore struct {
	mu          sync.Mutex
	blobs       map[string][]byte
	lastExpires time.Duration
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{blobs: map[string][]byte{}}
}

func (s *memObjectStore) Save(_ context.Context, key, _ string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = data
	return int64(len(data)), nil
}

func (s *memObjectStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, fmt.Errorf("missing blob %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memObjectStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

func (s *memObjectStore) PresignGet(_ context.Context, key string, expires time.Duration) (string, error) {
	s.mu.Lock()
	s.lastExpires = expires
	s.mu.Unlock()
	return "https://signed.example.com/" + key, nil
}

type fixture struct {
	router *gin.Engine
	store  *memObjectStore
	repo   *memFileRepo
	svc    *files.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	codec, err := crypto.NewCodec(crypto.GenerateKey())
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	patientSvc := &patients.Service{Repo: patients.NewMemoryRepo(), Codec: codec}
	if err := patientSvc.Save(context.Background(), auth.Identity{UID: "user-1"}, map[string]any{"id": "p1", "name": "Ada"}); err != nil {
		t.Fatalf("seed patient: %v", err)
	}

	repo := newMemFileRepo()
	store := newMemObjectStore()
	svc := &files.Service{Repo: repo, Store: store, Codec: codec, Patients: patientSvc}

	r := gin.New()
	r.Use(middleware.Auth(stubVerifier{}))
	api := r.Group("/api")
	files.NewHandler(svc).RegisterRoutes(api)
	return &fixture{router: r, store: store, repo: repo, svc: svc}
}

// stubVerifier treats the raw bearer value as the uid.
type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, token string) (auth.Identity, error) {
	return auth.Identity{UID: token, Email: token + "@example.com"}, nil
}

func upload(t *testing.T, f *fixture, uid, patientID, filename, content string) map[string]any {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fw, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/patients/"+patientID+"/files", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+uid)
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var metadata map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return metadata
}

func do(f *fixture, method, path, uid string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+uid)
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	return resp
}

func TestUploadStoresBlobAndMetadata(t *testing.T) {
	f := newFixture(t)

	metadata := upload(t, f, "user-1", "p1", "scan.png", "fake-png-bytes")
	if metadata["id"] == "" || metadata["id"] == nil {
		t.Fatalf("expected generated file id, got %v", metadata["id"])
	}
	if metadata["name"] != "scan.png" {
		t.Fatalf("unexpected name %v", metadata["name"])
	}
	if metadata["path"] != "patients/p1/scan.png" {
		t.Fatalf("unexpected storage path %v", metadata["path"])
	}
	if size, ok := metadata["size"].(float64); !ok || int(size) != len("fake-png-bytes") {
		t.Fatalf("unexpected size %v", metadata["size"])
	}
	if _, ok := f.store.blobs["patients/p1/scan.png"]; !ok {
		t.Fatal("blob was not stored")
	}

	// Metadata is encrypted at rest; its name field must not be readable.
	env, err := f.repo.Get(context.Background(), "p1", metadata["id"].(string))
	if err != nil {
		t.Fatalf("get envelope: %v", err)
	}
	if env["name"] == "scan.png" {
		t.Fatal("metadata stored in plaintext")
	}
}

func TestUploadRejectsTraversalNames(t *testing.T) {
	f := newFixture(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fw, _ := writer.CreateFormFile("file", "../../etc/passwd")
	fw.Write([]byte("x"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/patients/p1/files", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer user-1")
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for traversal name, got %d", resp.Code)
	}
}

func TestListReturnsDecryptedMetadata(t *testing.T) {
	f := newFixture(t)
	upload(t, f, "user-1", "p1", "a.txt", "aaa")
	upload(t, f, "user-1", "p1", "b.txt", "bbb")

	resp := do(f, http.MethodGet, "/api/patients/p1/files", "user-1")
	if resp.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.Code)
	}
	var got []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 files, got %d", len(got))
	}
	names := map[any]bool{got[0]["name"]: true, got[1]["name"]: true}
	if !names["a.txt"] || !names["b.txt"] {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestDownloadReturnsSignedURL(t *testing.T) {
	f := newFixture(t)
	metadata := upload(t, f, "user-1", "p1", "scan.png", "bytes")
	fileID := metadata["id"].(string)

	resp := do(f, http.MethodGet, "/api/files/p1/"+fileID+"/download", "user-1")
	if resp.Code != http.StatusOK {
		t.Fatalf("download: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode download: %v", err)
	}
	if body["url"] != "https://signed.example.com/patients/p1/scan.png" {
		t.Fatalf("unexpected url %q", body["url"])
	}
	if f.store.lastExpires != 15*time.Minute {
		t.Fatalf("expected 15 minute link validity, got %v", f.store.lastExpires)
	}
}

func TestDownloadUnknownFileIs404(t *testing.T) {
	f := newFixture(t)

	resp := do(f, http.MethodGet, "/api/files/p1/ghost/download", "user-1")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["error"] != "File not found" {
		t.Fatalf("unexpected error message %q", body["error"])
	}
}

func TestDeleteRemovesBlobAndMetadata(t *testing.T) {
	f := newFixture(t)
	metadata := upload(t, f, "user-1", "p1", "scan.png", "bytes")
	fileID := metadata["id"].(string)

	resp := do(f, http.MethodDelete, "/api/patients/p1/files/"+fileID, "user-1")
	if resp.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", resp.Code)
	}
	var body map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode delete: %v", err)
	}
	if !body["success"] {
		t.Fatalf("expected success true, got %v", body)
	}
	if _, ok := f.store.blobs["patients/p1/scan.png"]; ok {
		t.Fatal("blob still present after delete")
	}
	if _, err := f.repo.Get(context.Background(), "p1", fileID); err == nil {
		t.Fatal("metadata still present after delete")
	}
}

func TestFileAccessRequiresOwnership(t *testing.T) {
	f := newFixture(t)
	upload(t, f, "user-1", "p1", "scan.png", "bytes")

	resp := do(f, http.MethodGet, "/api/patients/p1/files", "intruder")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign list, got %d", resp.Code)
	}
}

func TestResolveImageReturnsBytesAndType(t *testing.T) {
	f := newFixture(t)
	metadata := upload(t, f, "user-1", "p1", "chart.png", "image-bytes")
	fileID := metadata["id"].(string)

	data, mimeType, err := f.svc.ResolveImage(context.Background(), "p1", fileID)
	if err != nil {
		t.Fatalf("ResolveImage: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Fatalf("unexpected bytes %q", data)
	}
	if mimeType != "application/octet-stream" {
		t.Fatalf("unexpected mime type %q", mimeType)
	}

	if _, _, err := f.svc.ResolveImage(context.Background(), "p1", "ghost"); err == nil {
		t.Fatal("expected error for unknown file")
	}
}
