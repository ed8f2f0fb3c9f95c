package files

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/geekpunk/CareCompassConcept/internal/patients"
	"github.com/geekpunk/CareCompassConcept/internal/shared/auth"
	"github.com/geekpunk/CareCompassConcept/internal/shared/crypto"
	"github.com/geekpunk/CareCompassConcept/internal/shared/storage/object"
	"github.com/geekpunk/CareCompassConcept/internal/shared/telemetry"
	"github.com/geekpunk/CareCompassConcept/internal/shared/util"
)

// DownloadURLExpiry bounds how long an issued download link stays valid.
const DownloadURLExpiry = 15 * time.Minute

// Service brokers file attachments: bytes go to the object store, encrypted
// metadata to the document store. Repo and Store are both nil in the
// in-memory fallback mode, where every operation reports ErrUnsupported.
type Service struct {
	Repo     Repo
	Store    object.ObjectStore
	Codec    *crypto.Codec
	Patients *patients.Service
}

// Enabled reports whether blob storage is available.
func (s *Service) Enabled() bool {
	return s != nil && s.Repo != nil && s.Store != nil
}

// Upload ownership-checks the parent patient, stores the bytes and writes an
// encrypted metadata record. It returns the decrypted metadata.
func (s *Service) Upload(ctx context.Context, identity auth.Identity, patientID, filename, contentType string, r io.Reader) (map[string]any, error) {
	if !s.Enabled() {
		return nil, ErrUnsupported
	}
	sanitized, err := util.SanitizeFileName(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, err := s.Patients.Authorize(ctx, patientID, identity); err != nil {
		return nil, err
	}

	storagePath := fmt.Sprintf("patients/%s/%s", patientID, sanitized)
	size, err := s.Store.Save(ctx, storagePath, contentType, r)
	if err != nil {
		return nil, err
	}

	fileID := uuid.NewString()
	metadata := map[string]any{
		"id":         fileID,
		"name":       filename,
		"type":       contentType,
		"size":       size,
		"path":       storagePath,
		"uploadedAt": time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.Repo.Put(ctx, patientID, fileID, s.Codec.EncryptRecord(metadata)); err != nil {
		return nil, err
	}
	return metadata, nil
}

// List returns the patient's decrypted file metadata records.
func (s *Service) List(ctx context.Context, identity auth.Identity, patientID string) ([]map[string]any, error) {
	if !s.Enabled() {
		return nil, ErrUnsupported
	}
	if _, err := s.Patients.Authorize(ctx, patientID, identity); err != nil {
		return nil, err
	}

	envelopes, err := s.Repo.List(ctx, patientID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(envelopes))
	for _, env := range envelopes {
		out = append(out, s.Codec.DecryptRecord(env))
	}
	return out, nil
}

// DownloadURL issues a time-limited signed URL for the file's blob.
func (s *Service) DownloadURL(ctx context.Context, identity auth.Identity, patientID, fileID string) (string, error) {
	if !s.Enabled() {
		return "", ErrUnsupported
	}
	if _, err := s.Patients.Authorize(ctx, patientID, identity); err != nil {
		return "", err
	}

	metadata, err := s.metadata(ctx, patientID, fileID)
	if err != nil {
		return "", err
	}
	path, _ := metadata["path"].(string)
	if path == "" {
		return "", fmt.Errorf("file %s/%s has no storage path", patientID, fileID)
	}
	return s.Store.PresignGet(ctx, path, DownloadURLExpiry)
}

// Delete removes the blob, tolerating blob-delete failures, then removes the
// metadata record. The metadata delete is the operation of record.
func (s *Service) Delete(ctx context.Context, identity auth.Identity, patientID, fileID string) error {
	if !s.Enabled() {
		return ErrUnsupported
	}
	if _, err := s.Patients.Authorize(ctx, patientID, identity); err != nil {
		return err
	}

	metadata, err := s.metadata(ctx, patientID, fileID)
	if err != nil {
		return err
	}
	if path, _ := metadata["path"].(string); path != "" {
		if err := s.Store.Delete(ctx, path); err != nil {
			telemetry.Warn("files.blob_delete_failed", map[string]any{
				"patient_id": patientID,
				"file_id":    fileID,
				"err":        err.Error(),
			})
		}
	}
	return s.Repo.Delete(ctx, patientID, fileID)
}

// ResolveImage loads a stored file's bytes and content type for the chat
// proxy. The caller has already been authenticated; the patient ownership
// check happened when the file pointer was issued.
func (s *Service) ResolveImage(ctx context.Context, patientID, fileID string) ([]byte, string, error) {
	if !s.Enabled() {
		return nil, "", ErrUnsupported
	}
	metadata, err := s.metadata(ctx, patientID, fileID)
	if err != nil {
		return nil, "", err
	}
	path, _ := metadata["path"].(string)
	if path == "" {
		return nil, "", fmt.Errorf("file %s/%s has no storage path", patientID, fileID)
	}

	rc, err := s.Store.Open(ctx, path)
	if err != nil {
		return nil, "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", err
	}
	mimeType, _ := metadata["type"].(string)
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return data, mimeType, nil
}

func (s *Service) metadata(ctx context.Context, patientID, fileID string) (map[string]any, error) {
	env, err := s.Repo.Get(ctx, patientID, fileID)
	if err != nil {
		return nil, err
	}
	return s.Codec.DecryptRecord(env), nil
}
