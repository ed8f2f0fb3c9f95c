package files

import "context"

// Repo persists encrypted file-metadata envelopes scoped under a patient.
// The binary payloads live in the object store; only metadata is kept here.
type Repo interface {
	List(ctx context.Context, patientID string) ([]map[string]any, error)
	// Get returns the envelope for fileID, or ErrNotFound.
	Get(ctx context.Context, patientID, fileID string) (map[string]any, error)
	Put(ctx context.Context, patientID, fileID string, envelope map[string]any) error
	Delete(ctx context.Context, patientID, fileID string) error
}
