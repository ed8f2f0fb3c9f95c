package patients

import "context"

// Repo persists patient and chat envelopes. Both backends store the same
// encrypted envelope form, so ownership checks and the field codec behave
// identically regardless of which one is active.
type Repo interface {
	// ListPatients returns every patient envelope owned by uid.
	ListPatients(ctx context.Context, uid string) ([]map[string]any, error)
	// GetPatient returns the envelope for id, or ErrNotFound.
	GetPatient(ctx context.Context, id string) (map[string]any, error)
	// PutPatient overwrites the whole patient document.
	PutPatient(ctx context.Context, id string, envelope map[string]any) error
	// ListChats returns a patient's chat envelopes, newest first by createdAt.
	ListChats(ctx context.Context, patientID string) ([]map[string]any, error)
	// PutChat overwrites a chat document under its parent patient.
	PutChat(ctx context.Context, patientID, chatID string, envelope map[string]any) error
	// ImportPatient overwrites the patient and all supplied chats as a single
	// all-or-nothing write.
	ImportPatient(ctx context.Context, patientID string, patient map[string]any, chats map[string]map[string]any) error
}
