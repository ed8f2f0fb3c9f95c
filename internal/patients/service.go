package patients

import (
	"context"
	"fmt"
	"time"

	"github.com/geekpunk/CareCompassConcept/internal/shared/auth"
	"github.com/geekpunk/CareCompassConcept/internal/shared/crypto"
	"github.com/geekpunk/CareCompassConcept/internal/shared/telemetry"
)

// ExportVersion tags export bundles so future format changes stay detectable.
const ExportVersion = 1

// ExportBundle is the portable form of a patient and its chats.
type ExportBundle struct {
	Version    int              `json:"version"`
	ExportedAt string           `json:"exportedAt"`
	Patient    map[string]any   `json:"patient"`
	Chats      []map[string]any `json:"chats"`
}

// ImportBundle is the accepted import payload. Chats without an id are
// rejected before anything is written.
type ImportBundle struct {
	Patient map[string]any   `json:"patient"`
	Chats   []map[string]any `json:"chats"`
}

// Service owns the business rules around patient records: ownership checks,
// envelope encryption and the export/import format.
type Service struct {
	Repo  Repo
	Codec *crypto.Codec
}

// List returns every decrypted patient record owned by the caller.
func (s *Service) List(ctx context.Context, identity auth.Identity) ([]map[string]any, error) {
	envelopes, err := s.Repo.ListPatients(ctx, identity.UID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(envelopes))
	for _, env := range envelopes {
		out = append(out, s.Codec.DecryptRecord(env))
	}
	return out, nil
}

// Save encrypts and overwrites the whole patient document. Overwriting a
// record owned by someone else is forbidden.
func (s *Service) Save(ctx context.Context, identity auth.Identity, patient map[string]any) error {
	id, ok := patient["id"].(string)
	if !ok || id == "" {
		return ErrMissingID
	}

	existing, err := s.Repo.GetPatient(ctx, id)
	if err != nil && err != ErrNotFound {
		return err
	}
	if existing != nil && existing["userId"] != identity.UID {
		return ErrForbidden
	}

	patient["userId"] = identity.UID
	telemetry.Debug("patients.save", map[string]any{"patient_id": id, "user_id": identity.UID})
	return s.Repo.PutPatient(ctx, id, s.Codec.EncryptRecord(patient))
}

// Authorize loads the patient envelope and verifies the caller owns it.
func (s *Service) Authorize(ctx context.Context, patientID string, identity auth.Identity) (map[string]any, error) {
	env, err := s.Repo.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if env["userId"] != identity.UID {
		return nil, ErrForbidden
	}
	return env, nil
}

// ListChats returns the patient's decrypted chats, newest first.
func (s *Service) ListChats(ctx context.Context, identity auth.Identity, patientID string) ([]map[string]any, error) {
	if _, err := s.Authorize(ctx, patientID, identity); err != nil {
		return nil, err
	}
	envelopes, err := s.Repo.ListChats(ctx, patientID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(envelopes))
	for _, env := range envelopes {
		out = append(out, s.Codec.DecryptRecord(env))
	}
	return out, nil
}

// SaveChat encrypts and overwrites a chat under its parent patient.
func (s *Service) SaveChat(ctx context.Context, identity auth.Identity, patientID string, chat map[string]any) error {
	chatID, ok := chat["id"].(string)
	if !ok || chatID == "" {
		return ErrMissingID
	}
	if _, err := s.Authorize(ctx, patientID, identity); err != nil {
		return err
	}
	return s.Repo.PutChat(ctx, patientID, chatID, s.Codec.EncryptRecord(chat))
}

// Export bundles the decrypted patient and all its chats.
func (s *Service) Export(ctx context.Context, identity auth.Identity, patientID string) (ExportBundle, error) {
	env, err := s.Authorize(ctx, patientID, identity)
	if err != nil {
		return ExportBundle{}, err
	}

	chats, err := s.Repo.ListChats(ctx, patientID)
	if err != nil {
		return ExportBundle{}, err
	}
	decrypted := make([]map[string]any, 0, len(chats))
	for _, c := range chats {
		decrypted = append(decrypted, s.Codec.DecryptRecord(c))
	}

	return ExportBundle{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Patient:    s.Codec.DecryptRecord(env),
		Chats:      decrypted,
	}, nil
}

// Import overwrites the patient and all supplied chats as one batch, forcing
// ownership to the importing caller regardless of the bundle's userId.
// It returns the number of imported chats.
func (s *Service) Import(ctx context.Context, identity auth.Identity, bundle ImportBundle) (int, error) {
	if bundle.Patient == nil {
		return 0, fmt.Errorf("%w: bundle has no patient", ErrMissingID)
	}
	patientID, ok := bundle.Patient["id"].(string)
	if !ok || patientID == "" {
		return 0, ErrMissingID
	}

	existing, err := s.Repo.GetPatient(ctx, patientID)
	if err != nil && err != ErrNotFound {
		return 0, err
	}
	if existing != nil && existing["userId"] != identity.UID {
		return 0, ErrForbidden
	}

	bundle.Patient["userId"] = identity.UID
	chats := make(map[string]map[string]any, len(bundle.Chats))
	for _, chat := range bundle.Chats {
		chatID, ok := chat["id"].(string)
		if !ok || chatID == "" {
			return 0, ErrMissingID
		}
		chat["userId"] = identity.UID
		chats[chatID] = s.Codec.EncryptRecord(chat)
	}

	err = s.Repo.ImportPatient(ctx, patientID, s.Codec.EncryptRecord(bundle.Patient), chats)
	if err != nil {
		return 0, err
	}
	return len(chats), nil
}
