package patients

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryRepo is the dev/test fallback used when no document database is
// configured. It stores the same envelopes as the Mongo backend so the two
// are interchangeable for the endpoints, including ordering guarantees.
type MemoryRepo struct {
	mu       sync.RWMutex
	patients map[string]map[string]any
	chats    map[string]map[string]map[string]any // patientID -> chatID -> envelope
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		patients: make(map[string]map[string]any),
		chats:    make(map[string]map[string]map[string]any),
	}
}

// ListPatients returns every patient envelope owned by uid.
func (r *MemoryRepo) ListPatients(ctx context.Context, uid string) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []map[string]any{}
	for _, env := range r.patients {
		if env["userId"] == uid {
			out = append(out, copyEnvelope(env))
		}
	}
	return out, nil
}

// GetPatient returns the envelope for id, or ErrNotFound.
func (r *MemoryRepo) GetPatient(ctx context.Context, id string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	env, ok := r.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEnvelope(env), nil
}

// PutPatient overwrites the whole patient document.
func (r *MemoryRepo) PutPatient(ctx context.Context, id string, envelope map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.patients[id] = copyEnvelope(envelope)
	return nil
}

// ListChats returns a patient's chat envelopes, newest first by createdAt,
// mirroring the document database's descending sort.
func (r *MemoryRepo) ListChats(ctx context.Context, patientID string) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []map[string]any{}
	for _, env := range r.chats[patientID] {
		out = append(out, copyEnvelope(env))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return createdAtLess(out[j]["createdAt"], out[i]["createdAt"])
	})
	return out, nil
}

// PutChat overwrites a chat document under its parent patient.
func (r *MemoryRepo) PutChat(ctx context.Context, patientID, chatID string, envelope map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.putChatLocked(patientID, chatID, envelope)
	return nil
}

// ImportPatient applies the whole bundle under one lock.
func (r *MemoryRepo) ImportPatient(ctx context.Context, patientID string, patient map[string]any, chats map[string]map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.patients[patientID] = copyEnvelope(patient)
	for chatID, chat := range chats {
		r.putChatLocked(patientID, chatID, chat)
	}
	return nil
}

func (r *MemoryRepo) putChatLocked(patientID, chatID string, envelope map[string]any) {
	if r.chats[patientID] == nil {
		r.chats[patientID] = make(map[string]map[string]any)
	}
	r.chats[patientID][chatID] = copyEnvelope(envelope)
}

func copyEnvelope(env map[string]any) map[string]any {
	out := make(map[string]any, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

// createdAtLess orders caller-supplied timestamps. Values of the same type
// compare naturally; mixed types fall back to their string forms.
func createdAtLess(a, b any) bool {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return av < bv
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return av < bv
		}
	case int64:
		if bv, ok := b.(int64); ok {
			return av < bv
		}
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

var _ Repo = (*MemoryRepo)(nil)
