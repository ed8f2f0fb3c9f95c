package patients

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/geekpunk/CareCompassConcept/internal/shared/telemetry"
)

const (
	patientsCollection = "patients"
	chatsCollection    = "patient_chats"
)

// MongoRepo implements Repo against MongoDB. Envelopes are stored as-is with
// two bookkeeping fields: _id and, for chats, the parent patientId.
type MongoRepo struct {
	db *mongo.Database
}

// NewMongoRepo constructs a MongoRepo.
func NewMongoRepo(db *mongo.Database) *MongoRepo {
	return &MongoRepo{db: db}
}

func (r *MongoRepo) patients() *mongo.Collection {
	return r.db.Collection(patientsCollection)
}

func (r *MongoRepo) chats() *mongo.Collection {
	return r.db.Collection(chatsCollection)
}

// ListPatients returns every patient envelope owned by uid. Documents that
// fail to decode are logged and skipped rather than failing the whole list.
func (r *MongoRepo) ListPatients(ctx context.Context, uid string) ([]map[string]any, error) {
	cur, err := r.patients().Find(ctx, bson.M{"userId": uid})
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer cur.Close(ctx)

	out := []map[string]any{}
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			telemetry.Error("patients.decode_failed", map[string]any{"err": err.Error()})
			continue
		}
		out = append(out, stripBookkeeping(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}
	return out, nil
}

// GetPatient returns the envelope for id, or ErrNotFound.
func (r *MongoRepo) GetPatient(ctx context.Context, id string) (map[string]any, error) {
	var doc bson.M
	err := r.patients().FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return stripBookkeeping(doc), nil
}

// PutPatient overwrites the whole patient document.
func (r *MongoRepo) PutPatient(ctx context.Context, id string, envelope map[string]any) error {
	doc := toDoc(envelope, bson.M{"_id": id})
	_, err := r.patients().ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save patient %s: %w", id, err)
	}
	return nil
}

// ListChats returns a patient's chat envelopes, newest first by createdAt.
func (r *MongoRepo) ListChats(ctx context.Context, patientID string) ([]map[string]any, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := r.chats().Find(ctx, bson.M{"patientId": patientID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list chats for %s: %w", patientID, err)
	}
	defer cur.Close(ctx)

	out := []map[string]any{}
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			telemetry.Error("chats.decode_failed", map[string]any{"patient_id": patientID, "err": err.Error()})
			continue
		}
		out = append(out, stripBookkeeping(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats for %s: %w", patientID, err)
	}
	return out, nil
}

// PutChat overwrites a chat document under its parent patient.
func (r *MongoRepo) PutChat(ctx context.Context, patientID, chatID string, envelope map[string]any) error {
	key := chatKey(patientID, chatID)
	doc := toDoc(envelope, bson.M{"_id": key, "patientId": patientID})
	_, err := r.chats().ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save chat %s: %w", key, err)
	}
	return nil
}

// ImportPatient overwrites the patient and all supplied chats inside a single
// session transaction so a failure leaves the store untouched.
func (r *MongoRepo) ImportPatient(ctx context.Context, patientID string, patient map[string]any, chats map[string]map[string]any) error {
	sess, err := r.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("start import session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		if err := r.PutPatient(ctx, patientID, patient); err != nil {
			return nil, err
		}
		for chatID, chat := range chats {
			if err := r.PutChat(ctx, patientID, chatID, chat); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("import patient %s: %w", patientID, err)
	}
	return nil
}

func chatKey(patientID, chatID string) string {
	return patientID + "/" + chatID
}

// toDoc merges an envelope with bookkeeping fields without mutating the input.
func toDoc(envelope map[string]any, bookkeeping bson.M) bson.M {
	doc := make(bson.M, len(envelope)+len(bookkeeping))
	for k, v := range envelope {
		doc[k] = v
	}
	for k, v := range bookkeeping {
		doc[k] = v
	}
	return doc
}

func stripBookkeeping(doc bson.M) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "_id" || k == "patientId" {
			continue
		}
		out[k] = v
	}
	return out
}

var _ Repo = (*MongoRepo)(nil)
