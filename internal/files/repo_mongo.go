package files

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/geekpunk/CareCompassConcept/internal/shared/telemetry"
)

const filesCollection = "patient_files"

// MongoRepo implements Repo against MongoDB.
type MongoRepo struct {
	db *mongo.Database
}

// NewMongoRepo constructs a MongoRepo.
func NewMongoRepo(db *mongo.Database) *MongoRepo {
	return &MongoRepo{db: db}
}

func (r *MongoRepo) files() *mongo.Collection {
	return r.db.Collection(filesCollection)
}

// List returns every file envelope under the patient. Documents that fail to
// decode are logged and skipped.
func (r *MongoRepo) List(ctx context.Context, patientID string) ([]map[string]any, error) {
	cur, err := r.files().Find(ctx, bson.M{"patientId": patientID})
	if err != nil {
		return nil, fmt.Errorf("list files for %s: %w", patientID, err)
	}
	defer cur.Close(ctx)

	out := []map[string]any{}
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			telemetry.Error("files.decode_failed", map[string]any{"patient_id": patientID, "err": err.Error()})
			continue
		}
		out = append(out, stripBookkeeping(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate files for %s: %w", patientID, err)
	}
	return out, nil
}

// Get returns the envelope for fileID, or ErrNotFound.
func (r *MongoRepo) Get(ctx context.Context, patientID, fileID string) (map[string]any, error) {
	var doc bson.M
	err := r.files().FindOne(ctx, bson.M{"_id": fileKey(patientID, fileID)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get file %s/%s: %w", patientID, fileID, err)
	}
	return stripBookkeeping(doc), nil
}

// Put overwrites the file metadata document.
func (r *MongoRepo) Put(ctx context.Context, patientID, fileID string, envelope map[string]any) error {
	key := fileKey(patientID, fileID)
	doc := make(bson.M, len(envelope)+2)
	for k, v := range envelope {
		doc[k] = v
	}
	doc["_id"] = key
	doc["patientId"] = patientID

	_, err := r.files().ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save file %s: %w", key, err)
	}
	return nil
}

// Delete removes the file metadata document.
func (r *MongoRepo) Delete(ctx context.Context, patientID, fileID string) error {
	_, err := r.files().DeleteOne(ctx, bson.M{"_id": fileKey(patientID, fileID)})
	if err != nil {
		return fmt.Errorf("delete file %s/%s: %w", patientID, fileID, err)
	}
	return nil
}

func fileKey(patientID, fileID string) string {
	return patientID + "/" + fileID
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
