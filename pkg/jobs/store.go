// Package jobs connects a run to the surrounding pipeline: payload
// documents stored in MongoDB and job status published through Redis.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/df07/go-batch-renderer/pkg/config"
	"github.com/df07/go-batch-renderer/pkg/payload"
)

// ErrDocumentNotFound is returned when no stored payload has the requested id
var ErrDocumentNotFound = errors.New("payload document not found")

// Store reads payload documents from a MongoDB collection
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// OpenStore connects to MongoDB
func OpenStore(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	return &Store{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// Close disconnects from MongoDB
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Fetch loads the document with the given _id and returns it as a payload.
// Hex ids match either an ObjectID or a plain string _id.
func (s *Store) Fetch(ctx context.Context, id string) (payload.Payload, error) {
	filter := bson.M{"_id": id}
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		filter = bson.M{"_id": bson.M{"$in": bson.A{oid, id}}}
	}

	var doc bson.M
	err := s.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return payload.Payload{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	if err != nil {
		return payload.Payload{}, fmt.Errorf("loading payload %s: %w", id, err)
	}

	raw, err := DocumentJSON(doc)
	if err != nil {
		return payload.Payload{}, fmt.Errorf("encoding payload %s: %w", id, err)
	}
	return payload.FromJSON(id, raw), nil
}

// DocumentJSON renders a stored document as plain JSON: every ObjectID, at
// any depth, becomes its hex string and numbers are written in relaxed form
func DocumentJSON(doc bson.M) ([]byte, error) {
	return bson.MarshalExtJSON(plainIDs(doc), false, false)
}

// plainIDs replaces ObjectIDs inside v with their hex strings, in place
func plainIDs(v any) any {
	switch v := v.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case primitive.M:
		for k, e := range v {
			v[k] = plainIDs(e)
		}
	case map[string]any:
		for k, e := range v {
			v[k] = plainIDs(e)
		}
	case primitive.D:
		for i := range v {
			v[i].Value = plainIDs(v[i].Value)
		}
	case primitive.A:
		for i, e := range v {
			v[i] = plainIDs(e)
		}
	case []any:
		for i, e := range v {
			v[i] = plainIDs(e)
		}
	}
	return v
}
