package journal

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"poshook/internal/constants"
	"poshook/pkg/migrations"
)

type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection(migrations.JournalCollection)}
}

func (s *MongoStore) Name() string {
	return constants.JournalBackendMongoDB
}

func (s *MongoStore) Save(ctx context.Context, rec Record) error {
	filter := bson.M{"_id": rec.AttemptID}
	if !rec.Terminal() {
		filter["outcome"] = bson.M{"$nin": bson.A{"delivered", "abandoned"}}
	}

	_, err := s.collection.ReplaceOne(ctx, filter, rec, options.Replace().SetUpsert(true))
	if err != nil {
		// A pending write racing a terminal one hits the _id index on
		// upsert; the terminal record wins.
		if !rec.Terminal() && mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to upsert delivery attempt: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, attemptID string) (*Record, error) {
	var rec Record
	err := s.collection.FindOne(ctx, bson.M{"_id": attemptID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(attemptID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find delivery attempt: %w", err)
	}
	return &rec, nil
}
