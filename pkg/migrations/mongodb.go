package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const JournalCollection = "delivery_attempts"

// EnsureJournalIndexes creates the indexes used by the delivery journal.
// ttl > 0 also expires records that many seconds after their last update.
func EnsureJournalIndexes(ctx context.Context, db *mongo.Database, ttlSeconds int32) error {
	collection := db.Collection(JournalCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "entity_type", Value: 1}, {Key: "entity_id", Value: 1}},
			Options: options.Index().SetName("idx_delivery_attempts_entity"),
		},
		{
			Keys:    bson.D{{Key: "outcome", Value: 1}, {Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_delivery_attempts_outcome_updated"),
		},
	}
	if ttlSeconds > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetName("idx_delivery_attempts_ttl").SetExpireAfterSeconds(ttlSeconds),
		})
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
