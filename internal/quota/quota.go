package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrQuotaExceeded = errors.New("daily session quota exceeded")

// UsageRepository tracks how many sessions each user started per day. The
// counter is incremented atomically with an upsert, so concurrent starts
// cannot exceed the cap by racing the read.
type UsageRepository struct {
	Col      *mongo.Collection
	DailyCap int
}

func NewUsageRepository(db *mongo.Database, dailyCap int) *UsageRepository {
	return &UsageRepository{Col: db.Collection("usage"), DailyCap: dailyCap}
}

type usageDoc struct {
	Count int `bson:"count"`
}

// CheckAndConsume increments today's counter for the user and fails when the
// post-increment count exceeds the daily cap.
func (r *UsageRepository) CheckAndConsume(ctx context.Context, userID string) error {
	day := time.Now().UTC().Format("2006-01-02")
	filter := bson.M{"user_id": userID, "day": day}
	update := bson.M{"$inc": bson.M{"count": 1}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc usageDoc
	if err := r.Col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return err
	}
	if doc.Count > r.DailyCap {
		return fmt.Errorf("%w: %d sessions today (cap %d)", ErrQuotaExceeded, doc.Count, r.DailyCap)
	}
	return nil
}
