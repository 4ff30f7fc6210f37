package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"givetrack/internal/adapters"
	"givetrack/internal/domain/achievement"
)

const achievementsCollection = "achievements"

type MongoAchievementStorage struct {
	adapter *adapters.AdapterMongo
	log     *zap.SugaredLogger
}

func NewMongoAchievementStorage(adapter *adapters.AdapterMongo, log *zap.SugaredLogger) *MongoAchievementStorage {
	return &MongoAchievementStorage{adapter: adapter, log: log}
}

func (m *MongoAchievementStorage) collection() *mongo.Collection {
	return m.adapter.Database.Collection(achievementsCollection)
}

func (m *MongoAchievementStorage) EnsureIndexes(ctx context.Context) error {
	_, err := m.collection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// ListAchievements returns the catalog in catalog order. Documents that do
// not validate are logged and skipped.
func (m *MongoAchievementStorage) ListAchievements(ctx context.Context) ([]achievement.Definition, error) {
	cur, err := m.collection().Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	var defs []achievement.Definition
	if err = cur.All(ctx, &defs); err != nil {
		return nil, err
	}

	out := make([]achievement.Definition, 0, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			m.log.Warnw("skipping invalid achievement definition", "id", def.ID, "error", err)
			continue
		}
		out = append(out, def)
	}
	achievement.SortCatalog(out)
	return out, nil
}

func (m *MongoAchievementStorage) RecordUnlocks(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := m.collection().UpdateMany(ctx,
		bson.M{"id": bson.M{"$in": ids}},
		bson.M{
			"$inc": bson.M{"statistics.total_unlocked": 1},
			"$set": bson.M{"statistics.last_unlocked_at": at},
		})
	return err
}

// UpsertAchievements seeds definitions by id. Statistics are only written on insert.
func (m *MongoAchievementStorage) UpsertAchievements(ctx context.Context, defs []achievement.Definition) error {
	models := make([]mongo.WriteModel, 0, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return fmt.Errorf("achievement %s: %w", def.ID, err)
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"id": def.ID}).
			SetUpsert(true).
			SetUpdate(bson.M{
				"$set": bson.M{
					"name":        def.Name,
					"description": def.Description,
					"icon":        def.Icon,
					"category":    def.Category,
					"rarity":      def.Rarity,
					"criteria":    def.Criteria,
					"is_active":   def.IsActive,
					"is_visible":  def.IsVisible,
					"metadata":    def.Metadata,
				},
				"$setOnInsert": bson.M{"statistics": achievement.Statistics{}},
			}))
	}
	if len(models) == 0 {
		return nil
	}
	_, err := m.collection().BulkWrite(ctx, models)
	return err
}
