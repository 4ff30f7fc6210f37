package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"givetrack/internal/adapters"
)

// MongoStore bundles the collections and the transaction runner behind one
// value, matching the method set of MemoryStorage.
type MongoStore struct {
	*MongoUserStorage
	*MongoDonationStorage
	*MongoAchievementStorage
	*MongoTx
}

func NewMongoStore(adapter *adapters.AdapterMongo, log *zap.SugaredLogger) *MongoStore {
	return &MongoStore{
		MongoUserStorage:        NewMongoUserStorage(adapter, log),
		MongoDonationStorage:    NewMongoDonationStorage(adapter),
		MongoAchievementStorage: NewMongoAchievementStorage(adapter, log),
		MongoTx:                 NewMongoTx(adapter),
	}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if err := s.MongoUserStorage.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}
	if err := s.MongoDonationStorage.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("donations indexes: %w", err)
	}
	if err := s.MongoAchievementStorage.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("achievements indexes: %w", err)
	}
	return nil
}
