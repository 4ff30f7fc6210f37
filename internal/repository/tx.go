package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"givetrack/internal/adapters"
)

// MongoTx runs a function inside a multi-document transaction. It needs a
// replica set. Nested calls join the outer transaction.
type MongoTx struct {
	adapter *adapters.AdapterMongo
}

func NewMongoTx(adapter *adapters.AdapterMongo) *MongoTx {
	return &MongoTx{adapter: adapter}
}

func (m *MongoTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	session, err := m.adapter.Client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}
