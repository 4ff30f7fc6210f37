package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"givetrack/internal/adapters"
	"givetrack/internal/domain/donation"
	errs "givetrack/internal/errors"
)

const donationsCollection = "donations"

type MongoDonationStorage struct {
	adapter *adapters.AdapterMongo
}

func NewMongoDonationStorage(adapter *adapters.AdapterMongo) *MongoDonationStorage {
	return &MongoDonationStorage{adapter: adapter}
}

func (m *MongoDonationStorage) collection() *mongo.Collection {
	return m.adapter.Database.Collection(donationsCollection)
}

func (m *MongoDonationStorage) EnsureIndexes(ctx context.Context) error {
	_, err := m.collection().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "referral_code", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	return err
}

func (m *MongoDonationStorage) InsertDonation(ctx context.Context, d donation.Donation) error {
	_, err := m.collection().InsertOne(ctx, d)
	if mongo.IsDuplicateKeyError(err) {
		return errs.ErrConflict
	}
	return err
}

func (m *MongoDonationStorage) GetDonation(ctx context.Context, id string) (donation.Donation, error) {
	var d donation.Donation
	err := m.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return donation.Donation{}, errs.ErrDonationNotFound
	}
	return d, err
}

// SetDonationStatus is the only mutation a donation record allows.
func (m *MongoDonationStorage) SetDonationStatus(ctx context.Context, id string, status donation.Status) error {
	res, err := m.collection().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"status": status}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errs.ErrDonationNotFound
	}
	return nil
}

func filterDoc(f donation.Filter) bson.M {
	doc := bson.M{}
	if f.UserID != "" {
		doc["user_id"] = f.UserID
	}
	if f.ReferralCode != "" {
		doc["referral_code"] = f.ReferralCode
	}
	if f.Status != "" {
		doc["status"] = f.Status
	}
	if f.Source != "" {
		doc["source"] = f.Source
	}
	created := bson.M{}
	if !f.From.IsZero() {
		created["$gte"] = f.From
	}
	if !f.To.IsZero() {
		created["$lte"] = f.To
	}
	if len(created) > 0 {
		doc["created_at"] = created
	}
	return doc
}

func (m *MongoDonationStorage) ListDonations(ctx context.Context, f donation.Filter, skip, limit int) ([]donation.Donation, int64, error) {
	filter := filterDoc(f)
	total, err := m.collection().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(skip))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := m.collection().Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	out := make([]donation.Donation, 0)
	if err = cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (m *MongoDonationStorage) DonationStats(ctx context.Context, f donation.Filter) (donation.Stats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filterDoc(f)}},
		{{Key: "$group", Value: bson.M{
			"_id":             nil,
			"total_amount":    bson.M{"$sum": "$amount"},
			"total_donations": bson.M{"$sum": 1},
			"average_amount":  bson.M{"$avg": "$amount"},
			"max_amount":      bson.M{"$max": "$amount"},
			"min_amount":      bson.M{"$min": "$amount"},
		}}},
	}
	cur, err := m.collection().Aggregate(ctx, pipeline)
	if err != nil {
		return donation.Stats{}, err
	}
	var rows []donation.Stats
	if err = cur.All(ctx, &rows); err != nil {
		return donation.Stats{}, err
	}
	if len(rows) == 0 {
		return donation.Stats{}, nil
	}
	return rows[0], nil
}

func (m *MongoDonationStorage) DailyTotals(ctx context.Context, userID string, since time.Time) ([]donation.DayTotal, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filterDoc(donation.Filter{UserID: userID, Status: donation.StatusCompleted, From: since})}},
		{{Key: "$group", Value: bson.M{
			"_id":          bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$created_at"}},
			"total_amount": bson.M{"$sum": "$amount"},
			"count":        bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}
	cur, err := m.collection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	out := make([]donation.DayTotal, 0)
	if err = cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MongoDonationStorage) DonorTotalsSince(ctx context.Context, since time.Time) ([]donation.DonorTotal, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filterDoc(donation.Filter{Status: donation.StatusCompleted, From: since})}},
		{{Key: "$group", Value: bson.M{
			"_id":            "$user_id",
			"total_amount":   bson.M{"$sum": "$amount"},
			"donation_count": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "total_amount", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	cur, err := m.collection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	out := make([]donation.DonorTotal, 0)
	if err = cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
