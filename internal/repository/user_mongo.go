package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"givetrack/internal/adapters"
	"givetrack/internal/domain/rank"
	"givetrack/internal/domain/user"
	errs "givetrack/internal/errors"
)

const usersCollection = "users"

type MongoUserStorage struct {
	adapter *adapters.AdapterMongo
	log     *zap.SugaredLogger
}

func NewMongoUserStorage(adapter *adapters.AdapterMongo, log *zap.SugaredLogger) *MongoUserStorage {
	return &MongoUserStorage{adapter: adapter, log: log}
}

func (m *MongoUserStorage) collection() *mongo.Collection {
	return m.adapter.Database.Collection(usersCollection)
}

func (m *MongoUserStorage) EnsureIndexes(ctx context.Context) error {
	_, err := m.collection().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "referral_code", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "donations.total", Value: -1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "referrals.successful", Value: -1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "rank.current", Value: 1}}},
	})
	return err
}

func (m *MongoUserStorage) InsertUser(ctx context.Context, u user.User) error {
	_, err := m.collection().InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		if strings.Contains(err.Error(), "referral_code") {
			return fmt.Errorf("referral code %s: %w", u.ReferralCode, errs.ErrConflict)
		}
		return errs.ErrUserExists
	}
	return err
}

func (m *MongoUserStorage) SetPasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	return m.updateOne(ctx, id, bson.M{"$set": bson.M{"password_hash": hash, "updated_at": at}})
}

func (m *MongoUserStorage) findOne(ctx context.Context, filter bson.M) (user.User, error) {
	var result user.User
	err := m.collection().FindOne(ctx, filter).Decode(&result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return user.User{}, errs.ErrUserNotFound
	}
	if err != nil {
		return user.User{}, err
	}
	return result, nil
}

func (m *MongoUserStorage) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m *MongoUserStorage) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return m.findOne(ctx, bson.M{"email": email})
}

func (m *MongoUserStorage) GetUserByReferralCode(ctx context.Context, code string) (user.User, error) {
	return m.findOne(ctx, bson.M{"referral_code": code})
}

func (m *MongoUserStorage) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	err := m.collection().FindOne(ctx, bson.M{"referral_code": code},
		options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *MongoUserStorage) updateOne(ctx context.Context, id string, update interface{}) error {
	res, err := m.collection().UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errs.ErrUserNotFound
	}
	return nil
}

func (m *MongoUserStorage) ApplyDonation(ctx context.Context, id string, amount float64, at time.Time) error {
	return m.updateOne(ctx, id, bson.M{
		"$inc": bson.M{
			"donations.total":  amount,
			"donations.weekly": amount,
			"donations.count":  1,
		},
		"$set": bson.M{
			"donations.last_updated": at,
			"updated_at":             at,
		},
	})
}

// RevertDonation runs as a pipeline update so the counters can be floored at
// zero in the same write.
func (m *MongoUserStorage) RevertDonation(ctx context.Context, id string, amount float64, at time.Time) error {
	floored := func(field string, by interface{}) bson.M {
		return bson.M{"$max": bson.A{0, bson.M{"$subtract": bson.A{"$" + field, by}}}}
	}
	return m.updateOne(ctx, id, mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"donations.total":        floored("donations.total", amount),
			"donations.weekly":       floored("donations.weekly", amount),
			"donations.count":        floored("donations.count", 1),
			"donations.last_updated": at,
			"updated_at":             at,
		}}},
	})
}

func (m *MongoUserStorage) IncrementReferrals(ctx context.Context, id string, at time.Time) error {
	return m.updateOne(ctx, id, bson.M{
		"$inc": bson.M{"referrals.count": 1, "referrals.successful": 1},
		"$set": bson.M{"updated_at": at},
	})
}

// AppendAchievements pushes unlock records only if the user is still at the
// given version and holds none of them. Anything else is ErrConflict.
func (m *MongoUserStorage) AppendAchievements(ctx context.Context, id string, version int64, recs []user.UnlockedAchievement, at time.Time) error {
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	filter := bson.M{
		"_id":             id,
		"version":         version,
		"achievements.id": bson.M{"$nin": ids},
	}
	update := bson.M{
		"$push": bson.M{"achievements": bson.M{"$each": recs}},
		"$inc":  bson.M{"version": 1},
		"$set":  bson.M{"updated_at": at},
	}
	res, err := m.collection().UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user %s version %d: %w", id, version, errs.ErrConflict)
	}
	return nil
}

func (m *MongoUserStorage) ListRankCandidates(ctx context.Context) ([]rank.Candidate, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "donations.total", Value: -1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetProjection(bson.M{"donations.total": 1, "created_at": 1, "rank.best": 1})
	cur, err := m.collection().Find(ctx, bson.M{"is_active": true}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]rank.Candidate, 0)
	for cur.Next(ctx) {
		var doc struct {
			ID        string             `bson:"_id"`
			Donations user.DonationStats `bson:"donations"`
			CreatedAt time.Time          `bson:"created_at"`
			Rank      user.Rank          `bson:"rank"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, rank.Candidate{
			UserID:    doc.ID,
			Total:     doc.Donations.Total,
			CreatedAt: doc.CreatedAt,
			Best:      doc.Rank.Best,
		})
	}
	return out, cur.Err()
}

// ApplyRanks writes a full assignment in one bulk write. best only moves down.
func (m *MongoUserStorage) ApplyRanks(ctx context.Context, assignments []rank.Assignment, at time.Time) error {
	if len(assignments) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(assignments))
	for _, a := range assignments {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": a.UserID}).
			SetUpdate(bson.M{
				"$set": bson.M{"rank.current": a.Current, "rank.last_updated": at},
				"$min": bson.M{"rank.best": a.Best},
			}))
	}
	_, err := m.collection().BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return err
}

func (m *MongoUserStorage) Deactivate(ctx context.Context, id string, at time.Time) error {
	return m.updateOne(ctx, id, bson.M{"$set": bson.M{"is_active": false, "updated_at": at}})
}

func (m *MongoUserStorage) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return m.updateOne(ctx, id, bson.M{"$set": bson.M{"last_login": at}})
}

func (m *MongoUserStorage) ResetWeekly(ctx context.Context, at time.Time) (int64, error) {
	res, err := m.collection().UpdateMany(ctx,
		bson.M{"donations.weekly": bson.M{"$ne": 0}},
		bson.M{"$set": bson.M{"donations.weekly": 0, "updated_at": at}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (m *MongoUserStorage) CountActive(ctx context.Context) (int64, error) {
	return m.collection().CountDocuments(ctx, bson.M{"is_active": true})
}

func boardField(board user.Board) string {
	if board == user.BoardReferrals {
		return "referrals.successful"
	}
	return "donations.total"
}

func (m *MongoUserStorage) ListLeaders(ctx context.Context, board user.Board, skip, limit int) ([]user.User, int64, error) {
	field := boardField(board)
	filter := bson.M{"is_active": true, field: bson.M{"$gt": 0}}

	total, err := m.collection().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: field, Value: -1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(skip)).
		SetProjection(bson.M{"password_hash": 0})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := m.collection().Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	users := make([]user.User, 0)
	if err = cur.All(ctx, &users); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (m *MongoUserStorage) GetUsersByIDs(ctx context.Context, ids []string) (map[string]user.User, error) {
	out := make(map[string]user.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := m.collection().Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"password_hash": 0}))
	if err != nil {
		return nil, err
	}
	var users []user.User
	if err = cur.All(ctx, &users); err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (m *MongoUserStorage) LeaderStats(ctx context.Context) (user.BoardStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"is_active": true, "donations.total": bson.M{"$gt": 0}}}},
		{{Key: "$group", Value: bson.M{
			"_id":               nil,
			"total_donations":   bson.M{"$sum": "$donations.total"},
			"average_donations": bson.M{"$avg": "$donations.total"},
			"max_donations":     bson.M{"$max": "$donations.total"},
			"active_users":      bson.M{"$sum": 1},
		}}},
	}
	cur, err := m.collection().Aggregate(ctx, pipeline)
	if err != nil {
		return user.BoardStats{}, err
	}
	var rows []user.BoardStats
	if err = cur.All(ctx, &rows); err != nil {
		return user.BoardStats{}, err
	}
	if len(rows) == 0 {
		return user.BoardStats{}, nil
	}
	return rows[0], nil
}
