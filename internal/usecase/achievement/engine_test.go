package achievement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"givetrack/internal/domain/achievement"
	"givetrack/internal/domain/donation"
	"givetrack/internal/domain/user"
	errs "givetrack/internal/errors"
	"givetrack/internal/notify"
	"givetrack/internal/repository"
)

type countingPublisher struct {
	n int
}

func (c *countingPublisher) Publish(context.Context, notify.Event) error {
	c.n++
	return nil
}

func setup(t *testing.T) (*Engine, *repository.MemoryStorage, *countingPublisher) {
	t.Helper()
	store := repository.NewMemoryStorage()
	require.NoError(t, store.UpsertAchievements(context.Background(), achievement.Defaults()))
	pub := &countingPublisher{}
	e := NewEngine(store, store, store, repository.NewKeyedMutex(), pub, zap.NewNop().Sugar())
	e.now = func() time.Time { return time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC) }
	return e, store, pub
}

func addDonor(t *testing.T, store *repository.MemoryStorage, id string, total float64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.InsertUser(ctx, user.New(id, "Donor", id+"@example.com", "", "CODE"+id, time.Now())))
	require.NoError(t, store.ApplyDonation(ctx, id, total, time.Now()))
}

func TestCheckAndUnlockIsIdempotent(t *testing.T) {
	e, store, pub := setup(t)
	addDonor(t, store, "u1", 10000)
	ctx := context.Background()

	first, err := e.CheckAndUnlock(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, first, 6)
	assert.Equal(t, 6, pub.n)

	second, err := e.CheckAndUnlock(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Equal(t, 6, pub.n)

	u, err := store.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, u.Achievements, 6)
}

func TestCheckAndUnlockPicksUpCatalogAdditions(t *testing.T) {
	e, store, _ := setup(t)
	addDonor(t, store, "u1", 750)
	ctx := context.Background()

	_, err := e.CheckAndUnlock(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, store.UpsertAchievements(ctx, []achievement.Definition{{
		ID: "HALF_WAY", Name: "Half Way", IsActive: true, IsVisible: true,
		Criteria: achievement.Criterion{Field: achievement.MetricDonationsTotal, Operator: achievement.OpGTE, Threshold: 500},
	}}))

	recs, err := e.CheckAndUnlock(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "HALF_WAY", recs[0].ID)
	assert.Equal(t, float64(500), recs[0].Threshold)
}

func TestUnlocksSurviveRefunds(t *testing.T) {
	e, store, _ := setup(t)
	addDonor(t, store, "u1", 0)
	ctx := context.Background()
	require.NoError(t, store.InsertDonation(ctx, donation.Donation{ID: "d1", UserID: "u1", Amount: 1000, Status: donation.StatusCompleted}))
	require.NoError(t, store.ApplyDonation(ctx, "u1", 1000, time.Now()))

	_, err := e.CheckAndUnlock(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, store.SetDonationStatus(ctx, "d1", donation.StatusRefunded))
	require.NoError(t, store.RevertDonation(ctx, "u1", 1000, time.Now()))
	recs, err := e.CheckAndUnlock(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, recs)

	u, _ := store.GetUserByID(ctx, "u1")
	assert.True(t, u.HasAchievement("RISING_STAR"))
}

func TestCheckAndUnlockUnknownUser(t *testing.T) {
	e, _, _ := setup(t)
	_, err := e.CheckAndUnlock(context.Background(), "ghost")
	require.ErrorIs(t, err, errs.ErrUserNotFound)
}

func TestUnlockStaleSnapshotConflicts(t *testing.T) {
	e, store, _ := setup(t)
	addDonor(t, store, "u1", 1000)
	ctx := context.Background()

	stale, err := store.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	_, err = e.CheckAndUnlock(ctx, "u1")
	require.NoError(t, err)

	stale.Donations.Total = 5000
	_, err = e.Unlock(ctx, stale, nil)
	require.ErrorIs(t, err, errs.ErrConflict)
}

func TestCheckAndUnlockCatalogFailure(t *testing.T) {
	e, store, _ := setup(t)
	addDonor(t, store, "u1", 1000)
	store.FailOn["ListAchievements"] = true

	_, err := e.CheckAndUnlock(context.Background(), "u1")
	require.ErrorIs(t, err, errs.ErrInternal)
}
