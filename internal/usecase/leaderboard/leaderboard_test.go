package leaderboard

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"givetrack/internal/domain/donation"
	"givetrack/internal/domain/user"
	errs "givetrack/internal/errors"
	"givetrack/internal/notify"
	"givetrack/internal/repository"
	"givetrack/internal/usecase/ranking"
)

var now = time.Date(2026, 9, 20, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Service, *repository.MemoryStorage) {
	t.Helper()
	log := zap.NewNop().Sugar()
	store := repository.NewMemoryStorage()
	ranker := ranking.NewEngine(store, store, repository.NewKeyedMutex(), notify.Nop{}, log)
	s := NewService(store, ranker, log)
	s.now = func() time.Time { return now }
	return s, store
}

// seed creates users u00..u(n-1) where u00 has the largest total.
func seed(t *testing.T, store *repository.MemoryStorage, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("u%02d", i)
		require.NoError(t, store.InsertUser(ctx, user.New(id, "User "+id, id+"@example.com", "", "CODE"+id, now.Add(-time.Hour))))
		require.NoError(t, store.ApplyDonation(ctx, id, float64((n-i)*1000), now))
	}
}

func TestBoardDefaults(t *testing.T) {
	s, store := setup(t)
	seed(t, store, 12)
	ctx := context.Background()
	_, err := s.UpdateRanks(ctx)
	require.NoError(t, err)

	b, err := s.Board(ctx, Query{CurrentUserID: "u03"})
	require.NoError(t, err)

	require.Len(t, b.Leaderboard, 12)
	assert.Equal(t, Filters{Category: user.BoardDonations, Period: PeriodAll, Limit: DefaultLimit}, b.Filters)
	assert.Equal(t, 1, b.Pagination.TotalPages)

	first := b.Leaderboard[0]
	assert.Equal(t, "u00", first.User.ID)
	assert.Equal(t, float64(12000), first.Stats.Main)
	assert.Equal(t, []Badge{
		{Type: "rank", Value: "gold", Label: "🥇 1st Place"},
		{Type: "amount", Value: "legend", Label: "🏆 Legend"},
	}, first.Badges)

	assert.True(t, b.Leaderboard[3].IsCurrentUser)
	require.NotNil(t, b.CurrentUserRank)
	assert.Equal(t, CurrentUserRank{Rank: 4, Total: 9000}, *b.CurrentUserRank)

	require.NotNil(t, b.Stats)
	assert.Equal(t, 12, b.Stats.ActiveUsers)
	assert.Equal(t, float64(12000), b.Stats.MaxDonations)
}

func TestBoardPagination(t *testing.T) {
	s, store := setup(t)
	seed(t, store, 5)

	b, err := s.Board(context.Background(), Query{Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, b.Leaderboard, 2)
	assert.Equal(t, 3, b.Leaderboard[0].Rank)
	assert.Equal(t, "u02", b.Leaderboard[0].User.ID)
	assert.Equal(t, int64(5), b.Pagination.Total)
	assert.Equal(t, 3, b.Pagination.TotalPages)
	assert.True(t, b.Pagination.HasNext)
	assert.True(t, b.Pagination.HasPrev)
}

func TestBoardReferrals(t *testing.T) {
	s, store := setup(t)
	seed(t, store, 3)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		require.NoError(t, store.IncrementReferrals(ctx, "u02", now))
	}

	b, err := s.Board(ctx, Query{Category: user.BoardReferrals})
	require.NoError(t, err)
	require.Len(t, b.Leaderboard, 1)
	assert.Equal(t, "u02", b.Leaderboard[0].User.ID)
	assert.Equal(t, float64(2), b.Leaderboard[0].Stats.Main)
	assert.Nil(t, b.Stats)
	for _, badge := range b.Leaderboard[0].Badges {
		assert.NotEqual(t, "amount", badge.Type)
	}
}

func TestBoardPeriod(t *testing.T) {
	s, store := setup(t)
	seed(t, store, 3)
	ctx := context.Background()
	for _, d := range []donation.Donation{
		{ID: "recent", UserID: "u02", Amount: 700, Status: donation.StatusCompleted, CreatedAt: now.Add(-24 * time.Hour)},
		{ID: "recent2", UserID: "u01", Amount: 300, Status: donation.StatusCompleted, CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "stale", UserID: "u00", Amount: 5000, Status: donation.StatusCompleted, CreatedAt: now.Add(-30 * 24 * time.Hour)},
		{ID: "refund", UserID: "u00", Amount: 9000, Status: donation.StatusRefunded, CreatedAt: now},
	} {
		require.NoError(t, store.InsertDonation(ctx, d))
	}

	b, err := s.Board(ctx, Query{Period: PeriodWeek})
	require.NoError(t, err)
	require.Len(t, b.Leaderboard, 2)
	assert.Equal(t, "u02", b.Leaderboard[0].User.ID)
	assert.Equal(t, float64(700), b.Leaderboard[0].Stats.Main)
	assert.Equal(t, float64(1000), b.Leaderboard[0].Stats.Secondary)
	assert.Nil(t, b.CurrentUserRank)

	require.NoError(t, store.Deactivate(ctx, "u02", now))
	b, err = s.Board(ctx, Query{Period: PeriodWeek})
	require.NoError(t, err)
	require.Len(t, b.Leaderboard, 1)
	assert.Equal(t, "u01", b.Leaderboard[0].User.ID)
	assert.Equal(t, 1, b.Leaderboard[0].Rank)
}

func TestBoardValidation(t *testing.T) {
	s, _ := setup(t)
	for name, q := range map[string]Query{
		"page":     {Page: -2},
		"limit":    {Limit: 500},
		"period":   {Period: "decade"},
		"category": {Category: "karma"},
	} {
		_, err := s.Board(context.Background(), q)
		require.ErrorIs(t, err, errs.ErrValidation, name)
	}
}

func TestNearby(t *testing.T) {
	s, store := setup(t)
	seed(t, store, 20)
	ctx := context.Background()

	res, err := s.Nearby(ctx, "u10", "", 2)
	require.NoError(t, err)
	assert.Equal(t, 11, res.CurrentUserRank)
	require.Len(t, res.NearbyUsers, 5)
	assert.Equal(t, 9, res.NearbyUsers[0].Rank)
	assert.Equal(t, 13, res.NearbyUsers[4].Rank)
	assert.True(t, res.NearbyUsers[2].IsCurrentUser)

	top, err := s.Nearby(ctx, "u00", user.BoardDonations, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultRange, top.Range)
	assert.Len(t, top.NearbyUsers, 6)

	wide, err := s.Nearby(ctx, "u10", user.BoardDonations, 50)
	require.NoError(t, err)
	assert.Equal(t, MaxRange, wide.Range)
}

func TestNearbyUserOffBoard(t *testing.T) {
	s, store := setup(t)
	seed(t, store, 8)
	ctx := context.Background()
	require.NoError(t, store.InsertUser(ctx, user.New("fresh", "Fresh", "fresh@example.com", "", "FRESH001", now)))

	res, err := s.Nearby(ctx, "fresh", user.BoardDonations, 3)
	require.NoError(t, err)
	assert.Zero(t, res.CurrentUserRank)
	require.Len(t, res.NearbyUsers, 3)
	assert.Equal(t, 1, res.NearbyUsers[0].Rank)

	_, err = s.Nearby(ctx, "ghost", user.BoardDonations, 3)
	require.ErrorIs(t, err, errs.ErrUserNotFound)
	_, err = s.Nearby(ctx, "fresh", user.BoardDonations, -1)
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestResetWeekly(t *testing.T) {
	s, store := setup(t)
	seed(t, store, 3)

	res, err := s.ResetWeekly(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.ResetUsers)
	assert.Equal(t, now, res.Timestamp)

	u, _ := store.GetUserByID(context.Background(), "u00")
	assert.Zero(t, u.Donations.Weekly)
}

func TestBadges(t *testing.T) {
	assert.Equal(t, []Badge{{Type: "rank", Value: "top10", Label: "🔟 Top 10"}}, badges(user.BoardDonations, 10, 999))
	assert.Equal(t, []Badge{{Type: "amount", Value: "diamond", Label: "💎 Diamond"}}, badges(user.BoardDonations, 11, 2500))
	assert.Empty(t, badges(user.BoardReferrals, 40, 50000))
	assert.Len(t, badges(user.BoardReferrals, 2, 50000), 1)
}

func TestPeriodSince(t *testing.T) {
	at := time.Date(2026, 9, 20, 15, 30, 0, 0, time.UTC)
	assert.True(t, PeriodAll.Since(at).IsZero())
	assert.Equal(t, at.Add(-7*24*time.Hour), PeriodWeek.Since(at))
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), PeriodMonth.Since(at))
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), PeriodYear.Since(at))
}

func TestWithDefaultLimit(t *testing.T) {
	s, store := setup(t)
	seed(t, store, 4)

	b, err := s.WithDefaultLimit(3).Board(context.Background(), Query{})
	require.NoError(t, err)
	assert.Len(t, b.Leaderboard, 3)
	assert.Equal(t, 3, b.Filters.Limit)

	s.WithDefaultLimit(0)
	assert.Equal(t, 3, s.defaultLimit, "out of range values are ignored")
}
