package dashboard

import (
	"context"
	"fmt"
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
	achievementUC "givetrack/internal/usecase/achievement"
)

var now = time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Service, *repository.MemoryStorage) {
	t.Helper()
	log := zap.NewNop().Sugar()
	store := repository.NewMemoryStorage()
	require.NoError(t, store.UpsertAchievements(context.Background(), achievement.Defaults()))
	unlocker := achievementUC.NewEngine(store, store, store, repository.NewKeyedMutex(), notify.Nop{}, log)
	s := NewService(store, unlocker, log)
	s.now = func() time.Time { return now }
	return s, store
}

func addUser(t *testing.T, store *repository.MemoryStorage, id, code string) {
	t.Helper()
	require.NoError(t, store.InsertUser(context.Background(), user.New(id, "User "+id, id+"@example.com", "", code, now.Add(-90*24*time.Hour))))
}

func give(t *testing.T, store *repository.MemoryStorage, id, userID string, amount float64, at time.Time, mut func(d *donation.Donation)) {
	t.Helper()
	ctx := context.Background()
	d := donation.Donation{ID: id, UserID: userID, Amount: amount, Source: donation.SourceDirect, Status: donation.StatusCompleted, CreatedAt: at}
	if mut != nil {
		mut(&d)
	}
	require.NoError(t, store.InsertDonation(ctx, d))
	if d.Status == donation.StatusCompleted {
		require.NoError(t, store.ApplyDonation(ctx, userID, amount, at))
	}
}

func TestStats(t *testing.T) {
	s, store := setup(t)
	addUser(t, store, "u1", "USER0001")
	addUser(t, store, "u2", "USER0002")
	for i := 0; i < 7; i++ {
		give(t, store, fmt.Sprintf("d%d", i), "u1", 300, now.Add(-time.Duration(i)*24*time.Hour), nil)
	}
	give(t, store, "old", "u1", 100, now.Add(-60*24*time.Hour), nil)
	give(t, store, "pending", "u1", 100, now, func(d *donation.Donation) { d.Status = donation.StatusPending })

	stats, err := s.Stats(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, "u1@example.com", stats.User.Email)
	assert.Equal(t, float64(2200), stats.Stats.Donations.Total)
	assert.Equal(t, int64(2), stats.Stats.Rank.Total)
	assert.Equal(t, 3, stats.Stats.Achievements.Unlocked)
	assert.Len(t, stats.Stats.Achievements.NewlyUnlocked, 3, "missed unlocks are caught up")
	assert.Len(t, stats.Stats.Achievements.Recent, 3)
	assert.Equal(t, "PREMIUM_MEMBER", stats.NextAchievement.ID)
	assert.Equal(t, "Diamond", stats.Progress.CurrentLevel)

	require.Len(t, stats.RecentDonations, 5)
	assert.Equal(t, "d0", stats.RecentDonations[0].ID)
	for _, d := range stats.RecentDonations {
		assert.Equal(t, donation.StatusCompleted, d.Status)
	}
	assert.Len(t, stats.Trends, 7, "donations older than the window are left out")

	again, err := s.Stats(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, again.Stats.Achievements.NewlyUnlocked)
}

func TestStatsUnknownUser(t *testing.T) {
	s, _ := setup(t)
	_, err := s.Stats(context.Background(), "ghost")
	require.ErrorIs(t, err, errs.ErrUserNotFound)
}

func TestAchievements(t *testing.T) {
	s, store := setup(t)
	addUser(t, store, "u1", "USER0001")
	give(t, store, "d1", "u1", 1500, now, nil)
	_, err := s.unlocker.CheckAndUnlock(context.Background(), "u1")
	require.NoError(t, err)

	res, err := s.Achievements(context.Background(), "u1")
	require.NoError(t, err)

	total := len(achievement.Defaults())
	assert.Equal(t, AchievementStats{Total: total, Unlocked: 2, InProgress: 4, Locked: 2}, res.Stats)
	assert.Len(t, res.GroupedAchievements[achievement.CategoryReferral], 2)
	assert.Len(t, res.Achievements, total)
	assert.Equal(t, "DIAMOND_ACHIEVER", res.NextAchievement.ID)
}

func TestDonationsHistory(t *testing.T) {
	s, store := setup(t)
	addUser(t, store, "u1", "USER0001")
	addUser(t, store, "u2", "USER0002")
	for i := 0; i < 12; i++ {
		give(t, store, fmt.Sprintf("d%02d", i), "u1", 10, now.Add(-time.Duration(i)*time.Hour), nil)
	}
	give(t, store, "refunded", "u1", 99, now.Add(time.Hour), func(d *donation.Donation) { d.Status = donation.StatusRefunded })
	give(t, store, "campaign", "u1", 40, now.Add(-24*time.Hour), func(d *donation.Donation) { d.Source = donation.SourceCampaign })
	give(t, store, "other", "u2", 500, now, nil)

	ctx := context.Background()
	page1, err := s.Donations(ctx, "u1", HistoryQuery{})
	require.NoError(t, err)
	assert.Len(t, page1.Donations, 10)
	assert.Equal(t, "refunded", page1.Donations[0].ID)
	assert.Equal(t, int64(14), page1.Pagination.Total)
	assert.Equal(t, 2, page1.Pagination.TotalPages)
	assert.True(t, page1.Pagination.HasNext)
	assert.False(t, page1.Pagination.HasPrev)
	assert.Equal(t, donation.Stats{TotalAmount: 160, TotalDonations: 13, AverageAmount: 160.0 / 13, MaxAmount: 40, MinAmount: 10}, page1.Stats)

	page2, err := s.Donations(ctx, "u1", HistoryQuery{Page: 2})
	require.NoError(t, err)
	assert.Len(t, page2.Donations, 4)
	assert.False(t, page2.Pagination.HasNext)

	campaign, err := s.Donations(ctx, "u1", HistoryQuery{Source: donation.SourceCampaign})
	require.NoError(t, err)
	require.Len(t, campaign.Donations, 1)
	assert.Equal(t, "campaign", campaign.Donations[0].ID)

	window, err := s.Donations(ctx, "u1", HistoryQuery{From: now.Add(-2 * time.Hour), To: now})
	require.NoError(t, err)
	assert.Len(t, window.Donations, 3)
}

func TestDonationsHistoryValidation(t *testing.T) {
	s, store := setup(t)
	addUser(t, store, "u1", "USER0001")

	for name, q := range map[string]HistoryQuery{
		"negative page":   {Page: -1},
		"limit too large": {Limit: 101},
		"bad status":      {Status: "lost"},
		"bad source":      {Source: "lottery"},
		"reversed dates":  {From: now, To: now.Add(-time.Hour)},
	} {
		_, err := s.Donations(context.Background(), "u1", q)
		require.ErrorIs(t, err, errs.ErrValidation, name)
	}
}

func TestReferrals(t *testing.T) {
	s, store := setup(t)
	addUser(t, store, "ref", "REFR0001")
	addUser(t, store, "donor", "DONR0001")
	ctx := context.Background()
	for i, amount := range []float64{20, 40} {
		give(t, store, fmt.Sprintf("r%d", i), "donor", amount, now.Add(-time.Duration(i)*time.Minute), func(d *donation.Donation) {
			d.ReferralCode = "REFR0001"
			d.ReferredBy = "ref"
		})
		require.NoError(t, store.IncrementReferrals(ctx, "ref", now))
	}
	give(t, store, "plain", "donor", 1000, now, nil)

	res, err := s.Referrals(ctx, "ref")
	require.NoError(t, err)
	assert.Equal(t, "REFR0001", res.ReferralCode)
	assert.Equal(t, ReferralStats{TotalReferrals: 2, SuccessfulReferrals: 2, TotalReferralAmount: 60, AverageReferralAmount: 30}, res.Stats)
	assert.Len(t, res.RecentReferralDonations, 2)
}

func TestDonationOwnership(t *testing.T) {
	s, store := setup(t)
	addUser(t, store, "u1", "USER0001")
	addUser(t, store, "u2", "USER0002")
	give(t, store, "d1", "u1", 10, now, nil)

	d, u, err := s.Donation(context.Background(), "u1", "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", d.ID)
	assert.Equal(t, "u1", u.ID)

	_, _, err = s.Donation(context.Background(), "u2", "d1")
	require.ErrorIs(t, err, errs.ErrDonationNotFound)
	_, _, err = s.Donation(context.Background(), "u1", "nope")
	require.ErrorIs(t, err, errs.ErrDonationNotFound)
}

func TestWithHistoryLimit(t *testing.T) {
	s, store := setup(t)
	addUser(t, store, "u1", "USER0001")
	for i := 0; i < 4; i++ {
		give(t, store, fmt.Sprintf("d%d", i), "u1", 10, now.Add(-time.Duration(i)*time.Minute), nil)
	}

	h, err := s.WithHistoryLimit(3).Donations(context.Background(), "u1", HistoryQuery{})
	require.NoError(t, err)
	assert.Len(t, h.Donations, 3)
	assert.Equal(t, 2, h.Pagination.TotalPages)
}
