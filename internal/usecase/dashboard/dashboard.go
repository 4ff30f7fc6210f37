package dashboard

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"givetrack/internal/domain/achievement"
	"givetrack/internal/domain/donation"
	"givetrack/internal/domain/user"
	errs "givetrack/internal/errors"
	"givetrack/internal/utils"
)

const (
	recentDonations     = 5
	recentAchievements  = 3
	recentReferrals     = 10
	trendWindow         = 30 * 24 * time.Hour
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

type Storage interface {
	GetUserByID(ctx context.Context, id string) (user.User, error)
	CountActive(ctx context.Context) (int64, error)
	GetDonation(ctx context.Context, id string) (donation.Donation, error)
	ListDonations(ctx context.Context, f donation.Filter, skip, limit int) ([]donation.Donation, int64, error)
	DonationStats(ctx context.Context, f donation.Filter) (donation.Stats, error)
	DailyTotals(ctx context.Context, userID string, since time.Time) ([]donation.DayTotal, error)
	ListAchievements(ctx context.Context) ([]achievement.Definition, error)
}

type Unlocker interface {
	CheckAndUnlock(ctx context.Context, userID string) ([]user.UnlockedAchievement, error)
}

type Service struct {
	store        Storage
	unlocker     Unlocker
	log          *zap.SugaredLogger
	historyLimit int
	now          func() time.Time
}

func NewService(store Storage, unlocker Unlocker, log *zap.SugaredLogger) *Service {
	return &Service{
		store:        store,
		unlocker:     unlocker,
		log:          log,
		historyLimit: defaultHistoryLimit,
		now:          time.Now,
	}
}

// WithHistoryLimit sets the donation history page size used when a query
// names none.
func (s *Service) WithHistoryLimit(limit int) *Service {
	if limit >= 1 && limit <= maxHistoryLimit {
		s.historyLimit = limit
	}
	return s
}

type Profile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	ReferralCode string    `json:"referralCode"`
	CreatedAt    time.Time `json:"createdAt"`
}

func NewProfile(u user.User) Profile {
	return Profile{ID: u.ID, Name: u.Name, Email: u.Email, ReferralCode: u.ReferralCode, CreatedAt: u.CreatedAt}
}

type RankInfo struct {
	Current int   `json:"current"`
	Best    int   `json:"best"`
	Total   int64 `json:"total"`
}

type AchievementSummary struct {
	Unlocked      int                        `json:"unlocked"`
	Recent        []user.UnlockedAchievement `json:"recent"`
	NewlyUnlocked []user.UnlockedAchievement `json:"newlyUnlocked"`
}

type UserStats struct {
	Donations    user.DonationStats `json:"donations"`
	Referrals    user.ReferralStats `json:"referrals"`
	Rank         RankInfo           `json:"rank"`
	Achievements AchievementSummary `json:"achievements"`
}

type Stats struct {
	User            Profile                      `json:"user"`
	Stats           UserStats                    `json:"stats"`
	NextAchievement *achievement.NextAchievement `json:"nextAchievement"`
	Progress        user.Progress                `json:"progress"`
	RecentDonations []donation.Donation          `json:"recentDonations"`
	Trends          []donation.DayTotal          `json:"trends"`
}

// Stats is the dashboard landing view. It also runs an unlock check so that
// achievements missed by an earlier failure show up here.
func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	newly, err := s.unlocker.CheckAndUnlock(ctx, userID)
	if err != nil {
		return Stats{}, err
	}

	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	active, err := s.store.CountActive(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count active users: %w", err)
	}
	recent, _, err := s.store.ListDonations(ctx,
		donation.Filter{UserID: userID, Status: donation.StatusCompleted}, 0, recentDonations)
	if err != nil {
		return Stats{}, fmt.Errorf("recent donations: %w", err)
	}
	trends, err := s.store.DailyTotals(ctx, userID, s.now().UTC().Add(-trendWindow))
	if err != nil {
		return Stats{}, fmt.Errorf("donation trends: %w", err)
	}
	catalog, err := s.store.ListAchievements(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list achievements: %w", err)
	}

	last := u.Achievements
	if len(last) > recentAchievements {
		last = last[len(last)-recentAchievements:]
	}

	return Stats{
		User: NewProfile(u),
		Stats: UserStats{
			Donations: u.Donations,
			Referrals: u.Referrals,
			Rank:      RankInfo{Current: u.Rank.Current, Best: u.Rank.Best, Total: active},
			Achievements: AchievementSummary{
				Unlocked:      len(u.Achievements),
				Recent:        last,
				NewlyUnlocked: newly,
			},
		},
		NextAchievement: achievement.Next(catalog, u),
		Progress:        u.Progress(),
		RecentDonations: recent,
		Trends:          trends,
	}, nil
}

type AchievementStats struct {
	Total      int `json:"total"`
	Unlocked   int `json:"unlocked"`
	InProgress int `json:"inProgress"`
	Locked     int `json:"locked"`
}

type Achievements struct {
	Achievements        []achievement.Progress                          `json:"achievements"`
	GroupedAchievements map[achievement.Category][]achievement.Progress `json:"groupedAchievements"`
	Stats               AchievementStats                                `json:"stats"`
	UserProgress        user.Progress                                   `json:"userProgress"`
	NextAchievement     *achievement.NextAchievement                    `json:"nextAchievement"`
}

func (s *Service) Achievements(ctx context.Context, userID string) (Achievements, error) {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Achievements{}, err
	}
	catalog, err := s.store.ListAchievements(ctx)
	if err != nil {
		return Achievements{}, fmt.Errorf("list achievements: %w", err)
	}

	progress := achievement.UserProgress(catalog, u)
	grouped := make(map[achievement.Category][]achievement.Progress)
	stats := AchievementStats{Total: len(progress)}
	for _, p := range progress {
		grouped[p.Category] = append(grouped[p.Category], p)
		switch {
		case p.Unlocked:
			stats.Unlocked++
		case p.Progress > 0:
			stats.InProgress++
		default:
			stats.Locked++
		}
	}

	return Achievements{
		Achievements:        progress,
		GroupedAchievements: grouped,
		Stats:               stats,
		UserProgress:        u.Progress(),
		NextAchievement:     achievement.Next(catalog, u),
	}, nil
}

type HistoryQuery struct {
	Page   int
	Limit  int
	Status donation.Status
	Source donation.Source
	From   time.Time
	To     time.Time
}

func (q HistoryQuery) normalize(defaultLimit int) (HistoryQuery, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = defaultLimit
	}
	if q.Page < 1 {
		return q, errs.Validation("Page must be a positive integer")
	}
	if q.Limit < 1 || q.Limit > maxHistoryLimit {
		return q, errs.Validation("Limit must be between 1 and 100")
	}
	if q.Status != "" && !q.Status.Valid() {
		return q, errs.Validation("Invalid donation status")
	}
	if q.Source != "" && !q.Source.Valid() {
		return q, errs.Validation("Invalid donation source")
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return q, errs.Validation("End date must not precede start date")
	}
	return q, nil
}

type History struct {
	Donations  []donation.Donation `json:"donations"`
	Pagination utils.Pagination    `json:"pagination"`
	Stats      donation.Stats      `json:"stats"`
}

// Donations pages through the user's history. Stats always cover every
// completed donation of the user regardless of the filter.
func (s *Service) Donations(ctx context.Context, userID string, q HistoryQuery) (History, error) {
	q, err := q.normalize(s.historyLimit)
	if err != nil {
		return History{}, err
	}
	filter := donation.Filter{UserID: userID, Status: q.Status, Source: q.Source, From: q.From, To: q.To}
	items, total, err := s.store.ListDonations(ctx, filter, (q.Page-1)*q.Limit, q.Limit)
	if err != nil {
		return History{}, fmt.Errorf("list donations: %w", err)
	}
	stats, err := s.store.DonationStats(ctx, donation.Filter{UserID: userID, Status: donation.StatusCompleted})
	if err != nil {
		return History{}, fmt.Errorf("donation stats: %w", err)
	}
	return History{
		Donations:  items,
		Pagination: utils.NewPagination(q.Page, q.Limit, total),
		Stats:      stats,
	}, nil
}

type ReferralStats struct {
	TotalReferrals        int     `json:"totalReferrals"`
	SuccessfulReferrals   int     `json:"successfulReferrals"`
	TotalReferralAmount   float64 `json:"totalReferralAmount"`
	AverageReferralAmount float64 `json:"averageReferralAmount"`
}

type Referrals struct {
	ReferralCode            string              `json:"referralCode"`
	Stats                   ReferralStats       `json:"stats"`
	RecentReferralDonations []donation.Donation `json:"recentReferralDonations"`
}

func (s *Service) Referrals(ctx context.Context, userID string) (Referrals, error) {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Referrals{}, err
	}
	filter := donation.Filter{ReferralCode: u.ReferralCode, Status: donation.StatusCompleted}
	stats, err := s.store.DonationStats(ctx, filter)
	if err != nil {
		return Referrals{}, fmt.Errorf("referral stats: %w", err)
	}
	recent, _, err := s.store.ListDonations(ctx, filter, 0, recentReferrals)
	if err != nil {
		return Referrals{}, fmt.Errorf("referral donations: %w", err)
	}
	return Referrals{
		ReferralCode: u.ReferralCode,
		Stats: ReferralStats{
			TotalReferrals:        u.Referrals.Count,
			SuccessfulReferrals:   u.Referrals.Successful,
			TotalReferralAmount:   stats.TotalAmount,
			AverageReferralAmount: stats.AverageAmount,
		},
		RecentReferralDonations: recent,
	}, nil
}

// Donation returns one of the user's own donations. Someone else's donation
// is reported as not found.
func (s *Service) Donation(ctx context.Context, userID, donationID string) (donation.Donation, user.User, error) {
	d, err := s.store.GetDonation(ctx, donationID)
	if err != nil {
		return donation.Donation{}, user.User{}, err
	}
	if d.UserID != userID {
		return donation.Donation{}, user.User{}, errs.ErrDonationNotFound
	}
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return donation.Donation{}, user.User{}, err
	}
	return d, u, nil
}
