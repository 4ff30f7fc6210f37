package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"givetrack/internal/domain/donation"
	"givetrack/internal/domain/user"
	errs "givetrack/internal/errors"
	"givetrack/internal/utils"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
	DefaultRange = 5
	MaxRange     = 10
)

type Period string

const (
	PeriodAll   Period = "all"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

func (p Period) Valid() bool {
	switch p {
	case PeriodAll, PeriodWeek, PeriodMonth, PeriodYear:
		return true
	}
	return false
}

// Since is the start of the period containing now. The zero time means no bound.
func (p Period) Since(now time.Time) time.Time {
	switch p {
	case PeriodWeek:
		return now.Add(-7 * 24 * time.Hour)
	case PeriodMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	case PeriodYear:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	}
	return time.Time{}
}

type Storage interface {
	GetUserByID(ctx context.Context, id string) (user.User, error)
	ListLeaders(ctx context.Context, board user.Board, skip, limit int) ([]user.User, int64, error)
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]user.User, error)
	LeaderStats(ctx context.Context) (user.BoardStats, error)
	DonorTotalsSince(ctx context.Context, since time.Time) ([]donation.DonorTotal, error)
	ResetWeekly(ctx context.Context, at time.Time) (int64, error)
}

type Ranker interface {
	RecomputeAllRanks(ctx context.Context) (int, error)
}

type Service struct {
	store        Storage
	ranker       Ranker
	log          *zap.SugaredLogger
	defaultLimit int
	now          func() time.Time
}

func NewService(store Storage, ranker Ranker, log *zap.SugaredLogger) *Service {
	return &Service{
		store:        store,
		ranker:       ranker,
		log:          log,
		defaultLimit: DefaultLimit,
		now:          time.Now,
	}
}

// WithDefaultLimit sets the page size used when a query names none.
// Values outside 1..MaxLimit are ignored.
func (s *Service) WithDefaultLimit(limit int) *Service {
	if limit >= 1 && limit <= MaxLimit {
		s.defaultLimit = limit
	}
	return s
}

type Query struct {
	Page          int
	Limit         int
	Period        Period
	Category      user.Board
	CurrentUserID string
}

func (q Query) normalize(defaultLimit int) (Query, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = defaultLimit
	}
	if q.Period == "" {
		q.Period = PeriodAll
	}
	if q.Category == "" {
		q.Category = user.BoardDonations
	}
	if q.Page < 1 {
		return q, errs.Validation("Page must be a positive integer")
	}
	if q.Limit < 1 || q.Limit > MaxLimit {
		return q, errs.Validation("Limit must be between 1 and 100")
	}
	if !q.Period.Valid() {
		return q, errs.Validation("Period must be one of: all, week, month, year")
	}
	if !q.Category.Valid() {
		return q, errs.Validation("Category must be either donations or referrals")
	}
	return q, nil
}

type Card struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ReferralCode string    `json:"referralCode"`
	JoinedAt     time.Time `json:"joinedAt"`
}

func newCard(u user.User) Card {
	return Card{ID: u.ID, Name: u.Name, ReferralCode: u.ReferralCode, JoinedAt: u.CreatedAt}
}

type EntryStats struct {
	Main         float64 `json:"main"`
	Secondary    float64 `json:"secondary"`
	Achievements int     `json:"achievements"`
}

type Entry struct {
	Rank          int        `json:"rank"`
	User          Card       `json:"user"`
	Stats         EntryStats `json:"stats"`
	IsCurrentUser bool       `json:"isCurrentUser"`
	Badges        []Badge    `json:"badges"`
}

type Filters struct {
	Category user.Board `json:"category"`
	Period   Period     `json:"period"`
	Limit    int        `json:"limit"`
}

type CurrentUserRank struct {
	Rank  int     `json:"rank"`
	Total float64 `json:"total"`
}

type Board struct {
	Leaderboard     []Entry          `json:"leaderboard"`
	Pagination      utils.Pagination `json:"pagination"`
	Filters         Filters          `json:"filters"`
	CurrentUserRank *CurrentUserRank `json:"currentUserRank"`
	Stats           *user.BoardStats `json:"stats,omitempty"`
}

// Board renders one page of a leaderboard. Period boards rank by completed
// donations inside the period; the all-time board reads the maintained totals.
func (s *Service) Board(ctx context.Context, q Query) (Board, error) {
	q, err := q.normalize(s.defaultLimit)
	if err != nil {
		return Board{}, err
	}
	skip := (q.Page - 1) * q.Limit

	var entries []Entry
	var total int64
	if q.Category == user.BoardDonations && q.Period != PeriodAll {
		entries, total, err = s.periodEntries(ctx, q, skip)
	} else {
		entries, total, err = s.boardEntries(ctx, q, skip)
	}
	if err != nil {
		return Board{}, err
	}

	out := Board{
		Leaderboard: entries,
		Pagination:  utils.NewPagination(q.Page, q.Limit, total),
		Filters:     Filters{Category: q.Category, Period: q.Period, Limit: q.Limit},
	}

	if q.Category == user.BoardDonations && q.Period == PeriodAll {
		stats, err := s.store.LeaderStats(ctx)
		if err != nil {
			return Board{}, fmt.Errorf("leaderboard stats: %w", err)
		}
		out.Stats = &stats

		if q.CurrentUserID != "" {
			out.CurrentUserRank, err = s.currentUserRank(ctx, q.CurrentUserID)
			if err != nil {
				return Board{}, err
			}
		}
	}
	return out, nil
}

func (s *Service) boardEntries(ctx context.Context, q Query, skip int) ([]Entry, int64, error) {
	users, total, err := s.store.ListLeaders(ctx, q.Category, skip, q.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list leaders: %w", err)
	}
	entries := make([]Entry, 0, len(users))
	for i, u := range users {
		rank := skip + i + 1
		stats := EntryStats{Achievements: len(u.Achievements)}
		if q.Category == user.BoardReferrals {
			stats.Main = float64(u.Referrals.Successful)
			stats.Secondary = float64(u.Referrals.Count)
		} else {
			stats.Main = u.Donations.Total
			stats.Secondary = float64(len(u.Achievements))
		}
		entries = append(entries, Entry{
			Rank:          rank,
			User:          newCard(u),
			Stats:         stats,
			IsCurrentUser: u.ID == q.CurrentUserID,
			Badges:        badges(q.Category, rank, stats.Main),
		})
	}
	return entries, total, nil
}

func (s *Service) periodEntries(ctx context.Context, q Query, skip int) ([]Entry, int64, error) {
	totals, err := s.store.DonorTotalsSince(ctx, q.Period.Since(s.now().UTC()))
	if err != nil {
		return nil, 0, fmt.Errorf("period totals: %w", err)
	}
	ids := make([]string, 0, len(totals))
	for _, t := range totals {
		ids = append(ids, t.UserID)
	}
	users, err := s.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("load period leaders: %w", err)
	}

	ranked := make([]donation.DonorTotal, 0, len(totals))
	for _, t := range totals {
		if u, ok := users[t.UserID]; ok && u.IsActive {
			ranked = append(ranked, t)
		}
	}

	entries := make([]Entry, 0, q.Limit)
	for i := skip; i < len(ranked) && i < skip+q.Limit; i++ {
		t := ranked[i]
		u := users[t.UserID]
		rank := i + 1
		entries = append(entries, Entry{
			Rank: rank,
			User: newCard(u),
			Stats: EntryStats{
				Main:         t.TotalAmount,
				Secondary:    u.Donations.Total,
				Achievements: len(u.Achievements),
			},
			IsCurrentUser: u.ID == q.CurrentUserID,
			Badges:        badges(q.Category, rank, t.TotalAmount),
		})
	}
	return entries, int64(len(ranked)), nil
}

func (s *Service) currentUserRank(ctx context.Context, userID string) (*CurrentUserRank, error) {
	u, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, errs.ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive || u.Donations.Total <= 0 || u.Rank.Current == user.Unranked {
		return nil, nil
	}
	return &CurrentUserRank{Rank: u.Rank.Current, Total: u.Donations.Total}, nil
}

type NearbyStats struct {
	Donations    float64 `json:"donations"`
	Referrals    int     `json:"referrals"`
	Achievements int     `json:"achievements"`
}

type NearbyEntry struct {
	Rank          int         `json:"rank"`
	User          Card        `json:"user"`
	Stats         NearbyStats `json:"stats"`
	IsCurrentUser bool        `json:"isCurrentUser"`
}

type Nearby struct {
	CurrentUserRank int           `json:"currentUserRank"`
	NearbyUsers     []NearbyEntry `json:"nearbyUsers"`
	Category        user.Board    `json:"category"`
	Range           int           `json:"range"`
}

// Nearby lists the users within rng positions of userID. A user who is not
// on the board yet gets the top of the board and rank 0.
func (s *Service) Nearby(ctx context.Context, userID string, category user.Board, rng int) (Nearby, error) {
	if category == "" {
		category = user.BoardDonations
	}
	if !category.Valid() {
		return Nearby{}, errs.Validation("Category must be either donations or referrals")
	}
	if rng == 0 {
		rng = DefaultRange
	}
	if rng < 1 {
		return Nearby{}, errs.Validation("Range must be a positive integer")
	}
	rng = min(rng, MaxRange)

	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return Nearby{}, err
	}

	all, _, err := s.store.ListLeaders(ctx, category, 0, 0)
	if err != nil {
		return Nearby{}, fmt.Errorf("list leaders: %w", err)
	}

	pos := 0
	for i, u := range all {
		if u.ID == userID {
			pos = i + 1
			break
		}
	}
	start := max(0, pos-rng-1)
	end := min(len(all), pos+rng)

	out := Nearby{
		CurrentUserRank: pos,
		NearbyUsers:     make([]NearbyEntry, 0, max(0, end-start)),
		Category:        category,
		Range:           rng,
	}
	for i := start; i < end; i++ {
		u := all[i]
		out.NearbyUsers = append(out.NearbyUsers, NearbyEntry{
			Rank: i + 1,
			User: newCard(u),
			Stats: NearbyStats{
				Donations:    u.Donations.Total,
				Referrals:    u.Referrals.Successful,
				Achievements: len(u.Achievements),
			},
			IsCurrentUser: u.ID == userID,
		})
	}
	return out, nil
}

type RecomputeResult struct {
	UpdatedUsers int       `json:"updatedUsers"`
	Timestamp    time.Time `json:"timestamp"`
}

func (s *Service) UpdateRanks(ctx context.Context) (RecomputeResult, error) {
	n, err := s.ranker.RecomputeAllRanks(ctx)
	if err != nil {
		return RecomputeResult{}, err
	}
	return RecomputeResult{UpdatedUsers: n, Timestamp: s.now().UTC()}, nil
}

type ResetResult struct {
	ResetUsers int64     `json:"resetUsers"`
	Timestamp  time.Time `json:"timestamp"`
}

// ResetWeekly zeroes every weekly total. Ranks do not depend on it.
func (s *Service) ResetWeekly(ctx context.Context) (ResetResult, error) {
	now := s.now().UTC()
	n, err := s.store.ResetWeekly(ctx, now)
	if err != nil {
		return ResetResult{}, fmt.Errorf("reset weekly totals: %w", err)
	}
	s.log.Infow("weekly totals reset", "users", n)
	return ResetResult{ResetUsers: n, Timestamp: now}, nil
}
