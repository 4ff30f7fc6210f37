package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"givetrack/internal/domain/achievement"
	"givetrack/internal/domain/donation"
	"givetrack/internal/domain/rank"
	"givetrack/internal/domain/user"
	errs "givetrack/internal/errors"
)

// MemoryStorage keeps users, donations and the achievement catalog in maps.
// It is used by tests and local runs without Mongo. Transactions are
// serialized and roll back by restoring a snapshot, so writes outside a
// transaction wait for the running one to finish.
type MemoryStorage struct {
	mu           sync.RWMutex
	txMu         sync.Mutex
	users        map[string]user.User
	donations    map[string]donation.Donation
	achievements map[string]achievement.Definition
	// FailOn makes the named operation return ErrInternal. Tests only.
	FailOn map[string]bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:        make(map[string]user.User),
		donations:    make(map[string]donation.Donation),
		achievements: make(map[string]achievement.Definition),
		FailOn:       make(map[string]bool),
	}
}

type memoryTxKey struct{}

func (m *MemoryStorage) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memoryTxKey{}) == m {
		return fn(ctx)
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	users, donations, achievements := m.snapshot()
	m.mu.RUnlock()

	if err := fn(context.WithValue(ctx, memoryTxKey{}, m)); err != nil {
		m.mu.Lock()
		m.users, m.donations, m.achievements = users, donations, achievements
		m.mu.Unlock()
		return err
	}
	return nil
}

// lockWrite takes the write lock. Outside a transaction it first takes txMu,
// otherwise a rollback would restore over the write.
func (m *MemoryStorage) lockWrite(ctx context.Context) (unlock func()) {
	inTx := ctx.Value(memoryTxKey{}) == m
	if !inTx {
		m.txMu.Lock()
	}
	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		if !inTx {
			m.txMu.Unlock()
		}
	}
}

func (m *MemoryStorage) snapshot() (map[string]user.User, map[string]donation.Donation, map[string]achievement.Definition) {
	users := make(map[string]user.User, len(m.users))
	for k, v := range m.users {
		users[k] = cloneUser(v)
	}
	donations := make(map[string]donation.Donation, len(m.donations))
	for k, v := range m.donations {
		donations[k] = v
	}
	achievements := make(map[string]achievement.Definition, len(m.achievements))
	for k, v := range m.achievements {
		achievements[k] = v
	}
	return users, donations, achievements
}

func cloneUser(u user.User) user.User {
	u.Achievements = append([]user.UnlockedAchievement(nil), u.Achievements...)
	return u
}

func (m *MemoryStorage) fail(op string) error {
	if m.FailOn[op] {
		return fmt.Errorf("%s: %w", op, errs.ErrInternal)
	}
	return nil
}

// users

func (m *MemoryStorage) InsertUser(ctx context.Context, u user.User) error {
	defer m.lockWrite(ctx)()
	if err := m.fail("InsertUser"); err != nil {
		return err
	}
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return errs.ErrUserExists
		}
		if u.ReferralCode != "" && existing.ReferralCode == u.ReferralCode {
			return fmt.Errorf("referral code %s: %w", u.ReferralCode, errs.ErrConflict)
		}
	}
	if _, ok := m.users[u.ID]; ok {
		return errs.ErrUserExists
	}
	m.users[u.ID] = cloneUser(u)
	return nil
}

func (m *MemoryStorage) GetUserByID(ctx context.Context, id string) (user.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("GetUserByID"); err != nil {
		return user.User{}, err
	}
	u, ok := m.users[id]
	if !ok {
		return user.User{}, errs.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (m *MemoryStorage) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return user.User{}, errs.ErrUserNotFound
}

func (m *MemoryStorage) GetUserByReferralCode(ctx context.Context, code string) (user.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("GetUserByReferralCode"); err != nil {
		return user.User{}, err
	}
	for _, u := range m.users {
		if u.ReferralCode == code {
			return cloneUser(u), nil
		}
	}
	return user.User{}, errs.ErrUserNotFound
}

func (m *MemoryStorage) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	_, err := m.GetUserByReferralCode(ctx, code)
	if err == nil {
		return true, nil
	}
	if err == errs.ErrUserNotFound {
		return false, nil
	}
	return false, err
}

func (m *MemoryStorage) update(ctx context.Context, op, id string, fn func(u *user.User)) error {
	defer m.lockWrite(ctx)()
	if err := m.fail(op); err != nil {
		return err
	}
	u, ok := m.users[id]
	if !ok {
		return errs.ErrUserNotFound
	}
	u = cloneUser(u)
	fn(&u)
	m.users[id] = u
	return nil
}

func (m *MemoryStorage) SetPasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	return m.update(ctx, "SetPasswordHash", id, func(u *user.User) {
		u.PasswordHash = hash
		u.UpdatedAt = at
	})
}

func (m *MemoryStorage) ApplyDonation(ctx context.Context, id string, amount float64, at time.Time) error {
	return m.update(ctx, "ApplyDonation", id, func(u *user.User) {
		u.ApplyDonation(amount, at)
	})
}

func (m *MemoryStorage) RevertDonation(ctx context.Context, id string, amount float64, at time.Time) error {
	return m.update(ctx, "RevertDonation", id, func(u *user.User) {
		u.RevertDonation(amount, at)
	})
}

func (m *MemoryStorage) IncrementReferrals(ctx context.Context, id string, at time.Time) error {
	return m.update(ctx, "IncrementReferrals", id, func(u *user.User) {
		u.Referrals.Count++
		u.Referrals.Successful++
		u.UpdatedAt = at
	})
}

func (m *MemoryStorage) AppendAchievements(ctx context.Context, id string, version int64, recs []user.UnlockedAchievement, at time.Time) error {
	defer m.lockWrite(ctx)()
	if err := m.fail("AppendAchievements"); err != nil {
		return err
	}
	u, ok := m.users[id]
	if !ok {
		return errs.ErrUserNotFound
	}
	if u.Version != version {
		return fmt.Errorf("user %s version %d: %w", id, version, errs.ErrConflict)
	}
	for _, rec := range recs {
		if u.HasAchievement(rec.ID) {
			return fmt.Errorf("achievement %s already unlocked: %w", rec.ID, errs.ErrConflict)
		}
	}
	u = cloneUser(u)
	u.Achievements = append(u.Achievements, recs...)
	u.Version++
	u.UpdatedAt = at
	m.users[id] = u
	return nil
}

func (m *MemoryStorage) ListRankCandidates(ctx context.Context) ([]rank.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("ListRankCandidates"); err != nil {
		return nil, err
	}
	out := make([]rank.Candidate, 0, len(m.users))
	for _, u := range m.users {
		if !u.IsActive {
			continue
		}
		out = append(out, rank.Candidate{UserID: u.ID, Total: u.Donations.Total, CreatedAt: u.CreatedAt, Best: u.Rank.Best})
	}
	sort.Slice(out, func(i, j int) bool { return rank.Less(out[i], out[j]) })
	return out, nil
}

func (m *MemoryStorage) ApplyRanks(ctx context.Context, assignments []rank.Assignment, at time.Time) error {
	defer m.lockWrite(ctx)()
	if err := m.fail("ApplyRanks"); err != nil {
		return err
	}
	for _, a := range assignments {
		u, ok := m.users[a.UserID]
		if !ok {
			continue
		}
		u.Rank.Current = a.Current
		u.Rank.Best = min(u.Rank.Best, a.Best)
		u.Rank.LastUpdated = at
		m.users[a.UserID] = u
	}
	return nil
}

func (m *MemoryStorage) Deactivate(ctx context.Context, id string, at time.Time) error {
	return m.update(ctx, "Deactivate", id, func(u *user.User) {
		u.IsActive = false
		u.UpdatedAt = at
	})
}

func (m *MemoryStorage) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return m.update(ctx, "TouchLogin", id, func(u *user.User) {
		u.LastLogin = at
	})
}

func (m *MemoryStorage) ResetWeekly(ctx context.Context, at time.Time) (int64, error) {
	defer m.lockWrite(ctx)()
	var n int64
	for id, u := range m.users {
		if u.Donations.Weekly == 0 {
			continue
		}
		u.Donations.Weekly = 0
		u.UpdatedAt = at
		m.users[id] = u
		n++
	}
	return n, nil
}

func (m *MemoryStorage) CountActive(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, u := range m.users {
		if u.IsActive {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStorage) leaders(board user.Board) []user.User {
	out := make([]user.User, 0)
	for _, u := range m.users {
		if u.IsActive && board.Score(u) > 0 {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return user.BoardLess(board, out[i], out[j]) })
	return out
}

func (m *MemoryStorage) ListLeaders(ctx context.Context, board user.Board, skip, limit int) ([]user.User, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("ListLeaders"); err != nil {
		return nil, 0, err
	}
	all := m.leaders(board)
	return page(all, skip, limit), int64(len(all)), nil
}

func (m *MemoryStorage) GetUsersByIDs(ctx context.Context, ids []string) (map[string]user.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]user.User, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out[id] = cloneUser(u)
		}
	}
	return out, nil
}

func (m *MemoryStorage) LeaderStats(ctx context.Context) (user.BoardStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stats user.BoardStats
	for _, u := range m.leaders(user.BoardDonations) {
		stats.TotalDonations += u.Donations.Total
		stats.MaxDonations = max(stats.MaxDonations, u.Donations.Total)
		stats.ActiveUsers++
	}
	if stats.ActiveUsers > 0 {
		stats.AverageDonations = stats.TotalDonations / float64(stats.ActiveUsers)
	}
	return stats, nil
}

// donations

func (m *MemoryStorage) InsertDonation(ctx context.Context, d donation.Donation) error {
	defer m.lockWrite(ctx)()
	if err := m.fail("InsertDonation"); err != nil {
		return err
	}
	if _, ok := m.donations[d.ID]; ok {
		return fmt.Errorf("donation %s: %w", d.ID, errs.ErrConflict)
	}
	m.donations[d.ID] = d
	return nil
}

func (m *MemoryStorage) GetDonation(ctx context.Context, id string) (donation.Donation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.donations[id]
	if !ok {
		return donation.Donation{}, errs.ErrDonationNotFound
	}
	return d, nil
}

// SetDonationStatus is the only mutation a donation record allows.
func (m *MemoryStorage) SetDonationStatus(ctx context.Context, id string, status donation.Status) error {
	defer m.lockWrite(ctx)()
	if err := m.fail("SetDonationStatus"); err != nil {
		return err
	}
	d, ok := m.donations[id]
	if !ok {
		return errs.ErrDonationNotFound
	}
	d.Status = status
	m.donations[id] = d
	return nil
}

func (m *MemoryStorage) filtered(f donation.Filter) []donation.Donation {
	out := make([]donation.Donation, 0)
	for _, d := range m.donations {
		if f.Match(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (m *MemoryStorage) ListDonations(ctx context.Context, f donation.Filter, skip, limit int) ([]donation.Donation, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("ListDonations"); err != nil {
		return nil, 0, err
	}
	all := m.filtered(f)
	return page(all, skip, limit), int64(len(all)), nil
}

func (m *MemoryStorage) DonationStats(ctx context.Context, f donation.Filter) (donation.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stats donation.Stats
	for i, d := range m.filtered(f) {
		stats.TotalAmount += d.Amount
		stats.TotalDonations++
		if i == 0 || d.Amount > stats.MaxAmount {
			stats.MaxAmount = d.Amount
		}
		if i == 0 || d.Amount < stats.MinAmount {
			stats.MinAmount = d.Amount
		}
	}
	if stats.TotalDonations > 0 {
		stats.AverageAmount = stats.TotalAmount / float64(stats.TotalDonations)
	}
	return stats, nil
}

func (m *MemoryStorage) DailyTotals(ctx context.Context, userID string, since time.Time) ([]donation.DayTotal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f := donation.Filter{UserID: userID, Status: donation.StatusCompleted, From: since}
	byDay := make(map[string]*donation.DayTotal)
	for _, d := range m.filtered(f) {
		day := d.CreatedAt.UTC().Format(time.DateOnly)
		t, ok := byDay[day]
		if !ok {
			t = &donation.DayTotal{Day: day}
			byDay[day] = t
		}
		t.TotalAmount += d.Amount
		t.Count++
	}
	out := make([]donation.DayTotal, 0, len(byDay))
	for _, t := range byDay {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

func (m *MemoryStorage) DonorTotalsSince(ctx context.Context, since time.Time) ([]donation.DonorTotal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("DonorTotalsSince"); err != nil {
		return nil, err
	}
	byUser := make(map[string]*donation.DonorTotal)
	for _, d := range m.filtered(donation.Filter{Status: donation.StatusCompleted, From: since}) {
		t, ok := byUser[d.UserID]
		if !ok {
			t = &donation.DonorTotal{UserID: d.UserID}
			byUser[d.UserID] = t
		}
		t.TotalAmount += d.Amount
		t.DonationCount++
	}
	out := make([]donation.DonorTotal, 0, len(byUser))
	for _, t := range byUser {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalAmount != out[j].TotalAmount {
			return out[i].TotalAmount > out[j].TotalAmount
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// achievements

func (m *MemoryStorage) ListAchievements(ctx context.Context) ([]achievement.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("ListAchievements"); err != nil {
		return nil, err
	}
	out := make([]achievement.Definition, 0, len(m.achievements))
	for _, def := range m.achievements {
		out = append(out, def)
	}
	achievement.SortCatalog(out)
	return out, nil
}

func (m *MemoryStorage) RecordUnlocks(ctx context.Context, ids []string, at time.Time) error {
	defer m.lockWrite(ctx)()
	if err := m.fail("RecordUnlocks"); err != nil {
		return err
	}
	for _, id := range ids {
		def, ok := m.achievements[id]
		if !ok {
			return fmt.Errorf("%s: %w", id, errs.ErrAchievementNotFound)
		}
		def.Statistics.TotalUnlocked++
		t := at
		def.Statistics.LastUnlockedAt = &t
		m.achievements[id] = def
	}
	return nil
}

func (m *MemoryStorage) UpsertAchievements(ctx context.Context, defs []achievement.Definition) error {
	defer m.lockWrite(ctx)()
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return fmt.Errorf("achievement %s: %w", def.ID, err)
		}
		if existing, ok := m.achievements[def.ID]; ok {
			def.Statistics = existing.Statistics
		}
		m.achievements[def.ID] = def
	}
	return nil
}

func page[T any](all []T, skip, limit int) []T {
	if skip >= len(all) {
		return []T{}
	}
	if skip < 0 {
		skip = 0
	}
	end := len(all)
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	return all[skip:end]
}

// sessions

type SessionMapStorage struct {
	mu       sync.RWMutex
	sessions map[string]string
}

func NewSessionMapStorage() *SessionMapStorage {
	return &SessionMapStorage{sessions: make(map[string]string)}
}

func (s *SessionMapStorage) GetUserIdBySession(ctx context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.sessions[sessionID]; ok {
		return v, nil
	}
	return "", errs.ErrSessionNotFound
}

func (s *SessionMapStorage) StoreSession(ctx context.Context, sessionID string, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = userID
	return nil
}

func (s *SessionMapStorage) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return errs.ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}
