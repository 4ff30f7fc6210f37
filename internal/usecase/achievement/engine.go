package achievement

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"givetrack/internal/domain/achievement"
	"givetrack/internal/domain/user"
	"givetrack/internal/notify"
)

type UserStorage interface {
	GetUserByID(ctx context.Context, id string) (user.User, error)
	AppendAchievements(ctx context.Context, id string, version int64, recs []user.UnlockedAchievement, at time.Time) error
}

type CatalogStorage interface {
	ListAchievements(ctx context.Context) ([]achievement.Definition, error)
	RecordUnlocks(ctx context.Context, ids []string, at time.Time) error
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Engine decides which achievements a user has newly earned and persists
// them. A record, once written, is never removed.
type Engine struct {
	users     UserStorage
	catalog   CatalogStorage
	tx        TxRunner
	locker    Locker
	publisher notify.Publisher
	log       *zap.SugaredLogger
	now       func() time.Time
}

func NewEngine(users UserStorage, catalog CatalogStorage, tx TxRunner, locker Locker, publisher notify.Publisher, log *zap.SugaredLogger) *Engine {
	return &Engine{
		users:     users,
		catalog:   catalog,
		tx:        tx,
		locker:    locker,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// UserLockKey scopes every read-modify-write of one user.
func UserLockKey(userID string) string {
	return "user:" + userID
}

// Unlock plans and persists the unlocks for the snapshot u. The caller holds
// the user lock and runs it inside a transaction. before, when set, is the
// snapshot prior to the update that produced u.
func (e *Engine) Unlock(ctx context.Context, u user.User, before *user.User) ([]user.UnlockedAchievement, error) {
	catalog, err := e.catalog.ListAchievements(ctx)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}

	now := e.now().UTC()
	recs := achievement.Plan(catalog, u, before, now)
	if len(recs) == 0 {
		return recs, nil
	}

	if err := e.users.AppendAchievements(ctx, u.ID, u.Version, recs, now); err != nil {
		return nil, fmt.Errorf("append achievements for %s: %w", u.ID, err)
	}

	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	if err := e.catalog.RecordUnlocks(ctx, ids, now); err != nil {
		return nil, fmt.Errorf("record unlock statistics: %w", err)
	}
	return recs, nil
}

// CheckAndUnlock evaluates the user's current standing against the catalog.
// Calling it again without a metric change returns an empty list.
func (e *Engine) CheckAndUnlock(ctx context.Context, userID string) ([]user.UnlockedAchievement, error) {
	unlock, err := e.locker.Lock(ctx, UserLockKey(userID))
	if err != nil {
		return nil, fmt.Errorf("lock user %s: %w", userID, err)
	}
	defer unlock()

	var recs []user.UnlockedAchievement
	err = e.tx.RunInTx(ctx, func(ctx context.Context) error {
		u, err := e.users.GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		recs, err = e.Unlock(ctx, u, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.PublishUnlocks(ctx, userID, recs)
	return recs, nil
}

// PublishUnlocks emits one event per record. Failures are only logged.
func (e *Engine) PublishUnlocks(ctx context.Context, userID string, recs []user.UnlockedAchievement) {
	for _, r := range recs {
		err := e.publisher.Publish(ctx, notify.Event{
			Type:    notify.EventAchievementUnlocked,
			UserID:  userID,
			Payload: r,
			At:      r.UnlockedAt,
		})
		if err != nil {
			e.log.Errorw("publish achievement unlock", "user", userID, "achievement", r.ID, "error", err)
		}
	}
}
