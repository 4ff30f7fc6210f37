package ranking

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"givetrack/internal/domain/rank"
	"givetrack/internal/notify"
)

type Storage interface {
	ListRankCandidates(ctx context.Context) ([]rank.Candidate, error)
	ApplyRanks(ctx context.Context, assignments []rank.Assignment, at time.Time) error
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

const LockKey = "ranking"

type Engine struct {
	store     Storage
	tx        TxRunner
	locker    Locker
	publisher notify.Publisher
	log       *zap.SugaredLogger
	now       func() time.Time
}

func NewEngine(store Storage, tx TxRunner, locker Locker, publisher notify.Publisher, log *zap.SugaredLogger) *Engine {
	return &Engine{
		store:     store,
		tx:        tx,
		locker:    locker,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// Recompute reassigns 1..N over all active users. The caller holds the
// ranking lock.
func (e *Engine) Recompute(ctx context.Context) (int, error) {
	candidates, err := e.store.ListRankCandidates(ctx)
	if err != nil {
		return 0, fmt.Errorf("list rank candidates: %w", err)
	}
	assignments := rank.Compute(candidates)
	if err := e.store.ApplyRanks(ctx, assignments, e.now().UTC()); err != nil {
		return 0, fmt.Errorf("apply ranks: %w", err)
	}
	return len(assignments), nil
}

// RecomputeAllRanks is the standalone entry point: it takes the ranking lock,
// recomputes in a transaction and announces the result.
func (e *Engine) RecomputeAllRanks(ctx context.Context) (int, error) {
	unlock, err := e.locker.Lock(ctx, LockKey)
	if err != nil {
		return 0, fmt.Errorf("lock ranking: %w", err)
	}
	defer unlock()

	var processed int
	err = e.tx.RunInTx(ctx, func(ctx context.Context) error {
		var txErr error
		processed, txErr = e.Recompute(ctx)
		return txErr
	})
	if err != nil {
		return 0, err
	}

	e.PublishRecomputed(ctx, processed)
	return processed, nil
}

func (e *Engine) PublishRecomputed(ctx context.Context, processed int) {
	err := e.publisher.Publish(ctx, notify.Event{
		Type:    notify.EventRanksRecomputed,
		Payload: map[string]int{"processed": processed},
		At:      e.now().UTC(),
	})
	if err != nil {
		e.log.Errorw("publish rank recompute", "error", err)
	}
}
