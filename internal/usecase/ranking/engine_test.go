package ranking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"givetrack/internal/domain/user"
	errs "givetrack/internal/errors"
	"givetrack/internal/notify"
	"givetrack/internal/repository"
)

type lastEvent struct {
	e notify.Event
}

func (l *lastEvent) Publish(_ context.Context, e notify.Event) error {
	l.e = e
	return nil
}

func TestRecomputeAllRanksTieBreak(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStorage()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"twin-b", "twin-a"} {
		require.NoError(t, store.InsertUser(ctx, user.New(id, id, id+"@example.com", "", "CODE"+id, created)))
		require.NoError(t, store.ApplyDonation(ctx, id, 500, created))
	}
	require.NoError(t, store.InsertUser(ctx, user.New("quiet", "q", "q@example.com", "", "CODEQ", created)))

	pub := &lastEvent{}
	e := NewEngine(store, store, repository.NewKeyedMutex(), pub, zap.NewNop().Sugar())

	ranks := func() map[string]int {
		out := make(map[string]int)
		for _, id := range []string{"twin-a", "twin-b", "quiet"} {
			u, err := store.GetUserByID(ctx, id)
			require.NoError(t, err)
			out[id] = u.Rank.Current
		}
		return out
	}

	n, err := e.RecomputeAllRanks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	first := ranks()
	assert.Equal(t, map[string]int{"twin-a": 1, "twin-b": 2, "quiet": 3}, first)
	assert.Equal(t, notify.EventRanksRecomputed, pub.e.Type)

	_, err = e.RecomputeAllRanks(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, ranks())
}

func TestRecomputeSkipsInactive(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStorage()
	now := time.Now()
	require.NoError(t, store.InsertUser(ctx, user.New("a", "a", "a@example.com", "", "A1", now)))
	require.NoError(t, store.InsertUser(ctx, user.New("b", "b", "b@example.com", "", "B1", now)))
	require.NoError(t, store.ApplyDonation(ctx, "a", 100, now))

	e := NewEngine(store, store, repository.NewKeyedMutex(), notify.Nop{}, zap.NewNop().Sugar())
	_, err := e.RecomputeAllRanks(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Deactivate(ctx, "a", now))
	n, err := e.RecomputeAllRanks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	b, _ := store.GetUserByID(ctx, "b")
	assert.Equal(t, 1, b.Rank.Current)
	a, _ := store.GetUserByID(ctx, "a")
	assert.Equal(t, 1, a.Rank.Current, "deactivated users keep their last rank")
}

func TestRecomputeAllRanksFailure(t *testing.T) {
	store := repository.NewMemoryStorage()
	store.FailOn["ListRankCandidates"] = true
	pub := &lastEvent{}
	e := NewEngine(store, store, repository.NewKeyedMutex(), pub, zap.NewNop().Sugar())

	_, err := e.RecomputeAllRanks(context.Background())
	require.ErrorIs(t, err, errs.ErrInternal)
	assert.Empty(t, pub.e.Type)
}
