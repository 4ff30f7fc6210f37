package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubRoutesByUser(t *testing.T) {
	h := NewHub(zap.NewNop().Sugar())
	ctx := context.Background()

	alice, cancelAlice := h.Subscribe("alice")
	defer cancelAlice()
	bob, cancelBob := h.Subscribe("bob")
	defer cancelBob()

	require.NoError(t, h.Publish(ctx, Event{Type: EventDonationRecorded, UserID: "alice"}))
	require.NoError(t, h.Publish(ctx, Event{Type: EventRanksRecomputed}))

	assert.Equal(t, EventDonationRecorded, (<-alice).Type)
	assert.Equal(t, EventRanksRecomputed, (<-alice).Type)
	assert.Equal(t, EventRanksRecomputed, (<-bob).Type)
	assert.Empty(t, bob)
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub(zap.NewNop().Sugar())
	ch, cancel := h.Subscribe("u1")
	defer cancel()

	for i := 0; i < subscriberBuffer+5; i++ {
		require.NoError(t, h.Publish(context.Background(), Event{Type: EventAchievementUnlocked, UserID: "u1"}))
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestHubCancel(t *testing.T) {
	h := NewHub(zap.NewNop().Sugar())
	ch, cancel := h.Subscribe("u1")
	assert.Equal(t, 1, h.Subscribers("u1"))

	cancel()
	cancel()
	assert.Zero(t, h.Subscribers("u1"))
	_, open := <-ch
	assert.False(t, open)

	require.NoError(t, h.Publish(context.Background(), Event{Type: EventDonationRecorded, UserID: "u1"}))
}

type failing struct{ err error }

func (f failing) Publish(context.Context, Event) error { return f.err }

func TestMulti(t *testing.T) {
	h := NewHub(zap.NewNop().Sugar())
	ch, cancel := h.Subscribe("u1")
	defer cancel()

	boom := errors.New("broker down")
	err := Multi{failing{boom}, h, Nop{}}.Publish(context.Background(), Event{Type: EventDonationRecorded, UserID: "u1"})
	require.ErrorIs(t, err, boom)
	assert.Len(t, ch, 1, "a failing publisher does not stop the others")

	require.NoError(t, Multi{Nop{}}.Publish(context.Background(), Event{}))
}

type fakeBroker struct {
	key string
	msg amqp.Publishing
}

func (f *fakeBroker) Publish(_ context.Context, routingKey string, msg amqp.Publishing) error {
	f.key = routingKey
	f.msg = msg
	return nil
}

func TestAMQPPublisher(t *testing.T) {
	b := &fakeBroker{}
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	err := NewAMQPPublisher(b).Publish(context.Background(), Event{
		Type:    EventAchievementUnlocked,
		UserID:  "u1",
		Payload: map[string]string{"id": "RISING_STAR"},
		At:      at,
	})
	require.NoError(t, err)

	assert.Equal(t, EventAchievementUnlocked, b.key)
	assert.Equal(t, "application/json", b.msg.ContentType)
	assert.Equal(t, amqp.Persistent, b.msg.DeliveryMode)
	assert.Equal(t, at, b.msg.Timestamp)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b.msg.Body, &decoded))
	assert.Equal(t, "u1", decoded["userId"])

	err = NewAMQPPublisher(b).Publish(context.Background(), Event{Type: "bad", Payload: make(chan int)})
	require.Error(t, err)
}

func TestHubServe(t *testing.T) {
	h := NewHub(zap.NewNop().Sugar())
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Serve(r.Context(), "u1", conn)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.Subscribers("u1") == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, h.Publish(context.Background(), Event{Type: EventDonationRecorded, UserID: "u1"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, EventDonationRecorded, got.Type)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.Subscribers("u1") == 0 }, time.Second, 5*time.Millisecond)
}
