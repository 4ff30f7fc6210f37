package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"givetrack/internal/domain/user"
	"givetrack/internal/middleware"
	"givetrack/internal/notify"
)

func newServer(t *testing.T, allowAnyOrigin bool) (*httptest.Server, *notify.Hub) {
	t.Helper()
	log := zap.NewNop().Sugar()
	hub := notify.NewHub(log)
	h := NewNotifyHandler(hub, allowAnyOrigin, log)

	r := chi.NewRouter()
	// X-User stands in for the session middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := user.User{ID: r.Header.Get("X-User")}
			next.ServeHTTP(w, r.WithContext(middleware.WithUser(r.Context(), u, "sid")))
		})
	})
	r.Get("/ws", h.Events)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub
}

func dial(srv *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", header)
}

func TestEventsStreamsSessionUserEvents(t *testing.T) {
	srv, hub := newServer(t, false)

	conn, _, err := dial(srv, http.Header{"X-User": {"u1"}})
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers("u1") == 1 }, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, notify.Event{Type: notify.EventDonationRecorded, UserID: "u2"}))
	require.NoError(t, hub.Publish(ctx, notify.Event{Type: notify.EventAchievementUnlocked, UserID: "u1", Payload: map[string]string{"id": "RISING_STAR"}}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got notify.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, notify.EventAchievementUnlocked, got.Type)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, map[string]any{"id": "RISING_STAR"}, got.Payload)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Subscribers("u1") == 0 }, time.Second, 5*time.Millisecond)
}

func TestEventsChecksOrigin(t *testing.T) {
	strict, _ := newServer(t, false)
	_, resp, err := dial(strict, http.Header{"X-User": {"u1"}, "Origin": {"http://elsewhere.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	open, _ := newServer(t, true)
	conn, _, err := dial(open, http.Header{"X-User": {"u1"}, "Origin": {"http://elsewhere.example"}})
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}
