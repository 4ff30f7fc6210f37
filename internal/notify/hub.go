package notify

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	subscriberBuffer = 16
	writeWait        = 10 * time.Second
	pingPeriod       = 30 * time.Second
)

// Hub keeps the live subscribers per user. A subscriber that cannot keep up
// loses events rather than blocking the publisher.
type Hub struct {
	log  *zap.SugaredLogger
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		log:  log,
		subs: make(map[string]map[chan Event]struct{}),
	}
}

func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan Event]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Publish(ctx context.Context, e Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if e.UserID != "" {
		h.deliver(h.subs[e.UserID], e)
		return nil
	}
	for _, set := range h.subs {
		h.deliver(set, e)
	}
	return nil
}

func (h *Hub) deliver(set map[chan Event]struct{}, e Event) {
	for ch := range set {
		select {
		case ch <- e:
		default:
			h.log.Warnw("dropping event for slow subscriber", "type", e.Type, "user", e.UserID)
		}
	}
}

// Subscribers is the number of live subscriptions for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Serve pumps the user's events into conn until the peer goes away or ctx
// is done. It closes conn.
func (h *Hub) Serve(ctx context.Context, userID string, conn *websocket.Conn) {
	events, cancel := h.Subscribe(userID)
	defer cancel()
	defer conn.Close()

	// the read side only has to notice the close frame
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case e := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				h.log.Errorw("websocket write failed", "user", userID, "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
