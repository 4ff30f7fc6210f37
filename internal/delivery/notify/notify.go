package notify

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"givetrack/internal/middleware"
	"givetrack/internal/notify"
)

type NotifyHandler struct {
	hub      *notify.Hub
	log      *zap.SugaredLogger
	upgrader websocket.Upgrader
}

func NewNotifyHandler(hub *notify.Hub, allowAnyOrigin bool, log *zap.SugaredLogger) *NotifyHandler {
	h := &NotifyHandler{hub: hub, log: log}
	if allowAnyOrigin {
		h.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return h
}

// Events upgrades to a websocket and streams the session user's events.
func (h *NotifyHandler) Events(w http.ResponseWriter, r *http.Request) {
	current, _ := middleware.UserFromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client
		h.log.Warnw("websocket upgrade failed", "user", current.ID, "error", err)
		return
	}
	h.log.Infow("websocket connected", "user", current.ID)
	h.hub.Serve(r.Context(), current.ID, conn)
	h.log.Infow("websocket disconnected", "user", current.ID)
}
