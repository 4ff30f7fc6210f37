package leaderboard

import (
	"net/http"

	"go.uber.org/zap"

	"givetrack/internal/delivery"
	"givetrack/internal/domain/user"
	"givetrack/internal/httpresponse"
	"givetrack/internal/middleware"
	leaderboardUC "givetrack/internal/usecase/leaderboard"
)

type LeaderboardHandler struct {
	service *leaderboardUC.Service
	log     *zap.SugaredLogger
}

func NewLeaderboardHandler(service *leaderboardUC.Service, log *zap.SugaredLogger) *LeaderboardHandler {
	return &LeaderboardHandler{service: service, log: log}
}

func (h *LeaderboardHandler) Board(w http.ResponseWriter, r *http.Request) {
	var q leaderboardUC.Query
	var err error
	if q.Page, err = delivery.QueryInt(r, "page"); err != nil {
		httpresponse.WriteError(w, err)
		return
	}
	if q.Limit, err = delivery.QueryInt(r, "limit"); err != nil {
		httpresponse.WriteError(w, err)
		return
	}
	q.Period = leaderboardUC.Period(r.URL.Query().Get("period"))
	q.Category = user.Board(r.URL.Query().Get("category"))
	if u, ok := middleware.UserFromContext(r.Context()); ok {
		q.CurrentUserID = u.ID
	}

	res, err := h.service.Board(r.Context(), q)
	if err != nil {
		h.log.Errorw("Board failed", "error", err)
		httpresponse.WriteError(w, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, res)
}

func (h *LeaderboardHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	current, _ := middleware.UserFromContext(r.Context())
	rng, err := delivery.QueryInt(r, "range")
	if err != nil {
		httpresponse.WriteError(w, err)
		return
	}
	res, err := h.service.Nearby(r.Context(), current.ID, user.Board(r.URL.Query().Get("category")), rng)
	if err != nil {
		h.log.Errorw("Nearby failed", "user", current.ID, "error", err)
		httpresponse.WriteError(w, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, res)
}

func (h *LeaderboardHandler) UpdateRanks(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.UpdateRanks(r.Context())
	if err != nil {
		h.log.Errorw("UpdateRanks failed", "error", err)
		httpresponse.WriteError(w, err)
		return
	}
	h.log.Infow("ranks recomputed", "users", res.UpdatedUsers)
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, res)
}

func (h *LeaderboardHandler) ResetWeekly(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ResetWeekly(r.Context())
	if err != nil {
		h.log.Errorw("ResetWeekly failed", "error", err)
		httpresponse.WriteError(w, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, res)
}
