package dashboard

import (
	"bytes"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"givetrack/internal/delivery"
	"givetrack/internal/domain/donation"
	"givetrack/internal/httpresponse"
	"givetrack/internal/middleware"
	"givetrack/internal/receipt"
	dashboardUC "givetrack/internal/usecase/dashboard"
	donationUC "givetrack/internal/usecase/donation"
	"givetrack/internal/utils"
)

type DashboardHandler struct {
	donations *donationUC.Service
	dashboard *dashboardUC.Service
	log       *zap.SugaredLogger
}

func NewDashboardHandler(donations *donationUC.Service, dashboard *dashboardUC.Service, log *zap.SugaredLogger) *DashboardHandler {
	return &DashboardHandler{
		donations: donations,
		dashboard: dashboard,
		log:       log,
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *DashboardHandler) UpdateDonations(w http.ResponseWriter, r *http.Request) {
	current, _ := middleware.UserFromContext(r.Context())

	var req donation.Request
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		h.log.Warnw("UpdateDonations: malformed JSON", "user", current.ID, "error", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: httpresponse.MALFORMEDJSON_errorDesc})
		return
	}
	req.Metadata = donation.Metadata{
		Platform:  "web",
		UserAgent: r.UserAgent(),
		IPAddress: clientIP(r),
	}

	res, err := h.donations.RecordDonation(r.Context(), current.ID, req)
	if err != nil {
		h.log.Errorw("UpdateDonations failed", "user", current.ID, "error", err)
		httpresponse.WriteError(w, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, res)
}

func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	current, _ := middleware.UserFromContext(r.Context())
	stats, err := h.dashboard.Stats(r.Context(), current.ID)
	if err != nil {
		h.log.Errorw("Stats failed", "user", current.ID, "error", err)
		httpresponse.WriteError(w, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, stats)
}

func (h *DashboardHandler) Achievements(w http.ResponseWriter, r *http.Request) {
	current, _ := middleware.UserFromContext(r.Context())
	res, err := h.dashboard.Achievements(r.Context(), current.ID)
	if err != nil {
		h.log.Errorw("Achievements failed", "user", current.ID, "error", err)
		httpresponse.WriteError(w, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, res)
}

func (h *DashboardHandler) historyQuery(r *http.Request) (dashboardUC.HistoryQuery, error) {
	var q dashboardUC.HistoryQuery
	var err error
	if q.Page, err = delivery.QueryInt(r, "page"); err != nil {
		return q, err
	}
	if q.Limit, err = delivery.QueryInt(r, "limit"); err != nil {
		return q, err
	}
	if q.From, err = delivery.QueryTime(r, "startDate"); err != nil {
		return q, err
	}
	if q.To, err = delivery.QueryTime(r, "endDate"); err != nil {
		return q, err
	}
	q.Status = donation.Status(r.URL.Query().Get("status"))
	q.Source = donation.Source(r.URL.Query().Get("source"))
	return q, nil
}

func (h *DashboardHandler) Donations(w http.ResponseWriter, r *http.Request) {
	current, _ := middleware.UserFromContext(r.Context())
	q, err := h.historyQuery(r)
	if err != nil {
		httpresponse.WriteError(w, err)
		return
	}
	res, err := h.dashboard.Donations(r.Context(), current.ID, q)
	if err != nil {
		h.log.Errorw("Donations failed", "user", current.ID, "error", err)
		httpresponse.WriteError(w, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, res)
}

func (h *DashboardHandler) Referrals(w http.ResponseWriter, r *http.Request) {
	current, _ := middleware.UserFromContext(r.Context())
	res, err := h.dashboard.Referrals(r.Context(), current.ID)
	if err != nil {
		h.log.Errorw("Referrals failed", "user", current.ID, "error", err)
		httpresponse.WriteError(w, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, res)
}

func (h *DashboardHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	current, _ := middleware.UserFromContext(r.Context())
	id := chi.URLParam(r, "id")

	d, u, err := h.dashboard.Donation(r.Context(), current.ID, id)
	if err != nil {
		h.log.Warnw("Receipt lookup failed", "user", current.ID, "donation", id, "error", err)
		httpresponse.WriteError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := receipt.Render(&buf, d, u); err != nil {
		h.log.Errorw("Receipt render failed", "donation", id, "error", err)
		httpresponse.WriteInternalErrorResponse(w)
		return
	}
	w.Header().Set("Content-Type", receipt.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+receipt.Filename(d)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Refund is an admin operation and is not scoped to the session user.
func (h *DashboardHandler) Refund(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := h.donations.RefundDonation(r.Context(), id)
	if err != nil {
		h.log.Errorw("Refund failed", "donation", id, "error", err)
		httpresponse.WriteError(w, err)
		return
	}
	h.log.Infow("donation refunded", "donation", id, "user", d.UserID, "amount", d.Amount)
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, d)
}
