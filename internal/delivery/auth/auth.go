package auth

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"givetrack/internal/domain/user"
	"givetrack/internal/httpresponse"
	"givetrack/internal/middleware"
	authUC "givetrack/internal/usecase/auth"
	"givetrack/internal/utils"
)

type AuthHandler struct {
	usecaseHandler *authUC.AuthUsecaseHandler
	log            *zap.SugaredLogger
	sessionTTL     time.Duration
	secureCookie   bool
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type UserView struct {
	ID           string                     `json:"id"`
	Name         string                     `json:"name"`
	Email        string                     `json:"email"`
	ReferralCode string                     `json:"referralCode"`
	Donations    user.DonationStats         `json:"donations"`
	Referrals    user.ReferralStats         `json:"referrals"`
	Achievements []user.UnlockedAchievement `json:"achievements"`
	Rank         user.Rank                  `json:"rank"`
	Progress     user.Progress              `json:"progress"`
	CreatedAt    time.Time                  `json:"createdAt"`
	LastLogin    time.Time                  `json:"lastLogin"`
}

func newUserView(u user.User) UserView {
	return UserView{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		ReferralCode: u.ReferralCode,
		Donations:    u.Donations,
		Referrals:    u.Referrals,
		Achievements: u.Achievements,
		Rank:         u.Rank,
		Progress:     u.Progress(),
		CreatedAt:    u.CreatedAt,
		LastLogin:    u.LastLogin,
	}
}

type UserResponse struct {
	User UserView `json:"user"`
}

func NewAuthHandler(uc *authUC.AuthUsecaseHandler, sessionTTL time.Duration, secureCookie bool, log *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{
		usecaseHandler: uc,
		log:            log,
		sessionTTL:     sessionTTL,
		secureCookie:   secureCookie,
	}
}

func (a *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    sessionID,
		Path:     "/",
		Expires:  time.Now().Add(a.sessionTTL),
		Secure:   a.secureCookie,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   a.secureCookie,
		HttpOnly: true,
	})
}

func (a *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		a.log.Warnw("Register: malformed JSON", "error", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: httpresponse.MALFORMEDJSON_errorDesc})
		return
	}

	sessionID, u, err := a.usecaseHandler.RegisterUser(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		a.log.Errorw("Register failed", "email", req.Email, "error", err)
		httpresponse.WriteError(w, err)
		return
	}

	a.setSessionCookie(w, sessionID)
	httpresponse.WriteResponseWithStatus(w, http.StatusCreated, UserResponse{User: newUserView(u)})
}

func (a *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		a.log.Warnw("Login: malformed JSON", "error", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: httpresponse.MALFORMEDJSON_errorDesc})
		return
	}

	sessionID, u, err := a.usecaseHandler.LoginUser(r.Context(), req.Email, req.Password)
	if err != nil {
		a.log.Warnw("Login failed", "email", req.Email, "error", err)
		httpresponse.WriteError(w, err)
		return
	}

	a.setSessionCookie(w, sessionID)
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, UserResponse{User: newUserView(u)})
}

func (a *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionFromContext(r.Context())
	if err := a.usecaseHandler.LogoutUser(r.Context(), sessionID); err != nil {
		a.log.Errorw("Logout failed", "error", err)
		httpresponse.WriteError(w, err)
		return
	}
	a.clearSessionCookie(w)
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, nil)
}

func (a *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	current, _ := middleware.UserFromContext(r.Context())
	u, err := a.usecaseHandler.Profile(r.Context(), current.ID)
	if err != nil {
		a.log.Errorw("Profile failed", "user", current.ID, "error", err)
		httpresponse.WriteError(w, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, UserResponse{User: newUserView(u)})
}

func (a *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: httpresponse.MALFORMEDJSON_errorDesc})
		return
	}
	current, _ := middleware.UserFromContext(r.Context())
	if err := a.usecaseHandler.ChangePassword(r.Context(), current.ID, req.CurrentPassword, req.NewPassword); err != nil {
		a.log.Warnw("ChangePassword failed", "user", current.ID, "error", err)
		httpresponse.WriteError(w, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, nil)
}

func (a *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	current, _ := middleware.UserFromContext(r.Context())
	sessionID := middleware.SessionFromContext(r.Context())
	if err := a.usecaseHandler.DeleteAccount(r.Context(), current.ID, sessionID); err != nil {
		a.log.Errorw("DeleteAccount failed", "user", current.ID, "error", err)
		httpresponse.WriteError(w, err)
		return
	}
	a.clearSessionCookie(w)
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, nil)
}
