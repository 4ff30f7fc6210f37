package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"givetrack/internal/domain/user"
	errs "givetrack/internal/errors"
	"givetrack/internal/httpresponse"
)

const SessionCookie = "sessionID"

type Authorizer interface {
	CheckAuthorized(ctx context.Context, sessionID string) (user.User, error)
}

type ctxKey int

const (
	userKey ctxKey = iota
	sessionKey
)

// UserFromContext returns the user resolved by Session or OptionalSession.
func UserFromContext(ctx context.Context) (user.User, bool) {
	u, ok := ctx.Value(userKey).(user.User)
	return u, ok
}

func SessionFromContext(ctx context.Context) string {
	s, _ := ctx.Value(sessionKey).(string)
	return s
}

// WithUser attaches an authenticated user to ctx.
func WithUser(ctx context.Context, u user.User, sessionID string) context.Context {
	ctx = context.WithValue(ctx, userKey, u)
	return context.WithValue(ctx, sessionKey, sessionID)
}

type SessionAuth struct {
	auth Authorizer
	log  *zap.SugaredLogger
}

func NewSessionAuth(auth Authorizer, log *zap.SugaredLogger) *SessionAuth {
	return &SessionAuth{auth: auth, log: log}
}

func (s *SessionAuth) resolve(r *http.Request) (user.User, string, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return user.User{}, "", errs.ErrUnauthorized
	}
	u, err := s.auth.CheckAuthorized(r.Context(), cookie.Value)
	if err != nil {
		return user.User{}, "", err
	}
	return u, cookie.Value, nil
}

// Session rejects requests without a live session.
func (s *SessionAuth) Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, sessionID, err := s.resolve(r)
		if err != nil {
			if !errors.Is(err, errs.ErrUnauthorized) {
				s.log.Errorw("session lookup failed", "error", err)
			}
			httpresponse.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u, sessionID)))
	})
}

// OptionalSession attaches the user when a valid session is present and
// otherwise lets the request through anonymously.
func (s *SessionAuth) OptionalSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, sessionID, err := s.resolve(r)
		if err != nil {
			if !errors.Is(err, errs.ErrUnauthorized) {
				s.log.Warnw("optional session lookup failed", "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u, sessionID)))
	})
}

// AdminToken guards operational endpoints with a shared secret sent in
// X-Admin-Token. An empty configured token locks them entirely.
func AdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Admin-Token")
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				httpresponse.WriteResponseWithStatus(w, http.StatusUnauthorized,
					httpresponse.ErrorResponse{ErrorDescription: "admin token required"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
