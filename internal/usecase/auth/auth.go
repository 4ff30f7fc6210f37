package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	userDomain "givetrack/internal/domain/user"
	errs "givetrack/internal/errors"
	achievementUC "givetrack/internal/usecase/achievement"
	"givetrack/internal/usecase/ranking"
)

const (
	minNameLength     = 2
	maxNameLength     = 50
	minPasswordLength = 6
	referralPrefixLen = 4
	referralSuffixLen = 4
	maxCodeAttempts   = 10
)

type UserStorage interface {
	InsertUser(ctx context.Context, u userDomain.User) error
	GetUserByID(ctx context.Context, id string) (userDomain.User, error)
	GetUserByEmail(ctx context.Context, email string) (userDomain.User, error)
	ReferralCodeExists(ctx context.Context, code string) (bool, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
	Deactivate(ctx context.Context, id string, at time.Time) error
	SetPasswordHash(ctx context.Context, id, hash string, at time.Time) error
}

type SessionStorage interface {
	GetUserIdBySession(ctx context.Context, sessionID string) (string, error)
	StoreSession(ctx context.Context, sessionID string, userID string) error
	DeleteSession(ctx context.Context, sessionID string) error
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Ranker recomputes inside the caller's transaction.
type Ranker interface {
	Recompute(ctx context.Context) (int, error)
	PublishRecomputed(ctx context.Context, processed int)
}

type AuthUsecaseHandler struct {
	userStorage    UserStorage
	sessionStorage SessionStorage
	tx             TxRunner
	locker         Locker
	ranker         Ranker
	log            *zap.SugaredLogger
	bcryptCost     int
	now            func() time.Time
}

func NewAuthUsecaseHandler(u UserStorage, s SessionStorage, tx TxRunner, locker Locker, ranker Ranker, log *zap.SugaredLogger) *AuthUsecaseHandler {
	return &AuthUsecaseHandler{
		userStorage:    u,
		sessionStorage: s,
		tx:             tx,
		locker:         locker,
		ranker:         ranker,
		log:            log,
		bcryptCost:     bcrypt.DefaultCost,
		now:            time.Now,
	}
}

// WithBcryptCost lowers hashing cost, for tests.
func (a *AuthUsecaseHandler) WithBcryptCost(cost int) *AuthUsecaseHandler {
	a.bcryptCost = cost
	return a
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", errs.Validation("Please provide a valid email")
	}
	return email, nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < minNameLength || n > maxNameLength {
		return "", errs.Validation("Name must be between 2 and 50 characters")
	}
	return name, nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return errs.Validation("Password must be at least 6 characters long")
	}
	var lower, upper, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !lower || !upper || !digit {
		return errs.Validation("Password must contain at least one lowercase letter, one uppercase letter, and one number")
	}
	return nil
}

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]+`)

func referralPrefix(name string) string {
	prefix := strings.ToUpper(nonAlnum.ReplaceAllString(name, ""))
	if len(prefix) > referralPrefixLen {
		prefix = prefix[:referralPrefixLen]
	}
	if prefix == "" {
		prefix = "GIVE"
	}
	return prefix
}

func referralSuffix() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:referralSuffixLen])
}

// generateReferralCode draws suffixes until the code is free.
func (a *AuthUsecaseHandler) generateReferralCode(ctx context.Context, name string) (string, error) {
	prefix := referralPrefix(name)
	for i := 0; i < maxCodeAttempts; i++ {
		code := prefix + referralSuffix()
		exists, err := a.userStorage.ReferralCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check referral code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free referral code for prefix %s: %w", prefix, errs.ErrConflict)
}

func (a *AuthUsecaseHandler) RegisterUser(ctx context.Context, name, email, password string) (string, userDomain.User, error) {
	name, err := validateName(name)
	if err != nil {
		return "", userDomain.User{}, err
	}
	email, err = normalizeEmail(email)
	if err != nil {
		return "", userDomain.User{}, err
	}
	if err = validatePassword(password); err != nil {
		return "", userDomain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.bcryptCost)
	if err != nil {
		return "", userDomain.User{}, fmt.Errorf("hash password: %w", err)
	}

	var u userDomain.User
	for attempt := 0; ; attempt++ {
		code, err := a.generateReferralCode(ctx, name)
		if err != nil {
			return "", userDomain.User{}, err
		}
		u = userDomain.New(uuid.NewString(), name, email, string(hash), code, a.now().UTC())
		err = a.userStorage.InsertUser(ctx, u)
		if err == nil {
			break
		}
		// a concurrent registration took the code between check and insert
		if errors.Is(err, errs.ErrConflict) && !errors.Is(err, errs.ErrUserExists) && attempt < maxCodeAttempts {
			continue
		}
		return "", userDomain.User{}, err
	}

	sessionID := uuid.NewString()
	if err = a.sessionStorage.StoreSession(ctx, sessionID, u.ID); err != nil {
		return "", userDomain.User{}, fmt.Errorf("store session: %w", err)
	}
	return sessionID, u, nil
}

func (a *AuthUsecaseHandler) LoginUser(ctx context.Context, email, password string) (string, userDomain.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", userDomain.User{}, err
	}
	if password == "" {
		return "", userDomain.User{}, errs.Validation("Password is required")
	}

	u, err := a.userStorage.GetUserByEmail(ctx, email)
	if errors.Is(err, errs.ErrUserNotFound) {
		return "", userDomain.User{}, errs.ErrWrongPassword
	}
	if err != nil {
		return "", userDomain.User{}, err
	}
	if !u.IsActive {
		return "", userDomain.User{}, errs.ErrUserDeactivated
	}
	if err = bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", userDomain.User{}, errs.ErrWrongPassword
	}

	now := a.now().UTC()
	if err = a.userStorage.TouchLogin(ctx, u.ID, now); err != nil {
		a.log.Warnw("failed to record login time", "user", u.ID, "error", err)
	}
	u.LastLogin = now

	sessionID := uuid.NewString()
	if err = a.sessionStorage.StoreSession(ctx, sessionID, u.ID); err != nil {
		return "", userDomain.User{}, fmt.Errorf("store session: %w", err)
	}
	return sessionID, u, nil
}

// CheckAuthorized resolves a session to an active user.
func (a *AuthUsecaseHandler) CheckAuthorized(ctx context.Context, sessionID string) (userDomain.User, error) {
	userID, err := a.sessionStorage.GetUserIdBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, errs.ErrSessionNotFound) {
			return userDomain.User{}, errs.ErrUnauthorized
		}
		return userDomain.User{}, err
	}
	u, err := a.userStorage.GetUserByID(ctx, userID)
	if errors.Is(err, errs.ErrUserNotFound) {
		return userDomain.User{}, errs.ErrUnauthorized
	}
	if err != nil {
		return userDomain.User{}, err
	}
	if !u.IsActive {
		return userDomain.User{}, errs.ErrUserDeactivated
	}
	return u, nil
}

func (a *AuthUsecaseHandler) LogoutUser(ctx context.Context, sessionID string) error {
	return a.sessionStorage.DeleteSession(ctx, sessionID)
}

func (a *AuthUsecaseHandler) Profile(ctx context.Context, userID string) (userDomain.User, error) {
	return a.userStorage.GetUserByID(ctx, userID)
}

func (a *AuthUsecaseHandler) ChangePassword(ctx context.Context, userID, current, next string) error {
	if current == "" || next == "" {
		return errs.Validation("Current password and new password are required")
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	u, err := a.userStorage.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err = bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)); err != nil {
		return errs.ErrWrongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), a.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return a.userStorage.SetPasswordHash(ctx, userID, string(hash), a.now().UTC())
}

// DeleteAccount soft-deletes the user and re-ranks the remaining active users
// in one transaction, then ends the session. The departed user keeps their
// last rank values.
func (a *AuthUsecaseHandler) DeleteAccount(ctx context.Context, userID, sessionID string) error {
	unlockUser, err := a.locker.Lock(ctx, achievementUC.UserLockKey(userID))
	if err != nil {
		return fmt.Errorf("lock user %s: %w", userID, err)
	}
	defer unlockUser()

	unlockRanking, err := a.locker.Lock(ctx, ranking.LockKey)
	if err != nil {
		return fmt.Errorf("lock ranking: %w", err)
	}
	defer unlockRanking()

	var processed int
	err = a.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := a.userStorage.Deactivate(ctx, userID, a.now().UTC()); err != nil {
			return err
		}
		var err error
		if processed, err = a.ranker.Recompute(ctx); err != nil {
			return fmt.Errorf("recompute ranks: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := a.sessionStorage.DeleteSession(ctx, sessionID); err != nil && !errors.Is(err, errs.ErrSessionNotFound) {
		a.log.Warnw("failed to drop session of deleted account", "user", userID, "error", err)
	}
	a.ranker.PublishRecomputed(ctx, processed)
	return nil
}
