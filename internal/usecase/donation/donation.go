package donation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"givetrack/internal/domain/achievement"
	"givetrack/internal/domain/donation"
	"givetrack/internal/domain/user"
	errs "givetrack/internal/errors"
	"givetrack/internal/notify"
	achievementUC "givetrack/internal/usecase/achievement"
	"givetrack/internal/usecase/ranking"
)

type Storage interface {
	InsertDonation(ctx context.Context, d donation.Donation) error
	GetUserByID(ctx context.Context, id string) (user.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (user.User, error)
	ApplyDonation(ctx context.Context, id string, amount float64, at time.Time) error
	GetDonation(ctx context.Context, id string) (donation.Donation, error)
	SetDonationStatus(ctx context.Context, id string, status donation.Status) error
	RevertDonation(ctx context.Context, id string, amount float64, at time.Time) error
	IncrementReferrals(ctx context.Context, id string, at time.Time) error
	ListAchievements(ctx context.Context) ([]achievement.Definition, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type Service struct {
	store     Storage
	tx        TxRunner
	locker    Locker
	unlocker  *achievementUC.Engine
	ranker    *ranking.Engine
	publisher notify.Publisher
	log       *zap.SugaredLogger
	now       func() time.Time
}

func NewService(store Storage, tx TxRunner, locker Locker, unlocker *achievementUC.Engine, ranker *ranking.Engine, publisher notify.Publisher, log *zap.SugaredLogger) *Service {
	return &Service{
		store:     store,
		tx:        tx,
		locker:    locker,
		unlocker:  unlocker,
		ranker:    ranker,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

type Result struct {
	Donation        donation.Donation            `json:"donation"`
	User            user.User                    `json:"user"`
	NewAchievements []user.UnlockedAchievement   `json:"newAchievements"`
	NextAchievement *achievement.NextAchievement `json:"nextAchievement"`
	Progress        user.Progress                `json:"progress"`
	RanksProcessed  int                          `json:"-"`
}

// RecordDonation stores a completed donation and brings the donor's totals,
// achievements and every active rank up to date in one transaction. Referral
// credit is applied afterwards and never fails the donation.
func (s *Service) RecordDonation(ctx context.Context, userID string, req donation.Request) (Result, error) {
	req, err := req.Normalize()
	if err != nil {
		return Result{}, err
	}

	referrer := s.resolveReferrer(ctx, userID, req.ReferralCode)

	res, err := s.record(ctx, userID, req, referrer)
	if err != nil {
		return Result{}, err
	}

	if referrer != nil {
		s.creditReferrer(ctx, referrer.ID)
	}

	s.publish(ctx, res)
	return res, nil
}

// resolveReferrer returns nil for an empty, unknown or self-owned code.
func (s *Service) resolveReferrer(ctx context.Context, userID, code string) *user.User {
	if code == "" {
		return nil
	}
	ref, err := s.store.GetUserByReferralCode(ctx, code)
	if err != nil {
		if !errors.Is(err, errs.ErrUserNotFound) {
			s.log.Errorw("referral lookup failed", "code", code, "error", err)
		}
		return nil
	}
	if ref.ID == userID || !ref.IsActive {
		return nil
	}
	return &ref
}

func (s *Service) record(ctx context.Context, userID string, req donation.Request, referrer *user.User) (Result, error) {
	unlockUser, err := s.locker.Lock(ctx, achievementUC.UserLockKey(userID))
	if err != nil {
		return Result{}, fmt.Errorf("lock user %s: %w", userID, err)
	}
	defer unlockUser()

	unlockRanking, err := s.locker.Lock(ctx, ranking.LockKey)
	if err != nil {
		return Result{}, fmt.Errorf("lock ranking: %w", err)
	}
	defer unlockRanking()

	var res Result
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		res = Result{}
		before, err := s.store.GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		if !before.IsActive {
			return errs.ErrUserDeactivated
		}

		now := s.now().UTC()
		d := donation.Donation{
			ID:        uuid.NewString(),
			UserID:    userID,
			Amount:    req.Amount,
			Source:    req.Source,
			Notes:     req.Notes,
			Status:    donation.StatusCompleted,
			Metadata:  req.Metadata,
			CreatedAt: now,
		}
		if referrer != nil {
			d.ReferralCode = req.ReferralCode
			d.ReferredBy = referrer.ID
		}
		if err := s.store.InsertDonation(ctx, d); err != nil {
			return fmt.Errorf("insert donation: %w", err)
		}
		if err := s.store.ApplyDonation(ctx, userID, d.Amount, now); err != nil {
			return fmt.Errorf("apply donation: %w", err)
		}

		after := before
		after.ApplyDonation(d.Amount, now)
		recs, err := s.unlocker.Unlock(ctx, after, &before)
		if err != nil {
			return err
		}

		processed, err := s.ranker.Recompute(ctx)
		if err != nil {
			return err
		}

		refreshed, err := s.store.GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		catalog, err := s.store.ListAchievements(ctx)
		if err != nil {
			return err
		}

		res = Result{
			Donation:        d,
			User:            refreshed,
			NewAchievements: recs,
			NextAchievement: achievement.Next(catalog, refreshed),
			Progress:        refreshed.Progress(),
			RanksProcessed:  processed,
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// RefundDonation marks a completed donation refunded and takes its amount back
// out of the donor's totals. Ranks are recomputed in the same transaction.
// Achievements and referral credit already granted are kept.
func (s *Service) RefundDonation(ctx context.Context, donationID string) (donation.Donation, error) {
	d, err := s.store.GetDonation(ctx, donationID)
	if err != nil {
		return donation.Donation{}, err
	}

	unlockUser, err := s.locker.Lock(ctx, achievementUC.UserLockKey(d.UserID))
	if err != nil {
		return donation.Donation{}, fmt.Errorf("lock user %s: %w", d.UserID, err)
	}
	defer unlockUser()

	unlockRanking, err := s.locker.Lock(ctx, ranking.LockKey)
	if err != nil {
		return donation.Donation{}, fmt.Errorf("lock ranking: %w", err)
	}
	defer unlockRanking()

	var processed int
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.store.GetDonation(ctx, donationID)
		if err != nil {
			return err
		}
		if current.Status != donation.StatusCompleted {
			return fmt.Errorf("donation %s is %s: %w", donationID, current.Status, errs.ErrConflict)
		}

		now := s.now().UTC()
		if err := s.store.SetDonationStatus(ctx, donationID, donation.StatusRefunded); err != nil {
			return fmt.Errorf("set donation status: %w", err)
		}
		if err := s.store.RevertDonation(ctx, current.UserID, current.Amount, now); err != nil {
			return fmt.Errorf("revert donation: %w", err)
		}
		if processed, err = s.ranker.Recompute(ctx); err != nil {
			return err
		}
		current.Status = donation.StatusRefunded
		d = current
		return nil
	})
	if err != nil {
		return donation.Donation{}, err
	}

	err = s.publisher.Publish(ctx, notify.Event{
		Type:    notify.EventDonationRefunded,
		UserID:  d.UserID,
		Payload: map[string]any{"donation": d},
		At:      s.now().UTC(),
	})
	if err != nil {
		s.log.Errorw("publish refund", "donation", d.ID, "error", err)
	}
	s.ranker.PublishRecomputed(ctx, processed)
	return d, nil
}

// creditReferrer bumps the referral counters and runs the unlock check for
// the referrer. Failures are logged only.
func (s *Service) creditReferrer(ctx context.Context, referrerID string) {
	unlock, err := s.locker.Lock(ctx, achievementUC.UserLockKey(referrerID))
	if err != nil {
		s.log.Errorw("lock referrer", "referrer", referrerID, "error", err)
		return
	}
	defer unlock()

	var recs []user.UnlockedAchievement
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		before, err := s.store.GetUserByID(ctx, referrerID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := s.store.IncrementReferrals(ctx, referrerID, now); err != nil {
			return err
		}
		after := before
		after.Referrals.Count++
		after.Referrals.Successful++
		recs, err = s.unlocker.Unlock(ctx, after, &before)
		return err
	})
	if err != nil {
		s.log.Errorw("credit referrer", "referrer", referrerID, "error", err)
		return
	}
	s.unlocker.PublishUnlocks(ctx, referrerID, recs)
}

func (s *Service) publish(ctx context.Context, res Result) {
	err := s.publisher.Publish(ctx, notify.Event{
		Type:   notify.EventDonationRecorded,
		UserID: res.Donation.UserID,
		Payload: map[string]any{
			"donation": res.Donation,
			"rank":     res.User.Rank,
		},
		At: res.Donation.CreatedAt,
	})
	if err != nil {
		s.log.Errorw("publish donation", "donation", res.Donation.ID, "error", err)
	}
	s.unlocker.PublishUnlocks(ctx, res.Donation.UserID, res.NewAchievements)
	s.ranker.PublishRecomputed(ctx, res.RanksProcessed)
}
