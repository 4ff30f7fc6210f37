// Package notify carries engine events to interested parties. Delivery is
// best effort and never feeds back into the engine.
package notify

import (
	"context"
	"errors"
	"time"
)

const (
	EventDonationRecorded    = "donation.recorded"
	EventDonationRefunded    = "donation.refunded"
	EventAchievementUnlocked = "achievement.unlocked"
	EventRanksRecomputed     = "ranks.recomputed"
)

// Event is addressed to one user. An empty UserID means everyone.
type Event struct {
	Type    string    `json:"type"`
	UserID  string    `json:"userId,omitempty"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errList []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}
