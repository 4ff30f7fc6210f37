package donation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	errs "givetrack/internal/errors"
)

const (
	MaxAmount      = 100000
	MaxNotesLength = 500
)

type Source string

const (
	SourceDirect   Source = "direct"
	SourceReferral Source = "referral"
	SourceCampaign Source = "campaign"
	SourceEvent    Source = "event"
)

func (s Source) Valid() bool {
	switch s {
	case SourceDirect, SourceReferral, SourceCampaign, SourceEvent:
		return true
	}
	return false
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

type Donation struct {
	ID           string    `json:"id" bson:"_id"`
	UserID       string    `json:"user_id" bson:"user_id"`
	Amount       float64   `json:"amount" bson:"amount"`
	Source       Source    `json:"source" bson:"source"`
	ReferralCode string    `json:"referral_code,omitempty" bson:"referral_code,omitempty"`
	ReferredBy   string    `json:"referred_by,omitempty" bson:"referred_by,omitempty"`
	Notes        string    `json:"notes" bson:"notes"`
	Status       Status    `json:"status" bson:"status"`
	Metadata     Metadata  `json:"metadata" bson:"metadata"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}

type Metadata struct {
	Platform  string `json:"platform" bson:"platform"`
	UserAgent string `json:"user_agent" bson:"user_agent"`
	IPAddress string `json:"ip_address" bson:"ip_address"`
}

func (d Donation) FormattedAmount() string {
	return FormatAmount(d.Amount)
}

// FormatAmount renders an amount as $1,234.50.
func FormatAmount(amount float64) string {
	s := fmt.Sprintf("%.2f", amount)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]
	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-$" + b.String() + frac
	}
	return "$" + b.String() + frac
}

// Request is a donation submission as it arrives from the API layer.
type Request struct {
	Amount       float64  `json:"amount"`
	Source       Source   `json:"source,omitempty"`
	ReferralCode string   `json:"referralCode,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	Metadata     Metadata `json:"-"`
}

var referralCodeRe = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Normalize validates the request and fills defaults. It never touches storage.
func (r Request) Normalize() (Request, error) {
	if math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) || r.Amount <= 0 {
		return r, errs.Validation("Amount must be a positive number")
	}
	if r.Amount > MaxAmount {
		return r, errs.Validation("Amount cannot exceed $100,000")
	}
	if r.Source == "" {
		r.Source = SourceDirect
	}
	if !r.Source.Valid() {
		return r, errs.Validation("Invalid donation source")
	}
	r.ReferralCode = strings.ToUpper(strings.TrimSpace(r.ReferralCode))
	if r.ReferralCode != "" && !referralCodeRe.MatchString(r.ReferralCode) {
		return r, errs.Validation("Referral code must be alphanumeric")
	}
	if utf8.RuneCountInString(r.Notes) > MaxNotesLength {
		return r, errs.Validation("Notes cannot exceed 500 characters")
	}
	if r.Metadata.Platform == "" {
		r.Metadata.Platform = "web"
	}
	return r, nil
}

// Filter narrows a donation history query. Zero values mean "any".
type Filter struct {
	UserID       string
	ReferralCode string
	Status       Status
	Source       Source
	From         time.Time
	To           time.Time
}

func (f Filter) Match(d Donation) bool {
	if f.UserID != "" && d.UserID != f.UserID {
		return false
	}
	if f.ReferralCode != "" && d.ReferralCode != f.ReferralCode {
		return false
	}
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	if f.Source != "" && d.Source != f.Source {
		return false
	}
	if !f.From.IsZero() && d.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && d.CreatedAt.After(f.To) {
		return false
	}
	return true
}

type Stats struct {
	TotalAmount    float64 `json:"totalAmount" bson:"total_amount"`
	TotalDonations int     `json:"totalDonations" bson:"total_donations"`
	AverageAmount  float64 `json:"averageAmount" bson:"average_amount"`
	MaxAmount      float64 `json:"maxAmount" bson:"max_amount"`
	MinAmount      float64 `json:"minAmount" bson:"min_amount"`
}

// DayTotal is one bucket of a daily trend series.
type DayTotal struct {
	Day         string  `json:"day" bson:"_id"`
	TotalAmount float64 `json:"totalAmount" bson:"total_amount"`
	Count       int     `json:"count" bson:"count"`
}

// DonorTotal is a per-user sum over a period.
type DonorTotal struct {
	UserID        string  `json:"userId" bson:"_id"`
	TotalAmount   float64 `json:"totalAmount" bson:"total_amount"`
	DonationCount int     `json:"donationCount" bson:"donation_count"`
}
