package user

import (
	"math"
	"time"
)

// Unranked is the rank a user holds before the first recompute sees them.
const Unranked = 999

type User struct {
	ID           string                `json:"id" bson:"_id"`
	Name         string                `json:"name" bson:"name"`
	Email        string                `json:"email" bson:"email"`
	PasswordHash string                `json:"-" bson:"password_hash"`
	ReferralCode string                `json:"referral_code" bson:"referral_code"`
	Donations    DonationStats         `json:"donations" bson:"donations"`
	Referrals    ReferralStats         `json:"referrals" bson:"referrals"`
	Achievements []UnlockedAchievement `json:"achievements" bson:"achievements"`
	Rank         Rank                  `json:"rank" bson:"rank"`
	IsActive     bool                  `json:"is_active" bson:"is_active"`
	CreatedAt    time.Time             `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at" bson:"updated_at"`
	LastLogin    time.Time             `json:"last_login" bson:"last_login"`
	Version      int64                 `json:"-" bson:"version"`
}

type DonationStats struct {
	Total       float64   `json:"total" bson:"total"`
	Weekly      float64   `json:"weekly" bson:"weekly"`
	Count       int       `json:"count" bson:"count"`
	LastUpdated time.Time `json:"last_updated" bson:"last_updated"`
}

type ReferralStats struct {
	Count      int `json:"count" bson:"count"`
	Successful int `json:"successful" bson:"successful"`
}

// UnlockedAchievement is the per-user proof that a criterion was met.
// The threshold is a snapshot taken at unlock time.
type UnlockedAchievement struct {
	ID          string    `json:"id" bson:"id"`
	Name        string    `json:"name" bson:"name"`
	Description string    `json:"description" bson:"description"`
	Icon        string    `json:"icon" bson:"icon"`
	Threshold   float64   `json:"threshold" bson:"threshold"`
	UnlockedAt  time.Time `json:"unlocked_at" bson:"unlocked_at"`
}

type Rank struct {
	Current     int       `json:"current" bson:"current"`
	Best        int       `json:"best" bson:"best"`
	LastUpdated time.Time `json:"last_updated" bson:"last_updated"`
}

func New(id, name, email, passwordHash, referralCode string, now time.Time) User {
	return User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		ReferralCode: referralCode,
		Donations:    DonationStats{LastUpdated: now},
		Achievements: []UnlockedAchievement{},
		Rank:         Rank{Current: Unranked, Best: Unranked, LastUpdated: now},
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastLogin:    now,
	}
}

func (u User) HasAchievement(id string) bool {
	for _, a := range u.Achievements {
		if a.ID == id {
			return true
		}
	}
	return false
}

func (u User) Achievement(id string) (UnlockedAchievement, bool) {
	for _, a := range u.Achievements {
		if a.ID == id {
			return a, true
		}
	}
	return UnlockedAchievement{}, false
}

// ApplyDonation adds a completed donation to the running aggregates.
func (u *User) ApplyDonation(amount float64, at time.Time) {
	u.Donations.Total += amount
	u.Donations.Weekly += amount
	u.Donations.Count++
	u.Donations.LastUpdated = at
	u.UpdatedAt = at
}

// RevertDonation takes a refunded amount back out. The weekly counter may have
// been reset since, so no counter drops below zero.
func (u *User) RevertDonation(amount float64, at time.Time) {
	u.Donations.Total = math.Max(0, u.Donations.Total-amount)
	u.Donations.Weekly = math.Max(0, u.Donations.Weekly-amount)
	if u.Donations.Count > 0 {
		u.Donations.Count--
	}
	u.Donations.LastUpdated = at
	u.UpdatedAt = at
}

type Level struct {
	Name string  `json:"name"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

var levels = []Level{
	{Name: "Starter", Min: 0, Max: 1000},
	{Name: "Rising Star", Min: 1000, Max: 2000},
	{Name: "Diamond", Min: 2000, Max: 3000},
	{Name: "Premium", Min: 3000, Max: 5000},
	{Name: "Elite", Min: 5000, Max: 10000},
	{Name: "Legend", Min: 10000, Max: math.Inf(1)},
}

type Progress struct {
	CurrentLevel string `json:"current_level"`
	Progress     int    `json:"progress"`
	NextLevel    string `json:"next_level,omitempty"`
}

// Progress places the donation total on the level ladder.
func (u User) Progress() Progress {
	total := u.Donations.Total
	for i, l := range levels {
		if total < l.Min || total >= l.Max {
			continue
		}
		if math.IsInf(l.Max, 1) {
			return Progress{CurrentLevel: l.Name, Progress: 100}
		}
		return Progress{
			CurrentLevel: l.Name,
			Progress:     int(math.Round((total - l.Min) / (l.Max - l.Min) * 100)),
			NextLevel:    levels[i+1].Name,
		}
	}
	last := levels[len(levels)-1]
	return Progress{CurrentLevel: last.Name, Progress: 100}
}
