package achievement

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"givetrack/internal/domain/user"
	errs "givetrack/internal/errors"
)

// Metric is a user aggregate a criterion can be checked against.
type Metric string

const (
	MetricDonationsTotal      Metric = "donations.total"
	MetricDonationsCount      Metric = "donations.count"
	MetricDonationsWeekly     Metric = "donations.weekly"
	MetricReferralsSuccessful Metric = "referrals.successful"
	MetricReferralsCount      Metric = "referrals.count"
)

var metricAccessors = map[Metric]func(u user.User) float64{
	MetricDonationsTotal:      func(u user.User) float64 { return u.Donations.Total },
	MetricDonationsCount:      func(u user.User) float64 { return float64(u.Donations.Count) },
	MetricDonationsWeekly:     func(u user.User) float64 { return u.Donations.Weekly },
	MetricReferralsSuccessful: func(u user.User) float64 { return float64(u.Referrals.Successful) },
	MetricReferralsCount:      func(u user.User) float64 { return float64(u.Referrals.Count) },
}

var metricLabels = map[Metric]string{
	MetricDonationsTotal:      "total donations",
	MetricDonationsCount:      "donation count",
	MetricDonationsWeekly:     "weekly donations",
	MetricReferralsSuccessful: "successful referrals",
	MetricReferralsCount:      "referrals",
}

func ParseMetric(s string) (Metric, error) {
	m := Metric(s)
	if _, ok := metricAccessors[m]; !ok {
		return "", errs.Validation(fmt.Sprintf("unsupported criterion field %q", s))
	}
	return m, nil
}

func (m Metric) Valid() bool {
	_, ok := metricAccessors[m]
	return ok
}

// Value reads the metric from the user. Unsupported metrics read as 0.
func (m Metric) Value(u user.User) float64 {
	if get, ok := metricAccessors[m]; ok {
		return get(u)
	}
	return 0
}

type Operator string

const (
	OpGTE Operator = "gte"
	OpGT  Operator = "gt"
	OpEQ  Operator = "eq"
	OpLTE Operator = "lte"
	OpLT  Operator = "lt"
)

func (o Operator) Valid() bool {
	switch o {
	case OpGTE, OpGT, OpEQ, OpLTE, OpLT:
		return true
	}
	return false
}

// Monotonic reports whether a satisfied criterion stays satisfied while the
// metric only grows.
func (o Operator) Monotonic() bool {
	return o == OpGTE || o == OpGT
}

var operatorLabels = map[Operator]string{
	OpGTE: "at least",
	OpGT:  "more than",
	OpEQ:  "exactly",
	OpLTE: "at most",
	OpLT:  "less than",
}

type Criterion struct {
	Field     Metric   `json:"field" bson:"field"`
	Operator  Operator `json:"operator" bson:"operator"`
	Threshold float64  `json:"threshold" bson:"threshold"`
}

// Evaluate compares a metric value against the threshold.
// Unknown operators fail closed.
func (c Criterion) Evaluate(value float64) bool {
	switch c.Operator {
	case OpGTE:
		return value >= c.Threshold
	case OpGT:
		return value > c.Threshold
	case OpEQ:
		return value == c.Threshold
	case OpLTE:
		return value <= c.Threshold
	case OpLT:
		return value < c.Threshold
	default:
		return false
	}
}

// Crossed evaluates the criterion over an update that moved the metric from
// before to after, in either direction. With lo and hi the smaller and larger
// of the two, eq unlocks when the threshold lies in (lo, hi] and lt/lte unlock
// when before or after qualifies. Metrics only grow on a donation, so there
// that is (before, after] and the value before the update.
func (c Criterion) Crossed(before, after float64) bool {
	switch c.Operator {
	case OpEQ:
		if before == after {
			return after == c.Threshold
		}
		lo, hi := before, after
		if lo > hi {
			lo, hi = hi, lo
		}
		return c.Threshold > lo && c.Threshold <= hi
	case OpLT, OpLTE:
		return c.Evaluate(before) || c.Evaluate(after)
	default:
		return c.Evaluate(after)
	}
}

func (c Criterion) Describe() string {
	return fmt.Sprintf("Requires %s %s %s", operatorLabels[c.Operator],
		strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", c.Threshold), "0"), "."),
		metricLabels[c.Field])
}

func (c Criterion) Validate() error {
	if !c.Field.Valid() {
		return errs.Validation(fmt.Sprintf("unsupported criterion field %q", c.Field))
	}
	if !c.Operator.Valid() {
		return errs.Validation(fmt.Sprintf("unsupported criterion operator %q", c.Operator))
	}
	return nil
}

type Category string

const (
	CategoryDonation   Category = "donation"
	CategoryReferral   Category = "referral"
	CategoryEngagement Category = "engagement"
	CategoryMilestone  Category = "milestone"
	CategorySpecial    Category = "special"
)

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

var rarityColors = map[Rarity]string{
	RarityCommon:    "#9ca3af",
	RarityUncommon:  "#10b981",
	RarityRare:      "#3b82f6",
	RarityEpic:      "#8b5cf6",
	RarityLegendary: "#f59e0b",
}

func (r Rarity) Color() string {
	if c, ok := rarityColors[r]; ok {
		return c
	}
	return rarityColors[RarityCommon]
}

type Definition struct {
	ID          string     `json:"id" bson:"id"`
	Name        string     `json:"name" bson:"name"`
	Description string     `json:"description" bson:"description"`
	Icon        string     `json:"icon" bson:"icon"`
	Category    Category   `json:"category" bson:"category"`
	Rarity      Rarity     `json:"rarity" bson:"rarity"`
	Criteria    Criterion  `json:"criteria" bson:"criteria"`
	IsActive    bool       `json:"is_active" bson:"is_active"`
	IsVisible   bool       `json:"is_visible" bson:"is_visible"`
	Metadata    Metadata   `json:"metadata" bson:"metadata"`
	Statistics  Statistics `json:"statistics" bson:"statistics"`
}

type Metadata struct {
	Color     string `json:"color" bson:"color"`
	Animation string `json:"animation" bson:"animation"`
}

type Statistics struct {
	TotalUnlocked  int        `json:"total_unlocked" bson:"total_unlocked"`
	LastUnlockedAt *time.Time `json:"last_unlocked_at,omitempty" bson:"last_unlocked_at,omitempty"`
}

func (d Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return errs.Validation("achievement id is required")
	}
	return d.Criteria.Validate()
}

// Unlock builds the per-user record for this definition.
func (d Definition) Unlock(at time.Time) user.UnlockedAchievement {
	return user.UnlockedAchievement{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Icon:        d.Icon,
		Threshold:   d.Criteria.Threshold,
		UnlockedAt:  at,
	}
}

// SortCatalog puts definitions into catalog order: threshold ascending, then id.
func SortCatalog(defs []Definition) {
	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].Criteria.Threshold != defs[j].Criteria.Threshold {
			return defs[i].Criteria.Threshold < defs[j].Criteria.Threshold
		}
		return defs[i].ID < defs[j].ID
	})
}
