package achievement

import (
	"math"
	"time"

	"givetrack/internal/domain/user"
)

// Plan returns the unlock records the user qualifies for and does not hold
// yet, in catalog order. Inactive definitions are skipped. When before is not
// nil the criteria are checked over the before→current update, otherwise
// against the current value only.
func Plan(catalog []Definition, current user.User, before *user.User, now time.Time) []user.UnlockedAchievement {
	unlocked := make([]user.UnlockedAchievement, 0)
	held := make(map[string]struct{}, len(current.Achievements))
	for _, a := range current.Achievements {
		held[a.ID] = struct{}{}
	}

	for _, def := range catalog {
		if !def.IsActive {
			continue
		}
		if _, ok := held[def.ID]; ok {
			continue
		}
		value := def.Criteria.Field.Value(current)
		var ok bool
		if before != nil {
			ok = def.Criteria.Crossed(def.Criteria.Field.Value(*before), value)
		} else {
			ok = def.Criteria.Evaluate(value)
		}
		if !ok {
			continue
		}
		unlocked = append(unlocked, def.Unlock(now))
		held[def.ID] = struct{}{}
	}
	return unlocked
}

// NextAchievement projects the closest unmet donation-total milestone.
type NextAchievement struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Threshold  float64 `json:"threshold"`
	Remaining  float64 `json:"remaining"`
	Percentage int     `json:"percentage"`
}

// Next returns nil once every donation-total milestone is behind the user.
func Next(catalog []Definition, u user.User) *NextAchievement {
	total := u.Donations.Total
	var best *Definition
	for i := range catalog {
		def := &catalog[i]
		if !def.IsActive || def.Criteria.Field != MetricDonationsTotal || !def.Criteria.Operator.Monotonic() {
			continue
		}
		if def.Criteria.Threshold <= 0 || def.Criteria.Evaluate(total) {
			continue
		}
		if best == nil || def.Criteria.Threshold < best.Criteria.Threshold {
			best = def
		}
	}
	if best == nil {
		return nil
	}
	return &NextAchievement{
		ID:         best.ID,
		Name:       best.Name,
		Threshold:  best.Criteria.Threshold,
		Remaining:  best.Criteria.Threshold - total,
		Percentage: percent(total, best.Criteria.Threshold),
	}
}

// Progress is a catalog entry annotated with one user's standing.
type Progress struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	Category    Category   `json:"category"`
	Rarity      Rarity     `json:"rarity"`
	RarityColor string     `json:"rarityColor"`
	Requirement string     `json:"requirement"`
	Threshold   float64    `json:"threshold"`
	UserValue   float64    `json:"userValue"`
	Progress    int        `json:"progress"`
	Unlocked    bool       `json:"unlocked"`
	UnlockedAt  *time.Time `json:"unlockedAt"`
	Metadata    Metadata   `json:"metadata"`
}

// UserProgress annotates active, visible definitions in catalog order.
func UserProgress(catalog []Definition, u user.User) []Progress {
	defs := make([]Definition, 0, len(catalog))
	for _, def := range catalog {
		if def.IsActive && def.IsVisible {
			defs = append(defs, def)
		}
	}
	SortCatalog(defs)

	out := make([]Progress, 0, len(defs))
	for _, def := range defs {
		value := def.Criteria.Field.Value(u)
		p := Progress{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Icon:        def.Icon,
			Category:    def.Category,
			Rarity:      def.Rarity,
			RarityColor: def.Rarity.Color(),
			Requirement: def.Criteria.Describe(),
			Threshold:   def.Criteria.Threshold,
			UserValue:   value,
			Metadata:    def.Metadata,
		}
		if def.Criteria.Threshold > 0 {
			p.Progress = min(100, percent(value, def.Criteria.Threshold))
		} else if def.Criteria.Evaluate(value) {
			p.Progress = 100
		}
		if rec, ok := u.Achievement(def.ID); ok {
			p.Unlocked = true
			at := rec.UnlockedAt
			p.UnlockedAt = &at
		}
		out = append(out, p)
	}
	return out
}

func percent(value, threshold float64) int {
	return int(math.Round(value / threshold * 100))
}
