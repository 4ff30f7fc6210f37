// Package rank holds the pure ordinal ranking over active users.
// Persisted rank fields are a cache of the last Compute output.
package rank

import (
	"sort"
	"time"
)

type Candidate struct {
	UserID    string    `bson:"_id"`
	Total     float64   `bson:"total"`
	CreatedAt time.Time `bson:"created_at"`
	Best      int       `bson:"best"`
}

type Assignment struct {
	UserID  string
	Current int
	Best    int
}

// Less orders by total descending, then earliest account first, then id.
func Less(a, b Candidate) bool {
	if a.Total != b.Total {
		return a.Total > b.Total
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.UserID < b.UserID
}

// Compute assigns ranks 1..N. The input slice is not modified.
func Compute(candidates []Candidate) []Assignment {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return Less(sorted[i], sorted[j]) })

	out := make([]Assignment, len(sorted))
	for i, c := range sorted {
		current := i + 1
		best := c.Best
		if best <= 0 || current < best {
			best = current
		}
		out[i] = Assignment{UserID: c.UserID, Current: current, Best: best}
	}
	return out
}
