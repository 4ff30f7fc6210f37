package user

// Board selects the metric a leaderboard is ordered by.
type Board string

const (
	BoardDonations Board = "donations"
	BoardReferrals Board = "referrals"
)

func (b Board) Valid() bool {
	return b == BoardDonations || b == BoardReferrals
}

// Score is the value the board orders by.
func (b Board) Score(u User) float64 {
	if b == BoardReferrals {
		return float64(u.Referrals.Successful)
	}
	return u.Donations.Total
}

// BoardLess orders users on a board: score descending, earliest account
// first, then id. It matches the tie-break of the rank engine.
func BoardLess(b Board, x, y User) bool {
	sx, sy := b.Score(x), b.Score(y)
	if sx != sy {
		return sx > sy
	}
	if !x.CreatedAt.Equal(y.CreatedAt) {
		return x.CreatedAt.Before(y.CreatedAt)
	}
	return x.ID < y.ID
}

type BoardStats struct {
	TotalDonations   float64 `json:"totalDonations" bson:"total_donations"`
	AverageDonations float64 `json:"averageDonations" bson:"average_donations"`
	MaxDonations     float64 `json:"maxDonations" bson:"max_donations"`
	ActiveUsers      int     `json:"activeUsers" bson:"active_users"`
}
