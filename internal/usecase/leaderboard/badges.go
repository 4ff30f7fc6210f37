package leaderboard

import "givetrack/internal/domain/user"

type Badge struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	Label string `json:"label"`
}

var amountBadges = []struct {
	min   float64
	badge Badge
}{
	{10000, Badge{Type: "amount", Value: "legend", Label: "🏆 Legend"}},
	{5000, Badge{Type: "amount", Value: "elite", Label: "👑 Elite"}},
	{3000, Badge{Type: "amount", Value: "premium", Label: "⭐ Premium"}},
	{2000, Badge{Type: "amount", Value: "diamond", Label: "💎 Diamond"}},
	{1000, Badge{Type: "amount", Value: "rising", Label: "🚀 Rising Star"}},
}

// badges decorates a board position. Amount badges only make sense on the
// donations board.
func badges(board user.Board, rank int, main float64) []Badge {
	out := make([]Badge, 0, 2)
	switch {
	case rank == 1:
		out = append(out, Badge{Type: "rank", Value: "gold", Label: "🥇 1st Place"})
	case rank == 2:
		out = append(out, Badge{Type: "rank", Value: "silver", Label: "🥈 2nd Place"})
	case rank == 3:
		out = append(out, Badge{Type: "rank", Value: "bronze", Label: "🥉 3rd Place"})
	case rank <= 10:
		out = append(out, Badge{Type: "rank", Value: "top10", Label: "🔟 Top 10"})
	}

	if board != user.BoardDonations {
		return out
	}
	for _, ab := range amountBadges {
		if main >= ab.min {
			out = append(out, ab.badge)
			break
		}
	}
	return out
}
