package achievement

func threshold(field Metric, value float64) Criterion {
	return Criterion{Field: field, Operator: OpGTE, Threshold: value}
}

// Defaults is the catalog seeded at startup. Seeding upserts by id and
// leaves unlock statistics untouched.
func Defaults() []Definition {
	defs := []Definition{
		{
			ID: "FIRST_DONATION", Name: "First Steps", Description: "Made your very first donation",
			Icon: "🎉", Category: CategoryMilestone, Rarity: RarityCommon,
			Criteria: threshold(MetricDonationsTotal, 1),
			Metadata: Metadata{Color: "#10b981", Animation: "pulse"},
		},
		{
			ID: "RISING_STAR", Name: "Rising Star", Description: "Raised $1,000 in total donations",
			Icon: "🚀", Category: CategoryDonation, Rarity: RarityUncommon,
			Criteria: threshold(MetricDonationsTotal, 1000),
			Metadata: Metadata{Color: "#3b82f6", Animation: "glow"},
		},
		{
			ID: "DIAMOND_ACHIEVER", Name: "Diamond Achiever", Description: "Reached $2,000 in total donations",
			Icon: "💎", Category: CategoryDonation, Rarity: RarityRare,
			Criteria: threshold(MetricDonationsTotal, 2000),
			Metadata: Metadata{Color: "#8b5cf6", Animation: "glow"},
		},
		{
			ID: "PREMIUM_MEMBER", Name: "Premium Member", Description: "Achieved $3,000 in total donations",
			Icon: "⭐", Category: CategoryDonation, Rarity: RarityRare,
			Criteria: threshold(MetricDonationsTotal, 3000),
			Metadata: Metadata{Color: "#f59e0b", Animation: "pulse"},
		},
		{
			ID: "ELITE_CHAMPION", Name: "Elite Champion", Description: "Reached the prestigious $5,000 milestone",
			Icon: "👑", Category: CategoryDonation, Rarity: RarityEpic,
			Criteria: threshold(MetricDonationsTotal, 5000),
			Metadata: Metadata{Color: "#ef4444", Animation: "bounce"},
		},
		{
			ID: "LEGEND_STATUS", Name: "Legend Status", Description: "Achieved legendary $10,000 in donations",
			Icon: "🏆", Category: CategoryDonation, Rarity: RarityLegendary,
			Criteria: threshold(MetricDonationsTotal, 10000),
			Metadata: Metadata{Color: "#fbbf24", Animation: "bounce"},
		},
		{
			ID: "REFERRAL_STARTER", Name: "Referral Starter", Description: "Made your first successful referral",
			Icon: "🤝", Category: CategoryReferral, Rarity: RarityCommon,
			Criteria: threshold(MetricReferralsSuccessful, 1),
			Metadata: Metadata{Color: "#10b981", Animation: "pulse"},
		},
		{
			ID: "REFERRAL_MASTER", Name: "Referral Master", Description: "Achieved 10 successful referrals",
			Icon: "🌟", Category: CategoryReferral, Rarity: RarityEpic,
			Criteria: threshold(MetricReferralsSuccessful, 10),
			Metadata: Metadata{Color: "#8b5cf6", Animation: "glow"},
		},
	}
	for i := range defs {
		defs[i].IsActive = true
		defs[i].IsVisible = true
	}
	return defs
}
