package achievement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"givetrack/internal/domain/user"
	errs "givetrack/internal/errors"
)

func donor(total float64) user.User {
	u := user.New("u1", "Ann", "ann@example.com", "", "ANN1A2B3", time.Unix(0, 0))
	u.Donations.Total = total
	return u
}

func TestCriterionEvaluate(t *testing.T) {
	tests := []struct {
		name string
		op   Operator
		val  float64
		want bool
	}{
		{"gte at threshold", OpGTE, 10000, true},
		{"gt at threshold", OpGT, 10000, false},
		{"gt above", OpGT, 10000.01, true},
		{"eq at threshold", OpEQ, 10000, true},
		{"eq off threshold", OpEQ, 9999, false},
		{"lte at threshold", OpLTE, 10000, true},
		{"lt at threshold", OpLT, 10000, false},
		{"lt below", OpLT, 1, true},
		{"unknown operator", Operator("between"), 10000, false},
		{"empty operator", Operator(""), 10000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Criterion{Field: MetricDonationsTotal, Operator: tt.op, Threshold: 10000}
			assert.Equal(t, tt.want, c.Evaluate(tt.val))
		})
	}
}

func TestCriterionCrossed(t *testing.T) {
	eq := Criterion{Field: MetricDonationsTotal, Operator: OpEQ, Threshold: 1000}
	assert.True(t, eq.Crossed(900, 1900), "jumping past an eq threshold still counts")
	assert.True(t, eq.Crossed(900, 1000))
	assert.False(t, eq.Crossed(1000, 1500), "threshold held before the update")
	assert.False(t, eq.Crossed(100, 900))
	assert.True(t, eq.Crossed(1000, 1000))

	lt := Criterion{Field: MetricDonationsTotal, Operator: OpLT, Threshold: 100}
	assert.True(t, lt.Crossed(50, 150))
	assert.False(t, lt.Crossed(100, 150))
	assert.True(t, lt.Crossed(150, 50), "a falling metric qualifies at the after end")
	assert.True(t, eq.Crossed(1900, 900), "the interval does not depend on direction")

	gte := Criterion{Field: MetricDonationsTotal, Operator: OpGTE, Threshold: 100}
	assert.True(t, gte.Crossed(0, 100))
	assert.False(t, gte.Crossed(0, 99))

	unknown := Criterion{Field: MetricDonationsTotal, Operator: "approx", Threshold: 100}
	assert.False(t, unknown.Crossed(0, 100))
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("referrals.successful")
	require.NoError(t, err)
	assert.Equal(t, MetricReferralsSuccessful, m)

	_, err = ParseMetric("donations.biggest")
	require.ErrorIs(t, err, errs.ErrValidation)

	assert.Zero(t, Metric("donations.biggest").Value(donor(500)))
}

func TestCriterionDescribe(t *testing.T) {
	assert.Equal(t, "Requires at least 1000 total donations",
		Criterion{Field: MetricDonationsTotal, Operator: OpGTE, Threshold: 1000}.Describe())
	assert.Equal(t, "Requires more than 1.5 referrals",
		Criterion{Field: MetricReferralsCount, Operator: OpGT, Threshold: 1.5}.Describe())
}

func TestDefinitionValidate(t *testing.T) {
	def := Definition{ID: "X", Criteria: Criterion{Field: MetricDonationsTotal, Operator: OpGTE, Threshold: 1}}
	require.NoError(t, def.Validate())

	def.Criteria.Operator = "between"
	require.ErrorIs(t, def.Validate(), errs.ErrValidation)

	def.ID = " "
	require.ErrorIs(t, def.Validate(), errs.ErrValidation)
}

func TestPlanNewDonor(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	before := donor(0)
	after := donor(1000)

	got := Plan(Defaults(), after, &before, now)

	ids := make([]string, 0, len(got))
	for _, a := range got {
		ids = append(ids, a.ID)
		assert.Equal(t, now, a.UnlockedAt)
	}
	assert.Equal(t, []string{"FIRST_DONATION", "RISING_STAR"}, ids)
	assert.Equal(t, float64(1000), got[1].Threshold)
}

func TestPlanThresholdOperators(t *testing.T) {
	catalog := []Definition{
		{ID: "LEGEND", IsActive: true, Criteria: Criterion{Field: MetricDonationsTotal, Operator: OpGTE, Threshold: 10000}},
	}
	assert.Len(t, Plan(catalog, donor(10000), nil, time.Now()), 1)

	catalog[0].Criteria.Operator = OpGT
	assert.Empty(t, Plan(catalog, donor(10000), nil, time.Now()))
}

func TestPlanIsIdempotent(t *testing.T) {
	u := donor(2500)
	first := Plan(Defaults(), u, nil, time.Now())
	require.Len(t, first, 3)

	u.Achievements = append(u.Achievements, first...)
	assert.Empty(t, Plan(Defaults(), u, nil, time.Now()))
}

func TestPlanSkipsInactive(t *testing.T) {
	catalog := Defaults()
	for i := range catalog {
		catalog[i].IsActive = false
	}
	assert.Empty(t, Plan(catalog, donor(5000), nil, time.Now()))
}

func TestPlanDoesNotDuplicateCatalogIDs(t *testing.T) {
	def := Definition{ID: "DUP", IsActive: true, Criteria: Criterion{Field: MetricDonationsTotal, Operator: OpGTE, Threshold: 1}}
	got := Plan([]Definition{def, def}, donor(10), nil, time.Now())
	assert.Len(t, got, 1)
}

func TestNext(t *testing.T) {
	next := Next(Defaults(), donor(1000))
	require.NotNil(t, next)
	assert.Equal(t, "DIAMOND_ACHIEVER", next.ID)
	assert.Equal(t, float64(1000), next.Remaining)
	assert.Equal(t, 50, next.Percentage)

	assert.Nil(t, Next(Defaults(), donor(10000)))
}

func TestUserProgress(t *testing.T) {
	catalog := Defaults()
	catalog[len(catalog)-1].IsVisible = false

	u := donor(1500)
	u.Achievements = Plan(catalog, u, nil, time.Now())

	progress := UserProgress(catalog, u)
	require.Len(t, progress, len(catalog)-1)

	byID := make(map[string]Progress, len(progress))
	for _, p := range progress {
		byID[p.ID] = p
	}
	assert.NotContains(t, byID, "REFERRAL_MASTER")

	rising := byID["RISING_STAR"]
	assert.True(t, rising.Unlocked)
	assert.NotNil(t, rising.UnlockedAt)
	assert.Equal(t, 100, rising.Progress, "progress is capped")

	diamond := byID["DIAMOND_ACHIEVER"]
	assert.False(t, diamond.Unlocked)
	assert.Nil(t, diamond.UnlockedAt)
	assert.Equal(t, 75, diamond.Progress)
	assert.Equal(t, RarityRare.Color(), diamond.RarityColor)

	for i := 1; i < len(progress); i++ {
		assert.LessOrEqual(t, progress[i-1].Threshold, progress[i].Threshold)
	}
}

func TestRarityColorFallback(t *testing.T) {
	assert.Equal(t, RarityCommon.Color(), Rarity("mythic").Color())
}
