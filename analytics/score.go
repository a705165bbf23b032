/*
score.go - Composite engagement and impact scores

PURPOSE:
  Produces the 0-10 scores shown on mission cards and the sponsor (CSR)
  dashboard. Fixed weights, fixed normalization denominators; each
  normalized component is clamped to 10 before weighting.

FORMULAS:
  Mission engagement =
      0.4 * min(10, participants/100*10)
    + 0.3 * (completionRate/100*10)
    + 0.3 * min(10, pointsDistributed/10000*10)

  Program impact =
      0.4 * min(10, totalParticipants/500*10)
    + 0.3 * min(10, totalPoints/50000*10)
    + 0.3 * min(10, totalMissions/20*10)
*/
package analytics

import "github.com/shopspring/decimal"

var (
	ten = decimal.NewFromInt(10)

	weightPrimary   = decimal.RequireFromString("0.4")
	weightSecondary = decimal.RequireFromString("0.3")
)

// MissionEngagementScore scores a single mission for ranking and display.
// completionRate is a percentage in [0, 100].
func MissionEngagementScore(participants int64, completionRate float64, pointsDistributed int64) float64 {
	p := clamp10(normalize(decimal.NewFromInt(participants), 100))
	c := decimal.NewFromFloat(completionRate).Div(decimal.NewFromInt(100)).Mul(ten)
	d := clamp10(normalize(decimal.NewFromInt(pointsDistributed), 10000))

	return weighted(p, c, d)
}

// ProgramImpactScore scores a sponsor's overall program for the CSR
// dashboard.
func ProgramImpactScore(totalParticipants, totalPoints, totalMissions int64) float64 {
	p := clamp10(normalize(decimal.NewFromInt(totalParticipants), 500))
	pt := clamp10(normalize(decimal.NewFromInt(totalPoints), 50000))
	m := clamp10(normalize(decimal.NewFromInt(totalMissions), 20))

	return weighted(p, pt, m)
}

func normalize(v decimal.Decimal, denominator int64) decimal.Decimal {
	return v.Div(decimal.NewFromInt(denominator)).Mul(ten)
}

func clamp10(v decimal.Decimal) decimal.Decimal {
	if v.GreaterThan(ten) {
		return ten
	}
	return v
}

func weighted(primary, second, third decimal.Decimal) float64 {
	score := primary.Mul(weightPrimary).
		Add(second.Mul(weightSecondary)).
		Add(third.Mul(weightSecondary))
	f, _ := score.Float64()
	return f
}
