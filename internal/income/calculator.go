// Package income computes what an active base pays each of its nearby users per tick.
package income

// Settings are the tunables from the game settings file.
type Settings struct {
	BaseIncome                    float64
	IncomeIncreasePerInvestment   float64
	IncomeMultiplierPerActiveUser float64
}

// Base returns the income of a base before the active-user bonus.
func (s Settings) Base(investments int) float64 {
	if investments < 0 {
		investments = 0
	}
	return s.BaseIncome + float64(investments)*s.IncomeIncreasePerInvestment
}

// Compute returns the per-user income of a base with the given investment
// count and active user count. Every extra user beyond the first adds
// IncomeMultiplierPerActiveUser times the base income. Never negative.
func (s Settings) Compute(investments, activeUsers int) float64 {
	base := s.Base(investments)
	income := base
	if activeUsers > 1 {
		income = base + base*s.IncomeMultiplierPerActiveUser*float64(activeUsers-1)
	}
	if income < 0 {
		return 0
	}
	return income
}
