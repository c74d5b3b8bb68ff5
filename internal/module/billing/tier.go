package billing

// LimitsFor resolves the credit limits for a tier. The mapping is static:
// adding a tier means adding a case here, which the exhaustive switch keeps
// honest at review time. Unknown tiers fall back to free limits, the most
// restrictive treatment.
func LimitsFor(t Tier) Limits {
	switch t {
	case TierFree:
		return Limits{DailyCredits: 25, MonthlyCredits: 50}
	case TierPro:
		return Limits{DailyCredits: 500, MonthlyCredits: 5000}
	case TierEnterprise:
		return Limits{DailyCredits: Unlimited, MonthlyCredits: Unlimited}
	default:
		return Limits{DailyCredits: 25, MonthlyCredits: 50}
	}
}
