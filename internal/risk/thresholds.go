package risk

import (
	"strings"
	"time"
)

// ComputeThresholds derives the dynamic limits for a profile at instant now.
// It writes the derived trust level back onto the profile.
func ComputeThresholds(p *Profile, policy Policy, now time.Time) Thresholds {
	ageDays := int(now.Sub(p.AccountCreatedAt) / (24 * time.Hour))
	age := AgeBucket(ageDays, policy)
	verification := VerificationBucket(p.AccountType)

	ageMult := policy.AgeMultipliers[age]
	verMult := policy.VerificationMultipliers[verification]
	combined := (ageMult + verMult) / 2

	trust := TrustLevelFor(combined, policy)
	p.TrustLevel = trust

	return Thresholds{
		Suspicious:             scale(policy.BaseLimits.Suspicious, combined),
		Fraud:                  scale(policy.BaseLimits.Fraud, combined),
		Hourly:                 scale(policy.BaseLimits.Hourly, combined),
		Daily:                  scale(policy.BaseLimits.Daily, combined),
		AccountAge:             age,
		AgeDays:                ageDays,
		Verification:           verification,
		AgeMultiplier:          ageMult,
		VerificationMultiplier: verMult,
		CombinedMultiplier:     combined,
		TrustLevel:             trust,
	}
}

// AgeBucket classifies an account age in whole days.
func AgeBucket(days int, policy Policy) string {
	switch {
	case days < policy.NewAccountDays:
		return AgeNew
	case days < policy.EstablishedDays:
		return AgeEstablished
	default:
		return AgeOld
	}
}

// VerificationBucket folds a registry account type into a verification bucket.
func VerificationBucket(accountType string) string {
	switch strings.ToLower(strings.TrimSpace(accountType)) {
	case AccountVerified:
		return VerificationVerified
	case AccountCreator:
		return VerificationCreator
	default:
		return VerificationUnverified
	}
}

// TrustLevelFor maps a combined multiplier to a trust level. Both bounds are inclusive.
func TrustLevelFor(combined float64, policy Policy) string {
	switch {
	case combined >= policy.TrustedAtOrAbove:
		return TrustTrusted
	case combined <= policy.SuspiciousAtOrBelow:
		return TrustSuspicious
	default:
		return TrustNormal
	}
}

func scale(base int64, mult float64) int64 {
	return int64(float64(base) * mult)
}
