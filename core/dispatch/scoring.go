package dispatch

import (
	"math"

	"github.com/kilianp07/faultfleet/core/model"
	"github.com/kilianp07/faultfleet/core/routing"
)

// Rule-score weights.
const (
	baseScore         = 100.0
	performanceWeight = 25.0
	fatiguePenalty    = 5.0
	maxFatiguePenalty = 30.0
	experienceBonus   = 15.0
	criticalityBase   = 10.0
	criticalitySpan   = 15.0
	experienceRadiusM = 1000.0
	unknownDistanceM  = 50000.0
)

// Candidate is an eligible vehicle with the context needed to rank it.
type Candidate struct {
	Vehicle   model.Vehicle
	DistanceM float64
	// Route is the path to the fault, nil when the vehicle has no position.
	Route              *routing.Result
	LocationExperience bool
	TypeExperience     bool
	SameTypeResolved   int
}

// profileTier grades a performance ratio as 3 (>= 0.8), 2 (>= 0.5) or 1.
func profileTier(ratio float64) int {
	switch {
	case ratio >= 0.8:
		return 3
	case ratio >= 0.5:
		return 2
	default:
		return 1
	}
}

// CriticalityBonus rewards vehicles whose profile matches the severity:
// 25 for an exact match, 17.5 one tier apart, 10 two tiers apart.
func CriticalityBonus(ratio float64, sev model.Severity) float64 {
	diff := math.Abs(float64(profileTier(ratio) - sev.Level()))
	return criticalityBase + criticalitySpan*(1-diff/2)
}

// RuleScore computes the weighted multi-factor score of c for f.
func RuleScore(c Candidate, f model.Fault) float64 {
	v := c.Vehicle
	score := baseScore + v.PerformanceRatio*performanceWeight
	score -= math.Min(float64(v.FatigueCount)*fatiguePenalty, maxFatiguePenalty)
	if c.LocationExperience {
		score += experienceBonus
	}
	if c.TypeExperience {
		score += experienceBonus
	}
	return score + CriticalityBonus(v.PerformanceRatio, f.Severity)
}
