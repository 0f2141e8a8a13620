package prediction

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidFeatures marks a feature vector the model must not receive.
var ErrInvalidFeatures = errors.New("invalid features")

// Features is the model input for one candidate.
type Features struct {
	DistanceM     float64 `json:"distance_m"`
	DistanceCat   int     `json:"distance_cat"`
	PastPerf      float64 `json:"past_perf"`
	FaultHistory  int     `json:"fault_history"`
	FatigueH      float64 `json:"fatigue_h"`
	FaultSeverity int     `json:"fault_severity"`
}

// Input is the raw candidate data features are derived from.
type Input struct {
	DistanceM        float64
	PerformanceRatio float64
	SameTypeResolved int
	FatigueCount     int
	SeverityLevel    int
}

// DistanceCategory buckets a distance: 0 below 1 km, 1 below 5 km, else 2.
func DistanceCategory(m float64) int {
	switch {
	case m < 1000:
		return 0
	case m < 5000:
		return 1
	default:
		return 2
	}
}

// BuildFeatures converts raw candidate data to model features.
func BuildFeatures(in Input) Features {
	return Features{
		DistanceM:     in.DistanceM,
		DistanceCat:   DistanceCategory(in.DistanceM),
		PastPerf:      1 + 9*in.PerformanceRatio,
		FaultHistory:  in.SameTypeResolved,
		FatigueH:      math.Min(float64(in.FatigueCount)*2, 24),
		FaultSeverity: in.SeverityLevel,
	}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Validate rejects non-finite or out-of-range values.
func (f Features) Validate() error {
	switch {
	case !finite(f.DistanceM) || f.DistanceM < 0:
		return fmt.Errorf("%w: distance_m %v", ErrInvalidFeatures, f.DistanceM)
	case f.DistanceCat < 0 || f.DistanceCat > 2:
		return fmt.Errorf("%w: distance_cat %d", ErrInvalidFeatures, f.DistanceCat)
	case !finite(f.PastPerf) || f.PastPerf < 1 || f.PastPerf > 10:
		return fmt.Errorf("%w: past_perf %v", ErrInvalidFeatures, f.PastPerf)
	case f.FaultHistory < 0:
		return fmt.Errorf("%w: fault_history %d", ErrInvalidFeatures, f.FaultHistory)
	case !finite(f.FatigueH) || f.FatigueH < 0 || f.FatigueH > 24:
		return fmt.Errorf("%w: fatigue_h %v", ErrInvalidFeatures, f.FatigueH)
	case f.FaultSeverity < 1 || f.FaultSeverity > 3:
		return fmt.Errorf("%w: fault_severity %d", ErrInvalidFeatures, f.FaultSeverity)
	}
	return nil
}
