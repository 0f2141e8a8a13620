package prediction

import (
	"context"
	"errors"
	"fmt"
)

// ErrMalformedPrediction is returned when a response does not match the request.
var ErrMalformedPrediction = errors.New("malformed prediction")

// Prediction is the model output for a candidate list.
type Prediction struct {
	BestIndex int       `json:"best_index"`
	Scores    []float64 `json:"scores"`
}

// Check verifies the prediction covers exactly n candidates.
func (p Prediction) Check(n int) error {
	if p.BestIndex < 0 || p.BestIndex >= n {
		return fmt.Errorf("%w: best_index %d for %d candidates", ErrMalformedPrediction, p.BestIndex, n)
	}
	if len(p.Scores) != n {
		return fmt.Errorf("%w: %d scores for %d candidates", ErrMalformedPrediction, len(p.Scores), n)
	}
	for i, s := range p.Scores {
		if !finite(s) {
			return fmt.Errorf("%w: score %d not finite", ErrMalformedPrediction, i)
		}
	}
	return nil
}

// Health is the model service status.
type Health struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// PredictionEngine scores dispatch candidates.
type PredictionEngine interface {
	Predict(ctx context.Context, candidates []Features) (Prediction, error)
}

// HealthChecker is implemented by engines able to report their status.
type HealthChecker interface {
	Health(ctx context.Context) (Health, error)
}
