package prediction

import (
	"context"
	"sync"
)

// MockPredictionEngine returns a configured prediction and records requests.
// With no configured Prediction it picks the candidate with the lowest distance.
type MockPredictionEngine struct {
	Prediction *Prediction
	Err        error

	mu    sync.Mutex
	calls [][]Features
}

// Predict implements PredictionEngine.
func (m *MockPredictionEngine) Predict(ctx context.Context, fs []Features) (Prediction, error) {
	m.mu.Lock()
	cp := make([]Features, len(fs))
	copy(cp, fs)
	m.calls = append(m.calls, cp)
	m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	if m.Err != nil {
		return Prediction{}, m.Err
	}
	if m.Prediction != nil {
		p := *m.Prediction
		p.Scores = append([]float64(nil), p.Scores...)
		return p, nil
	}
	p := Prediction{Scores: make([]float64, len(fs))}
	for i, f := range fs {
		p.Scores[i] = 1 / (1 + f.DistanceM)
		if p.Scores[i] > p.Scores[p.BestIndex] {
			p.BestIndex = i
		}
	}
	return p, nil
}

// Calls returns the feature lists received so far.
func (m *MockPredictionEngine) Calls() [][]Features {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]Features(nil), m.calls...)
}
