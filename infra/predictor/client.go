// Package predictor is the HTTP client of the external candidate scoring model.
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kilianp07/faultfleet/core/prediction"
)

// Config defines the predictor endpoint.
type Config struct {
	URL       string `json:"url"`
	TimeoutMS int    `json:"timeout_ms"`
}

// Timeout returns the per-call timeout. Defaults to 3s.
func (c Config) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Client implements prediction.PredictionEngine over HTTP.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// New creates a Client for cfg.
func New(cfg Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		timeout: cfg.Timeout(),
		http:    &http.Client{},
	}
}

type predictRequest struct {
	Candidates []prediction.Features `json:"candidates"`
}

type predictResponse struct {
	BestIndex   *int      `json:"best_index"`
	Scores      []float64 `json:"scores"`
	Predictions []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"predictions"`
}

// Predict posts the candidates to /api/predict.
func (c *Client) Predict(ctx context.Context, fs []prediction.Features) (prediction.Prediction, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	body, err := json.Marshal(predictRequest{Candidates: fs})
	if err != nil {
		return prediction.Prediction{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/predict", bytes.NewReader(body))
	if err != nil {
		return prediction.Prediction{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return prediction.Prediction{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return prediction.Prediction{}, fmt.Errorf("predictor: status %d", resp.StatusCode)
	}
	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return prediction.Prediction{}, fmt.Errorf("predictor: decode: %w", err)
	}
	if out.BestIndex == nil {
		return prediction.Prediction{}, fmt.Errorf("%w: missing best_index", prediction.ErrMalformedPrediction)
	}
	p := prediction.Prediction{BestIndex: *out.BestIndex, Scores: out.Scores}
	if len(p.Scores) == 0 && len(out.Predictions) == len(fs) {
		p.Scores = make([]float64, len(fs))
		for _, e := range out.Predictions {
			if e.Index < 0 || e.Index >= len(fs) {
				return prediction.Prediction{}, fmt.Errorf("%w: prediction index %d", prediction.ErrMalformedPrediction, e.Index)
			}
			p.Scores[e.Index] = e.Score
		}
	}
	return p, nil
}

// Health queries /api/health.
func (c *Client) Health(ctx context.Context) (prediction.Health, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return prediction.Health{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return prediction.Health{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return prediction.Health{}, fmt.Errorf("predictor: status %d", resp.StatusCode)
	}
	var h prediction.Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return prediction.Health{}, fmt.Errorf("predictor: decode: %w", err)
	}
	return h, nil
}
