package dispatch

import (
	"context"
	"fmt"
	"sort"

	"github.com/kilianp07/faultfleet/core/events"
	"github.com/kilianp07/faultfleet/core/logger"
	"github.com/kilianp07/faultfleet/core/model"
	"github.com/kilianp07/faultfleet/core/prediction"
	"github.com/kilianp07/faultfleet/internal/eventbus"
)

// Ranking orders candidates best first.
type Ranking struct {
	// Order holds candidate indices, best first.
	Order []int
	// Scores is indexed like the candidate slice.
	Scores   []float64
	Strategy string
	Fallback bool
	Reason   string
}

// Strategy ranks eligible candidates for a fault. Implementations must not
// fail: any internal error degrades to a usable ranking.
type Strategy interface {
	Name() string
	Rank(ctx context.Context, f model.Fault, cs []Candidate) Ranking
}

// RuleStrategy ranks by RuleScore, ties broken by lowest fatigue.
type RuleStrategy struct{}

func (RuleStrategy) Name() string { return StrategyRule }

func (RuleStrategy) Rank(_ context.Context, f model.Fault, cs []Candidate) Ranking {
	scores := make([]float64, len(cs))
	for i, c := range cs {
		scores[i] = RuleScore(c, f)
	}
	return Ranking{Order: order(cs, scores, -1), Scores: scores, Strategy: StrategyRule}
}

// order sorts indices by score desc, fatigue asc, then id. first, when
// non-negative, is forced to the front.
func order(cs []Candidate, scores []float64, first int) []int {
	idx := make([]int, len(cs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		i, j := idx[a], idx[b]
		if i == first || j == first {
			return i == first
		}
		if scores[i] != scores[j] {
			return scores[i] > scores[j]
		}
		if cs[i].Vehicle.FatigueCount != cs[j].Vehicle.FatigueCount {
			return cs[i].Vehicle.FatigueCount < cs[j].Vehicle.FatigueCount
		}
		return cs[i].Vehicle.ID < cs[j].Vehicle.ID
	})
	return idx
}

// PredictorStrategy asks an external model and silently falls back to the
// rule strategy on any failure.
type PredictorStrategy struct {
	engine prediction.PredictionEngine
	rule   RuleStrategy
	bus    eventbus.Publisher
	log    logger.Logger
}

// NewPredictorStrategy wraps engine. bus and log may be nil.
func NewPredictorStrategy(engine prediction.PredictionEngine, bus eventbus.Publisher, log logger.Logger) *PredictorStrategy {
	if bus == nil {
		bus = eventbus.Nop{}
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &PredictorStrategy{engine: engine, bus: bus, log: log}
}

func (p *PredictorStrategy) Name() string { return StrategyPredictor }

func (p *PredictorStrategy) Rank(ctx context.Context, f model.Fault, cs []Candidate) Ranking {
	p.bus.Publish(events.StrategyEvent{FaultID: f.ID, Strategy: StrategyPredictor, Action: "predictor_attempt"})
	pred, err := p.predict(ctx, f, cs)
	if err == nil {
		return Ranking{Order: order(cs, pred.Scores, pred.BestIndex), Scores: pred.Scores, Strategy: StrategyPredictor}
	}
	strategyFallbacks.Inc()
	p.log.Warnf("predictor unavailable for fault %s, using rule score: %v", f.ID, err)
	p.bus.Publish(events.StrategyEvent{FaultID: f.ID, Strategy: StrategyPredictor, Action: "predictor_failure", Err: err, Reason: err.Error()})
	r := p.rule.Rank(ctx, f, cs)
	r.Fallback = true
	r.Reason = err.Error()
	p.bus.Publish(events.StrategyEvent{FaultID: f.ID, Strategy: StrategyRule, Action: "rule_fallback", Reason: r.Reason})
	return r
}

func (p *PredictorStrategy) predict(ctx context.Context, f model.Fault, cs []Candidate) (prediction.Prediction, error) {
	if p.engine == nil {
		return prediction.Prediction{}, fmt.Errorf("no prediction engine configured")
	}
	fs := make([]prediction.Features, len(cs))
	for i, c := range cs {
		fs[i] = prediction.BuildFeatures(prediction.Input{
			DistanceM:        c.DistanceM,
			PerformanceRatio: c.Vehicle.PerformanceRatio,
			SameTypeResolved: c.SameTypeResolved,
			FatigueCount:     c.Vehicle.FatigueCount,
			SeverityLevel:    f.Severity.Level(),
		})
		if err := fs[i].Validate(); err != nil {
			return prediction.Prediction{}, fmt.Errorf("candidate %s: %w", c.Vehicle.ID, err)
		}
	}
	pred, err := p.engine.Predict(ctx, fs)
	if err != nil {
		return prediction.Prediction{}, err
	}
	if err := pred.Check(len(cs)); err != nil {
		return prediction.Prediction{}, err
	}
	return pred, nil
}
