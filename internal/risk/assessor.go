// Package risk turns fraud signal values into an advisory assessment.
//
// The overall score is the weighted mean of the signal values scaled to
// 0..100. Weights are non-negative, so raising any single signal can
// never lower the score. The assessment is advisory: nothing in the
// lifecycle or dispute workflow gates a transition on it.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
	"github.com/DarsanV/HackaThrone-team91/internal/rules"
)

// Recommendation thresholds on the 0..100 score.
const (
	LikelyFakeThreshold    = 70
	InvestigationThreshold = 40
)

// Recommend maps a score to its recommendation band.
func Recommend(score int) domain.Recommendation {
	switch {
	case score >= LikelyFakeThreshold:
		return domain.RecommendLikelyFake
	case score >= InvestigationThreshold:
		return domain.RecommendRequiresInvestigation
	default:
		return domain.RecommendLikelyGenuine
	}
}

// Score returns round(100 * sum(w*v) / sum(w)) clamped to 0..100.
// values and weights are parallel; a zero total weight scores 0.
func Score(values, weights []float64) int {
	var num, den float64
	for i, v := range values {
		if i >= len(weights) {
			break
		}
		w := weights[i]
		if w <= 0 {
			continue
		}
		num += w * clamp01(v)
		den += w
	}
	if den == 0 {
		return 0
	}
	s := int(math.Round(100 * num / den))
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// ValidateSignals checks the numeric parts of a policy. Expressions are
// checked when the signals are compiled.
func ValidateSignals(signals []domain.SignalConfig) error {
	if len(signals) == 0 {
		return fmt.Errorf("risk policy has no signals")
	}
	var positive bool
	for _, s := range signals {
		if s.Weight < 0 || math.IsNaN(s.Weight) || math.IsInf(s.Weight, 0) {
			return fmt.Errorf("signal %s: weight must be a non-negative number", s.Name)
		}
		if s.Threshold < 0 || s.Threshold > 1 {
			return fmt.Errorf("signal %s: threshold must be within [0,1]", s.Name)
		}
		if s.Weight > 0 {
			positive = true
		}
	}
	if !positive {
		return fmt.Errorf("risk policy needs at least one positive weight")
	}
	return nil
}

// Assessor evaluates the loaded signals and combines them.
type Assessor struct {
	mu         sync.RWMutex
	engine     *rules.Engine
	logger     *slog.Logger
	policyHash string
	now        func() time.Time
}

// NewAssessor wraps a signal engine. The engine's signals can be replaced
// with Load at any time.
func NewAssessor(engine *rules.Engine, logger *slog.Logger) *Assessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assessor{
		engine: engine,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Load validates and installs a signal set. hash identifies the policy
// source in assessments and logs.
func (a *Assessor) Load(signals []domain.SignalConfig, hash string) error {
	if err := ValidateSignals(signals); err != nil {
		return err
	}
	if err := a.engine.Load(signals); err != nil {
		return err
	}
	a.mu.Lock()
	a.policyHash = hash
	a.mu.Unlock()
	a.logger.Info("risk policy loaded",
		"signals", len(signals),
		"policy_hash", hash,
	)
	return nil
}

// PolicyHash identifies the active policy.
func (a *Assessor) PolicyHash() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.policyHash
}

// Signals returns the active signal set.
func (a *Assessor) Signals() []domain.SignalConfig {
	return a.engine.Signals()
}

// Assess scores in against the active policy.
func (a *Assessor) Assess(ctx context.Context, in domain.RiskInput) (*domain.Assessment, error) {
	results, err := a.engine.Evaluate(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("evaluate signals: %w", err)
	}

	values := make([]float64, len(results))
	weights := make([]float64, len(results))
	var total float64
	for i, r := range results {
		if r.Err != nil {
			a.logger.Warn("signal evaluation failed", "signal", r.Name, "error", r.Err)
		}
		values[i] = r.Value
		weights[i] = r.Signal.Weight
		total += r.Signal.Weight
	}

	score := Score(values, weights)
	assessment := &domain.Assessment{
		OverallScore:    score,
		Recommendation:  Recommend(score),
		FraudIndicators: []string{},
		Signals:         make([]domain.SignalOutcome, 0, len(results)),
		PolicyHash:      a.PolicyHash(),
		AssessedAt:      a.now(),
	}

	for _, r := range results {
		triggered := r.Err == nil && r.Value > 0 && r.Value >= r.Signal.Threshold
		if triggered {
			label := r.Signal.Label
			if label == "" {
				label = r.Name
			}
			assessment.FraudIndicators = append(assessment.FraudIndicators, label)
		}

		var contribution float64
		if total > 0 {
			contribution = r.Value * r.Signal.Weight / total
		}
		assessment.Signals = append(assessment.Signals, domain.SignalOutcome{
			Name:         r.Name,
			Value:        r.Value,
			Weight:       r.Signal.Weight,
			Contribution: contribution,
			Triggered:    triggered,
		})
	}

	return assessment, nil
}
