package risk

import (
	"context"
	"testing"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
	"github.com/DarsanV/HackaThrone-team91/internal/rules"
)

func newAssessor(t *testing.T) *Assessor {
	t.Helper()
	engine, err := rules.NewEngine(2)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	a := NewAssessor(engine, nil)
	if err := a.Load(rules.DefaultSignals(), "builtin"); err != nil {
		t.Fatalf("failed to load default signals: %v", err)
	}
	return a
}

func TestRecommendBoundaries(t *testing.T) {
	tests := []struct {
		score int
		want  domain.Recommendation
	}{
		{100, domain.RecommendLikelyFake},
		{70, domain.RecommendLikelyFake},
		{69, domain.RecommendRequiresInvestigation},
		{40, domain.RecommendRequiresInvestigation},
		{39, domain.RecommendLikelyGenuine},
		{0, domain.RecommendLikelyGenuine},
	}
	for _, tt := range tests {
		if got := Recommend(tt.score); got != tt.want {
			t.Errorf("Recommend(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		values  []float64
		weights []float64
		want    int
	}{
		{"AllZero", []float64{0, 0}, []float64{1, 1}, 0},
		{"AllOne", []float64{1, 1}, []float64{0.3, 0.7}, 100},
		{"Weighted", []float64{1, 0}, []float64{0.3, 0.7}, 30},
		{"Rounds", []float64{0.556}, []float64{1}, 56},
		{"ZeroWeightIgnored", []float64{1, 0}, []float64{0, 1}, 0},
		{"NoWeight", []float64{1}, []float64{0}, 0},
		{"ClampsValues", []float64{4, -2}, []float64{1, 1}, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.values, tt.weights); got != tt.want {
				t.Errorf("Score = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScoreMonotonic(t *testing.T) {
	weights := []float64{0.30, 0.15, 0.15, 0.10, 0.10, 0.05, 0.05, 0.10}
	base := []float64{0.2, 0.4, 0.0, 0.5, 0.1, 0.9, 0.3, 0.6}

	for i := range base {
		prev := Score(base, weights)
		values := append([]float64(nil), base...)
		for step := 0; step <= 10; step++ {
			values[i] = float64(step) / 10
			if values[i] < base[i] {
				continue
			}
			got := Score(values, weights)
			if got < prev {
				t.Fatalf("raising signal %d to %.1f lowered score %d -> %d", i, values[i], prev, got)
			}
			prev = got
		}
	}
}

func TestValidateSignals(t *testing.T) {
	tests := []struct {
		name    string
		signals []domain.SignalConfig
	}{
		{"Empty", nil},
		{"NegativeWeight", []domain.SignalConfig{{Name: "a", Weight: -0.1, Expression: "detected"}}},
		{"AllZeroWeights", []domain.SignalConfig{{Name: "a", Weight: 0, Expression: "detected"}}},
		{"ThresholdAboveOne", []domain.SignalConfig{{Name: "a", Weight: 1, Threshold: 1.5, Expression: "detected"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateSignals(tt.signals); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := ValidateSignals(rules.DefaultSignals()); err != nil {
		t.Errorf("default signals should validate: %v", err)
	}
}

func TestAssessGenuine(t *testing.T) {
	a := newAssessor(t)

	got, err := a.Assess(context.Background(), domain.RiskInput{
		ViolationType:       domain.ViolationNoHelmet,
		Detected:            true,
		DetectionConfidence: 0.95,
		PlateConfidence:     0.9,
		PlateText:           "KA01AB1234",
		PersonCount:         1,
		ReportedPlate:       "KA01AB1234",
		EvidenceCount:       2,
		ReporterReports24h:  1,
	})
	if err != nil {
		t.Fatalf("assess failed: %v", err)
	}

	if got.OverallScore != 3 {
		t.Errorf("expected score 3, got %d", got.OverallScore)
	}
	if got.Recommendation != domain.RecommendLikelyGenuine {
		t.Errorf("expected LIKELY_GENUINE, got %s", got.Recommendation)
	}
	if len(got.FraudIndicators) != 0 {
		t.Errorf("expected no indicators, got %v", got.FraudIndicators)
	}
	if len(got.Signals) != len(rules.DefaultSignals()) {
		t.Errorf("expected %d signal outcomes, got %d", len(rules.DefaultSignals()), len(got.Signals))
	}
	if got.PolicyHash != "builtin" {
		t.Errorf("expected policy hash 'builtin', got %q", got.PolicyHash)
	}
}

func TestAssessSuspicious(t *testing.T) {
	a := newAssessor(t)

	got, err := a.Assess(context.Background(), domain.RiskInput{
		ViolationType:          domain.ViolationTripleRiding,
		Detected:               true,
		DetectionConfidence:    0.1,
		PersonCount:            1,
		ReportedPlate:          "??",
		EvidenceCount:          1,
		LocationDistanceMeters: 5000,
		TimestampSkewSeconds:   200000,
		ReporterReports24h:     40,
		ReporterRejectionRatio: 0.8,
	})
	if err != nil {
		t.Fatalf("assess failed: %v", err)
	}

	if got.OverallScore != 95 {
		t.Errorf("expected score 95, got %d", got.OverallScore)
	}
	if got.Recommendation != domain.RecommendLikelyFake {
		t.Errorf("expected LIKELY_FAKE, got %s", got.Recommendation)
	}

	defaults := rules.DefaultSignals()
	if len(got.FraudIndicators) != len(defaults) {
		t.Fatalf("expected %d indicators, got %v", len(defaults), got.FraudIndicators)
	}
	for i, label := range got.FraudIndicators {
		if label != defaults[i].Label {
			t.Errorf("indicator %d: expected %q, got %q", i, defaults[i].Label, label)
		}
	}
}

func TestAssessCustomPolicy(t *testing.T) {
	a := newAssessor(t)

	err := a.Load([]domain.SignalConfig{
		{Name: "history", Expression: "reporter_rejection_ratio", Weight: 1, Threshold: 0.4},
		{Name: "info_only", Label: "Detector unavailable", Expression: "!detected", Weight: 0, Threshold: 0.5},
	}, "custom")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	got, err := a.Assess(context.Background(), domain.RiskInput{ReporterRejectionRatio: 0.45})
	if err != nil {
		t.Fatalf("assess failed: %v", err)
	}
	if got.OverallScore != 45 {
		t.Errorf("expected score 45, got %d", got.OverallScore)
	}
	if got.Recommendation != domain.RecommendRequiresInvestigation {
		t.Errorf("expected REQUIRES_INVESTIGATION, got %s", got.Recommendation)
	}
	want := []string{"history", "Detector unavailable"}
	if len(got.FraudIndicators) != 2 || got.FraudIndicators[0] != want[0] || got.FraudIndicators[1] != want[1] {
		t.Errorf("expected indicators %v, got %v", want, got.FraudIndicators)
	}
}

func TestLoadRejectsInvalidPolicy(t *testing.T) {
	a := newAssessor(t)

	err := a.Load([]domain.SignalConfig{{Name: "neg", Expression: "detected", Weight: -1}}, "bad")
	if err == nil {
		t.Fatal("expected error for negative weight")
	}
	if a.PolicyHash() != "builtin" {
		t.Errorf("failed load must keep the previous policy, got %q", a.PolicyHash())
	}
	if len(a.Signals()) != len(rules.DefaultSignals()) {
		t.Errorf("failed load must keep previous signals")
	}
}
