package domain

import "time"

// Recommendation is the advisory verdict derived from a fraud risk score.
type Recommendation string

const (
	RecommendLikelyFake            Recommendation = "LIKELY_FAKE"
	RecommendRequiresInvestigation Recommendation = "REQUIRES_INVESTIGATION"
	RecommendLikelyGenuine         Recommendation = "LIKELY_GENUINE"
)

// Valid reports whether r is a known recommendation.
func (r Recommendation) Valid() bool {
	switch r {
	case RecommendLikelyFake, RecommendRequiresInvestigation, RecommendLikelyGenuine:
		return true
	}
	return false
}

// Assessment is an advisory fraud risk result. It never gates a transition.
type Assessment struct {
	OverallScore    int             `json:"overallScore" bson:"overall_score"`
	Recommendation  Recommendation  `json:"recommendation" bson:"recommendation"`
	FraudIndicators []string        `json:"fraudIndicators" bson:"fraud_indicators"`
	Signals         []SignalOutcome `json:"signals,omitempty" bson:"signals,omitempty"`
	PolicyHash      string          `json:"policyHash,omitempty" bson:"policy_hash,omitempty"`
	AssessedAt      time.Time       `json:"assessedAt" bson:"assessed_at"`
}

// AIAnalysis converts the assessment into the dispute attachment shape.
func (a *Assessment) AIAnalysis() AIAnalysis {
	return AIAnalysis{
		OverallScore:    a.OverallScore,
		Recommendation:  a.Recommendation,
		FraudIndicators: append([]string(nil), a.FraudIndicators...),
	}
}

// SignalOutcome shows how one signal contributed to the score.
type SignalOutcome struct {
	Name         string  `json:"name" bson:"name"`
	Value        float64 `json:"value" bson:"value"`               // suspicion, 0.0-1.0
	Weight       float64 `json:"weight" bson:"weight"`
	Contribution float64 `json:"contribution" bson:"contribution"` // value * weight / total weight
	Triggered    bool    `json:"triggered" bson:"triggered"`
}

// RiskInput carries the opaque detector outputs and report metadata the
// assessor combines. Zero values mean "no information".
type RiskInput struct {
	ViolationType ViolationType `json:"violationType"`

	// Detected is false when no detector output was available; detector
	// based signals then stay neutral.
	Detected bool `json:"detected"`

	// AI detection service outputs, 0.0-1.0.
	DetectionConfidence float64 `json:"detectionConfidence"`
	PlateConfidence     float64 `json:"plateConfidence"`
	PlateText           string  `json:"plateText,omitempty"`
	PersonCount         int     `json:"personCount"`

	ReportedPlate string `json:"reportedPlate"`
	EvidenceCount int    `json:"evidenceCount"`

	// Consistency checks between the report and its evidence.
	LocationDistanceMeters float64 `json:"locationDistanceMeters"`
	TimestampSkewSeconds   float64 `json:"timestampSkewSeconds"`

	// Reporter history.
	ReporterReports24h     int64   `json:"reporterReports24h"`
	ReporterRejectionRatio float64 `json:"reporterRejectionRatio"`
}

// SignalConfig is one weighted fraud signal of a risk policy.
type SignalConfig struct {
	Name       string  `yaml:"name" json:"name"`
	Label      string  `yaml:"label" json:"label"`
	Expression string  `yaml:"expression" json:"expression"`
	Weight     float64 `yaml:"weight" json:"weight"`
	Threshold  float64 `yaml:"threshold" json:"threshold"`
}
