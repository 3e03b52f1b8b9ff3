package domain

import "time"

// DisputeStatus is the state of a challenge against an issued challan.
type DisputeStatus string

const (
	DisputePendingAIAnalysis   DisputeStatus = "pending_ai_analysis"
	DisputePendingPoliceReview DisputeStatus = "pending_police_review"
	DisputeResolvedGenuine     DisputeStatus = "resolved_genuine"
	DisputeResolvedFake        DisputeStatus = "resolved_fake"
)

// Valid reports whether s is a known dispute status.
func (s DisputeStatus) Valid() bool {
	switch s {
	case DisputePendingAIAnalysis, DisputePendingPoliceReview, DisputeResolvedGenuine, DisputeResolvedFake:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s DisputeStatus) Terminal() bool {
	return s == DisputeResolvedGenuine || s == DisputeResolvedFake
}

// Decision is the officer's final ruling on a dispute.
type Decision string

const (
	DecisionApproveViolation Decision = "APPROVE_VIOLATION"
	DecisionRejectAsFake     Decision = "REJECT_AS_FAKE"
)

// Valid reports whether d is one of the two rulings.
func (d Decision) Valid() bool {
	return d == DecisionApproveViolation || d == DecisionRejectAsFake
}

// AIAnalysis is the automated assessment attached before police review.
type AIAnalysis struct {
	OverallScore    int            `json:"overallScore" bson:"overall_score"`
	Recommendation  Recommendation `json:"recommendation" bson:"recommendation"`
	FraudIndicators []string       `json:"fraudIndicators" bson:"fraud_indicators"`
}

// PoliceDecision is present only once a dispute is resolved.
type PoliceDecision struct {
	OfficerID string    `json:"officerId" bson:"officer_id"`
	Decision  Decision  `json:"decision" bson:"decision"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Dispute is a challenge raised by the accused vehicle owner.
type Dispute struct {
	ID             string          `json:"id" bson:"_id"`
	ReportID       string          `json:"reportId" bson:"report_id"`
	Reason         string          `json:"reason,omitempty" bson:"reason,omitempty"`
	Status         DisputeStatus   `json:"status" bson:"status"`
	AIAnalysis     *AIAnalysis     `json:"aiAnalysis,omitempty" bson:"ai_analysis,omitempty"`
	PoliceDecision *PoliceDecision `json:"policeDecision,omitempty" bson:"police_decision,omitempty"`

	Version   int64     `json:"version" bson:"version"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// Clone returns a deep copy.
func (d *Dispute) Clone() *Dispute {
	if d == nil {
		return nil
	}
	c := *d
	if d.AIAnalysis != nil {
		a := *d.AIAnalysis
		a.FraudIndicators = append([]string(nil), d.AIAnalysis.FraudIndicators...)
		c.AIAnalysis = &a
	}
	if d.PoliceDecision != nil {
		p := *d.PoliceDecision
		c.PoliceDecision = &p
	}
	return &c
}
