// Package reward computes reporter rewards and suggested challan fines.
package reward

import (
	"time"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

// RewardPercent is the share of the fine credited to the reporter.
const RewardPercent = 10

// DefaultFine applies to violation types the schedule does not list.
const DefaultFine int64 = 500

// Fine is one violation's fine within a multi-violation challan.
type Fine struct {
	Type   domain.ViolationType
	Amount int64
}

// ComputeReward returns floor(fineAmount * 10%). Invalid types and
// non-positive fines yield 0.
func ComputeReward(t domain.ViolationType, fineAmount int64) int64 {
	if !t.Valid() || fineAmount <= 0 {
		return 0
	}
	return fineAmount * RewardPercent / 100
}

// ComputeTotal sums the fines first and applies the percentage once, so
// a multi-violation report is never rounded down per violation.
func ComputeTotal(fines []Fine) int64 {
	var sum int64
	for _, f := range fines {
		if !f.Type.Valid() || f.Amount <= 0 {
			continue
		}
		sum += f.Amount
	}
	if sum <= 0 {
		return 0
	}
	return sum * RewardPercent / 100
}

// RewardFor builds the reward for a report whose challan carries
// fineAmount. Anonymous reports and zero rewards return nil.
func RewardFor(r *domain.ViolationReport, fineAmount int64, at time.Time) *domain.Reward {
	if r == nil || r.Anonymous() {
		return nil
	}
	amount := ComputeReward(r.ViolationType, fineAmount)
	if amount <= 0 {
		return nil
	}
	return &domain.Reward{
		ReporterID: r.ReporterID,
		Amount:     amount,
		CreditedAt: at,
	}
}
