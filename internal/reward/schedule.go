package reward

import (
	"fmt"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

// Schedule maps violation types to fines in rupees.
type Schedule struct {
	Fines   map[domain.ViolationType]int64
	Default int64
}

// DefaultSchedule returns the stock fine schedule.
func DefaultSchedule() Schedule {
	return Schedule{
		Fines: map[domain.ViolationType]int64{
			domain.ViolationNoHelmet:     500,
			domain.ViolationTripleRiding: 1000,
			domain.ViolationSignalJump:   1000,
			domain.ViolationOverspeeding: 2000,
			domain.ViolationMobileUse:    1000,
			domain.ViolationNoLicense:    5000,
		},
		Default: DefaultFine,
	}
}

// FineFor returns the scheduled fine for t.
func (s Schedule) FineFor(t domain.ViolationType) int64 {
	if f, ok := s.Fines[t]; ok {
		return f
	}
	if s.Default > 0 {
		return s.Default
	}
	return DefaultFine
}

// FinesFor lists the scheduled fine of each violation on the report.
func (s Schedule) FinesFor(r *domain.ViolationReport) []Fine {
	types := r.Types()
	out := make([]Fine, 0, len(types))
	for _, t := range types {
		out = append(out, Fine{Type: t, Amount: s.FineFor(t)})
	}
	return out
}

// SuggestedFine sums the scheduled fines over the primary and additional
// violation types of r.
func (s Schedule) SuggestedFine(r *domain.ViolationReport) int64 {
	var total int64
	for _, f := range s.FinesFor(r) {
		total += f.Amount
	}
	return total
}

// Validate rejects unknown violation types and non-positive fines.
func (s Schedule) Validate() error {
	for t, f := range s.Fines {
		if !t.Valid() {
			return fmt.Errorf("fine schedule: unknown violation type %q", t)
		}
		if f <= 0 {
			return fmt.Errorf("fine schedule: fine for %s must be positive", t)
		}
	}
	if s.Default < 0 {
		return fmt.Errorf("fine schedule: default fine must not be negative")
	}
	return nil
}
