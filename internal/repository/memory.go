package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

// MemoryRepository is an in-process ReportStore. Records are cloned on
// the way in and out so callers never share mutable state with the store.
type MemoryRepository struct {
	mu               sync.RWMutex
	reports          map[string]*domain.ViolationReport
	disputes         map[string]*domain.Dispute
	disputesByReport map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryRepository {
	return &MemoryRepository{
		reports:          make(map[string]*domain.ViolationReport),
		disputes:         make(map[string]*domain.Dispute),
		disputesByReport: make(map[string]string),
	}
}

func (m *MemoryRepository) CreateReport(_ context.Context, r *domain.ViolationReport) error {
	if r.ID == "" {
		return domain.NewValidationError("id", "is required")
	}
	if r.Version == 0 {
		r.Version = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[r.ID]; ok {
		return fmt.Errorf("report %s: %w", r.ID, domain.ErrConflict)
	}
	m.reports[r.ID] = r.Clone()
	return nil
}

func (m *MemoryRepository) GetReport(_ context.Context, id string) (*domain.ViolationReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "report", ID: id}
	}
	return r.Clone(), nil
}

func (m *MemoryRepository) UpdateReport(_ context.Context, r *domain.ViolationReport, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.reports[r.ID]
	if !ok {
		return &domain.NotFoundError{Entity: "report", ID: r.ID}
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("report %s: %w", r.ID, domain.ErrConflict)
	}

	next := cur.Clone()
	next.Status = r.Status
	next.FraudRisk = r.FraudRisk
	next.Verification = r.Verification
	next.Rejection = r.Rejection
	next.Challan = r.Challan
	next.Reward = r.Reward
	next.UpdatedAt = r.UpdatedAt
	next.Version = expectedVersion + 1
	m.reports[r.ID] = next.Clone()

	r.Version = next.Version
	return nil
}

func (m *MemoryRepository) ListReports(_ context.Context, f domain.ReportFilter) ([]*domain.ViolationReport, error) {
	f = f.Normalize()
	matched := m.filter(f)

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i].CreatedAt, matched[j].CreatedAt
		if f.SortBy == domain.SortUpdatedAt {
			a, b = matched[i].UpdatedAt, matched[j].UpdatedAt
		}
		if a.Equal(b) {
			if f.SortAsc {
				return matched[i].ID < matched[j].ID
			}
			return matched[i].ID > matched[j].ID
		}
		if f.SortAsc {
			return a.Before(b)
		}
		return a.After(b)
	})

	start := f.Offset()
	if start >= len(matched) {
		return nil, nil
	}
	end := start + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func (m *MemoryRepository) CountReports(_ context.Context, f domain.ReportFilter) (int64, error) {
	return int64(len(m.filter(f))), nil
}

func (m *MemoryRepository) filter(f domain.ReportFilter) []*domain.ViolationReport {
	plate := domain.NormalizePlate(f.NumberPlate)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.ViolationReport
	for _, r := range m.reports {
		switch {
		case f.Status != "" && r.Status != f.Status:
			continue
		case f.ExcludeStatus != "" && r.Status == f.ExcludeStatus:
			continue
		case f.ViolationType != "" && r.ViolationType != f.ViolationType:
			continue
		case f.ReporterID != "" && r.ReporterID != f.ReporterID:
			continue
		case plate != "" && r.Vehicle.NumberPlate != plate:
			continue
		case !f.CreatedFrom.IsZero() && r.CreatedAt.Before(f.CreatedFrom):
			continue
		case !f.CreatedTo.IsZero() && r.CreatedAt.After(f.CreatedTo):
			continue
		}
		out = append(out, r.Clone())
	}
	return out
}

func (m *MemoryRepository) NearbyReports(_ context.Context, q domain.NearbyQuery) ([]*domain.NearbyReport, error) {
	q = normalizeNearby(q)

	m.mu.RLock()
	candidates := make([]*domain.ViolationReport, 0, len(m.reports))
	for _, r := range m.reports {
		candidates = append(candidates, r.Clone())
	}
	m.mu.RUnlock()

	return rankByDistance(candidates, q), nil
}

func (m *MemoryRepository) ReportStats(_ context.Context, since time.Time) (*domain.ReportStats, error) {
	stats := &domain.ReportStats{
		ByStatus: make(map[domain.ReportStatus]int64),
		ByType:   make(map[domain.ViolationType]int64),
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.reports {
		if !since.IsZero() && r.CreatedAt.Before(since) {
			continue
		}
		stats.Total++
		stats.ByStatus[r.Status]++
		stats.ByType[r.ViolationType]++
		stats.TotalFines += fineAmount(r)
		stats.TotalRewards += rewardAmount(r)
	}
	return stats, nil
}

func (m *MemoryRepository) DailyCounts(_ context.Context, since time.Time) ([]domain.DailyCount, error) {
	m.mu.RLock()
	var stamps []time.Time
	for _, r := range m.reports {
		if !r.CreatedAt.Before(since) {
			stamps = append(stamps, r.CreatedAt)
		}
	}
	m.mu.RUnlock()

	return bucketByDay(stamps, since, time.Now().UTC()), nil
}

func (m *MemoryRepository) PurgeReport(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[id]; !ok {
		return &domain.NotFoundError{Entity: "report", ID: id}
	}
	delete(m.reports, id)
	if did, ok := m.disputesByReport[id]; ok {
		delete(m.disputes, did)
		delete(m.disputesByReport, id)
	}
	return nil
}

func (m *MemoryRepository) CreateDispute(_ context.Context, d *domain.Dispute) error {
	if d.Version == 0 {
		d.Version = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[d.ReportID]; !ok {
		return &domain.NotFoundError{Entity: "report", ID: d.ReportID}
	}
	if _, ok := m.disputesByReport[d.ReportID]; ok {
		return fmt.Errorf("dispute for report %s: %w", d.ReportID, domain.ErrConflict)
	}
	if _, ok := m.disputes[d.ID]; ok {
		return fmt.Errorf("dispute %s: %w", d.ID, domain.ErrConflict)
	}
	m.disputes[d.ID] = d.Clone()
	m.disputesByReport[d.ReportID] = d.ID
	return nil
}

func (m *MemoryRepository) GetDispute(_ context.Context, id string) (*domain.Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.disputes[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "dispute", ID: id}
	}
	return d.Clone(), nil
}

func (m *MemoryRepository) GetDisputeByReport(_ context.Context, reportID string) (*domain.Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.disputesByReport[reportID]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "dispute", ID: "report:" + reportID}
	}
	return m.disputes[id].Clone(), nil
}

func (m *MemoryRepository) UpdateDispute(_ context.Context, d *domain.Dispute, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.disputes[d.ID]
	if !ok {
		return &domain.NotFoundError{Entity: "dispute", ID: d.ID}
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("dispute %s: %w", d.ID, domain.ErrConflict)
	}

	next := cur.Clone()
	next.Status = d.Status
	next.AIAnalysis = d.AIAnalysis
	next.PoliceDecision = d.PoliceDecision
	next.UpdatedAt = d.UpdatedAt
	next.Version = expectedVersion + 1
	m.disputes[d.ID] = next.Clone()

	d.Version = next.Version
	return nil
}

func (m *MemoryRepository) ListDisputes(_ context.Context, f domain.DisputeFilter) ([]*domain.Dispute, error) {
	limit, offset := pageOf(f.Page, f.Limit)

	m.mu.RLock()
	var out []*domain.Dispute
	for _, d := range m.disputes {
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		out = append(out, d.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (m *MemoryRepository) Ping(context.Context) error { return nil }

func (m *MemoryRepository) Close() error { return nil }
