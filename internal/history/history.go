// Package history tracks reporter behaviour used by the fraud signals.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DarsanV/HackaThrone-team91/internal/cache"
	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

const (
	// VelocityWindow is the window of the reports-per-reporter counter.
	VelocityWindow = 24 * time.Hour

	// MinRatioSample is the number of reports a reporter needs before
	// their rejection ratio counts against them.
	MinRatioSample = 3

	snapshotTTL = time.Minute
)

// Snapshot summarises one reporter.
type Snapshot struct {
	ReporterID     string  `json:"reporterId"`
	Reports24h     int64   `json:"reports24h"`
	Total          int64   `json:"total"`
	Rejected       int64   `json:"rejected"`
	RejectionRatio float64 `json:"rejectionRatio"`
}

// Service computes reporter history from the store, with counters and
// short-lived snapshots kept in the cache.
type Service struct {
	repo   domain.ReportStore
	cache  domain.Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a history service. counters may be nil.
func NewService(repo domain.ReportStore, counters domain.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		cache:  counters,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func velocityKey(reporterID string) string { return "history:velocity:" + reporterID }
func snapshotKey(reporterID string) string { return "history:snapshot:" + reporterID }

// RecordSubmission counts a new report against the reporter's window.
func (s *Service) RecordSubmission(ctx context.Context, reporterID string) {
	if reporterID == "" || s.cache == nil {
		return
	}
	if _, err := s.cache.IncrementCounter(ctx, velocityKey(reporterID), VelocityWindow); err != nil {
		s.logger.Warn("failed to count submission", "reporter_id", reporterID, "error", err)
	}
	s.invalidate(ctx, reporterID)
}

// RecordRejection drops the cached snapshot so the next read sees the
// new rejection.
func (s *Service) RecordRejection(ctx context.Context, reporterID string) {
	if reporterID == "" || s.cache == nil {
		return
	}
	s.invalidate(ctx, reporterID)
}

func (s *Service) invalidate(ctx context.Context, reporterID string) {
	if err := s.cache.Delete(ctx, snapshotKey(reporterID)); err != nil {
		s.logger.Warn("failed to invalidate reporter snapshot", "reporter_id", reporterID, "error", err)
	}
}

// Snapshot returns the reporter's history. Anonymous reporters have none.
func (s *Service) Snapshot(ctx context.Context, reporterID string) (*Snapshot, error) {
	if reporterID == "" {
		return &Snapshot{}, nil
	}

	if snap, ok := cache.GetJSON[Snapshot](ctx, s.cache, snapshotKey(reporterID)); ok {
		return snap, nil
	}

	snap, err := s.compute(ctx, reporterID)
	if err != nil {
		return nil, err
	}
	_ = cache.SetJSON(ctx, s.cache, snapshotKey(reporterID), snap, snapshotTTL)
	return snap, nil
}

func (s *Service) compute(ctx context.Context, reporterID string) (*Snapshot, error) {
	snap := &Snapshot{ReporterID: reporterID}

	total, err := s.repo.CountReports(ctx, domain.ReportFilter{ReporterID: reporterID})
	if err != nil {
		return nil, fmt.Errorf("count reports: %w", err)
	}
	rejected, err := s.repo.CountReports(ctx, domain.ReportFilter{ReporterID: reporterID, Status: domain.StatusRejected})
	if err != nil {
		return nil, fmt.Errorf("count rejected reports: %w", err)
	}
	snap.Total, snap.Rejected = total, rejected
	if total >= MinRatioSample {
		snap.RejectionRatio = float64(rejected) / float64(total)
	}

	// The counter is authoritative while warm; after a restart it reads 0
	// and the store is asked instead.
	if s.cache != nil {
		if n, err := s.cache.GetCounter(ctx, velocityKey(reporterID)); err == nil && n > 0 {
			snap.Reports24h = n
			return snap, nil
		}
	}
	recent, err := s.repo.CountReports(ctx, domain.ReportFilter{
		ReporterID:  reporterID,
		CreatedFrom: s.now().Add(-VelocityWindow),
	})
	if err != nil {
		return nil, fmt.Errorf("count recent reports: %w", err)
	}
	snap.Reports24h = recent
	return snap, nil
}
