package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DarsanV/HackaThrone-team91/internal/cache"
	"github.com/DarsanV/HackaThrone-team91/internal/domain"
	"github.com/DarsanV/HackaThrone-team91/internal/repository"
)

func seed(t *testing.T, repo domain.ReportStore, reporterID string, n int, status domain.ReportStatus, created time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		r := &domain.ViolationReport{
			ID:            fmt.Sprintf("%s-%s-%d-%d", reporterID, status, created.Unix(), i),
			ViolationType: domain.ViolationNoHelmet,
			Location:      domain.Location{Longitude: 77.59, Latitude: 12.97, Address: "MG Road"},
			Vehicle:       domain.Vehicle{NumberPlate: "KA01AB1234"},
			ReporterID:    reporterID,
			Status:        status,
			CreatedAt:     created,
			UpdatedAt:     created,
		}
		if err := repo.CreateReport(context.Background(), r); err != nil {
			t.Fatalf("seed report: %v", err)
		}
	}
}

func TestSnapshotFromStore(t *testing.T) {
	repo := repository.NewMemory()
	now := time.Now().UTC()

	seed(t, repo, "u1", 2, domain.StatusVerified, now.Add(-time.Hour))
	seed(t, repo, "u1", 2, domain.StatusRejected, now.Add(-48*time.Hour))
	seed(t, repo, "u2", 1, domain.StatusPending, now)

	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	snap, err := svc.Snapshot(ctx, "u1")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Total != 4 || snap.Rejected != 2 {
		t.Errorf("expected 4 total / 2 rejected, got %d / %d", snap.Total, snap.Rejected)
	}
	if snap.RejectionRatio != 0.5 {
		t.Errorf("expected ratio 0.5, got %f", snap.RejectionRatio)
	}
	if snap.Reports24h != 2 {
		t.Errorf("expected 2 reports in 24h, got %d", snap.Reports24h)
	}
}

func TestSnapshotSmallSample(t *testing.T) {
	repo := repository.NewMemory()
	seed(t, repo, "new", 1, domain.StatusRejected, time.Now().UTC())

	snap, err := NewService(repo, nil, nil).Snapshot(context.Background(), "new")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.RejectionRatio != 0 {
		t.Errorf("expected no ratio below %d reports, got %f", MinRatioSample, snap.RejectionRatio)
	}
}

func TestSnapshotAnonymous(t *testing.T) {
	snap, err := NewService(repository.NewMemory(), nil, nil).Snapshot(context.Background(), "")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Total != 0 || snap.Reports24h != 0 {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}

func TestSnapshotCaching(t *testing.T) {
	repo := repository.NewMemory()
	c := cache.NewMemoryCache(time.Minute)
	defer c.Close()

	svc := NewService(repo, c, nil)
	ctx := context.Background()

	seed(t, repo, "u1", 1, domain.StatusPending, time.Now().UTC())
	svc.RecordSubmission(ctx, "u1")

	first, _ := svc.Snapshot(ctx, "u1")
	if first.Total != 1 || first.Reports24h != 1 {
		t.Fatalf("unexpected first snapshot: %+v", first)
	}

	// A new report without RecordSubmission is not visible until the
	// snapshot expires or is invalidated.
	seed(t, repo, "u1", 1, domain.StatusRejected, time.Now().UTC())
	cached, _ := svc.Snapshot(ctx, "u1")
	if cached.Total != 1 {
		t.Errorf("expected cached snapshot, got total %d", cached.Total)
	}

	svc.RecordRejection(ctx, "u1")
	fresh, _ := svc.Snapshot(ctx, "u1")
	if fresh.Total != 2 || fresh.Rejected != 1 {
		t.Errorf("expected refreshed snapshot, got %+v", fresh)
	}
}

func TestVelocityCounter(t *testing.T) {
	repo := repository.NewMemory()
	c := cache.NewMemoryCache(time.Minute)
	defer c.Close()

	svc := NewService(repo, c, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.RecordSubmission(ctx, "busy")
	}

	snap, err := svc.Snapshot(ctx, "busy")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Reports24h != 5 {
		t.Errorf("expected counter value 5, got %d", snap.Reports24h)
	}
}
