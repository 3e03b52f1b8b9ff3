package worker

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/DarsanV/HackaThrone-team91/internal/bus"
	"github.com/DarsanV/HackaThrone-team91/internal/detection"
	"github.com/DarsanV/HackaThrone-team91/internal/dispute"
	"github.com/DarsanV/HackaThrone-team91/internal/domain"
	"github.com/DarsanV/HackaThrone-team91/internal/history"
	"github.com/DarsanV/HackaThrone-team91/internal/lifecycle"
	"github.com/DarsanV/HackaThrone-team91/internal/notify"
	"github.com/DarsanV/HackaThrone-team91/internal/repository"
	"github.com/DarsanV/HackaThrone-team91/internal/risk"
	"github.com/DarsanV/HackaThrone-team91/internal/rules"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeDetector struct {
	result *detection.Result
	err    error
}

func (f *fakeDetector) Enabled() bool { return true }

func (f *fakeDetector) Analyze(context.Context, *domain.ViolationReport) (*detection.Result, error) {
	return f.result, f.err
}

type harness struct {
	bus      *bus.ChannelBus
	engine   *lifecycle.Engine
	workflow *dispute.Workflow
	worker   *Worker
}

func newHarness(t *testing.T, det Detector) *harness {
	t.Helper()

	store := repository.NewMemory()
	eventBus := bus.NewChannelBus(100)
	pub := notify.NewPublisher(eventBus, nil, nil)

	ruleEngine, err := rules.NewEngine(4)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	assessor := risk.NewAssessor(ruleEngine, nil)
	if err := assessor.Load(rules.DefaultSignals(), "test"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	hist := history.NewService(store, nil, nil)
	engine := lifecycle.New(store, lifecycle.WithNotifier(pub), lifecycle.WithHistory(hist))
	workflow := dispute.New(store, dispute.WithNotifier(pub))

	w := New(eventBus, Deps{
		Reports:  engine,
		Disputes: workflow,
		Assessor: assessor,
		Detector: det,
		History:  hist,
	})

	h := &harness{bus: eventBus, engine: engine, workflow: workflow, worker: w}
	t.Cleanup(func() {
		w.Stop()
		eventBus.Close()
	})
	return h
}

func submitRequest() domain.SubmitRequest {
	return domain.SubmitRequest{
		ViolationType: domain.ViolationNoHelmet,
		Location:      domain.Location{Longitude: 77.5946, Latitude: 12.9716, Address: "MG Road"},
		Vehicle:       domain.Vehicle{NumberPlate: "KA01AB1234"},
		Evidence:      []domain.Evidence{{Kind: domain.EvidencePhoto, Ref: "evidence/1.jpg"}},
		ReporterID:    "u1",
	}
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWorker_StartStop(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.worker.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := h.worker.Start(context.Background()); err == nil {
		t.Error("Expected error on second Start")
	}

	stats := h.worker.Stats()
	if stats.SubscriptionCount != 2 {
		t.Errorf("Expected 2 subscriptions, got %d", stats.SubscriptionCount)
	}

	if err := h.worker.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if stats := h.worker.Stats(); stats.SubscriptionCount != 0 {
		t.Errorf("Expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
	}
	if err := h.worker.Stop(); err != nil {
		t.Errorf("Second Stop failed: %v", err)
	}
}

func TestWorker_AssessesSubmittedReport(t *testing.T) {
	det := &fakeDetector{result: &detection.Result{
		Detections:  []detection.Detection{{Class: "no_helmet", Confidence: 0.95}},
		Plate:       &detection.Plate{Text: "KA01AB1234", Confidence: 0.9},
		PersonCount: 1,
	}}
	h := newHarness(t, det)
	if err := h.worker.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx := context.Background()
	rep, err := h.engine.Submit(ctx, submitRequest())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	var got *domain.ViolationReport
	eventually(t, 2*time.Second, func() bool {
		got, _ = h.engine.Get(ctx, rep.ID)
		return got.FraudRisk != nil
	})

	if got.Status != domain.StatusPending {
		t.Errorf("Assessment changed status to %s", got.Status)
	}
	if got.FraudRisk.Recommendation != domain.RecommendLikelyGenuine {
		t.Errorf("Expected LIKELY_GENUINE, got %s (score %d)", got.FraudRisk.Recommendation, got.FraudRisk.OverallScore)
	}
	if got.FraudRisk.PolicyHash != "test" {
		t.Errorf("Expected policy hash to be recorded, got %q", got.FraudRisk.PolicyHash)
	}
	eventually(t, 2*time.Second, func() bool { return h.worker.Stats().Processed == 1 })
}

func TestWorker_DetectorFailureStillScores(t *testing.T) {
	h := newHarness(t, &fakeDetector{err: errors.New("connection refused")})
	if err := h.worker.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx := context.Background()
	rep, _ := h.engine.Submit(ctx, submitRequest())

	eventually(t, 2*time.Second, func() bool {
		got, _ := h.engine.Get(ctx, rep.ID)
		return got.FraudRisk != nil
	})
}

func TestWorker_AnalysesDispute(t *testing.T) {
	det := &fakeDetector{result: &detection.Result{
		Detections:  []detection.Detection{{Class: "no_helmet", Confidence: 0.1}},
		Plate:       &detection.Plate{Text: "MH12XY9999", Confidence: 0.9},
		PersonCount: 1,
	}}
	h := newHarness(t, det)
	ctx := context.Background()

	rep, _ := h.engine.Submit(ctx, submitRequest())
	if _, err := h.engine.Verify(ctx, rep.ID, "o1", ""); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if _, err := h.engine.IssueChallan(ctx, rep.ID, domain.IssueChallanRequest{ChallanNumber: "CH-1", FineAmount: 500, OfficerID: "o1"}); err != nil {
		t.Fatalf("IssueChallan failed: %v", err)
	}

	if err := h.worker.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	d, err := h.workflow.Open(ctx, rep.ID, "not my vehicle")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	var got *domain.Dispute
	eventually(t, 2*time.Second, func() bool {
		got, _ = h.workflow.Get(ctx, d.ID)
		return got.Status == domain.DisputePendingPoliceReview
	})

	if got.AIAnalysis == nil {
		t.Fatal("Expected AI analysis")
	}
	if got.AIAnalysis.Recommendation == domain.RecommendLikelyGenuine {
		t.Errorf("Mismatched plate and weak detection should not look genuine: %+v", got.AIAnalysis)
	}
	if got.PoliceDecision != nil {
		t.Error("Worker must never decide a dispute")
	}
}

func TestWorker_SkipsReviewedReport(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	rep, _ := h.engine.Submit(ctx, submitRequest())
	if _, err := h.engine.Verify(ctx, rep.ID, "o1", ""); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if err := h.worker.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	payload := []byte(`{"reportId":"` + rep.ID + `","to":"pending"}`)
	if err := h.bus.Publish(ctx, domain.TopicReportSubmitted, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	eventually(t, 2*time.Second, func() bool { return h.worker.Stats().Skipped == 1 })

	got, _ := h.engine.Get(ctx, rep.ID)
	if got.FraudRisk != nil {
		t.Error("Reviewed report must not receive an assessment")
	}
}

func TestWorker_BadPayload(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if err := h.worker.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h.bus.Publish(ctx, domain.TopicReportSubmitted, []byte("{"))
	h.bus.Publish(ctx, domain.TopicDisputeOpened, []byte(`{"disputeId":"missing"}`))

	eventually(t, 2*time.Second, func() bool { return h.worker.Stats().Failed == 2 })
}

func TestBuildInput(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	captured := created.Add(-2 * time.Hour)
	rep := &domain.ViolationReport{
		ViolationType: domain.ViolationTripleRiding,
		Location:      domain.Location{Longitude: 77.5946, Latitude: 12.9716},
		Vehicle:       domain.Vehicle{NumberPlate: "KA01AB1234"},
		Evidence: []domain.Evidence{
			{Kind: domain.EvidencePhoto, Ref: "a", CapturedAt: &captured},
			{Kind: domain.EvidencePhoto, Ref: "b"},
		},
		CreatedAt: created,
	}

	t.Run("no detector", func(t *testing.T) {
		in := BuildInput(rep, nil, nil)
		if in.Detected {
			t.Error("Detected should be false without detector output")
		}
		if in.EvidenceCount != 2 || in.ReportedPlate != "KA01AB1234" {
			t.Errorf("Unexpected input: %+v", in)
		}
		if in.TimestampSkewSeconds != 7200 {
			t.Errorf("Expected evidence skew 7200s, got %v", in.TimestampSkewSeconds)
		}
	})

	t.Run("with detector and history", func(t *testing.T) {
		exif := created.Add(-30 * time.Second)
		det := &detection.Result{
			Detections:  []detection.Detection{{Class: "triple_riding", Confidence: 0.8}},
			Plate:       &detection.Plate{Text: "KA01AB1234", Confidence: 0.7},
			PersonCount: 3,
			Geotag:      &detection.Geotag{Latitude: 12.9816, Longitude: 77.5946},
			CapturedAt:  &exif,
		}
		in := BuildInput(rep, det, &history.Snapshot{Reports24h: 4, RejectionRatio: 0.25})

		if !in.Detected || in.DetectionConfidence != 0.8 || in.PersonCount != 3 {
			t.Errorf("Unexpected detector fields: %+v", in)
		}
		if in.PlateText != "KA01AB1234" || in.PlateConfidence != 0.7 {
			t.Errorf("Unexpected plate fields: %+v", in)
		}
		// 0.01 degrees of latitude is roughly 1112 m.
		if math.Abs(in.LocationDistanceMeters-1112) > 5 {
			t.Errorf("Expected ~1112 m, got %v", in.LocationDistanceMeters)
		}
		if in.TimestampSkewSeconds != 30 {
			t.Errorf("Expected EXIF skew 30s, got %v", in.TimestampSkewSeconds)
		}
		if in.ReporterReports24h != 4 || in.ReporterRejectionRatio != 0.25 {
			t.Errorf("Unexpected history fields: %+v", in)
		}
	})
}
