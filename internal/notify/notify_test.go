package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DarsanV/HackaThrone-team91/internal/bus"
	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

func capture(t *testing.T, b domain.EventBus, topic string) <-chan []byte {
	t.Helper()
	ch := make(chan []byte, 4)
	_, err := b.Subscribe(context.Background(), topic, func(ctx context.Context, msg *domain.Message) error {
		ch <- msg.Payload
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe %s: %v", topic, err)
	}
	return ch
}

func receive(t *testing.T, ch <-chan []byte, v any) {
	t.Helper()
	select {
	case raw := <-ch:
		if err := json.Unmarshal(raw, v); err != nil {
			t.Fatalf("decode event: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPublisherRewardCredit(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()
	credits := capture(t, b, domain.TopicRewardCredit)

	p := NewPublisher(b, nil, nil)
	now := time.Now().UTC()
	p.RewardCredited(context.Background(), &domain.ViolationReport{
		ID:     "r1",
		Reward: &domain.Reward{ReporterID: "u1", Amount: 50, CreditedAt: now},
	})

	var got domain.RewardCredit
	receive(t, credits, &got)
	if got.ReportID != "r1" || got.ReporterID != "u1" || got.Amount != 50 {
		t.Errorf("unexpected credit: %+v", got)
	}
}

func TestPublisherSkipsMissingReward(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()
	credits := capture(t, b, domain.TopicRewardCredit)

	NewPublisher(b, nil, nil).RewardCredited(context.Background(), &domain.ViolationReport{ID: "r1"})

	select {
	case raw := <-credits:
		t.Errorf("expected no credit for anonymous report, got %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublisherTransition(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()
	events := capture(t, b, domain.TopicReportTransitioned)

	NewPublisher(b, nil, nil).ReportTransitioned(context.Background(), &domain.ViolationReport{
		ID:            "r1",
		ViolationType: domain.ViolationNoHelmet,
		Status:        domain.StatusVerified,
		UpdatedAt:     time.Now(),
	}, domain.StatusPending, "o1")

	var got domain.ReportEvent
	receive(t, events, &got)
	if got.From != domain.StatusPending || got.To != domain.StatusVerified || got.OfficerID != "o1" {
		t.Errorf("unexpected event: %+v", got)
	}
}

func TestPublisherVoidRequest(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()
	voids := capture(t, b, domain.TopicChallanVoidRequested)

	d := &domain.Dispute{
		ID:       "d1",
		ReportID: "r1",
		Status:   domain.DisputeResolvedFake,
		PoliceDecision: &domain.PoliceDecision{
			OfficerID: "o2",
			Decision:  domain.DecisionRejectAsFake,
		},
	}
	NewPublisher(b, nil, nil).ChallanVoidRequested(context.Background(), d, "CH-001")

	var got domain.DisputeEvent
	receive(t, voids, &got)
	if got.ChallanNumber != "CH-001" || got.Decision != domain.DecisionRejectAsFake || got.OfficerID != "o2" {
		t.Errorf("unexpected event: %+v", got)
	}
}

func TestPublisherSurvivesClosedBus(t *testing.T) {
	b := bus.NewChannelBus(10)
	b.Close()

	// Must not panic or block.
	NewPublisher(b, nil, nil).DisputeOpened(context.Background(), &domain.Dispute{ID: "d1"})
}

func TestPublisherDetachesFromCancelledContext(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()
	submitted := capture(t, b, domain.TopicReportSubmitted)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewPublisher(b, nil, nil).ReportSubmitted(ctx, &domain.ViolationReport{ID: "r1", Status: domain.StatusPending})

	var got domain.ReportEvent
	receive(t, submitted, &got)
	if got.ReportID != "r1" {
		t.Errorf("unexpected event: %+v", got)
	}
}

var _ domain.Notifier = (*Publisher)(nil)
var _ domain.Notifier = Nop{}
