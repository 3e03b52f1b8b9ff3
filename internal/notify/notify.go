// Package notify publishes lifecycle events on the event bus.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
	"github.com/DarsanV/HackaThrone-team91/internal/metrics"
)

const publishTimeout = 5 * time.Second

// Publisher implements domain.Notifier on an EventBus. Publish failures
// are logged and counted, never returned.
type Publisher struct {
	bus     domain.EventBus
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a bus-backed notifier. m may be nil.
func NewPublisher(bus domain.EventBus, m *metrics.Metrics, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{bus: bus, metrics: m, logger: logger}
}

func (p *Publisher) publish(ctx context.Context, topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("failed to encode event", "topic", topic, "error", err)
		return
	}

	// The transition is already committed; a cancelled request must not
	// drop the event.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.bus.Publish(ctx, topic, payload); err != nil {
		p.metrics.PublishFailed(topic)
		p.logger.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

func (p *Publisher) ReportSubmitted(ctx context.Context, r *domain.ViolationReport) {
	p.publish(ctx, domain.TopicReportSubmitted, domain.ReportEvent{
		ReportID:      r.ID,
		ViolationType: r.ViolationType,
		To:            r.Status,
		Timestamp:     r.CreatedAt.UnixMilli(),
	})
}

func (p *Publisher) ReportTransitioned(ctx context.Context, r *domain.ViolationReport, from domain.ReportStatus, officerID string) {
	p.publish(ctx, domain.TopicReportTransitioned, domain.ReportEvent{
		ReportID:      r.ID,
		ViolationType: r.ViolationType,
		From:          from,
		To:            r.Status,
		OfficerID:     officerID,
		Timestamp:     r.UpdatedAt.UnixMilli(),
	})
}

// RewardCredited sends the credit instruction for the reward ledger.
func (p *Publisher) RewardCredited(ctx context.Context, r *domain.ViolationReport) {
	if r.Reward == nil {
		return
	}
	p.metrics.AddReward(r.Reward.Amount)
	p.publish(ctx, domain.TopicRewardCredit, domain.RewardCredit{
		ReportID:   r.ID,
		ReporterID: r.Reward.ReporterID,
		Amount:     r.Reward.Amount,
		Timestamp:  r.Reward.CreditedAt.UnixMilli(),
	})
}

func (p *Publisher) DisputeOpened(ctx context.Context, d *domain.Dispute) {
	p.publish(ctx, domain.TopicDisputeOpened, disputeEvent(d, ""))
}

func (p *Publisher) DisputeResolved(ctx context.Context, d *domain.Dispute, challanNumber string) {
	p.publish(ctx, domain.TopicDisputeResolved, disputeEvent(d, challanNumber))
}

// ChallanVoidRequested asks the challan system to reverse a challan
// whose dispute was resolved as fake.
func (p *Publisher) ChallanVoidRequested(ctx context.Context, d *domain.Dispute, challanNumber string) {
	p.publish(ctx, domain.TopicChallanVoidRequested, disputeEvent(d, challanNumber))
}

func disputeEvent(d *domain.Dispute, challanNumber string) domain.DisputeEvent {
	ev := domain.DisputeEvent{
		DisputeID:     d.ID,
		ReportID:      d.ReportID,
		Status:        d.Status,
		ChallanNumber: challanNumber,
		Timestamp:     d.UpdatedAt.UnixMilli(),
	}
	if d.PoliceDecision != nil {
		ev.Decision = d.PoliceDecision.Decision
		ev.OfficerID = d.PoliceDecision.OfficerID
	}
	return ev
}

// Nop discards every notification.
type Nop struct{}

func (Nop) ReportSubmitted(context.Context, *domain.ViolationReport) {}
func (Nop) ReportTransitioned(context.Context, *domain.ViolationReport, domain.ReportStatus, string) {}
func (Nop) RewardCredited(context.Context, *domain.ViolationReport) {}
func (Nop) DisputeOpened(context.Context, *domain.Dispute) {}
func (Nop) DisputeResolved(context.Context, *domain.Dispute, string) {}
func (Nop) ChallanVoidRequested(context.Context, *domain.Dispute, string) {}
