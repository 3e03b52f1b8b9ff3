// Package worker attaches advisory fraud assessments in the background.
//
// It consumes report.submitted and dispute.opened events, gathers the
// detector output and reporter history, scores them and writes the
// result back through the lifecycle engine or the dispute workflow.
// Failures are logged and counted; no officer action waits on them.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DarsanV/HackaThrone-team91/internal/detection"
	"github.com/DarsanV/HackaThrone-team91/internal/domain"
	"github.com/DarsanV/HackaThrone-team91/internal/history"
	"github.com/DarsanV/HackaThrone-team91/internal/metrics"
)

const jobTimeout = 30 * time.Second

// Reports is the slice of the lifecycle engine the worker uses.
type Reports interface {
	Get(ctx context.Context, id string) (*domain.ViolationReport, error)
	AttachRisk(ctx context.Context, id string, a *domain.Assessment) (*domain.ViolationReport, error)
}

// Disputes is the slice of the dispute workflow the worker uses.
type Disputes interface {
	Get(ctx context.Context, id string) (*domain.Dispute, error)
	AttachAIAnalysis(ctx context.Context, id string, a domain.AIAnalysis) (*domain.Dispute, error)
}

// Assessor scores a risk input.
type Assessor interface {
	Assess(ctx context.Context, in domain.RiskInput) (*domain.Assessment, error)
}

// Detector fetches the AI analysis of a report's evidence.
type Detector interface {
	Enabled() bool
	Analyze(ctx context.Context, rep *domain.ViolationReport) (*detection.Result, error)
}

// History returns reporter activity.
type History interface {
	Snapshot(ctx context.Context, reporterID string) (*history.Snapshot, error)
}

// Deps are the collaborators of a Worker. Detector, History and Metrics
// are optional.
type Deps struct {
	Reports  Reports
	Disputes Disputes
	Assessor Assessor
	Detector Detector
	History  History
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Worker processes assessment jobs from the EventBus.
type Worker struct {
	bus  domain.EventBus
	deps Deps

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

// New creates a worker.
func New(bus domain.EventBus, deps Deps) *Worker {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Worker{bus: bus, deps: deps}
}

// Start subscribes to the report and dispute topics.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return fmt.Errorf("worker already started")
	}
	w.ctx, w.cancel = context.WithCancel(ctx)

	handlers := map[string]domain.MessageHandler{
		domain.TopicReportSubmitted: w.handleReport,
		domain.TopicDisputeOpened:   w.handleDispute,
	}
	for _, topic := range []string{domain.TopicReportSubmitted, domain.TopicDisputeOpened} {
		sub, err := w.bus.Subscribe(w.ctx, topic, w.wrap(topic, handlers[topic]))
		if err != nil {
			w.unsubscribeLocked()
			w.cancel()
			w.cancel = nil
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	w.deps.Logger.Info("assessment worker started",
		"topics", len(w.subscriptions),
		"detection", w.deps.Detector != nil && w.deps.Detector.Enabled(),
	)
	return nil
}

// Stop unsubscribes. Jobs already running finish or see their context
// cancelled.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel == nil {
		return nil
	}
	w.cancel()
	w.cancel = nil
	w.unsubscribeLocked()

	w.deps.Logger.Info("assessment worker stopped",
		"processed", w.processed.Load(),
		"failed", w.failed.Load(),
	)
	return nil
}

func (w *Worker) unsubscribeLocked() {
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.deps.Logger.Error("failed to unsubscribe", "topic", sub.Topic(), "error", err)
		}
	}
	w.subscriptions = nil
}

// Stats is a point-in-time view of the worker.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Skipped           int64    `json:"skipped"`
	Failed            int64    `json:"failed"`
}

// Stats returns current worker statistics.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	w.mu.Unlock()

	return Stats{
		SubscriptionCount: len(topics),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Skipped:           w.skipped.Load(),
		Failed:            w.failed.Load(),
	}
}

// errSkip marks a job that no longer applies, such as a report an
// officer already acted on.
var errSkip = errors.New("skipped")

func (w *Worker) wrap(topic string, h domain.MessageHandler) domain.MessageHandler {
	return func(ctx context.Context, msg *domain.Message) error {
		ctx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()

		start := time.Now()
		err := h(ctx, msg)
		switch {
		case err == nil:
			w.processed.Add(1)
			w.deps.Metrics.WorkerJob(topic, nil)
		case errors.Is(err, errSkip):
			w.skipped.Add(1)
			w.deps.Metrics.WorkerJob(topic, domain.ErrInvalidTransition)
			w.deps.Logger.Debug("assessment skipped", "topic", topic, "message_id", msg.ID, "reason", err)
			return nil
		default:
			w.failed.Add(1)
			w.deps.Metrics.WorkerJob(topic, err)
		}
		w.deps.Logger.Debug("assessment job done",
			"topic", topic,
			"message_id", msg.ID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}
}

func (w *Worker) handleReport(ctx context.Context, msg *domain.Message) error {
	var ev domain.ReportEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return fmt.Errorf("decode report event: %w", err)
	}

	rep, err := w.deps.Reports.Get(ctx, ev.ReportID)
	if err != nil {
		return fmt.Errorf("load report %s: %w", ev.ReportID, err)
	}
	if rep.Status != domain.StatusPending {
		return fmt.Errorf("report %s is %s: %w", rep.ID, rep.Status, errSkip)
	}

	a, err := w.assess(ctx, rep)
	if err != nil {
		return err
	}

	if _, err := w.deps.Reports.AttachRisk(ctx, rep.ID, a); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return fmt.Errorf("report %s reviewed before assessment: %w", rep.ID, errSkip)
		}
		return fmt.Errorf("attach risk to report %s: %w", rep.ID, err)
	}

	w.deps.Logger.Info("report assessed",
		"report_id", rep.ID,
		"score", a.OverallScore,
		"recommendation", a.Recommendation,
		"indicators", len(a.FraudIndicators),
	)
	return nil
}

func (w *Worker) handleDispute(ctx context.Context, msg *domain.Message) error {
	var ev domain.DisputeEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return fmt.Errorf("decode dispute event: %w", err)
	}

	d, err := w.deps.Disputes.Get(ctx, ev.DisputeID)
	if err != nil {
		return fmt.Errorf("load dispute %s: %w", ev.DisputeID, err)
	}
	if d.Status != domain.DisputePendingAIAnalysis {
		return fmt.Errorf("dispute %s is %s: %w", d.ID, d.Status, errSkip)
	}

	rep, err := w.deps.Reports.Get(ctx, d.ReportID)
	if err != nil {
		return fmt.Errorf("load report %s: %w", d.ReportID, err)
	}

	a, err := w.assess(ctx, rep)
	if err != nil {
		return err
	}

	if _, err := w.deps.Disputes.AttachAIAnalysis(ctx, d.ID, a.AIAnalysis()); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return fmt.Errorf("dispute %s already analysed: %w", d.ID, errSkip)
		}
		return fmt.Errorf("attach analysis to dispute %s: %w", d.ID, err)
	}

	w.deps.Logger.Info("dispute analysed",
		"dispute_id", d.ID,
		"report_id", rep.ID,
		"score", a.OverallScore,
		"recommendation", a.Recommendation,
	)
	return nil
}

func (w *Worker) assess(ctx context.Context, rep *domain.ViolationReport) (*domain.Assessment, error) {
	var det *detection.Result
	if w.deps.Detector != nil && w.deps.Detector.Enabled() {
		res, err := w.deps.Detector.Analyze(ctx, rep)
		if err != nil {
			w.deps.Logger.Warn("detection unavailable, scoring without it",
				"report_id", rep.ID,
				"error", err,
			)
		} else {
			det = res
		}
	}

	var snap *history.Snapshot
	if w.deps.History != nil && !rep.Anonymous() {
		s, err := w.deps.History.Snapshot(ctx, rep.ReporterID)
		if err != nil {
			w.deps.Logger.Warn("reporter history unavailable", "report_id", rep.ID, "error", err)
		} else {
			snap = s
		}
	}

	a, err := w.deps.Assessor.Assess(ctx, BuildInput(rep, det, snap))
	if err != nil {
		return nil, fmt.Errorf("assess report %s: %w", rep.ID, err)
	}
	w.deps.Metrics.ObserveAssessment(a)
	return a, nil
}
