// Package dispute runs the challenge workflow for issued challans:
//
//	pending_ai_analysis -> pending_police_review -> resolved_genuine
//	                                             -> resolved_fake
//
// The automated analysis only moves a dispute into police review. The
// officer's decision is final and is the only way to reach a terminal
// state.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
	"github.com/DarsanV/HackaThrone-team91/internal/metrics"
	"github.com/DarsanV/HackaThrone-team91/internal/notify"
)

const maxConflictRetries = 5

var tracer = otel.Tracer("snapnearn/dispute")

var transitions = map[domain.DisputeStatus][]domain.DisputeStatus{
	domain.DisputePendingAIAnalysis:   {domain.DisputePendingPoliceReview},
	domain.DisputePendingPoliceReview: {domain.DisputeResolvedGenuine, domain.DisputeResolvedFake},
}

// ValidateTransition reports whether a dispute may move from one status to another.
func ValidateTransition(from, to domain.DisputeStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Workflow drives disputes through their states.
type Workflow struct {
	store    domain.ReportStore
	notifier domain.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithNotifier sets the post-commit notification hook.
func WithNotifier(n domain.Notifier) Option { return func(w *Workflow) { w.notifier = n } }

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option { return func(w *Workflow) { w.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(w *Workflow) { w.logger = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(w *Workflow) { w.now = now } }

// New creates a workflow over store.
func New(store domain.ReportStore, opts ...Option) *Workflow {
	w := &Workflow{
		store:    store,
		notifier: notify.Nop{},
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Workflow) observe(ctx context.Context, op, id string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "dispute."+op,
		trace.WithAttributes(attribute.String("dispute.id", id)),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		w.metrics.ObserveOperation("dispute", op, err, time.Since(start))
	}
}

// Open creates a dispute against a challan-issued report. A report can
// be disputed once.
func (w *Workflow) Open(ctx context.Context, reportID, reason string) (d *domain.Dispute, err error) {
	ctx, done := w.observe(ctx, "open", "")
	defer func() { done(err) }()

	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return nil, domain.NewValidationError("reportId", "is required")
	}

	rep, err := w.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if rep.Status != domain.StatusChallanIssued {
		return nil, &domain.StateError{
			Entity: "report",
			ID:     reportID,
			Reason: fmt.Sprintf("only challan_issued reports can be disputed, status is %s", rep.Status),
		}
	}

	now := w.now()
	d = &domain.Dispute{
		ID:        w.newID(),
		ReportID:  reportID,
		Reason:    strings.TrimSpace(reason),
		Status:    domain.DisputePendingAIAnalysis,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := w.store.CreateDispute(ctx, d); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, &domain.StateError{Entity: "report", ID: reportID, Reason: "a dispute already exists"}
		}
		return nil, fmt.Errorf("create dispute: %w", err)
	}

	w.logger.Info("dispute opened", "dispute_id", d.ID, "report_id", reportID)
	w.notifier.DisputeOpened(ctx, d)
	return d, nil
}

// AttachAIAnalysis records the automated analysis and hands the dispute
// to police review.
func (w *Workflow) AttachAIAnalysis(ctx context.Context, id string, a domain.AIAnalysis) (d *domain.Dispute, err error) {
	ctx, done := w.observe(ctx, "attach_analysis", id)
	defer func() { done(err) }()

	if a.OverallScore < 0 || a.OverallScore > 100 {
		return nil, domain.NewValidationError("overallScore", "must be within 0..100")
	}
	if !a.Recommendation.Valid() {
		return nil, domain.NewValidationError("recommendation", fmt.Sprintf("unknown recommendation %q", a.Recommendation))
	}
	if a.FraudIndicators == nil {
		a.FraudIndicators = []string{}
	}

	d, err = w.transition(ctx, "attach_analysis", id, domain.DisputePendingPoliceReview, func(d *domain.Dispute, _ time.Time) {
		cp := a
		cp.FraudIndicators = append([]string{}, a.FraudIndicators...)
		d.AIAnalysis = &cp
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("dispute analysed",
		"dispute_id", id,
		"score", a.OverallScore,
		"recommendation", a.Recommendation,
	)
	return d, nil
}

// RecordDecision applies the officer's final ruling. REJECT_AS_FAKE asks
// for the challan to be voided; the report itself is left untouched.
func (w *Workflow) RecordDecision(ctx context.Context, id string, decision domain.Decision, officerID string) (d *domain.Dispute, err error) {
	ctx, done := w.observe(ctx, "decide", id)
	defer func() { done(err) }()

	var to domain.DisputeStatus
	switch decision {
	case domain.DecisionApproveViolation:
		to = domain.DisputeResolvedGenuine
	case domain.DecisionRejectAsFake:
		to = domain.DisputeResolvedFake
	default:
		return nil, &domain.TransitionError{
			Entity: "dispute",
			Op:     "decide",
			From:   string(decision),
			Reason: "decision must be APPROVE_VIOLATION or REJECT_AS_FAKE",
		}
	}
	officerID = strings.TrimSpace(officerID)
	if officerID == "" {
		return nil, domain.NewValidationError("officerId", "is required")
	}

	d, err = w.transition(ctx, "decide", id, to, func(d *domain.Dispute, now time.Time) {
		d.PoliceDecision = &domain.PoliceDecision{
			OfficerID: officerID,
			Decision:  decision,
			Timestamp: now,
		}
	})
	if err != nil {
		return nil, err
	}

	var challanNumber string
	if rep, err := w.store.GetReport(ctx, d.ReportID); err == nil && rep.Challan != nil {
		challanNumber = rep.Challan.ChallanNumber
	} else if err != nil {
		w.logger.Warn("dispute report lookup failed", "dispute_id", id, "report_id", d.ReportID, "error", err)
	}

	w.logger.Info("dispute resolved",
		"dispute_id", id,
		"report_id", d.ReportID,
		"decision", decision,
		"officer_id", officerID,
	)
	w.notifier.DisputeResolved(ctx, d, challanNumber)
	if decision == domain.DecisionRejectAsFake {
		w.notifier.ChallanVoidRequested(ctx, d, challanNumber)
	}
	return d, nil
}

func (w *Workflow) transition(
	ctx context.Context,
	op, id string,
	to domain.DisputeStatus,
	mutate func(d *domain.Dispute, now time.Time),
) (*domain.Dispute, error) {
	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		cur, err := w.store.GetDispute(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ValidateTransition(cur.Status, to) {
			return nil, &domain.TransitionError{Entity: "dispute", Op: op, From: string(cur.Status)}
		}

		next := cur.Clone()
		now := w.now()
		mutate(next, now)
		next.Status = to
		next.UpdatedAt = now

		err = w.store.UpdateDispute(ctx, next, cur.Version)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("%s dispute %s: %w", op, id, err)
		}
		w.logger.Debug("version conflict, retrying", "dispute_id", id, "op", op, "attempt", attempt)
	}
	return nil, fmt.Errorf("%s dispute %s: gave up after %d attempts: %w", op, id, maxConflictRetries, domain.ErrConflict)
}

// Get returns a dispute by id.
func (w *Workflow) Get(ctx context.Context, id string) (*domain.Dispute, error) {
	return w.store.GetDispute(ctx, id)
}

// GetByReport returns the dispute raised against a report.
func (w *Workflow) GetByReport(ctx context.Context, reportID string) (*domain.Dispute, error) {
	return w.store.GetDisputeByReport(ctx, reportID)
}

// List returns disputes matching f, newest first.
func (w *Workflow) List(ctx context.Context, f domain.DisputeFilter) ([]*domain.Dispute, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, domain.NewValidationError("status", fmt.Sprintf("unknown dispute status %q", f.Status))
	}
	out, err := w.store.ListDisputes(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	if out == nil {
		out = []*domain.Dispute{}
	}
	return out, nil
}
