// Package lifecycle implements the violation report state machine:
//
//	pending -> verified -> challan_issued
//	pending -> rejected
//
// Transitions use optimistic concurrency. Each write carries the version
// that was read; when the store reports a stale version the engine reads
// the record again and re-validates, so the loser of a race observes a
// TransitionError computed from the winner's committed state.
package lifecycle

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
	"github.com/DarsanV/HackaThrone-team91/internal/reward"
)

const maxConflictRetries = 5

// DefaultDuplicateWindow is how long an identical plate and violation
// type is treated as a duplicate submission.
const DefaultDuplicateWindow = 10 * time.Minute

var tracer = otel.Tracer("snapnearn/lifecycle")

// ReporterHistory receives reporter activity.
type ReporterHistory interface {
	RecordSubmission(ctx context.Context, reporterID string)
	RecordRejection(ctx context.Context, reporterID string)
}

// Engine drives reports through their lifecycle.
type Engine struct {
	store           domain.ReportStore
	notifier        domain.Notifier
	history         ReporterHistory
	metrics         *metrics.Metrics
	logger          *slog.Logger
	duplicateWindow time.Duration
	now             func() time.Time
	newID           func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sets the post-commit notification hook.
func WithNotifier(n domain.Notifier) Option { return func(e *Engine) { e.notifier = n } }

// WithHistory records reporter activity.
func WithHistory(h ReporterHistory) Option { return func(e *Engine) { e.history = h } }

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithDuplicateWindow sets the duplicate guard window; 0 disables it.
func WithDuplicateWindow(d time.Duration) Option { return func(e *Engine) { e.duplicateWindow = d } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// New creates an engine over store.
func New(store domain.ReportStore, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		notifier:        notify.Nop{},
		logger:          slog.Default(),
		duplicateWindow: DefaultDuplicateWindow,
		now:             func() time.Time { return time.Now().UTC() },
		newID:           func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Page is one page of a report listing.
type Page struct {
	Reports []*domain.ViolationReport `json:"reports"`
	Total   int64                     `json:"total"`
	Page    int                       `json:"page"`
	Limit   int                       `json:"limit"`
}

func (e *Engine) observe(ctx context.Context, op, id string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "report."+op,
		trace.WithAttributes(attribute.String("report.id", id)),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		e.metrics.ObserveOperation("report", op, err, time.Since(start))
	}
}

// Submit validates and stores a new report in the pending state.
func (e *Engine) Submit(ctx context.Context, req domain.SubmitRequest) (rep *domain.ViolationReport, err error) {
	ctx, done := e.observe(ctx, "submit", "")
	defer func() { done(err) }()

	rep, err = e.normalize(req)
	if err != nil {
		return nil, err
	}

	if err := e.checkDuplicate(ctx, rep); err != nil {
		return nil, err
	}

	if err := e.store.CreateReport(ctx, rep); err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	e.logger.Info("report submitted",
		"report_id", rep.ID,
		"violation_type", rep.ViolationType,
		"anonymous", rep.Anonymous(),
	)
	if e.history != nil && !rep.Anonymous() {
		e.history.RecordSubmission(ctx, rep.ReporterID)
	}
	e.notifier.ReportSubmitted(ctx, rep)
	return rep, nil
}

func (e *Engine) normalize(req domain.SubmitRequest) (*domain.ViolationReport, error) {
	if !req.ViolationType.Valid() {
		return nil, domain.NewValidationError("violationType", fmt.Sprintf("unknown violation type %q", req.ViolationType))
	}

	var extra []domain.ViolationType
	seen := map[domain.ViolationType]bool{req.ViolationType: true}
	for _, t := range req.AdditionalTypes {
		if !t.Valid() {
			return nil, domain.NewValidationError("additionalTypes", fmt.Sprintf("unknown violation type %q", t))
		}
		if !seen[t] {
			seen[t] = true
			extra = append(extra, t)
		}
	}

	loc := req.Location
	loc.Address = strings.TrimSpace(loc.Address)
	loc.Landmark = strings.TrimSpace(loc.Landmark)
	if !loc.ValidCoordinates() {
		return nil, domain.NewValidationError("location", "coordinates must be a valid (longitude, latitude) pair")
	}
	if loc.Address == "" {
		return nil, domain.NewValidationError("location.address", "is required")
	}

	vehicle := req.Vehicle
	vehicle.NumberPlate = domain.NormalizePlate(vehicle.NumberPlate)
	if vehicle.NumberPlate == "" {
		return nil, domain.NewValidationError("vehicle.numberPlate", "is required")
	}
	if strings.TrimSpace(vehicle.Type) == "" {
		vehicle.Type = domain.DefaultVehicleType
	}

	evidence := make([]domain.Evidence, 0, len(req.Evidence))
	for i, ev := range req.Evidence {
		if ev.Kind == "" {
			ev.Kind = domain.EvidencePhoto
		}
		if ev.Kind != domain.EvidencePhoto && ev.Kind != domain.EvidenceVideoFrame {
			return nil, domain.NewValidationError(fmt.Sprintf("evidence[%d].kind", i), fmt.Sprintf("unknown evidence kind %q", ev.Kind))
		}
		if strings.TrimSpace(ev.Ref) == "" {
			return nil, domain.NewValidationError(fmt.Sprintf("evidence[%d].ref", i), "is required")
		}
		evidence = append(evidence, ev)
	}

	now := e.now()
	return &domain.ViolationReport{
		ID:              e.newID(),
		ViolationType:   req.ViolationType,
		AdditionalTypes: extra,
		Location:        loc,
		Vehicle:         vehicle,
		Evidence:        evidence,
		Description:     strings.TrimSpace(req.Description),
		ReporterID:      strings.TrimSpace(req.ReporterID),
		IsAnonymous:     req.IsAnonymous,
		Status:          domain.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// checkDuplicate rejects a second live report of the same plate and
// violation type inside the duplicate window.
func (e *Engine) checkDuplicate(ctx context.Context, rep *domain.ViolationReport) error {
	if e.duplicateWindow <= 0 {
		return nil
	}
	existing, err := e.store.ListReports(ctx, domain.ReportFilter{
		NumberPlate:   rep.Vehicle.NumberPlate,
		ViolationType: rep.ViolationType,
		ExcludeStatus: domain.StatusRejected,
		CreatedFrom:   rep.CreatedAt.Add(-e.duplicateWindow),
		Limit:         1,
	})
	if err != nil {
		return fmt.Errorf("duplicate check: %w", err)
	}
	if len(existing) > 0 {
		return &domain.StateError{
			Entity: "report",
			ID:     existing[0].ID,
			Reason: fmt.Sprintf("duplicate of a report submitted within %s", e.duplicateWindow),
		}
	}
	return nil
}

// Verify moves a pending report to verified.
func (e *Engine) Verify(ctx context.Context, id, officerID, notes string) (rep *domain.ViolationReport, err error) {
	ctx, done := e.observe(ctx, "verify", id)
	defer func() { done(err) }()

	officerID = strings.TrimSpace(officerID)
	if officerID == "" {
		return nil, domain.NewValidationError("officerId", "is required")
	}

	rep, from, err := e.transition(ctx, "verify", id, func(r *domain.ViolationReport, now time.Time) error {
		if r.Status != domain.StatusPending {
			return &domain.TransitionError{Entity: "report", Op: "verify", From: string(r.Status)}
		}
		r.Status = domain.StatusVerified
		r.Verification = &domain.Verification{
			OfficerID:  officerID,
			Notes:      strings.TrimSpace(notes),
			VerifiedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("report verified", "report_id", id, "officer_id", officerID)
	e.notifier.ReportTransitioned(ctx, rep, from, officerID)
	return rep, nil
}

// Reject moves a pending report to rejected. A reason is required.
func (e *Engine) Reject(ctx context.Context, id, officerID, reason string) (rep *domain.ViolationReport, err error) {
	ctx, done := e.observe(ctx, "reject", id)
	defer func() { done(err) }()

	officerID = strings.TrimSpace(officerID)
	reason = strings.TrimSpace(reason)
	if officerID == "" {
		return nil, domain.NewValidationError("officerId", "is required")
	}
	if reason == "" {
		return nil, domain.NewValidationError("reason", "is required")
	}

	rep, from, err := e.transition(ctx, "reject", id, func(r *domain.ViolationReport, now time.Time) error {
		if r.Status != domain.StatusPending {
			return &domain.TransitionError{Entity: "report", Op: "reject", From: string(r.Status)}
		}
		r.Status = domain.StatusRejected
		r.Rejection = &domain.Rejection{
			OfficerID:  officerID,
			Reason:     reason,
			RejectedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("report rejected", "report_id", id, "officer_id", officerID)
	if e.history != nil && !rep.Anonymous() {
		e.history.RecordRejection(ctx, rep.ReporterID)
	}
	e.notifier.ReportTransitioned(ctx, rep, from, officerID)
	return rep, nil
}

// IssueChallan moves a verified report to challan_issued and attaches the
// reporter reward. Challans are issued at most once per report.
func (e *Engine) IssueChallan(ctx context.Context, id string, req domain.IssueChallanRequest) (rep *domain.ViolationReport, err error) {
	ctx, done := e.observe(ctx, "issue_challan", id)
	defer func() { done(err) }()

	req.ChallanNumber = strings.TrimSpace(req.ChallanNumber)
	req.OfficerID = strings.TrimSpace(req.OfficerID)
	if req.FineAmount <= 0 {
		return nil, domain.NewValidationError("fineAmount", "must be positive")
	}
	if req.ChallanNumber == "" {
		return nil, domain.NewValidationError("challanNumber", "is required")
	}
	if req.OfficerID == "" {
		return nil, domain.NewValidationError("officerId", "is required")
	}

	rep, from, err := e.transition(ctx, "issue_challan", id, func(r *domain.ViolationReport, now time.Time) error {
		if r.Status != domain.StatusVerified {
			return &domain.TransitionError{Entity: "report", Op: "issue_challan", From: string(r.Status)}
		}
		r.Status = domain.StatusChallanIssued
		r.Challan = &domain.Challan{
			ChallanNumber: req.ChallanNumber,
			FineAmount:    req.FineAmount,
			OfficerID:     req.OfficerID,
			IssuedAt:      now,
			DueDate:       now.Add(domain.ChallanDuePeriod),
		}
		r.Reward = reward.RewardFor(r, req.FineAmount, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("challan issued",
		"report_id", id,
		"challan_number", req.ChallanNumber,
		"fine_amount", req.FineAmount,
		"officer_id", req.OfficerID,
	)
	e.notifier.ReportTransitioned(ctx, rep, from, req.OfficerID)
	if rep.Reward != nil {
		e.notifier.RewardCredited(ctx, rep)
	}
	return rep, nil
}

// AttachRisk stores an advisory assessment on a pending report. The
// status is never changed.
func (e *Engine) AttachRisk(ctx context.Context, id string, a *domain.Assessment) (rep *domain.ViolationReport, err error) {
	ctx, done := e.observe(ctx, "attach_risk", id)
	defer func() { done(err) }()

	if a == nil {
		return nil, domain.NewValidationError("assessment", "is required")
	}
	if a.OverallScore < 0 || a.OverallScore > 100 {
		return nil, domain.NewValidationError("assessment.overallScore", "must be within 0..100")
	}
	if !a.Recommendation.Valid() {
		return nil, domain.NewValidationError("assessment.recommendation", fmt.Sprintf("unknown recommendation %q", a.Recommendation))
	}

	rep, _, err = e.transition(ctx, "attach_risk", id, func(r *domain.ViolationReport, _ time.Time) error {
		if r.Status != domain.StatusPending {
			return &domain.TransitionError{Entity: "report", Op: "attach_risk", From: string(r.Status)}
		}
		cp := *a
		cp.FraudIndicators = append([]string(nil), a.FraudIndicators...)
		cp.Signals = append([]domain.SignalOutcome(nil), a.Signals...)
		r.FraudRisk = &cp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

// transition applies mutate to the latest version of a report and
// commits it, retrying on version conflicts.
func (e *Engine) transition(
	ctx context.Context,
	op, id string,
	mutate func(r *domain.ViolationReport, now time.Time) error,
) (*domain.ViolationReport, domain.ReportStatus, error) {
	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		cur, err := e.store.GetReport(ctx, id)
		if err != nil {
			return nil, "", err
		}

		next := cur.Clone()
		now := e.now()
		if err := mutate(next, now); err != nil {
			return nil, cur.Status, err
		}
		next.UpdatedAt = now

		err = e.store.UpdateReport(ctx, next, cur.Version)
		if err == nil {
			return next, cur.Status, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, cur.Status, fmt.Errorf("%s report %s: %w", op, id, err)
		}
		e.logger.Debug("version conflict, retrying",
			"report_id", id,
			"op", op,
			"attempt", attempt,
		)
	}
	return nil, "", fmt.Errorf("%s report %s: gave up after %d attempts: %w", op, id, maxConflictRetries, domain.ErrConflict)
}

// Get returns a report by id.
func (e *Engine) Get(ctx context.Context, id string) (*domain.ViolationReport, error) {
	return e.store.GetReport(ctx, id)
}

// List returns one page of reports matching f, with the total count.
func (e *Engine) List(ctx context.Context, f domain.ReportFilter) (*Page, error) {
	f = f.Normalize()
	if f.Status != "" && !f.Status.Valid() {
		return nil, domain.NewValidationError("status", fmt.Sprintf("unknown status %q", f.Status))
	}
	if f.ViolationType != "" && !f.ViolationType.Valid() {
		return nil, domain.NewValidationError("violationType", fmt.Sprintf("unknown violation type %q", f.ViolationType))
	}

	reports, err := e.store.ListReports(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	total, err := e.store.CountReports(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("count reports: %w", err)
	}
	if reports == nil {
		reports = []*domain.ViolationReport{}
	}
	return &Page{Reports: reports, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// Purge removes a report and its dispute. Administrative only.
func (e *Engine) Purge(ctx context.Context, id string) (err error) {
	ctx, done := e.observe(ctx, "purge", id)
	defer func() { done(err) }()

	if err := e.store.PurgeReport(ctx, id); err != nil {
		return err
	}
	e.logger.Warn("report purged", "report_id", id)
	return nil
}
