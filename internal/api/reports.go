package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
	"github.com/DarsanV/HackaThrone-team91/internal/notice"
)

// Stats windows for the officer dashboard.
const (
	defaultStatsDays = 30
	trendDays        = 7
)

// SubmitReport handles POST /v1/reports.
func (h *Handler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	rep, err := h.deps.Reports.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

// ListReports handles GET /v1/reports.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	f, err := reportFilterFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.deps.Reports.List(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func reportFilterFromQuery(r *http.Request) (domain.ReportFilter, error) {
	q := r.URL.Query()
	f := domain.ReportFilter{
		Status:        domain.ReportStatus(q.Get("status")),
		ViolationType: domain.ViolationType(q.Get("violationType")),
		ReporterID:    strings.TrimSpace(q.Get("reporterId")),
		NumberPlate:   domain.NormalizePlate(q.Get("plate")),
	}

	var err error
	if f.Page, err = queryInt(r, "page"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return f, err
	}

	for name, dst := range map[string]*time.Time{"from": &f.CreatedFrom, "to": &f.CreatedTo} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, perr := time.Parse(time.RFC3339, raw)
		if perr != nil {
			return f, domain.NewValidationError(name, "must be an RFC 3339 timestamp")
		}
		*dst = t
	}

	switch q.Get("sort") {
	case "", string(domain.SortCreatedAt):
		f.SortBy = domain.SortCreatedAt
	case string(domain.SortUpdatedAt):
		f.SortBy = domain.SortUpdatedAt
	default:
		return f, domain.NewValidationError("sort", "must be createdAt or updatedAt")
	}
	switch q.Get("order") {
	case "", "desc":
	case "asc":
		f.SortAsc = true
	default:
		return f, domain.NewValidationError("order", "must be asc or desc")
	}
	return f, nil
}

// StatsResponse is the officer dashboard summary.
type StatsResponse struct {
	Since         time.Time           `json:"since"`
	Stats         *domain.ReportStats `json:"stats"`
	Daily         []domain.DailyCount `json:"daily"`
	PendingReview int64               `json:"pendingReview"`
}

// ReportStats handles GET /v1/reports/stats.
func (h *Handler) ReportStats(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days")
	if err != nil {
		writeError(w, err)
		return
	}
	if days == 0 {
		days = defaultStatsDays
	}

	now := time.Now().UTC()
	resp := StatsResponse{Since: now.AddDate(0, 0, -days)}
	trendFrom := now.Truncate(24*time.Hour).AddDate(0, 0, -(trendDays - 1))

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		s, err := h.deps.Store.ReportStats(ctx, resp.Since)
		resp.Stats = s
		return err
	})
	g.Go(func() error {
		d, err := h.deps.Store.DailyCounts(ctx, trendFrom)
		resp.Daily = d
		return err
	})
	g.Go(func() error {
		n, err := h.deps.Store.CountReports(ctx, domain.ReportFilter{Status: domain.StatusPending})
		resp.PendingReview = n
		return err
	})
	if err := g.Wait(); err != nil {
		writeError(w, fmt.Errorf("report stats: %w", err))
		return
	}
	if resp.Daily == nil {
		resp.Daily = []domain.DailyCount{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// NearbyReports handles GET /v1/reports/nearby.
func (h *Handler) NearbyReports(w http.ResponseWriter, r *http.Request) {
	q, err := nearbyQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	found, err := h.deps.Store.NearbyReports(r.Context(), q)
	if err != nil {
		writeError(w, fmt.Errorf("nearby reports: %w", err))
		return
	}
	if found == nil {
		found = []*domain.NearbyReport{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reports": found,
		"count":   len(found),
	})
}

func nearbyQuery(r *http.Request) (domain.NearbyQuery, error) {
	var (
		q   domain.NearbyQuery
		err error
	)
	if q.Longitude, err = queryFloat(r, "lon", true); err != nil {
		return q, err
	}
	if q.Latitude, err = queryFloat(r, "lat", true); err != nil {
		return q, err
	}
	if !(domain.Location{Longitude: q.Longitude, Latitude: q.Latitude}).ValidCoordinates() {
		return q, domain.NewValidationError("location", "coordinates out of range")
	}
	if q.MaxDistanceM, err = queryFloat(r, "max_distance", false); err != nil {
		return q, err
	}
	if q.MaxDistanceM < 0 {
		return q, domain.NewValidationError("max_distance", "must not be negative")
	}
	if q.Limit, err = queryInt(r, "limit"); err != nil {
		return q, err
	}
	return q, nil
}

// GetReport handles GET /v1/reports/{id}.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.deps.Reports.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ReportNotice handles GET /v1/reports/{id}/notice.pdf.
func (h *Handler) ReportNotice(w http.ResponseWriter, r *http.Request) {
	rep, err := h.deps.Reports.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	opts := notice.Options{
		Authority: h.deps.Notice.Authority,
		Schedule:  &h.deps.Schedule,
	}
	if base := h.deps.Notice.PaymentURL; base != "" && rep.Challan != nil {
		opts.PaymentURL = strings.TrimRight(base, "/") + "/" + rep.Challan.ChallanNumber
	}

	var buf bytes.Buffer
	if err := notice.Render(&buf, rep, opts); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="challan-%s.pdf"`, rep.Challan.ChallanNumber))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// VerifyRequest is the optional body of POST /v1/reports/{id}/verify.
type VerifyRequest struct {
	Notes string `json:"notes"`
}

// VerifyReport handles POST /v1/reports/{id}/verify.
func (h *Handler) VerifyReport(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, err)
		return
	}

	rep, err := h.deps.Reports.Verify(r.Context(), chi.URLParam(r, "id"), OfficerID(r), req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// RejectRequest is the body of POST /v1/reports/{id}/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// RejectReport handles POST /v1/reports/{id}/reject.
func (h *Handler) RejectReport(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	rep, err := h.deps.Reports.Reject(r.Context(), chi.URLParam(r, "id"), OfficerID(r), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ChallanRequest is the body of POST /v1/reports/{id}/challan. A zero
// fine falls back to the fine schedule.
type ChallanRequest struct {
	ChallanNumber string `json:"challanNumber"`
	FineAmount    int64  `json:"fineAmount"`
}

// IssueChallan handles POST /v1/reports/{id}/challan.
func (h *Handler) IssueChallan(w http.ResponseWriter, r *http.Request) {
	var req ChallanRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	id := chi.URLParam(r, "id")
	fine, err := h.fineFor(ctx, id, req.FineAmount)
	if err != nil {
		writeError(w, err)
		return
	}

	rep, err := h.deps.Reports.IssueChallan(ctx, id, domain.IssueChallanRequest{
		ChallanNumber: req.ChallanNumber,
		FineAmount:    fine,
		OfficerID:     OfficerID(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) fineFor(ctx context.Context, id string, requested int64) (int64, error) {
	if requested != 0 {
		return requested, nil
	}
	rep, err := h.deps.Reports.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return h.deps.Schedule.SuggestedFine(rep), nil
}

// PurgeReport handles DELETE /v1/admin/reports/{id}.
func (h *Handler) PurgeReport(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Reports.Purge(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
