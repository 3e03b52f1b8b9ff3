package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/DarsanV/HackaThrone-team91/internal/dispute"
	"github.com/DarsanV/HackaThrone-team91/internal/domain"
	"github.com/DarsanV/HackaThrone-team91/internal/lifecycle"
	"github.com/DarsanV/HackaThrone-team91/internal/metrics"
	"github.com/DarsanV/HackaThrone-team91/internal/reward"
	"github.com/DarsanV/HackaThrone-team91/internal/risk"
)

const maxBodyBytes = 1 << 20

// Deps holds the collaborators of the HTTP surface. Cache, Bus and
// Metrics are optional.
type Deps struct {
	Reports  *lifecycle.Engine
	Disputes *dispute.Workflow
	Assessor *risk.Assessor
	Store    domain.ReportStore
	Cache    domain.Cache
	Bus      domain.EventBus
	Schedule reward.Schedule
	Metrics  *metrics.Metrics
	Intake   domain.IntakeConfig
	Notice   domain.NoticeConfig
	Version  string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	deps Deps
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			status = "degraded"
			checks[name] = err.Error()
			return
		}
		checks[name] = "ok"
	}

	ctx := r.Context()
	if h.deps.Store != nil {
		check("store", func() error { return h.deps.Store.Ping(ctx) })
	}
	if h.deps.Cache != nil {
		check("cache", func() error { return h.deps.Cache.Ping(ctx) })
	}
	if h.deps.Bus != nil {
		check("bus", func() error { return h.deps.Bus.Ping(ctx) })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.deps.Version,
		"checks":  checks,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// AssessRisk scores an ad hoc risk input without touching any report.
// Useful for tuning the policy file against known cases.
func (h *Handler) AssessRisk(w http.ResponseWriter, r *http.Request) {
	var in domain.RiskInput
	if err := decodeBody(r, &in, false); err != nil {
		writeError(w, err)
		return
	}
	if in.ViolationType != "" && !in.ViolationType.Valid() {
		writeError(w, domain.NewValidationError("violationType", "unknown violation type "+string(in.ViolationType)))
		return
	}

	a, err := h.deps.Assessor.Assess(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// decodeBody reads a JSON request body into dst. When optional is set an
// empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any, optional bool) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	err := json.NewDecoder(body).Decode(dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && optional:
		return nil
	case errors.Is(err, io.EOF):
		return domain.NewValidationError("body", "request body is required")
	default:
		return domain.NewValidationError("body", "invalid JSON request body")
	}
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError(name, "must be a non-negative integer")
	}
	return n, nil
}

func queryFloat(r *http.Request, name string, required bool) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		if required {
			return 0, domain.NewValidationError(name, "is required")
		}
		return 0, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, domain.NewValidationError(name, "must be a number")
	}
	return f, nil
}

// writeError maps domain errors onto status codes. The body always has an
// "error" message and a machine readable "kind".
func writeError(w http.ResponseWriter, err error) {
	var (
		verr *domain.ValidationError
		terr *domain.TransitionError
		serr *domain.StateError
	)
	body := map[string]string{"error": err.Error()}
	status := http.StatusInternalServerError

	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		body["kind"] = "validation"
		body["field"] = verr.Field
	case errors.As(err, &terr):
		status = http.StatusConflict
		body["kind"] = "invalid_transition"
		body["state"] = terr.From
	case errors.As(err, &serr):
		status = http.StatusConflict
		body["kind"] = "invalid_state"
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		body["kind"] = "not_found"
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
		body["kind"] = "conflict"
	default:
		slog.Error("request failed", "error", err)
		body["error"] = "internal server error"
		body["kind"] = "internal"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}
