package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

// OpenDisputeRequest is the body of POST /v1/disputes.
type OpenDisputeRequest struct {
	ReportID string `json:"reportId"`
	Reason   string `json:"reason"`
}

// OpenDispute handles POST /v1/disputes.
func (h *Handler) OpenDispute(w http.ResponseWriter, r *http.Request) {
	var req OpenDisputeRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	d, err := h.deps.Disputes.Open(r.Context(), req.ReportID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// ListDisputes handles GET /v1/disputes.
func (h *Handler) ListDisputes(w http.ResponseWriter, r *http.Request) {
	f := domain.DisputeFilter{Status: domain.DisputeStatus(r.URL.Query().Get("status"))}

	var err error
	if f.Page, err = queryInt(r, "page"); err != nil {
		writeError(w, err)
		return
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, err)
		return
	}

	disputes, err := h.deps.Disputes.List(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"disputes": disputes,
		"count":    len(disputes),
	})
}

// GetDispute handles GET /v1/disputes/{id}.
func (h *Handler) GetDispute(w http.ResponseWriter, r *http.Request) {
	d, err := h.deps.Disputes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// AttachAnalysis handles POST /v1/disputes/{id}/analysis, for detection
// pipelines that run outside the assessment worker.
func (h *Handler) AttachAnalysis(w http.ResponseWriter, r *http.Request) {
	var a domain.AIAnalysis
	if err := decodeBody(r, &a, false); err != nil {
		writeError(w, err)
		return
	}

	d, err := h.deps.Disputes.AttachAIAnalysis(r.Context(), chi.URLParam(r, "id"), a)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DecisionRequest is the body of POST /v1/disputes/{id}/decision.
type DecisionRequest struct {
	Decision domain.Decision `json:"decision"`
}

// RecordDecision handles POST /v1/disputes/{id}/decision.
func (h *Handler) RecordDecision(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	d, err := h.deps.Disputes.RecordDecision(r.Context(), chi.URLParam(r, "id"), req.Decision, OfficerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
