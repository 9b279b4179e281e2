package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/actualfyi/audit-service/internal/audit"
)

// createAuditRequest is the POST /audit body. One of product_id or slug is
// required; product_id also tolerates a slug value (legacy callers).
type createAuditRequest struct {
	ProductID    string `json:"product_id" validate:"required_without=Slug"`
	Slug         string `json:"slug" validate:"required_without=ProductID"`
	ForceRefresh bool   `json:"force_refresh"`
}

// handleCreateAudit admits a run and returns immediately; the dispatcher does
// the work. Response is sub-second regardless of audit duration.
func (s *Server) handleCreateAudit(w http.ResponseWriter, r *http.Request) {
	var req createAuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.errorFromErr(w, &ErrValidation{Field: "product_id", Message: "product_id or slug is required"})
		return
	}

	result, err := s.svc.Admit(r.Context(), audit.AdmitRequest{
		ProductID:    req.ProductID,
		Slug:         req.Slug,
		ForceRefresh: req.ForceRefresh,
	})
	if err != nil {
		s.errorFromErr(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusAccepted
	}
	s.jsonResponse(w, status, map[string]any{
		"ok":       true,
		"run_id":   result.Run.ID.String(),
		"status":   result.Run.Status,
		"progress": result.Run.Progress,
	})
}

// handleAuditStatus serves the polling read model.
func (s *Server) handleAuditStatus(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.URL.Query().Get("run_id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "missing or invalid run_id")
		return
	}

	resp, err := s.svc.Status(r.Context(), runID)
	if err != nil {
		s.errorFromErr(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// runStageRequest is the POST /audit/stages/{stage} body.
type runStageRequest struct {
	ProductID string `json:"product_id" validate:"required_without=Slug"`
	Slug      string `json:"slug" validate:"required_without=ProductID"`
	ForceRedo bool   `json:"force_redo"`
}

// handleRunStage executes a single stage synchronously. 409 when a
// prerequisite has not run, 424 when it failed, 422 when this stage's output
// fails validation.
func (s *Server) handleRunStage(w http.ResponseWriter, r *http.Request) {
	var req runStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.errorFromErr(w, &ErrValidation{Field: "product_id", Message: "product_id or slug is required"})
		return
	}

	result, err := s.svc.RunStage(r.Context(), audit.StageRequest{
		ProductID: req.ProductID,
		Slug:      req.Slug,
		Stage:     r.PathValue("stage"),
		ForceRedo: req.ForceRedo,
	})
	if err != nil {
		s.errorFromErr(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"ok":         true,
		"run_id":     result.RunID,
		"stage":      result.Stage,
		"status":     result.Status,
		"cached":     result.Cached,
		"item_count": result.ItemCount,
		"output":     result.Output,
	})
}

// handleForceFail moves a live run to error.
func (s *Server) handleForceFail(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid run id")
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	run, err := s.svc.ForceFail(r.Context(), runID, body.Reason)
	if err != nil {
		s.errorFromErr(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"ok":     true,
		"run_id": run.ID.String(),
		"status": run.Status,
	})
}

// handleRetryRun resets a failed run to pending.
func (s *Server) handleRetryRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := s.svc.Retry(r.Context(), runID)
	if err != nil {
		s.errorFromErr(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"ok":       true,
		"run_id":   run.ID.String(),
		"status":   run.Status,
		"progress": run.Progress,
	})
}

// handleReap runs one supervisor scan on demand.
func (s *Server) handleReap(w http.ResponseWriter, r *http.Request) {
	reaped, err := s.svc.Reap(r.Context())
	if err != nil {
		s.errorFromErr(w, err)
		return
	}
	ids := make([]string, 0, len(reaped))
	for _, id := range reaped {
		ids = append(ids, id.String())
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"ok": true, "reaped": ids})
}

// handleGetProduct returns one catalog row.
func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid product id")
		return
	}
	product, err := s.store.GetProduct(r.Context(), id)
	if err != nil {
		s.errorFromErr(w, err)
		return
	}
	if product == nil {
		s.errorResponse(w, http.StatusNotFound, "product not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, product)
}

// handleGetProductBySlug returns one catalog row by slug.
func (s *Server) handleGetProductBySlug(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("slug")
	if slug == "" {
		s.errorResponse(w, http.StatusBadRequest, "missing slug")
		return
	}
	product, err := s.store.GetProductBySlug(r.Context(), slug)
	if err != nil {
		s.errorFromErr(w, err)
		return
	}
	if product == nil {
		s.errorResponse(w, http.StatusNotFound, "product not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, product)
}

// handleListProductRuns returns the product's recent runs, newest first.
func (s *Server) handleListProductRuns(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid product id")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	runs, err := s.store.ListRecentRuns(r.Context(), id, limit)
	if err != nil {
		s.errorFromErr(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"ok": true, "runs": runs})
}

// handleGetShadowSpec returns the canonical audited spec for a product.
func (s *Server) handleGetShadowSpec(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid product id")
		return
	}
	spec, err := s.store.GetShadowSpec(r.Context(), id)
	if err != nil {
		s.errorFromErr(w, err)
		return
	}
	if spec == nil {
		s.errorResponse(w, http.StatusNotFound, "no audited spec for product")
		return
	}
	s.jsonResponse(w, http.StatusOK, spec)
}
