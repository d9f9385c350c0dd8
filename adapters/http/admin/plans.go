package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tillstack/tillstack/domain/catalog"
)

// PlanRequest is the payload for creating or updating a plan.
type PlanRequest struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Price    int64    `json:"price"`
	Interval string   `json:"interval"`
	Features []string `json:"features,omitempty"`
	IsActive *bool    `json:"is_active,omitempty"`
}

// PlanResponse is the wire representation of a plan.
type PlanResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Price     int64    `json:"price"`
	Interval  string   `json:"interval"`
	Features  []string `json:"features"`
	IsActive  bool     `json:"is_active"`
	CreatedAt string   `json:"created_at,omitempty"`
	UpdatedAt string   `json:"updated_at,omitempty"`
}

func toPlanResponse(p catalog.Plan) PlanResponse {
	return PlanResponse{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Interval:  string(p.Interval),
		Features:  p.Features,
		IsActive:  p.IsActive,
		CreatedAt: formatTime(p.CreatedAt),
		UpdatedAt: formatTime(p.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ListPlans returns the resident plan catalog.
//
//	@Summary		List plans
//	@Description	List the resident plan catalog, cheapest first
//	@Tags			Catalog
//	@Produce		json
//	@Success		200	{array}	PlanResponse
//	@Security		AdminAuth
//	@Router			/admin/plans [get]
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans := h.catalog.Plans()
	out := make([]PlanResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, toPlanResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetPlan returns a single plan.
//
//	@Summary		Get plan
//	@Tags			Catalog
//	@Produce		json
//	@Param			id	path		string	true	"Plan ID"
//	@Success		200	{object}	PlanResponse
//	@Failure		404	{object}	ErrorResponse
//	@Security		AdminAuth
//	@Router			/admin/plans/{id} [get]
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetPlan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanResponse(p))
}

// CreatePlan stores a new plan.
//
//	@Summary		Create plan
//	@Tags			Catalog
//	@Accept			json
//	@Produce		json
//	@Param			request	body		PlanRequest	true	"Plan"
//	@Success		201		{object}	PlanResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse	"Duplicate name"
//	@Security		AdminAuth
//	@Router			/admin/plans [post]
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "id and name are required")
		return
	}

	p := catalog.Plan{
		ID:       req.ID,
		Name:     req.Name,
		Price:    req.Price,
		Interval: intervalOrDefault(req.Interval),
		Features: req.Features,
		IsActive: req.IsActive == nil || *req.IsActive,
	}

	if err := h.catalog.CreatePlan(r.Context(), p); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlanResponse(p))
}

// UpdatePlan replaces a plan record.
//
//	@Summary		Update plan
//	@Tags			Catalog
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Plan ID"
//	@Param			request	body		PlanRequest	true	"Plan"
//	@Success		200		{object}	PlanResponse
//	@Failure		404		{object}	ErrorResponse
//	@Security		AdminAuth
//	@Router			/admin/plans/{id} [put]
func (h *Handler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	p := catalog.Plan{
		ID:       chi.URLParam(r, "id"),
		Name:     req.Name,
		Price:    req.Price,
		Interval: intervalOrDefault(req.Interval),
		Features: req.Features,
		IsActive: req.IsActive == nil || *req.IsActive,
	}

	if err := h.catalog.UpdatePlan(r.Context(), p); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanResponse(p))
}

// DeletePlan removes a plan from the catalog.
//
//	@Summary		Delete plan
//	@Description	Organizations naming the plan degrade to their stored base price
//	@Tags			Catalog
//	@Produce		json
//	@Param			id	path		string	true	"Plan ID"
//	@Success		200	{object}	map[string]string
//	@Failure		404	{object}	ErrorResponse
//	@Security		AdminAuth
//	@Router			/admin/plans/{id} [delete]
func (h *Handler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeletePlan(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func intervalOrDefault(s string) catalog.Interval {
	if s == "" {
		return catalog.IntervalMonth
	}
	return catalog.Interval(s)
}
