package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tillstack/tillstack/domain/catalog"
)

// AddonRequest is the payload for creating or updating a catalog add-on.
type AddonRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
	Interval    string `json:"interval"`
	Icon        string `json:"icon,omitempty"`
	Category    string `json:"category,omitempty"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

// AddonResponse is the wire representation of a catalog add-on.
type AddonResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
	Interval    string `json:"interval"`
	Icon        string `json:"icon,omitempty"`
	Category    string `json:"category,omitempty"`
	IsActive    bool   `json:"is_active"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func toAddonResponse(a catalog.Addon) AddonResponse {
	return AddonResponse{
		ID:          a.ID,
		Name:        a.Name,
		Description: a.Description,
		Price:       a.Price,
		Interval:    string(a.Interval),
		Icon:        a.Icon,
		Category:    a.Category,
		IsActive:    a.IsActive,
		CreatedAt:   formatTime(a.CreatedAt),
		UpdatedAt:   formatTime(a.UpdatedAt),
	}
}

// ListAddons returns the resident add-on catalog.
//
//	@Summary		List add-ons
//	@Tags			Catalog
//	@Produce		json
//	@Success		200	{array}	AddonResponse
//	@Security		AdminAuth
//	@Router			/admin/addons [get]
func (h *Handler) ListAddons(w http.ResponseWriter, r *http.Request) {
	addons := h.catalog.Addons()
	out := make([]AddonResponse, 0, len(addons))
	for _, a := range addons {
		out = append(out, toAddonResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetAddon returns a single catalog add-on.
//
//	@Summary		Get add-on
//	@Tags			Catalog
//	@Produce		json
//	@Param			id	path		string	true	"Add-on ID"
//	@Success		200	{object}	AddonResponse
//	@Failure		404	{object}	ErrorResponse
//	@Security		AdminAuth
//	@Router			/admin/addons/{id} [get]
func (h *Handler) GetAddon(w http.ResponseWriter, r *http.Request) {
	a, err := h.catalog.GetAddon(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAddonResponse(a))
}

// CreateAddon stores a new catalog add-on.
//
//	@Summary		Create add-on
//	@Tags			Catalog
//	@Accept			json
//	@Produce		json
//	@Param			request	body		AddonRequest	true	"Add-on"
//	@Success		201		{object}	AddonResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse	"Duplicate ID"
//	@Security		AdminAuth
//	@Router			/admin/addons [post]
func (h *Handler) CreateAddon(w http.ResponseWriter, r *http.Request) {
	var req AddonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "id and name are required")
		return
	}

	a := catalog.Addon{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Interval:    intervalOrDefault(req.Interval),
		Icon:        req.Icon,
		Category:    req.Category,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}

	if err := h.catalog.CreateAddon(r.Context(), a); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAddonResponse(a))
}

// UpdateAddon replaces a catalog add-on record.
//
//	@Summary		Update add-on
//	@Tags			Catalog
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Add-on ID"
//	@Param			request	body		AddonRequest	true	"Add-on"
//	@Success		200		{object}	AddonResponse
//	@Failure		404		{object}	ErrorResponse
//	@Security		AdminAuth
//	@Router			/admin/addons/{id} [put]
func (h *Handler) UpdateAddon(w http.ResponseWriter, r *http.Request) {
	var req AddonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	a := catalog.Addon{
		ID:          chi.URLParam(r, "id"),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Interval:    intervalOrDefault(req.Interval),
		Icon:        req.Icon,
		Category:    req.Category,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}

	if err := h.catalog.UpdateAddon(r.Context(), a); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAddonResponse(a))
}

// DeleteAddon removes an add-on from the catalog.
//
//	@Summary		Delete add-on
//	@Description	Ledger entries holding the add-on keep their snapshot as the pricing fallback
//	@Tags			Catalog
//	@Produce		json
//	@Param			id	path		string	true	"Add-on ID"
//	@Success		200	{object}	map[string]string
//	@Failure		404	{object}	ErrorResponse
//	@Security		AdminAuth
//	@Router			/admin/addons/{id} [delete]
func (h *Handler) DeleteAddon(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteAddon(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
