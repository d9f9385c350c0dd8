package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tillstack/tillstack/domain/catalog"
	"github.com/tillstack/tillstack/domain/ledger"
	"github.com/tillstack/tillstack/domain/pricing"
)

// EntryResponse is one ledger row: a subscribed add-on and its quantity.
type EntryResponse struct {
	AddonID       string `json:"addon_id"`
	Quantity      int64  `json:"quantity"`
	AddedDate     string `json:"added_date"`
	SnapshotName  string `json:"snapshot_name,omitempty"`
	SnapshotPrice *int64 `json:"snapshot_price,omitempty"`
}

// OrganizationResponse is the wire representation of an organization and its
// add-on ledger. PlanName and PlanPrice are resolved against the live
// catalog: a plan missing from it degrades to "No Plan" with the legacy base
// price.
type OrganizationResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Plan      string          `json:"plan"`
	PlanName  string          `json:"plan_name"`
	PlanPrice int64           `json:"plan_price"`
	BasePrice int64           `json:"base_price"`
	Addons    []EntryResponse `json:"addons"`
	Status    string          `json:"status,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
}

// QuoteResponse carries what the organization's next itemized invoice would
// total, without composing one.
type QuoteResponse struct {
	OrganizationID string `json:"organization_id"`
	Total          int64  `json:"total"`
}

func (h *Handler) toOrganizationResponse(org ledger.Organization) OrganizationResponse {
	entries := make([]EntryResponse, 0, len(org.Addons))
	for _, e := range org.Addons {
		er := EntryResponse{
			AddonID:   e.AddonID,
			Quantity:  e.Quantity,
			AddedDate: formatTime(e.AddedDate),
		}
		if e.Snapshot != nil {
			er.SnapshotName = e.Snapshot.Name
			price := e.Snapshot.Price
			er.SnapshotPrice = &price
		}
		entries = append(entries, er)
	}

	plans := h.catalog.Plans()
	resolved := catalog.ResolvePlan(plans, org.Plan)

	return OrganizationResponse{
		ID:        org.ID,
		Name:      org.Name,
		Plan:      org.Plan,
		PlanName:  resolved.Name,
		PlanPrice: pricing.PlanPrice(plans, org),
		BasePrice: org.BasePrice,
		Addons:    entries,
		Status:    org.Status,
		CreatedAt: formatTime(org.CreatedAt),
	}
}

// ListOrganizations returns all resident organizations.
//
//	@Summary		List organizations
//	@Tags			Organizations
//	@Produce		json
//	@Success		200	{array}	OrganizationResponse
//	@Security		AdminAuth
//	@Router			/admin/organizations [get]
func (h *Handler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.ledger.Organizations(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]OrganizationResponse, 0, len(orgs))
	for _, org := range orgs {
		out = append(out, h.toOrganizationResponse(org))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetOrganization returns a single organization with its ledger.
//
//	@Summary		Get organization
//	@Tags			Organizations
//	@Produce		json
//	@Param			id	path		string	true	"Organization ID"
//	@Success		200	{object}	OrganizationResponse
//	@Failure		404	{object}	ErrorResponse
//	@Security		AdminAuth
//	@Router			/admin/organizations/{id} [get]
func (h *Handler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := h.ledger.Organization(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toOrganizationResponse(org))
}

// QuoteOrganization returns the organization's next billing total.
//
//	@Summary		Quote next invoice total
//	@Description	Resolved plan price plus the add-on subtotal, without composing an invoice
//	@Tags			Organizations
//	@Produce		json
//	@Param			id	path		string	true	"Organization ID"
//	@Success		200	{object}	QuoteResponse
//	@Failure		404	{object}	ErrorResponse
//	@Security		AdminAuth
//	@Router			/admin/organizations/{id}/quote [get]
func (h *Handler) QuoteOrganization(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	total, err := h.invoices.Quote(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, QuoteResponse{OrganizationID: id, Total: total})
}

// AddAddon attaches an add-on to an organization with quantity 1.
//
//	@Summary		Attach add-on
//	@Description	Attach with quantity 1, snapshotting catalog name and price. Re-adding is a no-op.
//	@Tags			Organizations
//	@Produce		json
//	@Param			id		path		string	true	"Organization ID"
//	@Param			addonID	path		string	true	"Add-on ID"
//	@Success		200		{object}	OrganizationResponse
//	@Failure		404		{object}	ErrorResponse
//	@Security		AdminAuth
//	@Router			/admin/organizations/{id}/addons/{addonID} [post]
func (h *Handler) AddAddon(w http.ResponseWriter, r *http.Request) {
	org, err := h.ledger.AddAddon(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "addonID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toOrganizationResponse(org))
}

// IncrementAddon raises an entry's quantity by one.
//
//	@Summary		Increment add-on quantity
//	@Tags			Organizations
//	@Produce		json
//	@Param			id		path		string	true	"Organization ID"
//	@Param			addonID	path		string	true	"Add-on ID"
//	@Success		200		{object}	OrganizationResponse
//	@Failure		404		{object}	ErrorResponse	"Organization or ledger entry not found"
//	@Security		AdminAuth
//	@Router			/admin/organizations/{id}/addons/{addonID}/increment [post]
func (h *Handler) IncrementAddon(w http.ResponseWriter, r *http.Request) {
	org, err := h.ledger.IncrementAddon(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "addonID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toOrganizationResponse(org))
}

// DecrementAddon lowers an entry's quantity by one. At quantity 1 the add-on
// is removed from the ledger.
//
//	@Summary		Decrement add-on quantity
//	@Description	Decrementing a quantity of 1 removes the add-on entirely
//	@Tags			Organizations
//	@Produce		json
//	@Param			id		path		string	true	"Organization ID"
//	@Param			addonID	path		string	true	"Add-on ID"
//	@Success		200		{object}	OrganizationResponse
//	@Failure		404		{object}	ErrorResponse	"Organization or ledger entry not found"
//	@Security		AdminAuth
//	@Router			/admin/organizations/{id}/addons/{addonID}/decrement [post]
func (h *Handler) DecrementAddon(w http.ResponseWriter, r *http.Request) {
	org, err := h.ledger.DecrementAddon(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "addonID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toOrganizationResponse(org))
}

// RemoveAddon detaches an add-on regardless of quantity.
//
//	@Summary		Detach add-on
//	@Tags			Organizations
//	@Produce		json
//	@Param			id		path		string	true	"Organization ID"
//	@Param			addonID	path		string	true	"Add-on ID"
//	@Success		200		{object}	OrganizationResponse
//	@Failure		404		{object}	ErrorResponse
//	@Security		AdminAuth
//	@Router			/admin/organizations/{id}/addons/{addonID} [delete]
func (h *Handler) RemoveAddon(w http.ResponseWriter, r *http.Request) {
	org, err := h.ledger.RemoveAddon(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "addonID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toOrganizationResponse(org))
}
