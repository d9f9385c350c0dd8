package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tillstack/tillstack/domain/invoice"
	"github.com/tillstack/tillstack/domain/pricing"
	"github.com/tillstack/tillstack/ports"
)

// LineItemResponse is one row of an itemized invoice.
type LineItemResponse struct {
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"`
	Amount   int64  `json:"amount"`
}

// InvoiceResponse is the wire representation of an invoice.
type InvoiceResponse struct {
	ID               string             `json:"id"`
	OrganizationID   string             `json:"organization_id"`
	OrganizationName string             `json:"organization_name"`
	InvoiceNumber    string             `json:"invoice_number"`
	Amount           int64              `json:"amount"`
	Status           string             `json:"status"`
	Type             string             `json:"type"`
	DueDate          string             `json:"due_date"`
	PaidAt           string             `json:"paid_at,omitempty"`
	Items            []LineItemResponse `json:"items,omitempty"`
	Notes            string             `json:"notes,omitempty"`
	IsShared         bool               `json:"is_shared"`
	CreatedAt        string             `json:"created_at,omitempty"`
}

// ComposeRequest is the payload for composing a plan change invoice.
type ComposeRequest struct {
	OrganizationID string `json:"organization_id"`
	Plan           string `json:"plan"`
	DueDate        string `json:"due_date,omitempty"` // RFC 3339 or YYYY-MM-DD
	Notes          string `json:"notes,omitempty"`
}

// CustomInvoiceRequest is the payload for a manual invoice.
type CustomInvoiceRequest struct {
	OrganizationID string `json:"organization_id"`
	Amount         int64  `json:"amount"`
	DueDate        string `json:"due_date,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// StatusRequest is the payload for a lifecycle transition.
type StatusRequest struct {
	Status    string `json:"status"` // "paid" or "pending"
	Confirmed bool   `json:"confirmed,omitempty"`
}

// ShareRequest toggles organization-visible sharing.
type ShareRequest struct {
	IsShared bool `json:"is_shared"`
}

// SummaryResponse is the paid/pending rollup over all invoices.
type SummaryResponse struct {
	TotalPaid    int64 `json:"total_paid"`
	TotalPending int64 `json:"total_pending"`
	UnpaidCount  int   `json:"unpaid_count"`
}

// OrganizationTotalsResponse is the per-organization rollup.
type OrganizationTotalsResponse struct {
	OrganizationID   string `json:"organization_id"`
	OrganizationName string `json:"organization_name"`
	TotalPaid        int64  `json:"total_paid"`
	TotalPending     int64  `json:"total_pending"`
	UnpaidCount      int    `json:"unpaid_count"`
}

func toInvoiceResponse(inv invoice.Invoice) InvoiceResponse {
	items := make([]LineItemResponse, 0, len(inv.Items))
	for _, li := range inv.Items {
		items = append(items, LineItemResponse{
			Name:     li.Name,
			Quantity: li.Quantity,
			Price:    li.Price,
			Amount:   li.Amount(),
		})
	}

	resp := InvoiceResponse{
		ID:               inv.ID,
		OrganizationID:   inv.OrganizationID,
		OrganizationName: inv.OrganizationName,
		InvoiceNumber:    inv.InvoiceNumber,
		Amount:           inv.Amount,
		Status:           string(inv.Status),
		Type:             string(inv.Type),
		DueDate:          formatTime(inv.DueDate),
		Items:            items,
		Notes:            inv.Notes,
		IsShared:         inv.IsShared,
		CreatedAt:        formatTime(inv.CreatedAt),
	}
	if inv.PaidAt != nil {
		resp.PaidAt = formatTime(*inv.PaidAt)
	}
	return resp
}

// parseDueDate accepts RFC 3339 timestamps or bare dates. An empty value
// defaults to thirty days out.
func parseDueDate(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now.AddDate(0, 0, 30), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// ListInvoices returns invoices matching the filter, newest first.
//
//	@Summary		List invoices
//	@Tags			Invoices
//	@Produce		json
//	@Param			status			query	string	false	"Filter by status (pending, paid, overdue, upcoming)"
//	@Param			search			query	string	false	"Match organization name or invoice number"
//	@Param			organization_id	query	string	false	"Filter by organization"
//	@Success		200				{array}	InvoiceResponse
//	@Security		AdminAuth
//	@Router			/admin/invoices [get]
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	f := ports.InvoiceFilter{
		OrganizationID: r.URL.Query().Get("organization_id"),
		Status:         invoice.Status(r.URL.Query().Get("status")),
		Search:         r.URL.Query().Get("search"),
	}

	invoices, err := h.invoices.List(r.Context(), f)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, toInvoiceResponse(inv))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetInvoice returns a single invoice.
//
//	@Summary		Get invoice
//	@Tags			Invoices
//	@Produce		json
//	@Param			id	path		string	true	"Invoice ID"
//	@Success		200	{object}	InvoiceResponse
//	@Failure		404	{object}	ErrorResponse
//	@Security		AdminAuth
//	@Router			/admin/invoices/{id} [get]
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invoices.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

// ComposeInvoice builds an itemized plan change invoice, syncs the new plan
// upstream, then submits the invoice.
//
//	@Summary		Compose plan change invoice
//	@Description	The organization sync must succeed before the invoice is submitted. A submit failure after a successful sync is a partial success: the plan change holds, no invoice exists.
//	@Tags			Invoices
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ComposeRequest	true	"Plan change"
//	@Success		201		{object}	InvoiceResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		502		{object}	ErrorResponse	"Upstream sync or submit failed"
//	@Security		AdminAuth
//	@Router			/admin/invoices [post]
func (h *Handler) ComposeInvoice(w http.ResponseWriter, r *http.Request) {
	var req ComposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Plan == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "plan is required")
		return
	}

	dueDate, err := parseDueDate(req.DueDate, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "due_date must be RFC 3339 or YYYY-MM-DD")
		return
	}

	inv, err := h.invoices.ComposePlanChange(r.Context(), req.OrganizationID, req.Plan, dueDate, req.Notes)
	if err != nil {
		switch {
		case isNotFound(err):
			writeDomainError(w, err)
		case isDomainError(err):
			writeDomainError(w, err)
		default:
			writeError(w, http.StatusBadGateway, "upstream_failed", "The upstream billing service rejected the request")
		}
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceResponse(inv))
}

// CreateCustomInvoice submits a manual invoice with a caller-supplied amount.
//
//	@Summary		Create custom invoice
//	@Description	Validation failures block the action before any upstream call
//	@Tags			Invoices
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CustomInvoiceRequest	true	"Custom invoice"
//	@Success		201		{object}	InvoiceResponse
//	@Failure		400		{object}	ErrorResponse	"Missing organization or non-positive amount"
//	@Failure		502		{object}	ErrorResponse	"Upstream submit failed"
//	@Security		AdminAuth
//	@Router			/admin/invoices/custom [post]
func (h *Handler) CreateCustomInvoice(w http.ResponseWriter, r *http.Request) {
	var req CustomInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	dueDate, err := parseDueDate(req.DueDate, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "due_date must be RFC 3339 or YYYY-MM-DD")
		return
	}

	inv, err := h.invoices.CreateCustom(r.Context(), req.OrganizationID, req.Amount, dueDate, req.Notes)
	if err != nil {
		if isDomainError(err) {
			writeDomainError(w, err)
		} else {
			writeError(w, http.StatusBadGateway, "upstream_failed", "The upstream billing service rejected the invoice")
		}
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceResponse(inv))
}

// UpdateInvoiceStatus applies a lifecycle transition.
//
//	@Summary		Update invoice status
//	@Description	Reverting paid to pending clears the payment timestamp and requires confirmed=true
//	@Tags			Invoices
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Invoice ID"
//	@Param			request	body		StatusRequest	true	"Target status"
//	@Success		200		{object}	InvoiceResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse	"Confirmation required or transition not allowed"
//	@Security		AdminAuth
//	@Router			/admin/invoices/{id} [patch]
func (h *Handler) UpdateInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	id := chi.URLParam(r, "id")
	var inv invoice.Invoice
	var err error

	switch invoice.Status(req.Status) {
	case invoice.StatusPaid:
		inv, err = h.invoices.MarkPaid(r.Context(), id)
	case invoice.StatusPending:
		inv, err = h.invoices.MarkPending(r.Context(), id, req.Confirmed)
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "status must be 'paid' or 'pending'")
		return
	}

	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

// ShareInvoice toggles organization-visible sharing.
//
//	@Summary		Share invoice
//	@Tags			Invoices
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Invoice ID"
//	@Param			request	body		ShareRequest	true	"Sharing flag"
//	@Success		200		{object}	InvoiceResponse
//	@Failure		404		{object}	ErrorResponse
//	@Security		AdminAuth
//	@Router			/admin/invoices/{id}/share [post]
func (h *Handler) ShareInvoice(w http.ResponseWriter, r *http.Request) {
	var req ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	inv, err := h.invoices.Share(r.Context(), chi.URLParam(r, "id"), req.IsShared)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

// InvoiceSummary returns the paid/pending rollup over all invoices.
//
//	@Summary		Invoice totals
//	@Tags			Invoices
//	@Produce		json
//	@Success		200	{object}	SummaryResponse
//	@Security		AdminAuth
//	@Router			/admin/invoices/summary [get]
func (h *Handler) InvoiceSummary(w http.ResponseWriter, r *http.Request) {
	totals, err := h.invoices.Totals(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryResponse{
		TotalPaid:    totals.TotalPaid,
		TotalPending: totals.TotalPending,
		UnpaidCount:  totals.UnpaidCount,
	})
}

// InvoicesByOrganization returns the per-organization rollup, ordered by
// pending amount descending.
//
//	@Summary		Invoice totals per organization
//	@Tags			Invoices
//	@Produce		json
//	@Success		200	{array}	OrganizationTotalsResponse
//	@Security		AdminAuth
//	@Router			/admin/invoices/by-organization [get]
func (h *Handler) InvoicesByOrganization(w http.ResponseWriter, r *http.Request) {
	groups, err := h.invoices.TotalsByOrganization(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]OrganizationTotalsResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, toTotalsResponse(g))
	}
	writeJSON(w, http.StatusOK, out)
}

func toTotalsResponse(g pricing.OrganizationTotals) OrganizationTotalsResponse {
	return OrganizationTotalsResponse{
		OrganizationID:   g.OrganizationID,
		OrganizationName: g.OrganizationName,
		TotalPaid:        g.TotalPaid,
		TotalPending:     g.TotalPending,
		UnpaidCount:      g.UnpaidCount,
	}
}
