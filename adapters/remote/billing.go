package remote

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/tillstack/tillstack/domain/catalog"
	"github.com/tillstack/tillstack/domain/invoice"
	"github.com/tillstack/tillstack/domain/ledger"
	"github.com/tillstack/tillstack/ports"
)

// BillingGateway delegates billing operations to the upstream HTTP service.
//
// API Contract:
//
//	GET  /plans
//	Response: {"plans": [...]}
//
//	GET  /addons
//	Response: {"addons": [...]}
//
//	GET  /billing/organizations
//	Response: {"organizations": [...]}
//	(each organization's "add_ons" may be an array OR a JSON-encoded string)
//
//	GET  /billing/invoices?status=...&search=...
//	Response: {"invoices": [...]}
//
//	POST /billing/organizations/{id}/sync
//	Request:  {"plan": "...", "add_ons": [...]}
//	Response: {}
//
//	POST /billing/invoices
//	Request:  invoice record
//	Response: {"invoice": {...}} with server-assigned id and invoice number
//
//	PATCH /billing/invoices/{id}
//	Request:  {"status": "..."}
//	Response: {}
//
//	POST /billing/invoices/{id}/share
//	Request:  {"isShared": true}
//	Response: {}
type BillingGateway struct {
	client *Client
}

// NewBillingGateway creates a remote billing gateway.
func NewBillingGateway(client *Client) *BillingGateway {
	return &BillingGateway{client: client}
}

// RemotePlan is the wire format for plans.
type RemotePlan struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Interval  string    `json:"interval"`
	Features  []string  `json:"features"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RemoteAddon is the wire format for add-ons.
type RemoteAddon struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
	Interval    string    `json:"interval"`
	Icon        string    `json:"icon"`
	Category    string    `json:"category"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RemoteEntry is the wire format for one ledger entry.
type RemoteEntry struct {
	AddonID   string    `json:"addon_id"`
	Quantity  int64     `json:"quantity"`
	AddedDate time.Time `json:"added_date"`
	Name      string    `json:"name,omitempty"`
	Price     *int64    `json:"price,omitempty"`
}

// RemoteOrganization is the wire format for organizations. AddOns is kept
// raw because the upstream sometimes double-encodes it as a JSON string.
type RemoteOrganization struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Plan      string          `json:"plan"`
	BasePrice int64           `json:"basePrice"`
	AddOns    json.RawMessage `json:"add_ons"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// RemoteLineItem is one line of an itemized invoice.
type RemoteLineItem struct {
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"`
}

// RemoteInvoice is the wire format for invoices.
type RemoteInvoice struct {
	ID               string           `json:"id"`
	OrganizationID   string           `json:"organizationId"`
	OrganizationName string           `json:"organizationName"`
	InvoiceNumber    string           `json:"invoiceNumber"`
	Amount           int64            `json:"amount"`
	Status           string           `json:"status"`
	Type             string           `json:"type"`
	DueDate          time.Time        `json:"dueDate"`
	PaidAt           *time.Time       `json:"paidAt,omitempty"`
	Items            []RemoteLineItem `json:"items"`
	Notes            string           `json:"notes"`
	IsShared         bool             `json:"isShared"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// FetchPlans retrieves the plan catalog.
func (g *BillingGateway) FetchPlans(ctx context.Context) ([]catalog.Plan, error) {
	var resp struct {
		Plans []RemotePlan `json:"plans"`
	}
	if err := g.client.Request(ctx, "GET", "/plans", nil, &resp); err != nil {
		return nil, err
	}

	plans := make([]catalog.Plan, len(resp.Plans))
	for i, rp := range resp.Plans {
		plans[i] = catalog.Plan{
			ID:        rp.ID,
			Name:      rp.Name,
			Price:     rp.Price,
			Interval:  catalog.Interval(rp.Interval),
			Features:  rp.Features,
			IsActive:  rp.IsActive,
			CreatedAt: rp.CreatedAt,
			UpdatedAt: rp.UpdatedAt,
		}
	}
	return plans, nil
}

// FetchAddons retrieves the add-on catalog.
func (g *BillingGateway) FetchAddons(ctx context.Context) ([]catalog.Addon, error) {
	var resp struct {
		Addons []RemoteAddon `json:"addons"`
	}
	if err := g.client.Request(ctx, "GET", "/addons", nil, &resp); err != nil {
		return nil, err
	}

	addons := make([]catalog.Addon, len(resp.Addons))
	for i, ra := range resp.Addons {
		addons[i] = catalog.Addon{
			ID:          ra.ID,
			Name:        ra.Name,
			Description: ra.Description,
			Price:       ra.Price,
			Interval:    catalog.Interval(ra.Interval),
			Icon:        ra.Icon,
			Category:    ra.Category,
			IsActive:    ra.IsActive,
			CreatedAt:   ra.CreatedAt,
			UpdatedAt:   ra.UpdatedAt,
		}
	}
	return addons, nil
}

// FetchOrganizations retrieves organizations with their ledgers.
func (g *BillingGateway) FetchOrganizations(ctx context.Context) ([]ledger.Organization, error) {
	var resp struct {
		Organizations []RemoteOrganization `json:"organizations"`
	}
	if err := g.client.Request(ctx, "GET", "/billing/organizations", nil, &resp); err != nil {
		return nil, err
	}

	orgs := make([]ledger.Organization, len(resp.Organizations))
	for i, ro := range resp.Organizations {
		entries, err := decodeEntries(ro.AddOns)
		if err != nil {
			return nil, err
		}
		orgs[i] = ledger.Organization{
			ID:        ro.ID,
			Name:      ro.Name,
			Plan:      ro.Plan,
			BasePrice: ro.BasePrice,
			Addons:    entries,
			Status:    ro.Status,
			CreatedAt: ro.CreatedAt,
			UpdatedAt: ro.UpdatedAt,
		}
	}
	return orgs, nil
}

// FetchInvoices retrieves invoices, optionally filtered by status and a
// free-text search.
func (g *BillingGateway) FetchInvoices(ctx context.Context, status invoice.Status, search string) ([]invoice.Invoice, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	if search != "" {
		q.Set("search", search)
	}
	path := "/billing/invoices"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Invoices []RemoteInvoice `json:"invoices"`
	}
	if err := g.client.Request(ctx, "GET", path, nil, &resp); err != nil {
		return nil, err
	}

	invoices := make([]invoice.Invoice, len(resp.Invoices))
	for i, ri := range resp.Invoices {
		invoices[i] = toInvoice(ri)
	}
	return invoices, nil
}

// SyncOrganization persists a plan/add-on change upstream. Must complete
// before an invoice referencing the change is submitted.
func (g *BillingGateway) SyncOrganization(ctx context.Context, orgID, plan string, addons []ledger.Entry) error {
	req := map[string]interface{}{
		"plan":    plan,
		"add_ons": toRemoteEntries(addons),
	}
	return g.client.Request(ctx, "POST", "/billing/organizations/"+orgID+"/sync", req, nil)
}

// SubmitInvoice creates the invoice record upstream and returns it with
// server-assigned fields.
func (g *BillingGateway) SubmitInvoice(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	var resp struct {
		Invoice RemoteInvoice `json:"invoice"`
	}
	if err := g.client.Request(ctx, "POST", "/billing/invoices", toRemoteInvoice(inv), &resp); err != nil {
		return invoice.Invoice{}, err
	}
	return toInvoice(resp.Invoice), nil
}

// UpdateInvoiceStatus applies a lifecycle transition upstream.
func (g *BillingGateway) UpdateInvoiceStatus(ctx context.Context, id string, status invoice.Status) error {
	req := map[string]string{"status": string(status)}
	return g.client.Request(ctx, "PATCH", "/billing/invoices/"+id, req, nil)
}

// ShareInvoice toggles organization-visible sharing upstream.
func (g *BillingGateway) ShareInvoice(ctx context.Context, id string, shared bool) error {
	req := map[string]bool{"isShared": shared}
	return g.client.Request(ctx, "POST", "/billing/invoices/"+id+"/share", req, nil)
}

// decodeEntries parses the add_ons field, which arrives either as an array
// or as a JSON-encoded string containing an array.
func decodeEntries(raw json.RawMessage) ([]ledger.Entry, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	data := []byte(raw)
	// Double-encoded: unwrap the string first.
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, err
		}
		if inner == "" {
			return nil, nil
		}
		data = []byte(inner)
	}

	var remote []RemoteEntry
	if err := json.Unmarshal(data, &remote); err != nil {
		return nil, err
	}

	entries := make([]ledger.Entry, len(remote))
	for i, re := range remote {
		entries[i] = ledger.Entry{
			AddonID:   re.AddonID,
			Quantity:  re.Quantity,
			AddedDate: re.AddedDate,
		}
		if re.Price != nil {
			entries[i].Snapshot = &catalog.Snapshot{Name: re.Name, Price: *re.Price}
		}
	}
	return entries, nil
}

func toRemoteEntries(entries []ledger.Entry) []RemoteEntry {
	out := make([]RemoteEntry, len(entries))
	for i, e := range entries {
		out[i] = RemoteEntry{
			AddonID:   e.AddonID,
			Quantity:  e.Quantity,
			AddedDate: e.AddedDate,
		}
		if e.Snapshot != nil {
			out[i].Name = e.Snapshot.Name
			price := e.Snapshot.Price
			out[i].Price = &price
		}
	}
	return out
}

func toRemoteInvoice(inv invoice.Invoice) RemoteInvoice {
	items := make([]RemoteLineItem, len(inv.Items))
	for i, li := range inv.Items {
		items[i] = RemoteLineItem{Name: li.Name, Quantity: li.Quantity, Price: li.Price}
	}
	return RemoteInvoice{
		ID:               inv.ID,
		OrganizationID:   inv.OrganizationID,
		OrganizationName: inv.OrganizationName,
		InvoiceNumber:    inv.InvoiceNumber,
		Amount:           inv.Amount,
		Status:           string(inv.Status),
		Type:             string(inv.Type),
		DueDate:          inv.DueDate,
		PaidAt:           inv.PaidAt,
		Items:            items,
		Notes:            inv.Notes,
		IsShared:         inv.IsShared,
		CreatedAt:        inv.CreatedAt,
	}
}

func toInvoice(ri RemoteInvoice) invoice.Invoice {
	items := make([]invoice.LineItem, len(ri.Items))
	for i, item := range ri.Items {
		items[i] = invoice.LineItem{Name: item.Name, Quantity: item.Quantity, Price: item.Price}
	}
	return invoice.Invoice{
		ID:               ri.ID,
		OrganizationID:   ri.OrganizationID,
		OrganizationName: ri.OrganizationName,
		InvoiceNumber:    ri.InvoiceNumber,
		Amount:           ri.Amount,
		Status:           invoice.Status(ri.Status),
		Type:             invoice.Type(ri.Type),
		DueDate:          ri.DueDate,
		PaidAt:           ri.PaidAt,
		Items:            items,
		Notes:            ri.Notes,
		IsShared:         ri.IsShared,
		CreatedAt:        ri.CreatedAt,
	}
}

// Ensure interface compliance.
var _ ports.BillingGateway = (*BillingGateway)(nil)
