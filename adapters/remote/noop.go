package remote

import (
	"context"

	"github.com/tillstack/tillstack/domain/catalog"
	"github.com/tillstack/tillstack/domain/invoice"
	"github.com/tillstack/tillstack/domain/ledger"
	"github.com/tillstack/tillstack/ports"
)

// Noop is a gateway for local mode, where there is no upstream billing
// service. Writes succeed without doing anything (the local stores are the
// only truth) and fetches return nothing.
type Noop struct{}

// NewNoop creates a no-op billing gateway.
func NewNoop() *Noop {
	return &Noop{}
}

// FetchPlans returns no plans; local mode reads the plan store instead.
func (Noop) FetchPlans(ctx context.Context) ([]catalog.Plan, error) {
	return nil, nil
}

// FetchAddons returns no add-ons; local mode reads the add-on store instead.
func (Noop) FetchAddons(ctx context.Context) ([]catalog.Addon, error) {
	return nil, nil
}

// FetchOrganizations returns no organizations.
func (Noop) FetchOrganizations(ctx context.Context) ([]ledger.Organization, error) {
	return nil, nil
}

// FetchInvoices returns no invoices.
func (Noop) FetchInvoices(ctx context.Context, status invoice.Status, search string) ([]invoice.Invoice, error) {
	return nil, nil
}

// SyncOrganization succeeds without doing anything.
func (Noop) SyncOrganization(ctx context.Context, orgID, plan string, addons []ledger.Entry) error {
	return nil
}

// SubmitInvoice echoes the invoice back unchanged; the caller assigns
// identifiers when the server has not.
func (Noop) SubmitInvoice(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	return inv, nil
}

// UpdateInvoiceStatus succeeds without doing anything.
func (Noop) UpdateInvoiceStatus(ctx context.Context, id string, status invoice.Status) error {
	return nil
}

// ShareInvoice succeeds without doing anything.
func (Noop) ShareInvoice(ctx context.Context, id string, shared bool) error {
	return nil
}

// Ensure interface compliance.
var _ ports.BillingGateway = Noop{}
