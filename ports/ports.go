// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/tillstack/tillstack/domain/catalog"
	"github.com/tillstack/tillstack/domain/invoice"
	"github.com/tillstack/tillstack/domain/ledger"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Hasher provides password hashing for the admin surface.
type Hasher interface {
	// Hash generates a hash from a plaintext value.
	Hash(plaintext string) ([]byte, error)

	// Compare checks if plaintext matches hash.
	Compare(hash []byte, plaintext string) bool
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// PlanStore persists subscription plans.
type PlanStore interface {
	// List returns all plans.
	List(ctx context.Context) ([]catalog.Plan, error)

	// Get retrieves a plan by ID.
	Get(ctx context.Context, id string) (catalog.Plan, error)

	// Create stores a new plan.
	Create(ctx context.Context, p catalog.Plan) error

	// Update replaces a plan record.
	Update(ctx context.Context, p catalog.Plan) error

	// Delete removes a plan.
	Delete(ctx context.Context, id string) error
}

// AddonStore persists the add-on catalog.
type AddonStore interface {
	// List returns all catalog add-ons.
	List(ctx context.Context) ([]catalog.Addon, error)

	// Get retrieves an add-on by ID.
	Get(ctx context.Context, id string) (catalog.Addon, error)

	// Create stores a new add-on.
	Create(ctx context.Context, a catalog.Addon) error

	// Update replaces an add-on record.
	Update(ctx context.Context, a catalog.Addon) error

	// Delete removes an add-on. Organizations holding it keep their ledger
	// snapshot as the pricing fallback.
	Delete(ctx context.Context, id string) error
}

// OrganizationStore persists organizations and their add-on ledgers.
type OrganizationStore interface {
	// List returns all organizations.
	List(ctx context.Context) ([]ledger.Organization, error)

	// Get retrieves an organization by ID.
	Get(ctx context.Context, id string) (ledger.Organization, error)

	// Create stores a new organization.
	Create(ctx context.Context, org ledger.Organization) error

	// Update replaces an organization record, including its ledger.
	Update(ctx context.Context, org ledger.Organization) error
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	OrganizationID string
	Status         invoice.Status
	Search         string // matches organization name or invoice number
}

// InvoiceStore persists invoices.
type InvoiceStore interface {
	// Create stores a new invoice.
	Create(ctx context.Context, inv invoice.Invoice) error

	// Get retrieves an invoice by ID.
	Get(ctx context.Context, id string) (invoice.Invoice, error)

	// List returns invoices matching a filter, newest first.
	List(ctx context.Context, f InvoiceFilter) ([]invoice.Invoice, error)

	// UpdateStatus updates invoice status and payment timestamp. Items and
	// amount are immutable after creation.
	UpdateStatus(ctx context.Context, id string, status invoice.Status, paidAt *time.Time) error

	// SetShared toggles organization-visible sharing.
	SetShared(ctx context.Context, id string, shared bool) error
}

// -----------------------------------------------------------------------------
// External Service Ports
// -----------------------------------------------------------------------------

// BillingGateway is the upstream billing REST boundary this engine consumes
// but does not own. Plan/add-on changes must be synced before the invoice
// that references them is submitted.
type BillingGateway interface {
	// FetchPlans retrieves the plan catalog.
	FetchPlans(ctx context.Context) ([]catalog.Plan, error)

	// FetchAddons retrieves the add-on catalog.
	FetchAddons(ctx context.Context) ([]catalog.Addon, error)

	// FetchOrganizations retrieves organizations with their ledgers.
	FetchOrganizations(ctx context.Context) ([]ledger.Organization, error)

	// FetchInvoices retrieves invoices, optionally filtered by status and
	// a free-text search.
	FetchInvoices(ctx context.Context, status invoice.Status, search string) ([]invoice.Invoice, error)

	// SyncOrganization persists a plan/add-on change upstream.
	SyncOrganization(ctx context.Context, orgID, plan string, addons []ledger.Entry) error

	// SubmitInvoice creates the invoice record upstream and returns it with
	// server-assigned fields (id, invoice number).
	SubmitInvoice(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error)

	// UpdateInvoiceStatus applies a lifecycle transition upstream.
	UpdateInvoiceStatus(ctx context.Context, id string, status invoice.Status) error

	// ShareInvoice toggles organization-visible sharing upstream.
	ShareInvoice(ctx context.Context, id string, shared bool) error
}
