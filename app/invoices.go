package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tillstack/tillstack/adapters/metrics"
	"github.com/tillstack/tillstack/core/events"
	"github.com/tillstack/tillstack/domain/invoice"
	"github.com/tillstack/tillstack/domain/pricing"
	"github.com/tillstack/tillstack/ports"
)

// InvoiceReplacer swaps resident invoice state with server truth after a
// full refetch.
type InvoiceReplacer interface {
	Replace(invoices []invoice.Invoice)
}

// InvoiceService orchestrates invoice composition, submission, and the
// lifecycle transitions. Plan changes are a two-step action: the
// organization sync must complete before the invoice referencing it is
// submitted, and a failure between the two steps is reported as a partial
// success, not a full rejection.
type InvoiceService struct {
	invoices ports.InvoiceStore
	orgs     ports.OrganizationStore
	catalog  *CatalogService
	gateway  ports.BillingGateway
	bus      *events.Bus
	clock    ports.Clock
	idgen    ports.IDGenerator
	metrics  *metrics.Collector
	logger   zerolog.Logger
}

// NewInvoiceService creates a new invoice service.
func NewInvoiceService(
	invoices ports.InvoiceStore,
	orgs ports.OrganizationStore,
	catalogSvc *CatalogService,
	gateway ports.BillingGateway,
	bus *events.Bus,
	clock ports.Clock,
	idgen ports.IDGenerator,
	collector *metrics.Collector,
	logger zerolog.Logger,
) *InvoiceService {
	return &InvoiceService{
		invoices: invoices,
		orgs:     orgs,
		catalog:  catalogSvc,
		gateway:  gateway,
		bus:      bus,
		clock:    clock,
		idgen:    idgen,
		metrics:  collector,
		logger:   logger,
	}
}

// List returns invoices matching a filter, newest first.
func (s *InvoiceService) List(ctx context.Context, f ports.InvoiceFilter) ([]invoice.Invoice, error) {
	return s.invoices.List(ctx, f)
}

// Get returns a single invoice.
func (s *InvoiceService) Get(ctx context.Context, id string) (invoice.Invoice, error) {
	return s.invoices.Get(ctx, id)
}

// Refresh refetches invoices from the gateway and replaces the resident
// collection when the store supports it.
func (s *InvoiceService) Refresh(ctx context.Context) error {
	start := time.Now()
	invoices, err := s.gateway.FetchInvoices(ctx, "", "")
	observeGateway(s.metrics, "fetch_invoices", start)
	if err != nil {
		return err
	}
	if len(invoices) == 0 {
		return nil
	}
	if replacer, ok := s.invoices.(InvoiceReplacer); ok {
		replacer.Replace(invoices)
		s.logger.Info().Int("invoices", len(invoices)).Msg("invoices refreshed")
	}
	return nil
}

// ComposePlanChange builds an itemized invoice for a plan change, syncs the
// organization's new plan upstream, then submits the invoice. The invoice
// always references the just-synced state; a submit failure after a
// successful sync is reported as a partial success.
func (s *InvoiceService) ComposePlanChange(ctx context.Context, orgID, targetPlan string, dueDate time.Time, notes string) (invoice.Invoice, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return invoice.Invoice{}, err
	}

	inv, err := invoice.Compose(s.catalog.Plans(), s.catalog.Addons(), org, targetPlan, dueDate, notes)
	if err != nil {
		return invoice.Invoice{}, err
	}

	start := time.Now()
	err = s.gateway.SyncOrganization(ctx, org.ID, targetPlan, org.Addons)
	observeGateway(s.metrics, "sync_organization", start)
	if err != nil {
		s.metrics.GatewayErrors.WithLabelValues("sync_organization").Inc()
		s.bus.Publish(ctx, events.Notification{
			Name:           events.SyncFailed,
			OrganizationID: org.ID,
			Subject:        targetPlan,
			Message:        "Plan change for " + org.Name + " could not be saved; no invoice was created.",
		})
		return invoice.Invoice{}, err
	}

	// Sync succeeded: the resident organization now carries the new plan
	// regardless of how submission goes.
	org.Plan = targetPlan
	if err := s.orgs.Update(ctx, org); err != nil {
		return invoice.Invoice{}, err
	}

	start = time.Now()
	submitted, err := s.gateway.SubmitInvoice(ctx, inv)
	observeGateway(s.metrics, "submit_invoice", start)
	if err != nil {
		s.metrics.GatewayErrors.WithLabelValues("submit_invoice").Inc()
		s.bus.Publish(ctx, events.Notification{
			Name:           events.PartialSuccess,
			OrganizationID: org.ID,
			Subject:        targetPlan,
			Message:        "Plan change for " + org.Name + " was saved, but the invoice could not be created.",
		})
		return invoice.Invoice{}, err
	}

	return s.record(ctx, submitted)
}

// CreateCustom builds and submits a manual invoice with a caller-supplied
// amount. Validation failures block the action before any network call.
func (s *InvoiceService) CreateCustom(ctx context.Context, orgID string, amount int64, dueDate time.Time, notes string) (invoice.Invoice, error) {
	var orgName string
	if org, err := s.orgs.Get(ctx, orgID); err == nil {
		orgName = org.Name
	}

	inv, err := invoice.ComposeCustom(orgID, orgName, amount, dueDate, notes)
	if err != nil {
		return invoice.Invoice{}, err
	}

	start := time.Now()
	submitted, err := s.gateway.SubmitInvoice(ctx, inv)
	observeGateway(s.metrics, "submit_invoice", start)
	if err != nil {
		s.metrics.GatewayErrors.WithLabelValues("submit_invoice").Inc()
		s.bus.Publish(ctx, events.Notification{
			Name:           events.SubmitFailed,
			OrganizationID: orgID,
			Subject:        orgName,
			Message:        "Invoice for " + orgName + " could not be created.",
		})
		return invoice.Invoice{}, err
	}

	return s.record(ctx, submitted)
}

// record assigns identity when the server has not, stores the invoice, and
// counts it.
func (s *InvoiceService) record(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	if inv.ID == "" {
		inv.ID = s.idgen.New()
	}
	if inv.InvoiceNumber == "" {
		inv.InvoiceNumber = invoiceNumber(inv.ID, s.clock.Now())
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = s.clock.Now()
	}

	if err := s.invoices.Create(ctx, inv); err != nil {
		return invoice.Invoice{}, err
	}

	s.metrics.InvoicesComposed.WithLabelValues(string(inv.Type)).Inc()
	s.logger.Info().
		Str("invoice_id", inv.ID).
		Str("organization_id", inv.OrganizationID).
		Int64("amount", inv.Amount).
		Str("type", string(inv.Type)).
		Msg("invoice created")
	return inv, nil
}

// MarkPaid transitions an invoice to paid, stamping the payment timestamp.
// The resident record is updated first; an upstream failure is surfaced as a
// notification and leaves the optimistic state in place.
func (s *InvoiceService) MarkPaid(ctx context.Context, id string) (invoice.Invoice, error) {
	inv, err := s.invoices.Get(ctx, id)
	if err != nil {
		return invoice.Invoice{}, err
	}
	from := inv.Status

	updated, err := invoice.MarkPaid(inv, s.clock.Now())
	if err != nil {
		return invoice.Invoice{}, err
	}

	if err := s.invoices.UpdateStatus(ctx, id, updated.Status, updated.PaidAt); err != nil {
		return invoice.Invoice{}, err
	}

	s.metrics.InvoiceTransitions.WithLabelValues(string(from), string(updated.Status)).Inc()
	s.bus.Publish(ctx, events.Notification{
		Name:           events.InvoicePaid,
		OrganizationID: updated.OrganizationID,
		Subject:        updated.InvoiceNumber,
		Message:        "Invoice " + updated.InvoiceNumber + " marked as paid",
	})

	s.pushStatus(ctx, updated)
	return updated, nil
}

// MarkPending reverses a paid invoice back to pending, clearing the payment
// timestamp. The reversal is destructive and refused unless confirmed.
func (s *InvoiceService) MarkPending(ctx context.Context, id string, confirmed bool) (invoice.Invoice, error) {
	inv, err := s.invoices.Get(ctx, id)
	if err != nil {
		return invoice.Invoice{}, err
	}
	from := inv.Status

	updated, err := invoice.MarkPending(inv, confirmed)
	if err != nil {
		return invoice.Invoice{}, err
	}

	if err := s.invoices.UpdateStatus(ctx, id, updated.Status, nil); err != nil {
		return invoice.Invoice{}, err
	}

	s.metrics.InvoiceTransitions.WithLabelValues(string(from), string(updated.Status)).Inc()
	s.bus.Publish(ctx, events.Notification{
		Name:           events.InvoicePending,
		OrganizationID: updated.OrganizationID,
		Subject:        updated.InvoiceNumber,
		Message:        "Invoice " + updated.InvoiceNumber + " reverted to pending",
	})

	s.pushStatus(ctx, updated)
	return updated, nil
}

// SweepOverdue transitions pending invoices past their due date to overdue.
// Time-based housekeeping, run periodically rather than per user action.
func (s *InvoiceService) SweepOverdue(ctx context.Context) (int, error) {
	pending, err := s.invoices.List(ctx, ports.InvoiceFilter{Status: invoice.StatusPending})
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	swept := 0
	for _, inv := range pending {
		updated, err := invoice.MarkOverdue(inv, now)
		if err != nil {
			continue
		}
		if err := s.invoices.UpdateStatus(ctx, inv.ID, updated.Status, nil); err != nil {
			return swept, err
		}
		s.metrics.InvoiceTransitions.WithLabelValues(string(invoice.StatusPending), string(updated.Status)).Inc()
		swept++
	}

	if swept > 0 {
		s.logger.Info().Int("count", swept).Msg("invoices marked overdue")
	}
	return swept, nil
}

// Share toggles organization-visible sharing. Sharing has no pricing effect.
func (s *InvoiceService) Share(ctx context.Context, id string, shared bool) (invoice.Invoice, error) {
	if err := s.invoices.SetShared(ctx, id, shared); err != nil {
		return invoice.Invoice{}, err
	}

	inv, err := s.invoices.Get(ctx, id)
	if err != nil {
		return invoice.Invoice{}, err
	}

	if shared {
		s.bus.Publish(ctx, events.Notification{
			Name:           events.InvoiceShared,
			OrganizationID: inv.OrganizationID,
			Subject:        inv.InvoiceNumber,
			Message:        "Invoice " + inv.InvoiceNumber + " shared with " + inv.OrganizationName,
		})
	}

	start := time.Now()
	err = s.gateway.ShareInvoice(ctx, id, shared)
	observeGateway(s.metrics, "share_invoice", start)
	if err != nil {
		s.metrics.GatewayErrors.WithLabelValues("share_invoice").Inc()
		s.logger.Error().Err(err).Str("invoice_id", id).Msg("share sync failed; keeping optimistic state")
		s.bus.Publish(ctx, events.Notification{
			Name:           events.SyncFailed,
			OrganizationID: inv.OrganizationID,
			Subject:        inv.InvoiceNumber,
			Message:        "Sharing change for invoice " + inv.InvoiceNumber + " could not be saved.",
		})
	}

	return inv, nil
}

// Totals aggregates all invoices into the paid/pending rollup.
func (s *InvoiceService) Totals(ctx context.Context) (pricing.Totals, error) {
	invoices, err := s.invoices.List(ctx, ports.InvoiceFilter{})
	if err != nil {
		return pricing.Totals{}, err
	}
	return pricing.Aggregate(invoices), nil
}

// TotalsByOrganization groups invoices per organization, ordered by pending
// amount descending.
func (s *InvoiceService) TotalsByOrganization(ctx context.Context) ([]pricing.OrganizationTotals, error) {
	invoices, err := s.invoices.List(ctx, ports.InvoiceFilter{})
	if err != nil {
		return nil, err
	}
	return pricing.GroupByOrganization(invoices), nil
}

// Quote returns what an organization's next itemized invoice would total,
// without composing one.
func (s *InvoiceService) Quote(ctx context.Context, orgID string) (int64, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return 0, err
	}
	return pricing.OrganizationTotal(s.catalog.Plans(), s.catalog.Addons(), org), nil
}

// pushStatus propagates a lifecycle transition upstream. Failures keep the
// optimistic local state and surface a notification.
func (s *InvoiceService) pushStatus(ctx context.Context, inv invoice.Invoice) {
	start := time.Now()
	err := s.gateway.UpdateInvoiceStatus(ctx, inv.ID, inv.Status)
	observeGateway(s.metrics, "update_invoice_status", start)
	if err != nil {
		s.metrics.GatewayErrors.WithLabelValues("update_invoice_status").Inc()
		s.logger.Error().Err(err).
			Str("invoice_id", inv.ID).
			Str("status", string(inv.Status)).
			Msg("status sync failed; keeping optimistic state")
		s.bus.Publish(ctx, events.Notification{
			Name:           events.SyncFailed,
			OrganizationID: inv.OrganizationID,
			Subject:        inv.InvoiceNumber,
			Message:        "Status change for invoice " + inv.InvoiceNumber + " could not be saved.",
		})
	}
}

func invoiceNumber(id string, now time.Time) string {
	suffix := strings.ToUpper(strings.NewReplacer("-", "", "_", "").Replace(id))
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	return fmt.Sprintf("INV-%d-%s", now.Year(), suffix)
}
