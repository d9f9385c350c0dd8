package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tillstack/tillstack/adapters/metrics"
	"github.com/tillstack/tillstack/core/events"
	"github.com/tillstack/tillstack/domain/catalog"
	"github.com/tillstack/tillstack/domain/ledger"
	"github.com/tillstack/tillstack/ports"
)

// OrganizationReplacer swaps resident organization state with server truth
// after a full refetch. Optimistic state is replaced, not merged.
type OrganizationReplacer interface {
	Replace(orgs []ledger.Organization)
}

// LedgerService orchestrates add-on ledger mutations. Mutations are
// optimistic: the resident record is updated and notifications emitted
// before the gateway confirms, and a gateway failure surfaces as a
// notification rather than a rollback.
type LedgerService struct {
	orgs    ports.OrganizationStore
	catalog *CatalogService
	gateway ports.BillingGateway
	bus     *events.Bus
	clock   ports.Clock
	metrics *metrics.Collector
	logger  zerolog.Logger
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(
	orgs ports.OrganizationStore,
	catalogSvc *CatalogService,
	gateway ports.BillingGateway,
	bus *events.Bus,
	clock ports.Clock,
	collector *metrics.Collector,
	logger zerolog.Logger,
) *LedgerService {
	return &LedgerService{
		orgs:    orgs,
		catalog: catalogSvc,
		gateway: gateway,
		bus:     bus,
		clock:   clock,
		metrics: collector,
		logger:  logger,
	}
}

// Organizations returns all resident organizations.
func (s *LedgerService) Organizations(ctx context.Context) ([]ledger.Organization, error) {
	return s.orgs.List(ctx)
}

// Organization returns a single resident organization.
func (s *LedgerService) Organization(ctx context.Context, id string) (ledger.Organization, error) {
	return s.orgs.Get(ctx, id)
}

// Refresh refetches organizations from the gateway and replaces the resident
// collection when the store supports it. In local mode the gateway has
// nothing and the store is already the truth.
func (s *LedgerService) Refresh(ctx context.Context) error {
	start := time.Now()
	orgs, err := s.gateway.FetchOrganizations(ctx)
	observeGateway(s.metrics, "fetch_organizations", start)
	if err != nil {
		return err
	}
	if len(orgs) == 0 {
		return nil
	}
	if replacer, ok := s.orgs.(OrganizationReplacer); ok {
		replacer.Replace(orgs)
		s.logger.Info().Int("organizations", len(orgs)).Msg("organizations refreshed")
	}
	return nil
}

// AddAddon attaches an add-on to an organization with quantity 1, pricing it
// catalog-first and snapshotting name and price. Adding an add-on the
// organization already holds is a no-op.
func (s *LedgerService) AddAddon(ctx context.Context, orgID, addonID string) (ledger.Organization, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return ledger.Organization{}, err
	}

	resolved := catalog.ResolveAddon(s.catalog.Addons(), addonID, nil)
	entries, change := ledger.Add(org.Addons, addonID, resolved, s.clock.Now())
	if change.Kind == ledger.ChangeNone {
		return org, nil
	}

	return s.apply(ctx, org, entries, change, "add")
}

// IncrementAddon raises an existing entry's quantity by one.
func (s *LedgerService) IncrementAddon(ctx context.Context, orgID, addonID string) (ledger.Organization, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return ledger.Organization{}, err
	}

	entries, change, err := ledger.Increment(org.Addons, addonID)
	if err != nil {
		return ledger.Organization{}, err
	}

	return s.apply(ctx, org, entries, change, "increment")
}

// DecrementAddon lowers an existing entry's quantity by one. Decrementing a
// quantity of 1 removes the add-on and emits a removal notification.
func (s *LedgerService) DecrementAddon(ctx context.Context, orgID, addonID string) (ledger.Organization, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return ledger.Organization{}, err
	}

	entries, change, err := ledger.Decrement(org.Addons, addonID)
	if err != nil {
		return ledger.Organization{}, err
	}

	return s.apply(ctx, org, entries, change, "decrement")
}

// RemoveAddon detaches an add-on regardless of quantity. Removing an absent
// add-on is a no-op.
func (s *LedgerService) RemoveAddon(ctx context.Context, orgID, addonID string) (ledger.Organization, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return ledger.Organization{}, err
	}

	entries, change := ledger.Remove(org.Addons, addonID)
	if change.Kind == ledger.ChangeNone {
		return org, nil
	}

	return s.apply(ctx, org, entries, change, "remove")
}

// apply commits a ledger transition: resident update first, membership
// notification, then the gateway sync. A sync failure leaves the optimistic
// state in place and is surfaced as a notification.
func (s *LedgerService) apply(ctx context.Context, org ledger.Organization, entries []ledger.Entry, change ledger.Change, operation string) (ledger.Organization, error) {
	org.Addons = entries
	if err := s.orgs.Update(ctx, org); err != nil {
		return ledger.Organization{}, err
	}

	s.metrics.LedgerMutations.WithLabelValues(operation).Inc()
	s.logger.Info().
		Str("organization_id", org.ID).
		Str("addon_id", change.AddonID).
		Str("change", string(change.Kind)).
		Int64("quantity", change.Quantity).
		Msg("ledger updated")

	if change.MembershipChanged() {
		s.publishMembership(ctx, org, change)
	}

	start := time.Now()
	err := s.gateway.SyncOrganization(ctx, org.ID, org.Plan, org.Addons)
	observeGateway(s.metrics, "sync_organization", start)
	if err != nil {
		s.metrics.GatewayErrors.WithLabelValues("sync_organization").Inc()
		s.logger.Error().Err(err).
			Str("organization_id", org.ID).
			Msg("organization sync failed; keeping optimistic state")
		s.bus.Publish(ctx, events.Notification{
			Name:           events.SyncFailed,
			OrganizationID: org.ID,
			Subject:        change.Name,
			Message:        "Could not save add-on changes for " + org.Name + "; displayed state may be ahead of the server.",
		})
	}

	return org, nil
}

// observeGateway records how long an upstream gateway call took.
func observeGateway(m *metrics.Collector, operation string, start time.Time) {
	m.GatewayDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (s *LedgerService) publishMembership(ctx context.Context, org ledger.Organization, change ledger.Change) {
	switch change.Kind {
	case ledger.ChangeAdded:
		s.bus.Publish(ctx, events.Notification{
			Name:           events.AddonAdded,
			OrganizationID: org.ID,
			Subject:        change.Name,
			Message:        change.Name + " added to " + org.Name,
		})
	case ledger.ChangeRemoved:
		s.bus.Publish(ctx, events.Notification{
			Name:           events.AddonRemoved,
			OrganizationID: org.ID,
			Subject:        change.Name,
			Message:        change.Name + " removed from " + org.Name,
		})
	}
}
