// Package app contains the application services that orchestrate the pure
// domain functions against stores, the upstream gateway, and the
// notification bus.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tillstack/tillstack/domain/catalog"
	"github.com/tillstack/tillstack/ports"
)

// CatalogService holds the resident plan and add-on catalogs. Pricing and
// composition always operate on whatever snapshot is currently resident;
// Refresh replaces it wholesale.
type CatalogService struct {
	plans   ports.PlanStore
	addons  ports.AddonStore
	gateway ports.BillingGateway
	logger  zerolog.Logger

	mu         sync.RWMutex
	planCache  []catalog.Plan
	addonCache []catalog.Addon
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(plans ports.PlanStore, addons ports.AddonStore, gateway ports.BillingGateway, logger zerolog.Logger) *CatalogService {
	return &CatalogService{
		plans:   plans,
		addons:  addons,
		gateway: gateway,
		logger:  logger,
	}
}

// Refresh replaces the resident catalogs. The gateway is consulted first;
// when it has nothing (local mode), the local stores are the source.
func (s *CatalogService) Refresh(ctx context.Context) error {
	plans, err := s.gateway.FetchPlans(ctx)
	if err != nil {
		return err
	}
	addons, err := s.gateway.FetchAddons(ctx)
	if err != nil {
		return err
	}

	if len(plans) == 0 {
		if plans, err = s.plans.List(ctx); err != nil {
			return err
		}
	}
	if len(addons) == 0 {
		if addons, err = s.addons.List(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.planCache = plans
	s.addonCache = addons
	s.mu.Unlock()

	s.logger.Info().
		Int("plans", len(plans)).
		Int("addons", len(addons)).
		Msg("catalog refreshed")
	return nil
}

// Plans returns the resident plan catalog.
func (s *CatalogService) Plans() []catalog.Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Plan, len(s.planCache))
	copy(out, s.planCache)
	return out
}

// Addons returns the resident add-on catalog.
func (s *CatalogService) Addons() []catalog.Addon {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Addon, len(s.addonCache))
	copy(out, s.addonCache)
	return out
}

// GetPlan retrieves a plan by ID from the local store.
func (s *CatalogService) GetPlan(ctx context.Context, id string) (catalog.Plan, error) {
	return s.plans.Get(ctx, id)
}

// CreatePlan stores a new plan and refreshes the resident catalog.
func (s *CatalogService) CreatePlan(ctx context.Context, p catalog.Plan) error {
	if err := s.plans.Create(ctx, p); err != nil {
		return err
	}
	s.logger.Info().Str("plan", p.Name).Int64("price", p.Price).Msg("plan created")
	return s.Refresh(ctx)
}

// UpdatePlan replaces a plan record and refreshes the resident catalog.
func (s *CatalogService) UpdatePlan(ctx context.Context, p catalog.Plan) error {
	if err := s.plans.Update(ctx, p); err != nil {
		return err
	}
	s.logger.Info().Str("plan", p.Name).Msg("plan updated")
	return s.Refresh(ctx)
}

// DeletePlan removes a plan. Organizations naming it degrade to their stored
// base price at resolution time.
func (s *CatalogService) DeletePlan(ctx context.Context, id string) error {
	if err := s.plans.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("plan_id", id).Msg("plan deleted")
	return s.Refresh(ctx)
}

// GetAddon retrieves an add-on by ID from the local store.
func (s *CatalogService) GetAddon(ctx context.Context, id string) (catalog.Addon, error) {
	return s.addons.Get(ctx, id)
}

// CreateAddon stores a new add-on and refreshes the resident catalog.
func (s *CatalogService) CreateAddon(ctx context.Context, a catalog.Addon) error {
	if err := s.addons.Create(ctx, a); err != nil {
		return err
	}
	s.logger.Info().Str("addon", a.Name).Int64("price", a.Price).Msg("addon created")
	return s.Refresh(ctx)
}

// UpdateAddon replaces an add-on record and refreshes the resident catalog.
func (s *CatalogService) UpdateAddon(ctx context.Context, a catalog.Addon) error {
	if err := s.addons.Update(ctx, a); err != nil {
		return err
	}
	s.logger.Info().Str("addon", a.Name).Msg("addon updated")
	return s.Refresh(ctx)
}

// DeleteAddon removes an add-on from the catalog. Ledger entries holding it
// keep their snapshot as the pricing fallback.
func (s *CatalogService) DeleteAddon(ctx context.Context, id string) error {
	if err := s.addons.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("addon_id", id).Msg("addon deleted")
	return s.Refresh(ctx)
}
