// Package memory provides in-memory implementations of storage ports. The
// organization store doubles as the resident optimistic state the console
// mutates ahead of gateway confirmation.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/tillstack/tillstack/domain/ledger"
	"github.com/tillstack/tillstack/ports"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("memory: not found")

// ErrDuplicate is returned when a record already exists.
var ErrDuplicate = errors.New("memory: duplicate")

// OrganizationStore is an in-memory implementation of ports.OrganizationStore.
type OrganizationStore struct {
	mu   sync.RWMutex
	orgs map[string]ledger.Organization
}

// NewOrganizationStore creates an empty in-memory organization store.
func NewOrganizationStore() *OrganizationStore {
	return &OrganizationStore{orgs: make(map[string]ledger.Organization)}
}

// List returns all organizations sorted by name.
func (s *OrganizationStore) List(ctx context.Context) ([]ledger.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ledger.Organization, 0, len(s.orgs))
	for _, org := range s.orgs {
		out = append(out, cloneOrg(org))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, id string) (ledger.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, ok := s.orgs[id]
	if !ok {
		return ledger.Organization{}, ErrNotFound
	}
	return cloneOrg(org), nil
}

// Create stores a new organization.
func (s *OrganizationStore) Create(ctx context.Context, org ledger.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orgs[org.ID]; ok {
		return ErrDuplicate
	}
	s.orgs[org.ID] = cloneOrg(org)
	return nil
}

// Update replaces an organization record, including its ledger.
func (s *OrganizationStore) Update(ctx context.Context, org ledger.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orgs[org.ID]; !ok {
		return ErrNotFound
	}
	s.orgs[org.ID] = cloneOrg(org)
	return nil
}

// Replace swaps the entire resident collection with server truth. Used after
// a full refetch: optimistic state is replaced, not merged.
func (s *OrganizationStore) Replace(orgs []ledger.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orgs = make(map[string]ledger.Organization, len(orgs))
	for _, org := range orgs {
		s.orgs[org.ID] = cloneOrg(org)
	}
}

// cloneOrg deep-copies the ledger so callers cannot mutate stored state.
func cloneOrg(org ledger.Organization) ledger.Organization {
	out := org
	out.Addons = make([]ledger.Entry, len(org.Addons))
	copy(out.Addons, org.Addons)
	for i, e := range out.Addons {
		if e.Snapshot != nil {
			snap := *e.Snapshot
			out.Addons[i].Snapshot = &snap
		}
	}
	return out
}

// Ensure interface compliance.
var _ ports.OrganizationStore = (*OrganizationStore)(nil)
