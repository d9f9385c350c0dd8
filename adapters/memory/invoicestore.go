package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tillstack/tillstack/domain/invoice"
	"github.com/tillstack/tillstack/ports"
)

// InvoiceStore is an in-memory implementation of ports.InvoiceStore.
type InvoiceStore struct {
	mu       sync.RWMutex
	invoices map[string]invoice.Invoice
}

// NewInvoiceStore creates an empty in-memory invoice store.
func NewInvoiceStore() *InvoiceStore {
	return &InvoiceStore{invoices: make(map[string]invoice.Invoice)}
}

// Create stores a new invoice.
func (s *InvoiceStore) Create(ctx context.Context, inv invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invoices[inv.ID]; ok {
		return ErrDuplicate
	}
	s.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

// Get retrieves an invoice by ID.
func (s *InvoiceStore) Get(ctx context.Context, id string) (invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[id]
	if !ok {
		return invoice.Invoice{}, ErrNotFound
	}
	return cloneInvoice(inv), nil
}

// List returns invoices matching a filter, newest first.
func (s *InvoiceStore) List(ctx context.Context, f ports.InvoiceFilter) ([]invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []invoice.Invoice
	for _, inv := range s.invoices {
		if f.OrganizationID != "" && inv.OrganizationID != f.OrganizationID {
			continue
		}
		if f.Status != "" && inv.Status != f.Status {
			continue
		}
		if f.Search != "" && !matchesSearch(inv, f.Search) {
			continue
		}
		out = append(out, cloneInvoice(inv))
	}

	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

// UpdateStatus updates invoice status and payment timestamp.
func (s *InvoiceStore) UpdateStatus(ctx context.Context, id string, status invoice.Status, paidAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return ErrNotFound
	}
	inv.Status = status
	inv.PaidAt = paidAt
	s.invoices[id] = inv
	return nil
}

// SetShared toggles organization-visible sharing.
func (s *InvoiceStore) SetShared(ctx context.Context, id string, shared bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return ErrNotFound
	}
	inv.IsShared = shared
	s.invoices[id] = inv
	return nil
}

// Replace swaps the entire resident collection with server truth.
func (s *InvoiceStore) Replace(invoices []invoice.Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invoices = make(map[string]invoice.Invoice, len(invoices))
	for _, inv := range invoices {
		s.invoices[inv.ID] = cloneInvoice(inv)
	}
}

func matchesSearch(inv invoice.Invoice, q string) bool {
	q = strings.ToLower(q)
	return strings.Contains(strings.ToLower(inv.OrganizationName), q) ||
		strings.Contains(strings.ToLower(inv.InvoiceNumber), q)
}

func cloneInvoice(inv invoice.Invoice) invoice.Invoice {
	out := inv
	if inv.PaidAt != nil {
		paidAt := *inv.PaidAt
		out.PaidAt = &paidAt
	}
	out.Items = make([]invoice.LineItem, len(inv.Items))
	copy(out.Items, inv.Items)
	return out
}

// Ensure interface compliance.
var _ ports.InvoiceStore = (*InvoiceStore)(nil)
