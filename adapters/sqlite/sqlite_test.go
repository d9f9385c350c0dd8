package sqlite_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/tillstack/tillstack/adapters/sqlite"
	"github.com/tillstack/tillstack/domain/catalog"
	"github.com/tillstack/tillstack/domain/invoice"
	"github.com/tillstack/tillstack/domain/ledger"
	"github.com/tillstack/tillstack/ports"
)

func setupTestDB(t *testing.T) (*sqlite.DB, func()) {
	t.Helper()

	// Create temp file for test database
	f, err := os.CreateTemp("", "tillstack-test-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	db, err := sqlite.Open(path)
	if err != nil {
		os.Remove(path)
		t.Fatalf("open database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		os.Remove(path)
		t.Fatalf("migrate: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.Remove(path)
	}

	return db, cleanup
}

// -----------------------------------------------------------------------------
// PlanStore Tests
// -----------------------------------------------------------------------------

func TestPlanStore_CreateAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewPlanStore(db)
	ctx := context.Background()

	plan := catalog.Plan{
		ID:       "plan-pro",
		Name:     "Pro",
		Price:    35000,
		Interval: catalog.IntervalMonth,
		Features: []string{"Unlimited registers", "Priority support"},
		IsActive: true,
	}

	if err := store.Create(ctx, plan); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, "plan-pro")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Pro" || got.Price != 35000 || got.Interval != catalog.IntervalMonth {
		t.Errorf("got = %+v", got)
	}
	if len(got.Features) != 2 {
		t.Errorf("features = %v", got.Features)
	}

	if _, err := store.Get(ctx, "ghost"); !errors.Is(err, sqlite.ErrNotFound) {
		t.Errorf("missing get: err = %v", err)
	}
}

func TestPlanStore_DuplicateName(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewPlanStore(db)
	ctx := context.Background()

	if err := store.Create(ctx, catalog.Plan{ID: "p1", Name: "Basic"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Plan names are unique case-insensitively: resolution matches by name.
	if err := store.Create(ctx, catalog.Plan{ID: "p2", Name: "basic"}); !errors.Is(err, sqlite.ErrDuplicate) {
		t.Errorf("duplicate name: err = %v", err)
	}
}

func TestPlanStore_UpdateAndDelete(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewPlanStore(db)
	ctx := context.Background()

	plan := catalog.Plan{ID: "p1", Name: "Basic", Price: 15000, IsActive: true}
	if err := store.Create(ctx, plan); err != nil {
		t.Fatalf("create: %v", err)
	}

	plan.Price = 18000
	if err := store.Update(ctx, plan); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := store.Get(ctx, "p1")
	if got.Price != 18000 {
		t.Errorf("price = %d, want 18000", got.Price)
	}

	if err := store.Delete(ctx, "p1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "p1"); !errors.Is(err, sqlite.ErrNotFound) {
		t.Errorf("after delete: err = %v", err)
	}
	if err := store.Delete(ctx, "p1"); !errors.Is(err, sqlite.ErrNotFound) {
		t.Errorf("double delete: err = %v", err)
	}
}

func TestPlanStore_ListOrderedByPrice(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewPlanStore(db)
	ctx := context.Background()

	store.Create(ctx, catalog.Plan{ID: "p1", Name: "Enterprise", Price: 75000})
	store.Create(ctx, catalog.Plan{ID: "p2", Name: "Basic", Price: 15000})
	store.Create(ctx, catalog.Plan{ID: "p3", Name: "Pro", Price: 35000})

	plans, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(plans) != 3 {
		t.Fatalf("len = %d, want 3", len(plans))
	}
	if plans[0].Name != "Basic" || plans[2].Name != "Enterprise" {
		t.Errorf("order = %s, %s, %s", plans[0].Name, plans[1].Name, plans[2].Name)
	}
}

// -----------------------------------------------------------------------------
// AddonStore Tests
// -----------------------------------------------------------------------------

func TestAddonStore_RoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewAddonStore(db)
	ctx := context.Background()

	addon := catalog.Addon{
		ID:          "extra-devices",
		Name:        "Extra Devices",
		Description: "Additional POS terminals",
		Price:       1500,
		Interval:    catalog.IntervalMonth,
		Icon:        "device",
		Category:    "hardware",
		IsActive:    true,
	}

	if err := store.Create(ctx, addon); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, addon); !errors.Is(err, sqlite.ErrDuplicate) {
		t.Errorf("duplicate create: err = %v", err)
	}

	got, err := store.Get(ctx, "extra-devices")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Price != 1500 || got.Category != "hardware" || got.Icon != "device" {
		t.Errorf("got = %+v", got)
	}

	got.Price = 2000
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = store.Get(ctx, "extra-devices")
	if got.Price != 2000 {
		t.Errorf("price = %d, want 2000", got.Price)
	}

	if err := store.Delete(ctx, "extra-devices"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "extra-devices"); !errors.Is(err, sqlite.ErrNotFound) {
		t.Errorf("after delete: err = %v", err)
	}
}

// -----------------------------------------------------------------------------
// OrganizationStore Tests
// -----------------------------------------------------------------------------

func TestOrganizationStore_LedgerRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewOrganizationStore(db)
	ctx := context.Background()

	added := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	org := ledger.Organization{
		ID:        "org-1",
		Name:      "Kirana Mart",
		Plan:      "Pro",
		BasePrice: 30000,
		Status:    "active",
		Addons: []ledger.Entry{
			{AddonID: "extra-devices", Quantity: 3, AddedDate: added, Snapshot: &catalog.Snapshot{Name: "Extra Devices", Price: 1500}},
			{AddonID: "legacy-module", Quantity: 1, AddedDate: added},
		},
	}

	if err := store.Create(ctx, org); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, "org-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Addons) != 2 {
		t.Fatalf("addons = %d, want 2", len(got.Addons))
	}
	first := got.Addons[0]
	if first.Quantity != 3 || first.Snapshot == nil || first.Snapshot.Price != 1500 {
		t.Errorf("first entry = %+v", first)
	}
	if !first.AddedDate.Equal(added) {
		t.Errorf("added date = %v, want %v", first.AddedDate, added)
	}
	// Entry without a snapshot stays snapshot-less.
	if got.Addons[1].Snapshot != nil {
		t.Errorf("second entry snapshot = %+v, want nil", got.Addons[1].Snapshot)
	}
}

func TestOrganizationStore_UpdateReplacesLedger(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewOrganizationStore(db)
	ctx := context.Background()

	org := ledger.Organization{
		ID:     "org-1",
		Name:   "Kirana Mart",
		Addons: []ledger.Entry{{AddonID: "a", Quantity: 1, Snapshot: &catalog.Snapshot{Name: "A", Price: 100}}},
	}
	if err := store.Create(ctx, org); err != nil {
		t.Fatalf("create: %v", err)
	}

	org.Plan = "Enterprise"
	org.Addons = nil
	if err := store.Update(ctx, org); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := store.Get(ctx, "org-1")
	if got.Plan != "Enterprise" || len(got.Addons) != 0 {
		t.Errorf("got = %+v", got)
	}

	if err := store.Update(ctx, ledger.Organization{ID: "ghost"}); !errors.Is(err, sqlite.ErrNotFound) {
		t.Errorf("missing update: err = %v", err)
	}
}

// -----------------------------------------------------------------------------
// InvoiceStore Tests
// -----------------------------------------------------------------------------

func TestInvoiceStore_RoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewInvoiceStore(db)
	ctx := context.Background()

	due := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	inv := invoice.Invoice{
		ID:               "inv-1",
		OrganizationID:   "org-1",
		OrganizationName: "Kirana Mart",
		InvoiceNumber:    "INV-2025-001",
		Amount:           45500,
		Status:           invoice.StatusPending,
		Type:             invoice.TypePlan,
		DueDate:          due,
		Items: []invoice.LineItem{
			{Name: "[CORE] Pro Subscription", Quantity: 1, Price: 35000},
			{Name: "[HARDWARE] Extra Devices", Quantity: 3, Price: 1500},
			{Name: "Delivery Tracking", Quantity: 1, Price: 6000},
		},
		Notes: "June billing cycle",
	}

	if err := store.Create(ctx, inv); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, "inv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount != 45500 || len(got.Items) != 3 {
		t.Errorf("got = %+v", got)
	}
	if !got.Reconciles() {
		t.Error("stored invoice should reconcile")
	}
	if got.PaidAt != nil {
		t.Errorf("paid_at = %v, want nil", got.PaidAt)
	}
}

func TestInvoiceStore_ListFilters(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewInvoiceStore(db)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store.Create(ctx, invoice.Invoice{ID: "i1", OrganizationID: "a", OrganizationName: "Alpha", InvoiceNumber: "INV-001", Status: invoice.StatusPaid, DueDate: base, CreatedAt: base})
	store.Create(ctx, invoice.Invoice{ID: "i2", OrganizationID: "a", OrganizationName: "Alpha", InvoiceNumber: "INV-002", Status: invoice.StatusPending, DueDate: base, CreatedAt: base.Add(time.Hour)})
	store.Create(ctx, invoice.Invoice{ID: "i3", OrganizationID: "b", OrganizationName: "Beta", InvoiceNumber: "INV-003", Status: invoice.StatusPending, DueDate: base, CreatedAt: base.Add(2 * time.Hour)})

	pending, err := store.List(ctx, ports.InvoiceFilter{Status: invoice.StatusPending})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "i3" {
		t.Errorf("pending = %+v", pending)
	}

	byOrg, _ := store.List(ctx, ports.InvoiceFilter{OrganizationID: "a"})
	if len(byOrg) != 2 {
		t.Errorf("byOrg = %d, want 2", len(byOrg))
	}

	search, _ := store.List(ctx, ports.InvoiceFilter{Search: "beta"})
	if len(search) != 1 || search[0].ID != "i3" {
		t.Errorf("search = %+v", search)
	}
}

func TestInvoiceStore_StatusAndSharing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewInvoiceStore(db)
	ctx := context.Background()

	due := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	if err := store.Create(ctx, invoice.Invoice{ID: "i1", OrganizationID: "a", Status: invoice.StatusPending, DueDate: due}); err != nil {
		t.Fatalf("create: %v", err)
	}

	paidAt := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	if err := store.UpdateStatus(ctx, "i1", invoice.StatusPaid, &paidAt); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ := store.Get(ctx, "i1")
	if got.Status != invoice.StatusPaid || got.PaidAt == nil || !got.PaidAt.Equal(paidAt) {
		t.Errorf("got = %+v", got)
	}

	// Reverting to pending clears the payment timestamp.
	if err := store.UpdateStatus(ctx, "i1", invoice.StatusPending, nil); err != nil {
		t.Fatalf("revert status: %v", err)
	}
	got, _ = store.Get(ctx, "i1")
	if got.Status != invoice.StatusPending || got.PaidAt != nil {
		t.Errorf("after revert = %+v", got)
	}

	if err := store.SetShared(ctx, "i1", true); err != nil {
		t.Fatalf("set shared: %v", err)
	}
	got, _ = store.Get(ctx, "i1")
	if !got.IsShared {
		t.Error("is_shared not persisted")
	}

	if err := store.UpdateStatus(ctx, "ghost", invoice.StatusPaid, nil); !errors.Is(err, sqlite.ErrNotFound) {
		t.Errorf("missing update: err = %v", err)
	}
}
