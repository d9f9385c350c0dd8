package app_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/tillstack/tillstack/adapters/clock"
	"github.com/tillstack/tillstack/adapters/idgen"
	"github.com/tillstack/tillstack/adapters/memory"
	"github.com/tillstack/tillstack/adapters/metrics"
	"github.com/tillstack/tillstack/app"
	"github.com/tillstack/tillstack/core/events"
	"github.com/tillstack/tillstack/domain/catalog"
	"github.com/tillstack/tillstack/domain/invoice"
	"github.com/tillstack/tillstack/domain/ledger"
	"github.com/tillstack/tillstack/ports"
)

// fakeGateway records calls and fails on demand.
type fakeGateway struct {
	plans  []catalog.Plan
	addons []catalog.Addon

	syncErr   error
	submitErr error
	statusErr error

	syncCalls   []syncCall
	submitted   []invoice.Invoice
	statusCalls []string
	shareCalls  []string
}

type syncCall struct {
	orgID  string
	plan   string
	addons []ledger.Entry
}

func (g *fakeGateway) FetchPlans(ctx context.Context) ([]catalog.Plan, error) {
	return g.plans, nil
}

func (g *fakeGateway) FetchAddons(ctx context.Context) ([]catalog.Addon, error) {
	return g.addons, nil
}

func (g *fakeGateway) FetchOrganizations(ctx context.Context) ([]ledger.Organization, error) {
	return nil, nil
}

func (g *fakeGateway) FetchInvoices(ctx context.Context, status invoice.Status, search string) ([]invoice.Invoice, error) {
	return nil, nil
}

func (g *fakeGateway) SyncOrganization(ctx context.Context, orgID, plan string, addons []ledger.Entry) error {
	if g.syncErr != nil {
		return g.syncErr
	}
	g.syncCalls = append(g.syncCalls, syncCall{orgID: orgID, plan: plan, addons: addons})
	return nil
}

func (g *fakeGateway) SubmitInvoice(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	if g.submitErr != nil {
		return invoice.Invoice{}, g.submitErr
	}
	g.submitted = append(g.submitted, inv)
	return inv, nil
}

func (g *fakeGateway) UpdateInvoiceStatus(ctx context.Context, id string, status invoice.Status) error {
	if g.statusErr != nil {
		return g.statusErr
	}
	g.statusCalls = append(g.statusCalls, id+":"+string(status))
	return nil
}

func (g *fakeGateway) ShareInvoice(ctx context.Context, id string, shared bool) error {
	g.shareCalls = append(g.shareCalls, id)
	return nil
}

var _ ports.BillingGateway = (*fakeGateway)(nil)

// testEnv wires the services against in-memory adapters and a fake gateway.
type testEnv struct {
	gateway  *fakeGateway
	orgs     *memory.OrganizationStore
	invoices *memory.InvoiceStore
	bus      *events.Bus
	clock    *clock.Fake
	catalog  *app.CatalogService
	ledger   *app.LedgerService
	invoice  *app.InvoiceService
	metrics  *metrics.Collector
	notes    *[]events.Notification
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zerolog.New(io.Discard)
	gw := &fakeGateway{
		plans: []catalog.Plan{
			{ID: "plan-basic", Name: "Basic", Price: 15000, Interval: catalog.IntervalMonth},
			{ID: "plan-pro", Name: "Pro", Price: 35000, Interval: catalog.IntervalMonth},
		},
		addons: []catalog.Addon{
			{ID: "extra-devices", Name: "Extra Devices", Price: 1500, Category: "hardware"},
			{ID: "delivery", Name: "Delivery Tracking", Price: 6000},
		},
	}

	orgs := memory.NewOrganizationStore()
	invoices := memory.NewInvoiceStore()
	bus := events.NewBus(logger)
	fakeClock := clock.NewFake(time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC))
	collector := metrics.NewWithRegistry(prometheus.NewRegistry())

	catalogSvc := app.NewCatalogService(nil, nil, gw, logger)
	if err := catalogSvc.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh catalog: %v", err)
	}

	ledgerSvc := app.NewLedgerService(orgs, catalogSvc, gw, bus, fakeClock, collector, logger)
	invoiceSvc := app.NewInvoiceService(invoices, orgs, catalogSvc, gw, bus, fakeClock, idgen.NewSequential("inv_"), collector, logger)

	var notes []events.Notification
	bus.Subscribe("*", func(ctx context.Context, n events.Notification) error {
		notes = append(notes, n)
		return nil
	})

	return &testEnv{
		gateway:  gw,
		orgs:     orgs,
		invoices: invoices,
		bus:      bus,
		clock:    fakeClock,
		catalog:  catalogSvc,
		ledger:   ledgerSvc,
		invoice:  invoiceSvc,
		metrics:  collector,
		notes:    &notes,
	}
}

func (e *testEnv) seedOrg(t *testing.T, org ledger.Organization) {
	t.Helper()
	if err := e.orgs.Create(context.Background(), org); err != nil {
		t.Fatalf("seed org: %v", err)
	}
}

func (e *testEnv) notification(name string) (events.Notification, bool) {
	for _, n := range *e.notes {
		if n.Name == name {
			return n, true
		}
	}
	return events.Notification{}, false
}

// -----------------------------------------------------------------------------
// LedgerService Tests
// -----------------------------------------------------------------------------

func TestLedgerService_AddAddon(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, ledger.Organization{ID: "org-1", Name: "Kirana Mart", Plan: "Pro"})
	ctx := context.Background()

	org, err := env.ledger.AddAddon(ctx, "org-1", "extra-devices")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if len(org.Addons) != 1 {
		t.Fatalf("addons = %d, want 1", len(org.Addons))
	}
	e := org.Addons[0]
	if e.Quantity != 1 || e.Snapshot == nil || e.Snapshot.Price != 1500 || e.Snapshot.Name != "Extra Devices" {
		t.Errorf("entry = %+v", e)
	}

	n, ok := env.notification(events.AddonAdded)
	if !ok {
		t.Fatal("no addon.added notification")
	}
	if n.Subject != "Extra Devices" || n.OrganizationID != "org-1" {
		t.Errorf("notification = %+v", n)
	}

	if len(env.gateway.syncCalls) != 1 {
		t.Fatalf("sync calls = %d, want 1", len(env.gateway.syncCalls))
	}
	if len(env.gateway.syncCalls[0].addons) != 1 {
		t.Errorf("synced entries = %+v", env.gateway.syncCalls[0].addons)
	}
}

func TestLedgerService_AddExistingIsNoop(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, ledger.Organization{
		ID: "org-1", Name: "Kirana Mart",
		Addons: []ledger.Entry{{AddonID: "extra-devices", Quantity: 2}},
	})
	ctx := context.Background()

	org, err := env.ledger.AddAddon(ctx, "org-1", "extra-devices")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if org.Addons[0].Quantity != 2 {
		t.Errorf("quantity = %d, want 2", org.Addons[0].Quantity)
	}
	if len(env.gateway.syncCalls) != 0 {
		t.Error("no-op add should not sync")
	}
	if len(*env.notes) != 0 {
		t.Errorf("notifications = %+v", *env.notes)
	}
}

func TestLedgerService_DecrementAtOneRemoves(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, ledger.Organization{
		ID: "org-1", Name: "Kirana Mart",
		Addons: []ledger.Entry{
			{AddonID: "delivery", Quantity: 1, Snapshot: &catalog.Snapshot{Name: "Delivery Tracking", Price: 6000}},
		},
	})
	ctx := context.Background()

	org, err := env.ledger.DecrementAddon(ctx, "org-1", "delivery")
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if len(org.Addons) != 0 {
		t.Fatalf("addons = %+v, want empty", org.Addons)
	}

	n, ok := env.notification(events.AddonRemoved)
	if !ok {
		t.Fatal("no addon.removed notification")
	}
	if n.Subject != "Delivery Tracking" {
		t.Errorf("removal should name the add-on, got %q", n.Subject)
	}
}

func TestLedgerService_IncrementMissing(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, ledger.Organization{ID: "org-1", Name: "Kirana Mart"})

	_, err := env.ledger.IncrementAddon(context.Background(), "org-1", "ghost")
	if !errors.Is(err, ledger.ErrNoEntry) {
		t.Errorf("err = %v, want ErrNoEntry", err)
	}
}

func TestLedgerService_SyncFailureKeepsOptimisticState(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, ledger.Organization{ID: "org-1", Name: "Kirana Mart"})
	env.gateway.syncErr = errors.New("upstream down")
	ctx := context.Background()

	org, err := env.ledger.AddAddon(ctx, "org-1", "extra-devices")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(org.Addons) != 1 {
		t.Error("optimistic state should survive a sync failure")
	}

	stored, _ := env.orgs.Get(ctx, "org-1")
	if len(stored.Addons) != 1 {
		t.Error("stored state rolled back on sync failure")
	}

	if _, ok := env.notification(events.SyncFailed); !ok {
		t.Error("no sync failure notification")
	}
}

// -----------------------------------------------------------------------------
// InvoiceService Tests
// -----------------------------------------------------------------------------

func proOrg() ledger.Organization {
	return ledger.Organization{
		ID: "org-1", Name: "Kirana Mart", Plan: "Pro",
		Addons: []ledger.Entry{
			{AddonID: "extra-devices", Quantity: 3, Snapshot: &catalog.Snapshot{Name: "Extra Devices", Price: 1500}},
			{AddonID: "delivery", Quantity: 1, Snapshot: &catalog.Snapshot{Name: "Delivery Tracking", Price: 6000}},
		},
	}
}

func TestInvoiceService_ComposePlanChange(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, proOrg())
	ctx := context.Background()

	due := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	inv, err := env.invoice.ComposePlanChange(ctx, "org-1", "Pro", due, "monthly cycle")
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	if inv.Amount != 45500 {
		t.Errorf("amount = %d, want 45500", inv.Amount)
	}
	if len(inv.Items) != 3 {
		t.Errorf("items = %d, want 3", len(inv.Items))
	}
	if inv.ID == "" || inv.InvoiceNumber == "" {
		t.Errorf("identity not assigned: %+v", inv)
	}
	if !inv.Reconciles() {
		t.Error("invoice should reconcile")
	}

	// Sync happens before submission.
	if len(env.gateway.syncCalls) != 1 || len(env.gateway.submitted) != 1 {
		t.Fatalf("sync = %d, submit = %d", len(env.gateway.syncCalls), len(env.gateway.submitted))
	}

	stored, err := env.invoices.Get(ctx, inv.ID)
	if err != nil {
		t.Fatalf("stored: %v", err)
	}
	if stored.Amount != 45500 {
		t.Errorf("stored amount = %d", stored.Amount)
	}
}

func TestInvoiceService_PlanChangeUpdatesOrganization(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, proOrg())
	ctx := context.Background()

	if _, err := env.invoice.ComposePlanChange(ctx, "org-1", "Basic", time.Now(), ""); err != nil {
		t.Fatalf("compose: %v", err)
	}

	org, _ := env.orgs.Get(ctx, "org-1")
	if org.Plan != "Basic" {
		t.Errorf("plan = %q, want Basic", org.Plan)
	}
	if env.gateway.syncCalls[0].plan != "Basic" {
		t.Errorf("synced plan = %q", env.gateway.syncCalls[0].plan)
	}
}

func TestInvoiceService_SyncFailureBlocksInvoice(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, proOrg())
	env.gateway.syncErr = errors.New("upstream down")
	ctx := context.Background()

	if _, err := env.invoice.ComposePlanChange(ctx, "org-1", "Basic", time.Now(), ""); err == nil {
		t.Fatal("expected error")
	}

	// No invoice, no plan change.
	invoices, _ := env.invoices.List(ctx, ports.InvoiceFilter{})
	if len(invoices) != 0 {
		t.Errorf("invoices = %d, want 0", len(invoices))
	}
	org, _ := env.orgs.Get(ctx, "org-1")
	if org.Plan != "Pro" {
		t.Errorf("plan = %q, want Pro", org.Plan)
	}
	if _, ok := env.notification(events.SyncFailed); !ok {
		t.Error("no sync failure notification")
	}
}

func TestInvoiceService_PartialSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, proOrg())
	env.gateway.submitErr = errors.New("invoice endpoint down")
	ctx := context.Background()

	if _, err := env.invoice.ComposePlanChange(ctx, "org-1", "Basic", time.Now(), ""); err == nil {
		t.Fatal("expected error")
	}

	// The sync went through: the plan change sticks even though the invoice
	// was never created.
	org, _ := env.orgs.Get(ctx, "org-1")
	if org.Plan != "Basic" {
		t.Errorf("plan = %q, want Basic", org.Plan)
	}
	invoices, _ := env.invoices.List(ctx, ports.InvoiceFilter{})
	if len(invoices) != 0 {
		t.Errorf("invoices = %d, want 0", len(invoices))
	}

	if _, ok := env.notification(events.PartialSuccess); !ok {
		t.Error("no partial success notification")
	}
	if _, ok := env.notification(events.SyncFailed); ok {
		t.Error("partial success must be distinct from a full rejection")
	}
}

func TestInvoiceService_CustomValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, proOrg())
	ctx := context.Background()

	if _, err := env.invoice.CreateCustom(ctx, "org-1", 0, time.Now(), ""); !errors.Is(err, invoice.ErrNonPositiveAmount) {
		t.Errorf("zero amount: err = %v", err)
	}
	if _, err := env.invoice.CreateCustom(ctx, "", 5000, time.Now(), ""); !errors.Is(err, invoice.ErrNoOrganization) {
		t.Errorf("no org: err = %v", err)
	}
	// Validation failures block before any network call.
	if len(env.gateway.submitted) != 0 {
		t.Errorf("submitted = %d, want 0", len(env.gateway.submitted))
	}

	inv, err := env.invoice.CreateCustom(ctx, "org-1", 5000, time.Now(), "setup fee")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inv.Type != invoice.TypeCustom || inv.Amount != 5000 || inv.OrganizationName != "Kirana Mart" {
		t.Errorf("inv = %+v", inv)
	}
}

func TestInvoiceService_MarkPaidAndRevert(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, proOrg())
	ctx := context.Background()

	inv, err := env.invoice.CreateCustom(ctx, "org-1", 5000, time.Now(), "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	paid, err := env.invoice.MarkPaid(ctx, inv.ID)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != invoice.StatusPaid || paid.PaidAt == nil {
		t.Errorf("paid = %+v", paid)
	}
	if !paid.PaidAt.Equal(env.clock.Now()) {
		t.Errorf("paid_at = %v, want clock time", paid.PaidAt)
	}
	if _, ok := env.notification(events.InvoicePaid); !ok {
		t.Error("no invoice.paid notification")
	}

	// Reversal requires confirmation.
	if _, err := env.invoice.MarkPending(ctx, inv.ID, false); !errors.Is(err, invoice.ErrConfirmationRequired) {
		t.Errorf("unconfirmed revert: err = %v", err)
	}
	stored, _ := env.invoices.Get(ctx, inv.ID)
	if stored.Status != invoice.StatusPaid {
		t.Error("unconfirmed revert must not change state")
	}

	reverted, err := env.invoice.MarkPending(ctx, inv.ID, true)
	if err != nil {
		t.Fatalf("confirmed revert: %v", err)
	}
	if reverted.Status != invoice.StatusPending || reverted.PaidAt != nil {
		t.Errorf("reverted = %+v", reverted)
	}
}

func TestInvoiceService_SweepOverdue(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, proOrg())
	ctx := context.Background()

	due := env.clock.Now().Add(24 * time.Hour)
	inv, err := env.invoice.CreateCustom(ctx, "org-1", 5000, due, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Not yet due: nothing to sweep.
	swept, err := env.invoice.SweepOverdue(ctx)
	if err != nil || swept != 0 {
		t.Fatalf("swept = %d, err = %v", swept, err)
	}

	env.clock.Advance(48 * time.Hour)
	swept, err = env.invoice.SweepOverdue(ctx)
	if err != nil || swept != 1 {
		t.Fatalf("swept = %d, err = %v", swept, err)
	}

	stored, _ := env.invoices.Get(ctx, inv.ID)
	if stored.Status != invoice.StatusOverdue {
		t.Errorf("status = %q, want overdue", stored.Status)
	}
}

func TestInvoiceService_Totals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	now := env.clock.Now()
	env.invoices.Create(ctx, invoice.Invoice{ID: "i1", OrganizationID: "a", Amount: 52000, Status: invoice.StatusPaid, CreatedAt: now})
	env.invoices.Create(ctx, invoice.Invoice{ID: "i2", OrganizationID: "a", Amount: 99000, Status: invoice.StatusPending, CreatedAt: now})

	totals, err := env.invoice.Totals(ctx)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.TotalPaid != 52000 || totals.TotalPending != 99000 || totals.UnpaidCount != 1 {
		t.Errorf("totals = %+v", totals)
	}
}

func TestInvoiceService_Quote(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, proOrg())

	total, err := env.invoice.Quote(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if total != 45500 {
		t.Errorf("total = %d, want 45500", total)
	}
}

func TestInvoiceService_Share(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, proOrg())
	ctx := context.Background()

	inv, err := env.invoice.CreateCustom(ctx, "org-1", 5000, time.Now(), "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	shared, err := env.invoice.Share(ctx, inv.ID, true)
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	if !shared.IsShared {
		t.Error("IsShared not set")
	}
	if _, ok := env.notification(events.InvoiceShared); !ok {
		t.Error("no invoice.shared notification")
	}
	if len(env.gateway.shareCalls) != 1 {
		t.Errorf("share calls = %d", len(env.gateway.shareCalls))
	}
}

func TestServices_GatewayCallsObserved(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrg(t, ledger.Organization{ID: "org-1", Name: "Kirana Mart", Plan: "Pro"})
	ctx := context.Background()

	if _, err := env.ledger.AddAddon(ctx, "org-1", "extra-devices"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := env.invoice.CreateCustom(ctx, "org-1", 5000, time.Now(), ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	// One series per operation: sync_organization and submit_invoice.
	if got := testutil.CollectAndCount(env.metrics.GatewayDuration); got != 2 {
		t.Errorf("gateway duration series = %d, want 2", got)
	}
}
