package pricing_test

import (
	"testing"
	"time"

	"github.com/tillstack/tillstack/domain/catalog"
	"github.com/tillstack/tillstack/domain/invoice"
	"github.com/tillstack/tillstack/domain/ledger"
	"github.com/tillstack/tillstack/domain/pricing"
)

var (
	plans = []catalog.Plan{
		{ID: "starter", Name: "Starter", Price: 12000},
		{ID: "pro", Name: "Pro", Price: 35000},
	}
	addons = []catalog.Addon{
		{ID: "extra-devices", Name: "Extra Devices", Price: 1500, Category: "hardware"},
		{ID: "hardware-bundle", Name: "Hardware Bundle", Price: 6000, Category: "hardware"},
	}
)

func TestAddonSubtotal(t *testing.T) {
	entries := []ledger.Entry{
		{AddonID: "extra-devices", Quantity: 3},
		{AddonID: "hardware-bundle", Quantity: 1},
	}

	if got := pricing.AddonSubtotal(addons, entries); got != 3*1500+6000 {
		t.Errorf("AddonSubtotal = %d, want 10500", got)
	}
}

func TestAddonSubtotal_ResolutionTiers(t *testing.T) {
	entries := []ledger.Entry{
		// Catalog wins over a stale snapshot.
		{AddonID: "extra-devices", Quantity: 2, Snapshot: &catalog.Snapshot{Name: "Extra Devices", Price: 9999}},
		// Deleted from catalog: snapshot price applies.
		{AddonID: "retired", Quantity: 4, Snapshot: &catalog.Snapshot{Name: "Retired", Price: 250}},
		// No catalog entry, no snapshot: zero.
		{AddonID: "ghost", Quantity: 7},
	}

	want := int64(2*1500 + 4*250)
	if got := pricing.AddonSubtotal(addons, entries); got != want {
		t.Errorf("AddonSubtotal = %d, want %d", got, want)
	}
}

func TestAddonSubtotal_Empty(t *testing.T) {
	if got := pricing.AddonSubtotal(addons, nil); got != 0 {
		t.Errorf("AddonSubtotal(nil) = %d, want 0", got)
	}
}

func TestPlanPrice_CatalogFirst(t *testing.T) {
	org := ledger.Organization{Plan: "pro", BasePrice: 28000}
	if got := pricing.PlanPrice(plans, org); got != 35000 {
		t.Errorf("PlanPrice = %d, want live catalog price 35000", got)
	}
}

func TestPlanPrice_BasePriceFallback(t *testing.T) {
	org := ledger.Organization{Plan: "Legacy", BasePrice: 28000}
	if got := pricing.PlanPrice(plans, org); got != 28000 {
		t.Errorf("PlanPrice = %d, want legacy fallback 28000", got)
	}
}

func TestOrganizationTotal(t *testing.T) {
	org := ledger.Organization{
		ID:   "org_1",
		Plan: "Pro",
		Addons: []ledger.Entry{
			{AddonID: "extra-devices", Quantity: 3},
			{AddonID: "hardware-bundle", Quantity: 1},
		},
	}

	if got := pricing.OrganizationTotal(plans, addons, org); got != 45500 {
		t.Errorf("OrganizationTotal = %d, want 45500", got)
	}
}

func TestOrganizationTotal_MatchesComposedInvoice(t *testing.T) {
	// The composer's cached amount must reconcile with the calculator for
	// the same catalog and ledger snapshot.
	org := ledger.Organization{
		ID:   "org_1",
		Name: "Kirana Mart",
		Plan: "Pro",
		Addons: []ledger.Entry{
			{AddonID: "extra-devices", Quantity: 3},
			{AddonID: "hardware-bundle", Quantity: 1},
			{AddonID: "retired", Quantity: 2, Snapshot: &catalog.Snapshot{Name: "Retired", Price: 300}},
		},
	}

	inv, err := invoice.Compose(plans, addons, org, org.Plan, time.Now(), "")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if total := pricing.OrganizationTotal(plans, addons, org); inv.Amount != total {
		t.Errorf("composed amount %d != organization total %d", inv.Amount, total)
	}
}

func TestAggregate(t *testing.T) {
	invs := []invoice.Invoice{
		{Amount: 52000, Status: invoice.StatusPaid},
		{Amount: 99000, Status: invoice.StatusPending},
	}

	got := pricing.Aggregate(invs)
	if got.TotalPaid != 52000 {
		t.Errorf("TotalPaid = %d, want 52000", got.TotalPaid)
	}
	if got.TotalPending != 99000 {
		t.Errorf("TotalPending = %d, want 99000", got.TotalPending)
	}
	if got.UnpaidCount != 1 {
		t.Errorf("UnpaidCount = %d, want 1", got.UnpaidCount)
	}
}

func TestAggregate_PaidPlusPendingCoversEverything(t *testing.T) {
	invs := []invoice.Invoice{
		{Amount: 100, Status: invoice.StatusPaid},
		{Amount: 200, Status: invoice.StatusPending},
		{Amount: 300, Status: invoice.StatusOverdue},
		{Amount: 400, Status: invoice.StatusUpcoming},
	}

	got := pricing.Aggregate(invs)
	var sum int64
	for _, inv := range invs {
		sum += inv.Amount
	}
	if got.TotalPaid+got.TotalPending != sum {
		t.Errorf("paid %d + pending %d != total %d", got.TotalPaid, got.TotalPending, sum)
	}
	if got.UnpaidCount != 3 {
		t.Errorf("UnpaidCount = %d, want every non-paid status counted", got.UnpaidCount)
	}
}

func TestGroupByOrganization_SortedByPendingDesc(t *testing.T) {
	invs := []invoice.Invoice{
		{OrganizationID: "a", OrganizationName: "Alpha", Amount: 1000, Status: invoice.StatusPending},
		{OrganizationID: "b", OrganizationName: "Beta", Amount: 9000, Status: invoice.StatusPending},
		{OrganizationID: "a", OrganizationName: "Alpha", Amount: 5000, Status: invoice.StatusPaid},
		{OrganizationID: "c", OrganizationName: "Gamma", Amount: 4000, Status: invoice.StatusOverdue},
	}

	groups := pricing.GroupByOrganization(invs)
	if len(groups) != 3 {
		t.Fatalf("groups = %d, want 3", len(groups))
	}
	if groups[0].OrganizationID != "b" || groups[1].OrganizationID != "c" || groups[2].OrganizationID != "a" {
		t.Errorf("order = %s,%s,%s, want b,c,a", groups[0].OrganizationID, groups[1].OrganizationID, groups[2].OrganizationID)
	}
	if groups[2].TotalPaid != 5000 || groups[2].TotalPending != 1000 || groups[2].UnpaidCount != 1 {
		t.Errorf("alpha rollup = %+v", groups[2].Totals)
	}
}

func TestGroupByOrganization_InputOrderIrrelevant(t *testing.T) {
	invs := []invoice.Invoice{
		{OrganizationID: "a", Amount: 100, Status: invoice.StatusPending},
		{OrganizationID: "b", Amount: 700, Status: invoice.StatusPending},
		{OrganizationID: "a", Amount: 300, Status: invoice.StatusPending},
	}
	reversed := []invoice.Invoice{invs[2], invs[1], invs[0]}

	g1 := pricing.GroupByOrganization(invs)
	g2 := pricing.GroupByOrganization(reversed)

	if len(g1) != len(g2) {
		t.Fatalf("group counts differ: %d vs %d", len(g1), len(g2))
	}
	for i := range g1 {
		if g1[i].OrganizationID != g2[i].OrganizationID || g1[i].Totals != g2[i].Totals {
			t.Errorf("group %d differs: %+v vs %+v", i, g1[i], g2[i])
		}
	}
}
