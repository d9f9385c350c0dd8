package invoice_test

import (
	"errors"
	"testing"
	"time"

	"github.com/tillstack/tillstack/domain/catalog"
	"github.com/tillstack/tillstack/domain/invoice"
	"github.com/tillstack/tillstack/domain/ledger"
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
	due = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
)

func proOrg() ledger.Organization {
	return ledger.Organization{
		ID:   "org_1",
		Name: "Kirana Mart",
		Plan: "Pro",
		Addons: []ledger.Entry{
			{AddonID: "extra-devices", Quantity: 3},
			{AddonID: "hardware-bundle", Quantity: 1},
		},
	}
}

func TestCompose_ProScenario(t *testing.T) {
	// Pro 35,000 + extra-devices 3x1,500 + hardware-bundle 1x6,000 = 45,500.
	inv, err := invoice.Compose(plans, addons, proOrg(), "Pro", due, "")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	if inv.Amount != 45500 {
		t.Errorf("Amount = %d, want 45500", inv.Amount)
	}
	if len(inv.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(inv.Items))
	}
	if inv.Items[0].Name != "[CORE] Pro Subscription" {
		t.Errorf("plan line = %q", inv.Items[0].Name)
	}
	if inv.Items[0].Quantity != 1 || inv.Items[0].Price != 35000 {
		t.Errorf("plan line qty/price = %d/%d", inv.Items[0].Quantity, inv.Items[0].Price)
	}
	if inv.Items[1].Name != "[HARDWARE] Extra Devices" {
		t.Errorf("addon line = %q", inv.Items[1].Name)
	}
	if inv.Type != invoice.TypePlan {
		t.Errorf("Type = %v, want plan", inv.Type)
	}
	if inv.Status != invoice.StatusPending {
		t.Errorf("Status = %v, want pending", inv.Status)
	}
	if !inv.Reconciles() {
		t.Error("composed invoice does not reconcile to its items")
	}
}

func TestCompose_UncategorizedAddonKeepsBareName(t *testing.T) {
	org := proOrg()
	org.Addons = []ledger.Entry{
		{AddonID: "retired", Quantity: 2, Snapshot: &catalog.Snapshot{Name: "Retired Module", Price: 900}},
	}

	inv, err := invoice.Compose(plans, addons, org, "Pro", due, "")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if inv.Items[1].Name != "Retired Module" {
		t.Errorf("line name = %q, want bare snapshot name", inv.Items[1].Name)
	}
	if inv.Items[1].Price != 900 {
		t.Errorf("line price = %d, want snapshot 900", inv.Items[1].Price)
	}
	if inv.Amount != 35000+2*900 {
		t.Errorf("Amount = %d", inv.Amount)
	}
}

func TestCompose_PlanMissingFromCatalogUsesBasePrice(t *testing.T) {
	org := proOrg()
	org.Plan = "Legacy"
	org.BasePrice = 28000
	org.Addons = nil

	inv, err := invoice.Compose(plans, addons, org, "Legacy", due, "")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if inv.Amount != 28000 {
		t.Errorf("Amount = %d, want legacy base price 28000", inv.Amount)
	}
	if inv.Items[0].Name != "[CORE] Legacy Subscription" {
		t.Errorf("plan line = %q", inv.Items[0].Name)
	}
}

func TestCompose_RequiresOrganization(t *testing.T) {
	_, err := invoice.Compose(plans, addons, ledger.Organization{}, "Pro", due, "")
	if !errors.Is(err, invoice.ErrNoOrganization) {
		t.Fatalf("err = %v, want ErrNoOrganization", err)
	}
}

func TestComposeCustom(t *testing.T) {
	inv, err := invoice.ComposeCustom("org_1", "Kirana Mart", 7500, due, "hardware repair")
	if err != nil {
		t.Fatalf("ComposeCustom: %v", err)
	}
	if inv.Type != invoice.TypeCustom {
		t.Errorf("Type = %v, want custom", inv.Type)
	}
	if len(inv.Items) != 0 {
		t.Errorf("custom invoice must not be itemized, got %d items", len(inv.Items))
	}
	if inv.Amount != 7500 || inv.Notes != "hardware repair" {
		t.Errorf("amount/notes = %d/%q", inv.Amount, inv.Notes)
	}
}

func TestComposeCustom_Validation(t *testing.T) {
	if _, err := invoice.ComposeCustom("org_1", "x", 0, due, ""); !errors.Is(err, invoice.ErrNonPositiveAmount) {
		t.Errorf("zero amount: err = %v", err)
	}
	if _, err := invoice.ComposeCustom("org_1", "x", -50, due, ""); !errors.Is(err, invoice.ErrNonPositiveAmount) {
		t.Errorf("negative amount: err = %v", err)
	}
	if _, err := invoice.ComposeCustom("", "x", 100, due, ""); !errors.Is(err, invoice.ErrNoOrganization) {
		t.Errorf("missing org: err = %v", err)
	}
}

func TestMarkPaid(t *testing.T) {
	now := time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC)
	inv := invoice.Invoice{Status: invoice.StatusPending}

	out, err := invoice.MarkPaid(inv, now)
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if out.Status != invoice.StatusPaid {
		t.Errorf("Status = %v", out.Status)
	}
	if out.PaidAt == nil || !out.PaidAt.Equal(now) {
		t.Errorf("PaidAt = %v, want %v", out.PaidAt, now)
	}

	if _, err := invoice.MarkPaid(out, now); !errors.Is(err, invoice.ErrBadTransition) {
		t.Errorf("paying a paid invoice: err = %v", err)
	}
}

func TestMarkPending_ConfirmationGate(t *testing.T) {
	now := time.Now()
	paid, _ := invoice.MarkPaid(invoice.Invoice{Status: invoice.StatusPending}, now)

	// Without confirmation the transition must not happen.
	out, err := invoice.MarkPending(paid, false)
	if !errors.Is(err, invoice.ErrConfirmationRequired) {
		t.Fatalf("err = %v, want ErrConfirmationRequired", err)
	}
	if out.Status != invoice.StatusPaid || out.PaidAt == nil {
		t.Error("unconfirmed reversal changed the invoice")
	}

	out, err = invoice.MarkPending(paid, true)
	if err != nil {
		t.Fatalf("confirmed MarkPending: %v", err)
	}
	if out.Status != invoice.StatusPending {
		t.Errorf("Status = %v, want pending", out.Status)
	}
	if out.PaidAt != nil {
		t.Error("PaidAt not cleared on reversal")
	}
}

func TestMarkPending_OnlyFromPaid(t *testing.T) {
	_, err := invoice.MarkPending(invoice.Invoice{Status: invoice.StatusPending}, true)
	if !errors.Is(err, invoice.ErrBadTransition) {
		t.Fatalf("err = %v, want ErrBadTransition", err)
	}
}

func TestMarkOverdue(t *testing.T) {
	inv := invoice.Invoice{Status: invoice.StatusPending, DueDate: due}

	if _, err := invoice.MarkOverdue(inv, due.Add(-time.Hour)); !errors.Is(err, invoice.ErrBadTransition) {
		t.Errorf("before due date: err = %v", err)
	}

	out, err := invoice.MarkOverdue(inv, due.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("MarkOverdue: %v", err)
	}
	if out.Status != invoice.StatusOverdue {
		t.Errorf("Status = %v", out.Status)
	}
}

func TestReconciles(t *testing.T) {
	inv := invoice.Invoice{
		Amount: 5000,
		Items: []invoice.LineItem{
			{Name: "a", Quantity: 2, Price: 1500},
			{Name: "b", Quantity: 1, Price: 2000},
		},
	}
	if !inv.Reconciles() {
		t.Error("expected reconciliation")
	}

	inv.Amount = 4999
	if inv.Reconciles() {
		t.Error("stale cached amount must not reconcile")
	}

	if !(invoice.Invoice{Amount: 123}).Reconciles() {
		t.Error("item-less invoice must trivially reconcile")
	}
}
