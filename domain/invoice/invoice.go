// Package invoice provides invoice value types, the itemized invoice
// composer, and pure lifecycle transition functions.
package invoice

import (
	"errors"
	"strings"
	"time"

	"github.com/tillstack/tillstack/domain/catalog"
	"github.com/tillstack/tillstack/domain/ledger"
)

// Status represents the state of an invoice.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusOverdue  Status = "overdue"
	StatusUpcoming Status = "upcoming"
)

// Type identifies how an invoice was created. Custom invoices carry a
// caller-supplied amount and skip itemization; this is a distinct creation
// path, not a degenerate itemized invoice.
type Type string

const (
	TypePlan   Type = "plan"
	TypeAddon  Type = "addon"
	TypeCustom Type = "custom"
)

// CorePrefix tags the base subscription line on an itemized invoice.
// Modular lines are tagged with their upper-cased catalog category instead.
const CorePrefix = "[CORE]"

var (
	// ErrConfirmationRequired gates the destructive paid->pending reversal.
	ErrConfirmationRequired = errors.New("invoice: reverting to pending clears the payment timestamp and requires confirmation")

	// ErrBadTransition is returned for undefined status transitions.
	ErrBadTransition = errors.New("invoice: transition not allowed from current status")

	// ErrNonPositiveAmount rejects custom invoices without a real charge.
	ErrNonPositiveAmount = errors.New("invoice: amount must be positive")

	// ErrNoOrganization rejects composition without a target organization.
	ErrNoOrganization = errors.New("invoice: organization is required")
)

// LineItem is one row of an itemized invoice. Price is the unit price.
type LineItem struct {
	Name     string
	Quantity int64
	Price    int64 // unit price, integral currency units
}

// Amount returns quantity times unit price.
func (li LineItem) Amount() int64 {
	return li.Quantity * li.Price
}

// Invoice is a billing record (value type). Amount is a cached total; when
// Items is non-empty the breakdown is authoritative and must sum to Amount.
// After creation only Status, PaidAt and IsShared ever change.
type Invoice struct {
	ID               string
	OrganizationID   string
	OrganizationName string
	InvoiceNumber    string
	Amount           int64
	Status           Status
	Type             Type
	DueDate          time.Time
	PaidAt           *time.Time
	Items            []LineItem
	Notes            string
	IsShared         bool
	CreatedAt        time.Time
}

// IsPaid reports whether the invoice has been settled.
func (inv Invoice) IsPaid() bool {
	return inv.Status == StatusPaid
}

// ItemsTotal sums quantity times unit price over all line items.
// This is a PURE function.
func ItemsTotal(items []LineItem) int64 {
	var total int64
	for _, li := range items {
		total += li.Amount()
	}
	return total
}

// Reconciles reports whether the cached Amount agrees with the itemized
// breakdown. Invoices without items trivially reconcile.
func (inv Invoice) Reconciles() bool {
	if len(inv.Items) == 0 {
		return true
	}
	return ItemsTotal(inv.Items) == inv.Amount
}

// Compose builds an itemized invoice from a target plan and the
// organization's current ledger snapshot. The first line is always the plan
// line; each ledger entry contributes one line priced catalog-first with
// snapshot fallback. Amount is the sum over all lines and, for the
// organization's own plan, equals the organization total for the same
// catalog and ledger snapshot.
// This is a PURE function.
func Compose(plans []catalog.Plan, addons []catalog.Addon, org ledger.Organization, targetPlan string, dueDate time.Time, notes string) (Invoice, error) {
	if org.ID == "" {
		return Invoice{}, ErrNoOrganization
	}

	items := []LineItem{planLine(plans, org, targetPlan)}
	for _, e := range org.Addons {
		items = append(items, addonLine(addons, e))
	}

	return Invoice{
		OrganizationID:   org.ID,
		OrganizationName: org.Name,
		Amount:           ItemsTotal(items),
		Status:           StatusPending,
		Type:             TypePlan,
		DueDate:          dueDate,
		Items:            items,
		Notes:            notes,
	}, nil
}

// ComposeCustom builds a manual invoice with a caller-supplied amount and no
// line items.
// This is a PURE function.
func ComposeCustom(orgID, orgName string, amount int64, dueDate time.Time, notes string) (Invoice, error) {
	if orgID == "" {
		return Invoice{}, ErrNoOrganization
	}
	if amount <= 0 {
		return Invoice{}, ErrNonPositiveAmount
	}

	return Invoice{
		OrganizationID:   orgID,
		OrganizationName: orgName,
		Amount:           amount,
		Status:           StatusPending,
		Type:             TypeCustom,
		DueDate:          dueDate,
		Notes:            notes,
	}, nil
}

func planLine(plans []catalog.Plan, org ledger.Organization, targetPlan string) LineItem {
	name := targetPlan
	price := int64(0)

	if p, ok := catalog.FindPlan(plans, targetPlan); ok {
		name = p.Name
		price = p.Price
	} else if strings.EqualFold(targetPlan, org.Plan) {
		// Organization's own plan is missing from the catalog: the legacy
		// base price is the fallback tier.
		price = org.BasePrice
	}

	return LineItem{
		Name:     CorePrefix + " " + name + " Subscription",
		Quantity: 1,
		Price:    price,
	}
}

func addonLine(addons []catalog.Addon, e ledger.Entry) LineItem {
	r := catalog.ResolveAddon(addons, e.AddonID, e.Snapshot)

	name := r.Name
	if r.Category != "" {
		name = "[" + strings.ToUpper(r.Category) + "] " + r.Name
	}

	return LineItem{
		Name:     name,
		Quantity: e.Quantity,
		Price:    r.Price,
	}
}

// MarkPaid transitions a pending, overdue or upcoming invoice to paid,
// stamping PaidAt. No confirmation is required.
// This is a PURE function.
func MarkPaid(inv Invoice, now time.Time) (Invoice, error) {
	if inv.Status == StatusPaid {
		return inv, ErrBadTransition
	}
	inv.Status = StatusPaid
	paidAt := now
	inv.PaidAt = &paidAt
	return inv, nil
}

// MarkPending reverses a paid invoice back to pending, clearing PaidAt.
// The reversal is destructive and refused unless confirmed.
// This is a PURE function.
func MarkPending(inv Invoice, confirmed bool) (Invoice, error) {
	if inv.Status != StatusPaid {
		return inv, ErrBadTransition
	}
	if !confirmed {
		return inv, ErrConfirmationRequired
	}
	inv.Status = StatusPending
	inv.PaidAt = nil
	return inv, nil
}

// MarkOverdue transitions a pending invoice past its due date to overdue.
// This is time-based housekeeping, not a user action.
// This is a PURE function.
func MarkOverdue(inv Invoice, now time.Time) (Invoice, error) {
	if inv.Status != StatusPending {
		return inv, ErrBadTransition
	}
	if !now.After(inv.DueDate) {
		return inv, ErrBadTransition
	}
	inv.Status = StatusOverdue
	return inv, nil
}
