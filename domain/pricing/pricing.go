// Package pricing provides the pure billing calculators: add-on subtotals,
// organization totals, and per-organization paid/pending aggregates.
package pricing

import (
	"sort"

	"github.com/tillstack/tillstack/domain/catalog"
	"github.com/tillstack/tillstack/domain/invoice"
	"github.com/tillstack/tillstack/domain/ledger"
)

// AddonSubtotal sums resolved unit price times quantity over a ledger.
// Resolution is catalog-first with snapshot fallback, then zero.
// This is a PURE function.
func AddonSubtotal(addons []catalog.Addon, entries []ledger.Entry) int64 {
	var total int64
	for _, e := range entries {
		r := catalog.ResolveAddon(addons, e.AddonID, e.Snapshot)
		total += r.Price * e.Quantity
	}
	return total
}

// PlanPrice resolves the organization's plan price, catalog-first. When the
// plan is missing from the live catalog the legacy base price applies; the
// two sources are never combined.
// This is a PURE function.
func PlanPrice(plans []catalog.Plan, org ledger.Organization) int64 {
	if p, ok := catalog.FindPlan(plans, org.Plan); ok {
		return p.Price
	}
	return org.BasePrice
}

// OrganizationTotal is the next billing total: resolved plan price plus the
// add-on subtotal.
// This is a PURE function.
func OrganizationTotal(plans []catalog.Plan, addons []catalog.Addon, org ledger.Organization) int64 {
	return PlanPrice(plans, org) + AddonSubtotal(addons, org.Addons)
}

// Totals is a paid/pending rollup over a set of invoices. Every non-paid
// status (pending, overdue, upcoming) counts toward TotalPending and
// UnpaidCount.
type Totals struct {
	TotalPaid    int64
	TotalPending int64
	UnpaidCount  int
}

// Aggregate rolls up a flat invoice list into paid/pending totals.
// This is a PURE function.
func Aggregate(invoices []invoice.Invoice) Totals {
	var t Totals
	for _, inv := range invoices {
		if inv.IsPaid() {
			t.TotalPaid += inv.Amount
		} else {
			t.TotalPending += inv.Amount
			t.UnpaidCount++
		}
	}
	return t
}

// OrganizationTotals is the per-organization rollup used by dashboard and
// ledger views.
type OrganizationTotals struct {
	OrganizationID   string
	OrganizationName string
	Totals
}

// GroupByOrganization groups a flat invoice list by organization and sorts
// the groups by TotalPending descending, so the organizations owing the most
// surface first. Input order is irrelevant; ties may appear in either order.
// This is a PURE function.
func GroupByOrganization(invoices []invoice.Invoice) []OrganizationTotals {
	index := make(map[string]int)
	var groups []OrganizationTotals

	for _, inv := range invoices {
		i, ok := index[inv.OrganizationID]
		if !ok {
			i = len(groups)
			index[inv.OrganizationID] = i
			groups = append(groups, OrganizationTotals{
				OrganizationID:   inv.OrganizationID,
				OrganizationName: inv.OrganizationName,
			})
		}

		if inv.IsPaid() {
			groups[i].TotalPaid += inv.Amount
		} else {
			groups[i].TotalPending += inv.Amount
			groups[i].UnpaidCount++
		}
	}

	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].TotalPending > groups[b].TotalPending
	})
	return groups
}
