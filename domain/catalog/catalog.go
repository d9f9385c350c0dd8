// Package catalog provides plan and add-on value types and pure resolution functions.
package catalog

import (
	"strings"
	"time"
)

// Interval is a billing interval.
type Interval string

const (
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// Plan represents a subscription tier (immutable value type).
// Edits replace the whole record through the plan store.
type Plan struct {
	ID        string
	Name      string
	Price     int64 // integral currency units
	Interval  Interval
	Features  []string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Addon represents a modular feature in the authoritative add-on catalog
// (value type). The catalog is the source of truth for pricing; an
// organization's stored add-on reference may go stale relative to it.
type Addon struct {
	ID          string
	Name        string
	Description string
	Price       int64 // integral currency units
	Interval    Interval
	Icon        string
	Category    string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Snapshot is the denormalized name/price copy taken when an add-on is
// attached to an organization. It is a fallback tier, never the primary
// source: it is consulted only when the catalog entry has been deleted.
type Snapshot struct {
	Name  string
	Price int64
}

// Resolved is the outcome of a catalog lookup.
type Resolved struct {
	Name     string
	Price    int64
	Interval Interval
	Category string
}

// Fallback names used when neither the catalog nor a snapshot can answer.
const (
	FallbackPlanName  = "No Plan"
	FallbackAddonName = "Custom Module"
)

// FindPlan finds a plan by name, case-insensitively.
// This is a PURE function.
func FindPlan(plans []Plan, name string) (Plan, bool) {
	for _, p := range plans {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Plan{}, false
}

// FindAddon finds an add-on by exact id.
// This is a PURE function.
func FindAddon(addons []Addon, id string) (Addon, bool) {
	for _, a := range addons {
		if a.ID == id {
			return a, true
		}
	}
	return Addon{}, false
}

// ResolvePlan resolves a plan name against the live catalog. A missing entry
// degrades to a zero price with the "No Plan" name; it never fails the caller.
// This is a PURE function.
func ResolvePlan(plans []Plan, name string) Resolved {
	if p, ok := FindPlan(plans, name); ok {
		return Resolved{Name: p.Name, Price: p.Price, Interval: p.Interval}
	}
	return Resolved{Name: FallbackPlanName, Price: 0, Interval: IntervalMonth}
}

// ResolveAddon resolves an add-on id against the live catalog, falling back
// to the snapshot taken at attach time, then to a zero-price "Custom Module".
// This is a PURE function.
func ResolveAddon(addons []Addon, id string, snapshot *Snapshot) Resolved {
	if a, ok := FindAddon(addons, id); ok {
		return Resolved{Name: a.Name, Price: a.Price, Interval: a.Interval, Category: a.Category}
	}
	if snapshot != nil {
		return Resolved{Name: snapshot.Name, Price: snapshot.Price, Interval: IntervalMonth}
	}
	return Resolved{Name: FallbackAddonName, Price: 0, Interval: IntervalMonth}
}
