// Package ledger provides the per-organization add-on quantity ledger and its
// pure transition functions.
package ledger

import (
	"errors"
	"time"

	"github.com/tillstack/tillstack/domain/catalog"
)

// ErrNoEntry is returned when an operation requires an existing ledger entry.
var ErrNoEntry = errors.New("ledger: organization has no such add-on")

// Entry is one subscribed add-on for an organization. Quantity is always at
// least 1: decrementing a quantity of 1 removes the entry, it is never stored
// as 0. Snapshot is the denormalized name/price copy taken at attach time.
type Entry struct {
	AddonID   string
	Quantity  int64
	AddedDate time.Time
	Snapshot  *catalog.Snapshot
}

// Organization is a tenant of the platform. Plan names a catalog plan;
// BasePrice is the legacy fallback used only when that plan is missing from
// the live catalog. The two are never trusted simultaneously.
type Organization struct {
	ID        string
	Name      string
	Plan      string
	BasePrice int64
	Addons    []Entry
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChangeKind classifies the outcome of a ledger transition.
type ChangeKind string

const (
	ChangeNone        ChangeKind = "none"
	ChangeAdded       ChangeKind = "added"
	ChangeIncremented ChangeKind = "incremented"
	ChangeDecremented ChangeKind = "decremented"
	ChangeRemoved     ChangeKind = "removed"
)

// Change describes what a transition did, for notifications and rendering.
// MembershipChanged is true for transitions that alter which add-ons the
// organization holds (add, remove, decrement-to-zero).
type Change struct {
	Kind     ChangeKind
	AddonID  string
	Name     string
	Quantity int64 // quantity after the transition; 0 when removed
}

// MembershipChanged reports whether the change altered ledger membership.
func (c Change) MembershipChanged() bool {
	return c.Kind == ChangeAdded || c.Kind == ChangeRemoved
}

// Find returns the entry for an add-on id.
// This is a PURE function.
func Find(entries []Entry, addonID string) (Entry, bool) {
	for _, e := range entries {
		if e.AddonID == addonID {
			return e, true
		}
	}
	return Entry{}, false
}

// Add attaches an add-on with quantity 1, snapshotting its catalog name and
// price at insertion time. Adding an add-on that is already present is a
// no-op: the existing entry's quantity and date are untouched.
// This is a PURE function.
func Add(entries []Entry, addonID string, resolved catalog.Resolved, today time.Time) ([]Entry, Change) {
	if _, ok := Find(entries, addonID); ok {
		return entries, Change{Kind: ChangeNone, AddonID: addonID}
	}

	entry := Entry{
		AddonID:   addonID,
		Quantity:  1,
		AddedDate: today,
		Snapshot:  &catalog.Snapshot{Name: resolved.Name, Price: resolved.Price},
	}

	out := make([]Entry, 0, len(entries)+1)
	out = append(out, entries...)
	out = append(out, entry)

	return out, Change{Kind: ChangeAdded, AddonID: addonID, Name: resolved.Name, Quantity: 1}
}

// Increment raises an existing entry's quantity by one. No upper bound is
// enforced at this layer.
// This is a PURE function.
func Increment(entries []Entry, addonID string) ([]Entry, Change, error) {
	out := make([]Entry, len(entries))
	copy(out, entries)

	for i := range out {
		if out[i].AddonID == addonID {
			out[i].Quantity++
			return out, Change{
				Kind:     ChangeIncremented,
				AddonID:  addonID,
				Name:     entryName(out[i]),
				Quantity: out[i].Quantity,
			}, nil
		}
	}
	return entries, Change{Kind: ChangeNone, AddonID: addonID}, ErrNoEntry
}

// Decrement lowers an existing entry's quantity by one. Decrementing a
// quantity of 1 removes the entry entirely; the ledger never holds a
// quantity of 0.
// This is a PURE function.
func Decrement(entries []Entry, addonID string) ([]Entry, Change, error) {
	e, ok := Find(entries, addonID)
	if !ok {
		return entries, Change{Kind: ChangeNone, AddonID: addonID}, ErrNoEntry
	}

	if e.Quantity <= 1 {
		out, _ := Remove(entries, addonID)
		return out, Change{Kind: ChangeRemoved, AddonID: addonID, Name: entryName(e)}, nil
	}

	out := make([]Entry, len(entries))
	copy(out, entries)
	for i := range out {
		if out[i].AddonID == addonID {
			out[i].Quantity--
			return out, Change{
				Kind:     ChangeDecremented,
				AddonID:  addonID,
				Name:     entryName(out[i]),
				Quantity: out[i].Quantity,
			}, nil
		}
	}
	return entries, Change{Kind: ChangeNone, AddonID: addonID}, ErrNoEntry
}

// Remove deletes an entry regardless of quantity. Removing an absent add-on
// is a no-op.
// This is a PURE function.
func Remove(entries []Entry, addonID string) ([]Entry, Change) {
	e, ok := Find(entries, addonID)
	if !ok {
		return entries, Change{Kind: ChangeNone, AddonID: addonID}
	}

	out := make([]Entry, 0, len(entries)-1)
	for _, cur := range entries {
		if cur.AddonID != addonID {
			out = append(out, cur)
		}
	}
	return out, Change{Kind: ChangeRemoved, AddonID: addonID, Name: entryName(e)}
}

func entryName(e Entry) string {
	if e.Snapshot != nil {
		return e.Snapshot.Name
	}
	return e.AddonID
}
