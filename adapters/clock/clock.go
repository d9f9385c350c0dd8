// Package clock implements the Clock port: the wall clock for production and
// a hand-driven clock for deterministic tests.
package clock

import (
	"sync"
	"time"
)

// Real reads the wall clock.
type Real struct{}

// Now reports the wall-clock time.
func (Real) Now() time.Time {
	return time.Now()
}

// Fake is a clock whose time moves only when a test moves it. Ledger
// added-dates, payment timestamps and overdue sweeps all become
// reproducible against it.
type Fake struct {
	mu      sync.RWMutex
	current time.Time
}

// NewFake returns a fake clock frozen at t.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

// Now reports the clock's current frozen time.
func (f *Fake) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Set jumps the clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t
}

// Advance moves the clock forward by d, e.g. past an invoice due date.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}
