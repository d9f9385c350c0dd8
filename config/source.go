package config

import "sync/atomic"

// Source yields the current configuration. Request-path readers take a fresh
// snapshot per call; reload-aware implementations swap the snapshot instead
// of mutating it in place, so a reload never races a concurrent reader.
type Source interface {
	Get() *Config
}

// AtomicSource holds the configuration behind an atomic pointer. Store swaps
// the whole snapshot; readers keep whichever snapshot they loaded.
type AtomicSource struct {
	ptr atomic.Pointer[Config]
}

// NewAtomicSource creates a source holding the given configuration.
func NewAtomicSource(cfg *Config) *AtomicSource {
	s := &AtomicSource{}
	s.ptr.Store(cfg)
	return s
}

// Get returns the current configuration snapshot.
func (s *AtomicSource) Get() *Config {
	return s.ptr.Load()
}

// Store replaces the configuration snapshot.
func (s *AtomicSource) Store(cfg *Config) {
	s.ptr.Store(cfg)
}

// Ensure interface compliance.
var (
	_ Source = (*AtomicSource)(nil)
	_ Source = (*Holder)(nil)
)
