package transport

import (
	"sort"
	"strings"
	"sync"

	"github.com/glorpus-work/bagfetch/pkg/errors"
)

// Registry maps URL schemes to transport factories. Schemes are matched
// case-insensitively. Registrations are append-only and stop once the
// registry is frozen.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	frozen    bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds scheme to factory.
func (r *Registry) Register(scheme string, factory Factory) error {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if scheme == "" {
		return errors.ErrEmptyScheme
	}
	if factory == nil {
		return errors.Wrapf(errors.ErrNilFactory, "scheme %s", scheme)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return errors.Wrapf(errors.ErrRegistryFrozen, "cannot register %s", scheme)
	}
	if _, ok := r.factories[scheme]; ok {
		return errors.ErrSchemeRegisteredWithName(scheme)
	}
	r.factories[scheme] = factory
	return nil
}

// Resolve returns the factory for scheme or an UnsupportedScheme error.
func (r *Registry) Resolve(scheme string) (Factory, error) {
	scheme = strings.ToLower(scheme)
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[scheme]
	if !ok {
		return nil, errors.UnsupportedScheme(scheme)
	}
	return f, nil
}

// Freeze rejects further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Schemes lists the registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for s := range r.factories {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
