package provider

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Iron-Ham/montage/internal/errors"
)

// Registry holds named adapters and the ordered fallback chain configured
// for each capability. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	chains   map[Capability][]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		chains:   make(map[Capability][]string),
	}
}

// Register adds an adapter under its ID.
func (r *Registry) Register(a Adapter) error {
	if a == nil || a.ID() == "" {
		return errors.NewConfigurationError("adapter must have an id", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.adapters[a.ID()]; dup {
		return errors.NewConfigurationError(fmt.Sprintf("adapter %q registered twice", a.ID()), nil)
	}
	r.adapters[a.ID()] = a
	return nil
}

// SetChain configures the fallback chain for a capability. Every name must
// already be registered. An empty chain removes the capability.
func (r *Registry) SetChain(c Capability, names ...string) error {
	if !c.Valid() {
		return errors.NewConfigurationError(fmt.Sprintf("unknown capability %q", c), nil).
			WithCapability(string(c))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range names {
		if _, ok := r.adapters[name]; !ok {
			return errors.NewConfigurationError(fmt.Sprintf("chain names unregistered adapter %q", name), nil).
				WithCapability(string(c)).WithKey("providers.chains." + string(c))
		}
	}
	if len(names) == 0 {
		delete(r.chains, c)
		return nil
	}
	r.chains[c] = append([]string(nil), names...)
	return nil
}

// Chain returns the adapters configured for a capability, in fallback order.
// A capability without a chain is a configuration error wrapping
// errors.ErrNoProvider.
func (r *Registry) Chain(c Capability) ([]Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.chains[c]
	if len(names) == 0 {
		return nil, errors.NewConfigurationError("no provider registered for capability", errors.ErrNoProvider).
			WithCapability(string(c)).WithKey("providers.chains." + string(c))
	}
	out := make([]Adapter, 0, len(names))
	for _, name := range names {
		out = append(out, r.adapters[name])
	}
	return out, nil
}

// Has reports whether a capability has a non-empty chain.
func (r *Registry) Has(c Capability) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chains[c]) > 0
}

// Adapter looks an adapter up by ID.
func (r *Registry) Adapter(id string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// Describe renders the chains as "text: a > b; image: c".
func (r *Registry) Describe() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var parts []string
	for _, c := range Capabilities() {
		if names := r.chains[c]; len(names) > 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", c, strings.Join(names, " > ")))
		}
	}
	return strings.Join(parts, "; ")
}
