package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/myanjobs/payments/internal/domain"
)

// Registry is the closed set of configured payment networks, bound to
// concrete adapters at startup. A provider missing configuration is
// simply absent; there are no partially-built entries.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	caps     map[string]*domain.ProviderCapability
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: map[string]Adapter{},
		caps:     map[string]*domain.ProviderCapability{},
	}
}

// Register binds an adapter under its lowercase name. Re-registering a
// name is a wiring bug and fails loudly.
func (r *Registry) Register(a Adapter, cap domain.ProviderCapability) error {
	name := strings.ToLower(a.Name())
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("Register: provider %q already registered", name)
	}
	cap.Name = name
	r.adapters[name] = a
	r.caps[name] = &cap
	r.order = append(r.order, name)
	sort.Strings(r.order)
	return nil
}

func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("Get: %q: %w", name, domain.ErrProviderNotConfigured)
	}
	return a, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Capabilities returns a snapshot of every provider's capability
// record, including transient health state.
func (r *Registry) Capabilities() []domain.ProviderCapability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ProviderCapability, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.caps[name])
	}
	return out
}

// SetHealth records the outcome of a health check. Only the transient
// fields change; the configured capability set never does.
func (r *Registry) SetHealth(name string, healthy bool, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cap, ok := r.caps[strings.ToLower(name)]; ok {
		cap.Healthy = healthy
		cap.LastCheckedAt = &at
	}
}

// Supports reports whether a configured provider advertises the
// operation.
func (r *Registry) Supports(name string, op domain.Operation) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cap, ok := r.caps[strings.ToLower(name)]
	return ok && cap.Supports(op)
}
