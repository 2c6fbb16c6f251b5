package breaker

import "sync"

// Registry holds one Breaker per named dependency. It is constructed once at
// startup and handed to callers by dependency injection; there is no package
// level singleton, so tests can build isolated registries.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	opts     []Option
}

// NewRegistry creates an empty registry. The given options are applied to
// every breaker the registry creates.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		opts:     opts,
	}
}

// Get returns the breaker for a dependency, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, r.opts...)
	r.breakers[name] = b
	return b
}

// Names returns the dependencies currently tracked.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	return names
}
