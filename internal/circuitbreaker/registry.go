package circuitbreaker

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Defaults are applied to breakers without an override.
	Defaults Config
	// Overrides maps a dependency name to its own thresholds.
	Overrides map[string]Config
	// Logger receives state transitions. Default: slog.Default()
	Logger *slog.Logger
	// Now is injectable for testing. Default: time.Now
	Now func() time.Time
}

// Registry holds one independent breaker per dependency name. Breakers are
// created lazily on first use and live as long as the registry.
type Registry struct {
	opts     RegistryOptions
	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	opts.Defaults = opts.Defaults.withDefaults()
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		opts:     opts,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for name, creating it if needed.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	cfg := r.opts.Defaults
	if o, ok := r.opts.Overrides[name]; ok {
		cfg = o
	}
	b := newBreaker(name, cfg, r.opts.Now, r.opts.Logger)
	r.breakers[name] = b
	return b
}

// Reset closes the named breaker. It reports false if no such breaker exists.
func (r *Registry) Reset(name string) bool {
	r.mu.Lock()
	b, ok := r.breakers[name]
	r.mu.Unlock()
	if ok {
		b.Reset()
	}
	return ok
}

// ResetAll closes every breaker.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	list := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		list = append(list, b)
	}
	r.mu.Unlock()

	for _, b := range list {
		b.Reset()
	}
}

// Snapshot returns stats for every known breaker, sorted by name.
func (r *Registry) Snapshot() []Stats {
	r.mu.Lock()
	list := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		list = append(list, b)
	}
	r.mu.Unlock()

	out := make([]Stats, 0, len(list))
	for _, b := range list {
		out = append(out, b.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
