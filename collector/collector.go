// Package collector defines the external threat-feed collaborators the
// coordinator dispatches to, and a typed registry resolved at startup.
package collector

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Result is what a collection run reports back to the coordinator. The
// Success flag feeds the authentication attempt log.
type Result struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	CollectedCount int    `json:"collected_count,omitempty"`
}

// Collector authenticates against one external source and collects its feed.
type Collector interface {
	Name() string
	Collect(ctx context.Context) Result
}

// Registry maps source names to collectors. Populated once at startup, then
// read-only.
type Registry struct {
	mu         sync.RWMutex
	collectors map[string]Collector
}

func NewRegistry() *Registry {
	return &Registry{collectors: map[string]Collector{}}
}

func (r *Registry) Register(c Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := c.Name()
	if _, exists := r.collectors[name]; exists {
		return fmt.Errorf("collector already registered: %s", name)
	}
	r.collectors[name] = c
	return nil
}

func (r *Registry) Get(name string) (Collector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collectors[name]
	return c, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.collectors))
	for name := range r.collectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
