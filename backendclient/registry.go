package backendclient

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps a provider id to its dialect Client, adapted from the
// teacher's llm.ProviderRegistry (same Register/Get/List/Len shape, keyed
// by provider id instead of provider name).
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewRegistry builds an empty client registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register associates a provider id with its dialect client.
func (r *Registry) Register(providerID string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[providerID] = c
}

// Get returns the client registered for providerID.
func (r *Registry) Get(providerID string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[providerID]
	return c, ok
}

// MustGet returns the client for providerID or an error if none is registered.
func (r *Registry) MustGet(providerID string) (Client, error) {
	c, ok := r.Get(providerID)
	if !ok {
		return nil, fmt.Errorf("backendclient: no client registered for provider %q", providerID)
	}
	return c, nil
}

// List returns all registered provider ids, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len reports how many providers are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
