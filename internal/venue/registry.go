// Package venue holds the registry of exchange client variants. Venue
// identity is resolved by name so the orchestrator stays polymorphic over
// which platforms are configured.
package venue

import (
	"fmt"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Registry maps venue names to their exchange clients.
type Registry struct {
	clients map[domain.Venue]domain.ExchangeClient
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[domain.Venue]domain.ExchangeClient)}
}

// Register adds a client under its own name. Registering the same venue
// twice replaces the previous client.
func (r *Registry) Register(c domain.ExchangeClient) {
	r.clients[c.Name()] = c
}

// Client returns the client for v, or ErrUnknownVenue.
func (r *Registry) Client(v domain.Venue) (domain.ExchangeClient, error) {
	c, ok := r.clients[v]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownVenue, v)
	}
	return c, nil
}

// All returns every registered client.
func (r *Registry) All() []domain.ExchangeClient {
	out := make([]domain.ExchangeClient, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}
