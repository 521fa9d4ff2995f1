// Package relay implements the stateless signaling server: the connection
// registry that maps marketplace identities to live WebSocket connections,
// and the room router that relays call signaling between exactly two
// participants. No call state is held here — only ephemeral memberships,
// rebuilt from scratch on restart.
package relay

import (
	"sync"

	"github.com/vetlink/vetcall/internal/signal"
)

// Registry binds participant identities to their live connections. An
// identity may be bound to several connections at once (multi-device), and a
// connection may assert several identities. Identity is asserted, not
// authenticated, on the join channels.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[*Client]signal.Role
	byConn map[*Client]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[*Client]signal.Role),
		byConn: make(map[*Client]map[string]struct{}),
	}
}

// Register binds c to the given identity and role.
func (r *Registry) Register(userID string, role signal.Role, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[*Client]signal.Role)
	}
	r.byUser[userID][c] = role

	if r.byConn[c] == nil {
		r.byConn[c] = make(map[string]struct{})
	}
	r.byConn[c][userID] = struct{}{}
}

// Unregister removes every binding held by c. Called on disconnect.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID := range r.byConn[c] {
		delete(r.byUser[userID], c)
		if len(r.byUser[userID]) == 0 {
			delete(r.byUser, userID)
		}
	}
	delete(r.byConn, c)
}

// Lookup returns every connection currently bound to the identity. Messages
// addressed to an identity are delivered to all of them.
func (r *Registry) Lookup(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Client, 0, len(r.byUser[userID]))
	for c := range r.byUser[userID] {
		conns = append(conns, c)
	}
	return conns
}
