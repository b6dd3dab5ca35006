package ws

import (
	"sync"

	"github.com/pliu/easyrent/internal/models"
)

// Registry maps a user to their live connection. A user has at most one
// registered connection; the latest registration wins.
type Registry struct {
	mu      sync.RWMutex
	clients map[models.ID]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[models.ID]*Client)}
}

// Register stores c for userID and returns the connection it replaced, if any.
func (r *Registry) Register(userID models.ID, c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.clients[userID]
	r.clients[userID] = c
	return prev
}

// Unregister removes userID only while it still maps to c, so a late
// disconnect of a replaced connection cannot evict its successor.
func (r *Registry) Unregister(userID models.ID, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clients[userID] != c {
		return false
	}
	delete(r.clients, userID)
	return true
}

func (r *Registry) Lookup(userID models.ID) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[userID]
	return c, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
