package chat

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicatePeer is returned when an identity is registered twice.
var ErrDuplicatePeer = errors.New("peer already registered")

// Peer is one registry entry as seen by a broadcaster.
type Peer struct {
	ID     string
	Outbox *Outbox
}

// Registry maps connection identities of one pool to their outboxes.
// Every Agent of the pool registers here, and every Agent of the opposite
// pool broadcasts from here.
type Registry struct {
	name  string
	peers map[string]*Outbox
	mu    sync.RWMutex
}

// NewRegistry creates an empty Registry for the named pool.
func NewRegistry(name string) *Registry {
	return &Registry{
		name:  name,
		peers: make(map[string]*Outbox),
	}
}

// Name returns the pool name.
func (r *Registry) Name() string {
	return r.name
}

// Register adds a peer to the registry.
func (r *Registry) Register(id string, out *Outbox) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[id]; ok {
		return fmt.Errorf("%w: %s in pool %s", ErrDuplicatePeer, id, r.name)
	}
	r.peers[id] = out
	return nil
}

// Unregister removes a peer from the registry and reports whether it was
// present.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.peers[id]
	delete(r.peers, id)
	return ok
}

// Snapshot copies the current entries. Callers iterate the copy while
// sending so the lock is never held across a push.
func (r *Registry) Snapshot() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peers := make([]Peer, 0, len(r.peers))
	for id, out := range r.peers {
		peers = append(peers, Peer{ID: id, Outbox: out})
	}
	return peers
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.peers[id]
	return ok
}

// Len returns number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
