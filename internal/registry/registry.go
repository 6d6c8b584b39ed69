package registry

import (
	"errors"
	"sync"

	"github.com/mossy-p/rendezvous/internal/models"
)

var ErrDuplicateIdentifier = errors.New("identifier already registered")

// Sender is the outbound half of an endpoint's control connection.
// Send must not block; it reports false when the message could not be
// queued. Alive reports whether the connection can still deliver.
type Sender interface {
	Send(msg models.SignalMessage) bool
	Alive() bool
}

// Endpoint is one registered participant. Peer holds the identifier of
// the endpoint it is currently connected to in a call, or "" when idle;
// it is mutated only by the call table driving transitions.
type Endpoint struct {
	Identifier string
	Conn       Sender
	Peer       string
}

// Registry maps identifiers to live endpoints. It is the single source
// of truth for who is online; all access is serialized internally.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	order     []string
}

func New() *Registry {
	return &Registry{
		endpoints: make(map[string]*Endpoint),
	}
}

// Register inserts a new endpoint. It fails with ErrDuplicateIdentifier
// if the identifier is already held by a live connection; a stale entry
// whose connection has died is replaced. The second return reports such a
// replacement, so the caller can tear down whatever state the dead
// connection left behind.
func (r *Registry) Register(identifier string, conn Sender) (*Endpoint, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	replaced := false
	if existing, ok := r.endpoints[identifier]; ok {
		if existing.Conn.Alive() {
			return nil, false, ErrDuplicateIdentifier
		}
		r.dropLocked(identifier)
		replaced = true
	}

	ep := &Endpoint{Identifier: identifier, Conn: conn}
	r.endpoints[identifier] = ep
	r.order = append(r.order, identifier)
	return ep, replaced, nil
}

// Lookup returns the endpoint for an identifier, or nil if not registered.
func (r *Registry) Lookup(identifier string) *Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.endpoints[identifier]
}

// Remove deletes an endpoint; calling it for an unknown identifier is a no-op.
func (r *Registry) Remove(identifier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropLocked(identifier)
}

// RemoveIf deletes the endpoint only while it still owns the given
// connection, and reports whether it did. A stale connection whose
// identifier was re-registered by a fresh one leaves the new entry alone.
func (r *Registry) RemoveIf(identifier string, conn Sender) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ep, ok := r.endpoints[identifier]
	if !ok || ep.Conn != conn {
		return false
	}
	r.dropLocked(identifier)
	return true
}

func (r *Registry) dropLocked(identifier string) {
	if _, ok := r.endpoints[identifier]; !ok {
		return
	}
	delete(r.endpoints, identifier)
	for i, id := range r.order {
		if id == identifier {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// SetPeer records the active-call peer for an identifier; pass "" to clear.
func (r *Registry) SetPeer(identifier, peer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ep, ok := r.endpoints[identifier]; ok {
		ep.Peer = peer
	}
}

// Peer returns the active-call peer recorded for an identifier.
func (r *Registry) Peer(identifier string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ep, ok := r.endpoints[identifier]; ok {
		return ep.Peer
	}
	return ""
}

// ListOthers returns all registered identifiers except the excluded one,
// in registration order.
func (r *Registry) ListOthers(excluding string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if id != excluding {
			out = append(out, id)
		}
	}
	return out
}

// List returns all registered identifiers in registration order.
func (r *Registry) List() []string {
	return r.ListOthers("")
}

// Send delivers a message to an identifier if it is online. It returns
// false when the identifier is unknown or its send buffer is full.
func (r *Registry) Send(identifier string, msg models.SignalMessage) bool {
	ep := r.Lookup(identifier)
	if ep == nil {
		return false
	}
	return ep.Conn.Send(msg)
}
