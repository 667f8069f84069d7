package relay

import (
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/transport"
)

// Endpoint is one registered point-to-point endpoint.
type Endpoint struct {
	Address transport.Address
	// Name is the display name the endpoint announced, or its address.
	Name         string
	Kind         string
	RegisteredAt time.Time
	LastSeen     time.Time
}

// Registry holds the endpoints attached to this relay, keyed by transport
// address.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[transport.Address]*Endpoint
}

func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[transport.Address]*Endpoint)}
}

// Register creates or refreshes a registration. A known endpoint that
// registers again takes the new name and kind. It reports whether the
// endpoint was new.
func (r *Registry) Register(addr transport.Address, name, kind string, now time.Time) bool {
	if name == "" {
		name = string(addr)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.endpoints[addr]; ok {
		e.Name = name
		e.Kind = kind
		e.LastSeen = now
		return false
	}
	r.endpoints[addr] = &Endpoint{Address: addr, Name: name, Kind: kind, RegisteredAt: now, LastSeen: now}
	return true
}

// Touch refreshes addr. It reports whether addr is registered.
func (r *Registry) Touch(addr transport.Address, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.endpoints[addr]
	if ok {
		e.LastSeen = now
	}
	return ok
}

func (r *Registry) Remove(addr transport.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.endpoints[addr]
	delete(r.endpoints, addr)
	return ok
}

func (r *Registry) Get(addr transport.Address) (Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.endpoints[addr]
	if !ok {
		return Endpoint{}, false
	}
	return *e, true
}

// Counts returns the number of endpoints per kind.
func (r *Registry) Counts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int)
	for _, e := range r.endpoints {
		out[e.Kind]++
	}
	return out
}

// Matching returns the endpoints accepted by keep, sorted by address.
func (r *Registry) Matching(keep func(kind string) bool) []transport.Address {
	r.mu.RLock()
	var out []transport.Address
	for addr, e := range r.endpoints {
		if keep(e.Kind) {
			out = append(out, addr)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Evict removes endpoints not seen within ttl and returns them sorted.
func (r *Registry) Evict(ttl time.Duration, now time.Time) []transport.Address {
	if ttl <= 0 {
		return nil
	}
	r.mu.Lock()
	var out []transport.Address
	for addr, e := range r.endpoints {
		if now.Sub(e.LastSeen) >= ttl {
			delete(r.endpoints, addr)
			out = append(out, addr)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}
