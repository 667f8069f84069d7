package rpc

import (
	"sort"
	"sync"
	"time"
)

// RelayInfo is what the server knows about one relay.
type RelayInfo struct {
	Name      string
	Address   string
	LastSeen  time.Time
	Endpoints map[string]int
}

// RelayTable records relays heard via relay_heartbeat and relay_ping.
type RelayTable struct {
	mu     sync.Mutex
	relays map[string]*RelayInfo
}

func NewRelayTable() *RelayTable {
	return &RelayTable{relays: make(map[string]*RelayInfo)}
}

// Seen creates or refreshes the entry for address. A nil endpoints map keeps
// the previous counts.
func (t *RelayTable) Seen(address, name string, endpoints map[string]int, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.relays[address]
	if !ok {
		r = &RelayInfo{Address: address}
		t.relays[address] = r
	}
	if name != "" {
		r.Name = name
	}
	if endpoints != nil {
		r.Endpoints = make(map[string]int, len(endpoints))
		for k, v := range endpoints {
			r.Endpoints[k] = v
		}
	}
	r.LastSeen = now
}

// Evict drops relays silent for ttl or longer and returns their addresses.
func (t *RelayTable) Evict(ttl time.Duration, now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var gone []string
	for addr, r := range t.relays {
		if now.Sub(r.LastSeen) >= ttl {
			delete(t.relays, addr)
			gone = append(gone, addr)
		}
	}
	sort.Strings(gone)
	return gone
}

// List returns copies sorted by address.
func (t *RelayTable) List() []RelayInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]RelayInfo, 0, len(t.relays))
	for _, r := range t.relays {
		c := *r
		c.Endpoints = make(map[string]int, len(r.Endpoints))
		for k, v := range r.Endpoints {
			c.Endpoints[k] = v
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
