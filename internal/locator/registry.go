// Package locator tracks the last reported position of named entities and a
// short history of earlier positions.
//
// Records are independent and last write wins; the mutex only keeps the map
// memory-safe.
package locator

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/clock"
	"github.com/dmitrijs2005/linkledger/internal/common"
)

// DefaultHistoryLength is the ring size used when none is configured.
const DefaultHistoryLength = 32

// DefaultDimension is used when an update names none.
const DefaultDimension = "overworld"

var errNonFinite = errors.New("coordinates must be finite")

// Position is a point in one dimension's coordinate space.
type Position struct {
	X         float64 `cbor:"x"`
	Y         float64 `cbor:"y"`
	Z         float64 `cbor:"z"`
	Dimension string  `cbor:"dimension"`
}

func (p Position) finite() bool {
	for _, v := range [...]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Distance is Euclidean. It is only meaningful within one dimension.
func (p Position) Distance(o Position) float64 {
	dx, dy, dz := p.X-o.X, p.Y-o.Y, p.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Sample is one recorded position.
type Sample struct {
	Position
	Reporter  string    `cbor:"reporter,omitempty"`
	UpdatedAt time.Time `cbor:"updated_at"`
}

// Entity is the current view of one entity.
type Entity struct {
	ID string `cbor:"id"`
	Sample
}

// Match is one FindNearby result.
type Match struct {
	Entity
	Distance float64 `cbor:"distance"`
}

type record struct {
	current Sample
	history *ring
}

type Registry struct {
	clock      clock.Clock
	historyLen int

	mu       sync.RWMutex
	entities map[string]*record
}

func NewRegistry(clk clock.Clock, historyLen int) *Registry {
	if historyLen <= 0 {
		historyLen = DefaultHistoryLength
	}
	return &Registry{
		clock:      clk,
		historyLen: historyLen,
		entities:   make(map[string]*record),
	}
}

// Update records a new position for id.
func (r *Registry) Update(id string, pos Position, reporter string) error {
	if id == "" {
		return common.NewError(common.CodeInvalidRequest, "entity id is required")
	}
	if !pos.finite() {
		return common.NewError(common.CodeInvalidRequest, errNonFinite.Error())
	}
	if pos.Dimension == "" {
		pos.Dimension = DefaultDimension
	}

	s := Sample{Position: pos, Reporter: reporter, UpdatedAt: r.clock.Now().UTC()}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.entities[id]
	if !ok {
		rec = &record{history: newRing(r.historyLen)}
		r.entities[id] = rec
	}
	rec.current = s
	rec.history.push(s)
	return nil
}

// Get returns the current position of id.
func (r *Registry) Get(id string) (Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.entities[id]
	if !ok {
		return Entity{}, common.ErrEntityNotFound
	}
	return Entity{ID: id, Sample: rec.current}, nil
}

// FindNearby returns entities in center's dimension within radius, nearest
// first with ties broken by id. limit <= 0 means no limit.
func (r *Registry) FindNearby(center Position, radius float64, limit int) ([]Match, error) {
	if !center.finite() {
		return nil, common.NewError(common.CodeInvalidRequest, errNonFinite.Error())
	}
	if math.IsNaN(radius) || radius <= 0 {
		return nil, common.NewError(common.CodeInvalidRequest, "radius must be positive")
	}
	if center.Dimension == "" {
		center.Dimension = DefaultDimension
	}

	r.mu.RLock()
	var out []Match
	for id, rec := range r.entities {
		if rec.current.Dimension != center.Dimension {
			continue
		}
		d := center.Distance(rec.current.Position)
		if d <= radius {
			out = append(out, Match{Entity: Entity{ID: id, Sample: rec.current}, Distance: d})
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// List returns every entity sorted by id.
func (r *Registry) List() []Entity {
	r.mu.RLock()
	out := make([]Entity, 0, len(r.entities))
	for id, rec := range r.entities {
		out = append(out, Entity{ID: id, Sample: rec.current})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// History returns up to limit samples for id, oldest first. limit <= 0
// returns the whole ring.
func (r *Registry) History(id string, limit int) ([]Sample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.entities[id]
	if !ok {
		return nil, common.ErrEntityNotFound
	}
	return rec.history.last(limit), nil
}

// Remove deletes id.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[id]; !ok {
		return common.ErrEntityNotFound
	}
	delete(r.entities, id)
	return nil
}

// Sweep removes entities not updated within ttl and returns their ids.
func (r *Registry) Sweep(ttl time.Duration) []string {
	if ttl <= 0 {
		return nil
	}
	cutoff := r.clock.Now().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for id, rec := range r.entities {
		if rec.current.UpdatedAt.Before(cutoff) {
			delete(r.entities, id)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	return removed
}
