package relay

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/transport"
	"golang.org/x/time/rate"
)

// limiters keeps one token bucket per endpoint. A zero limit disables
// limiting.
type limiters struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[transport.Address]*rate.Limiter
}

func newLimiters(limit rate.Limit, burst int) *limiters {
	if burst <= 0 {
		burst = 1
	}
	return &limiters{limit: limit, burst: burst, buckets: make(map[transport.Address]*rate.Limiter)}
}

func (l *limiters) allow(addr transport.Address, now time.Time) bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	b, ok := l.buckets[addr]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[addr] = b
	}
	l.mu.Unlock()
	return b.AllowN(now, 1)
}

func (l *limiters) forget(addr transport.Address) {
	l.mu.Lock()
	delete(l.buckets, addr)
	l.mu.Unlock()
}
