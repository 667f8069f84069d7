// Package sessions tracks at most one live session per account.
//
// Policy is reject-on-relogin: while a valid session exists a second login
// fails with common.ErrAlreadyLoggedIn. Sessions expire after Timeout without
// renewal; expiry is detected lazily on access and by Sweep.
package sessions

import (
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/clock"
	"github.com/dmitrijs2005/linkledger/internal/common"
)

// DefaultTimeout is the idle timeout applied when none is configured.
const DefaultTimeout = 30 * time.Minute

// Origin is where the session's requests come from.
type Origin struct {
	// Address and Channel of the point-to-point endpoint.
	Address string
	Channel uint16
	// Via is the broadcast address of the relay, empty for direct clients.
	Via string
}

// Session is a copy of one session.
type Session struct {
	Account     string
	Origin      Origin
	CreatedAt   time.Time
	LastRenewal time.Time
}

type Manager struct {
	clock   clock.Clock
	timeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(clk clock.Clock, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		clock:    clk,
		timeout:  timeout,
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) expiredLocked(s *Session, now time.Time) bool {
	return now.Sub(s.LastRenewal) >= m.timeout
}

// Login opens a session for account. An expired session is replaced.
func (m *Manager) Login(account string, origin Origin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if s, ok := m.sessions[account]; ok && !m.expiredLocked(s, now) {
		return common.ErrAlreadyLoggedIn
	}
	m.sessions[account] = &Session{
		Account:     account,
		Origin:      origin,
		CreatedAt:   now,
		LastRenewal: now,
	}
	return nil
}

// Validate checks that account has a live session and renews it.
func (m *Manager) Validate(account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	s, ok := m.sessions[account]
	if !ok {
		return common.ErrSessionExpired
	}
	if m.expiredLocked(s, now) {
		delete(m.sessions, account)
		return common.ErrSessionExpired
	}
	s.LastRenewal = now
	return nil
}

// Get returns account's live session without renewing it.
func (m *Manager) Get(account string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[account]
	if !ok || m.expiredLocked(s, m.clock.Now()) {
		return Session{}, false
	}
	return *s, true
}

// Logout ends the session if any. It reports whether a session existed.
func (m *Manager) Logout(account string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[account]
	delete(m.sessions, account)
	return ok
}

// Invalidate ends the session on administrative action.
func (m *Manager) Invalidate(account string) bool {
	return m.Logout(account)
}

// Sweep removes expired sessions and returns their accounts sorted.
func (m *Manager) Sweep() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	var expired []string
	for name, s := range m.sessions {
		if m.expiredLocked(s, now) {
			delete(m.sessions, name)
			expired = append(expired, name)
		}
	}
	sort.Strings(expired)
	return expired
}

// Active returns the live sessions sorted by account.
func (m *Manager) Active() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if !m.expiredLocked(s, now) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out
}
