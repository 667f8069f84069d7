package transport

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const memoryInbox = 256

// Medium is an in-process network with one broadcast domain and any number
// of point-to-point hubs. Broadcast delivery is lossy (full inboxes and the
// Drop hook discard frames) and echoes back to the sender like a radio does.
// Point-to-point delivery is ordered and blocking.
type Medium struct {
	mu   sync.Mutex
	air  map[Address]*memoryLink
	hubs map[Address]*memoryLink

	// Drop, when set, is consulted for every broadcast-class frame; returning
	// true loses the frame.
	Drop func(Message) bool
}

// NewMedium returns an empty medium.
func NewMedium() *Medium {
	return &Medium{
		air:  make(map[Address]*memoryLink),
		hubs: make(map[Address]*memoryLink),
	}
}

// JoinBroadcast attaches a node to the broadcast domain.
func (m *Medium) JoinBroadcast(addr Address) (Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.air[addr]; ok {
		return nil, fmt.Errorf("broadcast address %q already in use", addr)
	}
	l := newMemoryLink(m, addr, ClassBroadcast)
	m.air[addr] = l
	return l, nil
}

// Hub creates the relay side of a point-to-point network.
func (m *Medium) Hub(addr Address) (Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hubs[addr]; ok {
		return nil, fmt.Errorf("hub %q already exists", addr)
	}
	l := newMemoryLink(m, addr, ClassPointToPoint)
	l.peers = make(map[Address]*memoryLink)
	m.hubs[addr] = l
	return l, nil
}

// Dial connects a point-to-point endpoint to an existing hub.
func (m *Medium) Dial(self, hub Address) (Link, error) {
	m.mu.Lock()
	h, ok := m.hubs[hub]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: hub %q", ErrUnknownPeer, hub)
	}

	l := newMemoryLink(m, self, ClassPointToPoint)
	l.hub = h

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, dup := h.peers[self]; dup {
		return nil, fmt.Errorf("endpoint %q already connected to %q", self, hub)
	}
	h.peers[self] = l
	return l, nil
}

type memoryLink struct {
	medium *Medium
	addr   Address
	class  Class
	inbox  chan Message
	done   chan struct{}
	once   sync.Once

	mu    sync.Mutex
	hub   *memoryLink
	peers map[Address]*memoryLink
}

func newMemoryLink(m *Medium, addr Address, class Class) *memoryLink {
	return &memoryLink{
		medium: m,
		addr:   addr,
		class:  class,
		inbox:  make(chan Message, memoryInbox),
		done:   make(chan struct{}),
	}
}

func (l *memoryLink) LocalAddress() Address { return l.addr }
func (l *memoryLink) Class() Class          { return l.class }

func (l *memoryLink) Send(ctx context.Context, to Address, channel uint16, payload []byte) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}

	msg := Message{From: l.addr, To: to, Channel: channel, Class: l.class, Payload: append([]byte(nil), payload...)}

	if l.class == ClassBroadcast {
		l.medium.broadcast(msg)
		return nil
	}

	var target *memoryLink
	if l.hub != nil {
		if to != l.hub.addr {
			return fmt.Errorf("%w: %q", ErrUnknownPeer, to)
		}
		target = l.hub
	} else {
		l.mu.Lock()
		target = l.peers[to]
		l.mu.Unlock()
		if target == nil {
			return fmt.Errorf("%w: %q", ErrUnknownPeer, to)
		}
	}

	select {
	case target.inbox <- msg:
		return nil
	case <-target.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Medium) broadcast(msg Message) {
	m.mu.Lock()
	drop := m.Drop
	targets := make([]*memoryLink, 0, len(m.air))
	for addr, l := range m.air {
		if msg.To == Broadcast || addr == msg.To || addr == msg.From {
			targets = append(targets, l)
		}
	}
	m.mu.Unlock()

	for _, l := range targets {
		if drop != nil && drop(msg) {
			continue
		}
		select {
		case l.inbox <- msg:
		default:
		}
	}
}

func (l *memoryLink) Receive(ctx context.Context, timeout time.Duration) (Message, error) {
	return Wait(ctx, l.inbox, l.done, timeout)
}

func (l *memoryLink) Close() error {
	l.once.Do(func() {
		close(l.done)

		l.medium.mu.Lock()
		if l.class == ClassBroadcast {
			if l.medium.air[l.addr] == l {
				delete(l.medium.air, l.addr)
			}
		} else if l.hub == nil {
			if l.medium.hubs[l.addr] == l {
				delete(l.medium.hubs, l.addr)
			}
		}
		l.medium.mu.Unlock()

		if l.hub != nil {
			l.hub.mu.Lock()
			if l.hub.peers[l.addr] == l {
				delete(l.hub.peers, l.addr)
			}
			l.hub.mu.Unlock()
		}
	})
	return nil
}
