// Package tunnel implements the point-to-point transport: reliable, ordered
// streams between endpoints and their relay. The relay side is a Hub, a single
// transport.Link multiplexing every connected endpoint; endpoints dial in over
// a gRPC bidirectional stream or a websocket.
package tunnel

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/logging"
	"github.com/dmitrijs2005/linkledger/internal/transport"
)

const hubInbox = 1024

// Frame is the unit carried by every tunnel.
type Frame struct {
	From    string `cbor:"from"`
	To      string `cbor:"to"`
	Channel uint16 `cbor:"channel"`
	Payload []byte `cbor:"payload"`
}

// peer is one connected endpoint. send is serialized by the hub.
type peer interface {
	send(f *Frame) error
	close()
}

type peerEntry struct {
	mu sync.Mutex
	p  peer
}

// Hub is the relay side of the tunnel transport.
type Hub struct {
	self   transport.Address
	logger logging.Logger

	mu    sync.RWMutex
	peers map[transport.Address]*peerEntry

	inbox chan transport.Message
	done  chan struct{}
	once  sync.Once
}

// NewHub creates a hub reachable as self.
func NewHub(self transport.Address, logger logging.Logger) *Hub {
	return &Hub{
		self:   self,
		logger: logger.With("module", "tunnel_hub"),
		peers:  make(map[transport.Address]*peerEntry),
		inbox:  make(chan transport.Message, hubInbox),
		done:   make(chan struct{}),
	}
}

func (h *Hub) LocalAddress() transport.Address { return h.self }
func (h *Hub) Class() transport.Class          { return transport.ClassPointToPoint }

// Send writes payload to the endpoint at to.
func (h *Hub) Send(ctx context.Context, to transport.Address, channel uint16, payload []byte) error {
	select {
	case <-h.done:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	h.mu.RLock()
	e, ok := h.peers[to]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", transport.ErrUnknownPeer, to)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.p.send(&Frame{From: string(h.self), To: string(to), Channel: channel, Payload: payload}); err != nil {
		return fmt.Errorf("send to %q: %w", to, err)
	}
	return nil
}

func (h *Hub) Receive(ctx context.Context, timeout time.Duration) (transport.Message, error) {
	return transport.Wait(ctx, h.inbox, h.done, timeout)
}

// Close disconnects every peer.
func (h *Hub) Close() error {
	h.once.Do(func() {
		close(h.done)
		h.mu.Lock()
		for addr, e := range h.peers {
			e.p.close()
			delete(h.peers, addr)
		}
		h.mu.Unlock()
	})
	return nil
}

// Peers lists the connected endpoint addresses.
func (h *Hub) Peers() []transport.Address {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]transport.Address, 0, len(h.peers))
	for addr := range h.peers {
		out = append(out, addr)
	}
	return out
}

func (h *Hub) attach(addr transport.Address, p peer) error {
	select {
	case <-h.done:
		return transport.ErrClosed
	default:
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, dup := h.peers[addr]; dup {
		return fmt.Errorf("endpoint %q is already connected", addr)
	}
	h.peers[addr] = &peerEntry{p: p}
	h.logger.Info(context.Background(), "endpoint connected", "address", string(addr))
	return nil
}

func (h *Hub) detach(addr transport.Address, p peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.peers[addr]; ok && e.p == p {
		delete(h.peers, addr)
		h.logger.Info(context.Background(), "endpoint disconnected", "address", string(addr))
	}
}

// deliver queues a frame received from addr. The sender address always comes
// from the connection, never from the frame.
func (h *Hub) deliver(ctx context.Context, addr transport.Address, f *Frame) error {
	msg := transport.Message{
		From:    addr,
		To:      h.self,
		Channel: f.Channel,
		Class:   transport.ClassPointToPoint,
		Payload: f.Payload,
	}
	select {
	case h.inbox <- msg:
		return nil
	case <-h.done:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ValidAddress reports whether addr may be used as an endpoint address.
func ValidAddress(addr string) bool {
	if addr == "" || len(addr) > 128 || addr == string(transport.Broadcast) {
		return false
	}
	return !strings.ContainsAny(addr, " \t\r\n")
}
