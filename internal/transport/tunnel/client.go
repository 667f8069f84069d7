package tunnel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/transport"
)

// frameConn is the endpoint side of a tunnel connection.
type frameConn interface {
	Send(f *Frame) error
	Recv(f *Frame) error
	Close() error
}

// ClientLink is the endpoint side of a tunnel; it can only talk to its hub.
type ClientLink struct {
	self transport.Address
	hub  transport.Address
	conn frameConn

	sendMu sync.Mutex
	inbox  chan transport.Message
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func newClientLink(self, hub transport.Address, conn frameConn) *ClientLink {
	l := &ClientLink{
		self:  self,
		hub:   hub,
		conn:  conn,
		inbox: make(chan transport.Message, hubInbox),
		done:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.recvLoop()
	return l
}

func (l *ClientLink) LocalAddress() transport.Address { return l.self }
func (l *ClientLink) Class() transport.Class          { return transport.ClassPointToPoint }

// Hub returns the address of the relay this link is connected to.
func (l *ClientLink) Hub() transport.Address { return l.hub }

func (l *ClientLink) Send(ctx context.Context, to transport.Address, channel uint16, payload []byte) error {
	if to != l.hub {
		return fmt.Errorf("%w: %q", transport.ErrUnknownPeer, to)
	}
	select {
	case <-l.done:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	if err := l.conn.Send(&Frame{From: string(l.self), To: string(to), Channel: channel, Payload: payload}); err != nil {
		l.shutdown()
		return fmt.Errorf("%w: %v", transport.ErrClosed, err)
	}
	return nil
}

func (l *ClientLink) Receive(ctx context.Context, timeout time.Duration) (transport.Message, error) {
	return transport.Wait(ctx, l.inbox, l.done, timeout)
}

func (l *ClientLink) Close() error {
	l.shutdown()
	l.wg.Wait()
	return nil
}

func (l *ClientLink) shutdown() {
	l.once.Do(func() {
		close(l.done)
		_ = l.conn.Close()
	})
}

func (l *ClientLink) recvLoop() {
	defer l.wg.Done()
	defer l.shutdown()

	for {
		var f Frame
		if err := l.conn.Recv(&f); err != nil {
			return
		}
		msg := transport.Message{
			From:    l.hub,
			To:      l.self,
			Channel: f.Channel,
			Class:   transport.ClassPointToPoint,
			Payload: f.Payload,
		}
		select {
		case l.inbox <- msg:
		case <-l.done:
			return
		}
	}
}
