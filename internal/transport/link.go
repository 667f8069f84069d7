// Package transport abstracts the two kinds of links the system runs over:
// a lossy broadcast medium where every node can hear every frame, and
// reliable ordered point-to-point tunnels between an endpoint and its relay.
//
// Both are exposed through Link. Message.Class tells the receiver which kind
// of link a frame arrived on; relays depend on it to keep broadcast echoes
// out of the tunnel path.
package transport

import (
	"context"
	"errors"
	"time"
)

// Address names a node on a link.
type Address string

// Broadcast is the destination that reaches every node on a broadcast link.
const Broadcast Address = "*"

// Class distinguishes point-to-point from broadcast traffic.
type Class uint8

const (
	ClassPointToPoint Class = iota + 1
	ClassBroadcast
)

func (c Class) String() string {
	switch c {
	case ClassPointToPoint:
		return "point-to-point"
	case ClassBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

var (
	// ErrTimeout is returned by Receive when nothing arrived in time.
	ErrTimeout = errors.New("transport: receive timed out")
	// ErrClosed is returned after Close or when the peer went away.
	ErrClosed = errors.New("transport: link closed")
	// ErrUnknownPeer is returned when sending to an address the link cannot reach.
	ErrUnknownPeer = errors.New("transport: unknown peer")
	// ErrTooLarge is returned for payloads above the link's frame limit.
	ErrTooLarge = errors.New("transport: payload too large")
)

// Message is one received frame.
type Message struct {
	From    Address
	To      Address
	Channel uint16
	Class   Class
	Payload []byte
}

// Link is a bidirectional, addressable channel.
type Link interface {
	LocalAddress() Address
	Class() Class
	Send(ctx context.Context, to Address, channel uint16, payload []byte) error
	// Receive blocks until a message arrives, the timeout elapses
	// (ErrTimeout), ctx is done or the link is closed. A non-positive
	// timeout waits without limit.
	Receive(ctx context.Context, timeout time.Duration) (Message, error)
	Close() error
}

// Wait implements the Receive contract over an inbox channel.
func Wait(ctx context.Context, inbox <-chan Message, done <-chan struct{}, timeout time.Duration) (Message, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case m := <-inbox:
		return m, nil
	default:
	}

	select {
	case m := <-inbox:
		return m, nil
	case <-expired:
		return Message{}, ErrTimeout
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-done:
		return Message{}, ErrClosed
	}
}
