// Package client is the endpoint side of the protocol: it registers with a
// relay, correlates responses to requests by request_id and bounds every call
// with a timeout.
//
// A Client is used by one Run loop that pumps the link and any number of
// concurrent callers. Responses nobody waits for any more are discarded.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/clock"
	"github.com/dmitrijs2005/linkledger/internal/common"
	"github.com/dmitrijs2005/linkledger/internal/logging"
	"github.com/dmitrijs2005/linkledger/internal/transport"
	"github.com/dmitrijs2005/linkledger/internal/wire"
	"github.com/google/uuid"
)

const (
	DefaultTimeout           = 5 * time.Second
	DefaultAdminTimeout      = 10 * time.Second
	DefaultKeepAliveInterval = 30 * time.Second

	notificationBuffer = 64
)

type Options struct {
	// Name and Kind are announced on registration.
	Name string
	Kind string
	// Timeout bounds ordinary calls, AdminTimeout administrative ones.
	Timeout      time.Duration
	AdminTimeout time.Duration
	// KeepAliveInterval is the endpoint_heartbeat period.
	KeepAliveInterval time.Duration
}

// RelayInfo is what a relay reports on registration.
type RelayInfo struct {
	Name            string
	ServerConnected bool
}

type Client struct {
	link   transport.Link
	peer   transport.Address
	clock  clock.Clock
	opts   Options
	logger logging.Logger

	mu      sync.Mutex
	pending map[string]chan []byte

	notifications chan *wire.Control
}

// New creates a client talking to peer over link. peer is the relay's
// tunnel address, or the server's broadcast address for clients on the
// broadcast medium.
func New(link transport.Link, peer transport.Address, clk clock.Clock, opts Options, l logging.Logger) *Client {
	if opts.Kind == "" {
		opts.Kind = wire.KindClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.AdminTimeout <= 0 {
		opts.AdminTimeout = DefaultAdminTimeout
	}
	if opts.KeepAliveInterval <= 0 {
		opts.KeepAliveInterval = DefaultKeepAliveInterval
	}
	return &Client{
		link:          link,
		peer:          peer,
		clock:         clk,
		opts:          opts,
		logger:        l.With("module", "client", "address", string(link.LocalAddress())),
		pending:       make(map[string]chan []byte),
		notifications: make(chan *wire.Control, notificationBuffer),
	}
}

// Notifications delivers server notify frames fanned out by the relay. When
// the buffer is full new notifications are dropped.
func (c *Client) Notifications() <-chan *wire.Control { return c.notifications }

// Run pumps the link until ctx is cancelled or the link closes.
func (c *Client) Run(ctx context.Context) error {
	for {
		msg, err := c.link.Receive(ctx, 0)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, transport.ErrClosed) {
				return err
			}
			c.logger.Warn(ctx, "receive failed", "error", err)
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Client) handle(ctx context.Context, msg transport.Message) {
	if msg.From != c.peer || msg.Channel != wire.ChannelRPC {
		return
	}
	h, err := wire.PeekHeader(msg.Payload)
	if err != nil {
		c.logger.Debug(ctx, "dropping malformed frame", "error", err)
		return
	}

	switch h.Type {
	case wire.TypeResponse, wire.TypeRelayAck:
		c.mu.Lock()
		ch, ok := c.pending[h.RequestID]
		c.mu.Unlock()
		if !ok {
			c.logger.Debug(ctx, "discarding late response", "request_id", h.RequestID)
			return
		}
		select {
		case ch <- msg.Payload:
		default:
		}
	case wire.TypeNotify:
		n, err := wire.DecodeControl(msg.Payload)
		if err != nil {
			return
		}
		select {
		case c.notifications <- n:
		default:
			c.logger.Warn(ctx, "notification dropped", "event", n.Event)
		}
	}
}

func (c *Client) timeoutFor(command string) time.Duration {
	switch command {
	case wire.CmdAdminCreate, wire.CmdAdminDelete, wire.CmdAdminSetBalance, wire.CmdAdminLock,
		wire.CmdAdminUnlock, wire.CmdAdminResetCredential, wire.CmdAdminList:
		return c.opts.AdminTimeout
	default:
		return c.opts.Timeout
	}
}

// call sends raw and waits for the frame answering id. sent reports whether
// the frame left the link, after which the server may have acted on it.
func (c *Client) call(ctx context.Context, id string, raw []byte, timeout time.Duration) (payload []byte, sent bool, err error) {
	ch := make(chan []byte, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.link.Send(ctx, c.peer, wire.ChannelRPC, raw); err != nil {
		return nil, false, fmt.Errorf("send: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-ch:
		return payload, true, nil
	case <-timer.C:
		return nil, true, ErrTimeout
	case <-ctx.Done():
		return nil, true, ctx.Err()
	}
}

// Do sends req and waits for its response. A failed response is returned
// together with its error, a *common.Error.
//
// Once a transfer has been sent, losing its answer for any reason (timeout,
// cancelled ctx, unreadable reply) yields ErrOutcomeUnknown.
func (c *Client) Do(ctx context.Context, req wire.Request) (*wire.Response, error) {
	id := uuid.NewString()
	raw, err := wire.EncodeRequest(wire.Header{RequestID: id}, req)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", req.Command(), err)
	}
	transfer := req.Command() == wire.CmdTransfer

	payload, sent, err := c.call(ctx, id, raw, c.timeoutFor(req.Command()))
	if err != nil {
		if sent && transfer {
			return nil, outcomeUnknown(err)
		}
		return nil, err
	}

	resp, err := wire.DecodeResponse(payload)
	if err != nil {
		if transfer {
			return nil, outcomeUnknown(err)
		}
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return resp, err
	}
	return resp, nil
}

func (c *Client) control(ctx context.Context, frame wire.Control) (*wire.Control, error) {
	id := uuid.NewString()
	frame.RequestID = id
	raw, err := frame.Encode()
	if err != nil {
		return nil, err
	}
	payload, _, err := c.call(ctx, id, raw, c.opts.Timeout)
	if err != nil {
		return nil, err
	}

	h, err := wire.PeekHeader(payload)
	if err != nil {
		return nil, err
	}
	if h.Type == wire.TypeResponse {
		resp, err := wire.DecodeResponse(payload)
		if err != nil {
			return nil, err
		}
		return nil, resp.Err()
	}
	return wire.DecodeControl(payload)
}

// Register announces the endpoint to its relay. The relay answers even when
// the server is down; RelayInfo.ServerConnected tells which.
func (c *Client) Register(ctx context.Context) (RelayInfo, error) {
	typ, err := wire.RegisterType(c.opts.Kind)
	if err != nil {
		return RelayInfo{}, err
	}
	ack, err := c.control(ctx, wire.Control{Type: typ, Name: c.opts.Name})
	if err != nil {
		return RelayInfo{}, fmt.Errorf("register: %w", err)
	}
	return RelayInfo{Name: ack.RelayName, ServerConnected: ack.ServerConnected}, nil
}

// Deregister tells the relay to forget this endpoint. It is best effort and
// waits for nothing.
func (c *Client) Deregister(ctx context.Context) error {
	raw, err := (&wire.Control{Type: wire.TypeClientDeregister}).Encode()
	if err != nil {
		return err
	}
	return c.link.Send(ctx, c.peer, wire.ChannelRPC, raw)
}

// KeepAlive sends endpoint_heartbeat every KeepAliveInterval until ctx is
// done, registering again when the relay has forgotten us.
func (c *Client) KeepAlive(ctx context.Context) error {
	t := c.clock.NewTicker(c.opts.KeepAliveInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C():
			c.beat(ctx)
		}
	}
}

func (c *Client) beat(ctx context.Context) {
	_, err := c.control(ctx, wire.Control{Type: wire.TypeEndpointHeartbeat})
	switch {
	case err == nil:
	case common.CodeOf(err) == common.CodeNotRegistered:
		c.logger.Info(ctx, "relay forgot this endpoint, registering again")
		if _, err := c.Register(ctx); err != nil {
			c.logger.Warn(ctx, "re-registration failed", "error", err)
		}
	case ctx.Err() != nil:
	default:
		c.logger.Warn(ctx, "heartbeat failed", "error", err)
	}
}
