// Package relay bridges point-to-point endpoints to the account server on the
// broadcast medium.
//
// Requests from registered endpoints are stamped with their true origin and
// the relay's own broadcast address, then sent to the server. Responses
// carrying this relay in via travel back down the tunnel they came from. The
// relay never retries on behalf of an endpoint: when the server has gone quiet
// it fails fast with unreachable, before anything was forwarded.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/clock"
	"github.com/dmitrijs2005/linkledger/internal/common"
	"github.com/dmitrijs2005/linkledger/internal/logging"
	"github.com/dmitrijs2005/linkledger/internal/transport"
	"github.com/dmitrijs2005/linkledger/internal/wire"
	"github.com/google/uuid"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultStaleBeats        = 3
	DefaultEndpointTTL       = 90 * time.Second
)

type Options struct {
	// Server is the account server's broadcast address.
	Server transport.Address
	// HeartbeatInterval is the period of relay_heartbeat and of the
	// staleness checks.
	HeartbeatInterval time.Duration
	// StaleBeats is the number of heartbeat intervals without a word from
	// the server after which it is considered unreachable.
	StaleBeats int
	// EndpointTTL evicts endpoints that neither sent anything nor a
	// heartbeat for this long.
	EndpointTTL time.Duration
	// RateLimit is the per-endpoint request rate; zero disables limiting.
	RateLimit rate.Limit
	RateBurst int
}

type Relay struct {
	upstream   transport.Link
	downstream transport.Link
	registry   *Registry
	limits     *limiters
	clock      clock.Clock
	opts       Options
	logger     logging.Logger

	serverConnected *atomic.Bool
	serverSeen      *atomic.Time
	lastPing        *atomic.Time
}

// New creates a relay forwarding from downstream (point-to-point) to
// upstream (broadcast).
func New(upstream, downstream transport.Link, clk clock.Clock, opts Options, l logging.Logger) (*Relay, error) {
	if upstream.Class() != transport.ClassBroadcast {
		return nil, fmt.Errorf("upstream link must be broadcast, got %s", upstream.Class())
	}
	if downstream.Class() != transport.ClassPointToPoint {
		return nil, fmt.Errorf("downstream link must be point-to-point, got %s", downstream.Class())
	}
	if opts.Server == "" {
		return nil, errors.New("server address is required")
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.StaleBeats <= 0 {
		opts.StaleBeats = DefaultStaleBeats
	}
	if opts.EndpointTTL <= 0 {
		opts.EndpointTTL = DefaultEndpointTTL
	}

	return &Relay{
		upstream:        upstream,
		downstream:      downstream,
		registry:        NewRegistry(),
		limits:          newLimiters(opts.RateLimit, opts.RateBurst),
		clock:           clk,
		opts:            opts,
		logger:          l.With("module", "relay", "relay", string(upstream.LocalAddress())),
		serverConnected: atomic.NewBool(false),
		serverSeen:      atomic.NewTime(time.Time{}),
		lastPing:        atomic.NewTime(time.Time{}),
	}, nil
}

// Name is the relay's broadcast address.
func (r *Relay) Name() string { return string(r.upstream.LocalAddress()) }

// ServerConnected reports whether the server answered within the stale window.
func (r *Relay) ServerConnected() bool { return r.serverConnected.Load() }

func (r *Relay) Registry() *Registry { return r.registry }

func (r *Relay) staleWindow() time.Duration {
	return time.Duration(r.opts.StaleBeats) * r.opts.HeartbeatInterval
}

func (r *Relay) stale(now time.Time) bool {
	return now.Sub(r.serverSeen.Load()) >= r.staleWindow()
}

// Run relays until ctx is cancelled or a link closes. The server gets one
// stale window of grace from startup before requests are refused.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info(ctx, "Starting relay", "server", string(r.opts.Server), "heartbeat", r.opts.HeartbeatInterval.String())

	r.serverSeen.Store(r.clock.Now())
	r.ping(ctx, r.clock.Now())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.pump(ctx, r.downstream, r.handleDownstream) })
	g.Go(func() error { return r.pump(ctx, r.upstream, r.handleUpstream) })
	g.Go(func() error { return r.heartbeatLoop(ctx) })
	return g.Wait()
}

func (r *Relay) pump(ctx context.Context, link transport.Link, handle func(context.Context, transport.Message)) error {
	for {
		msg, err := link.Receive(ctx, 0)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, transport.ErrClosed) {
				r.logger.Info(ctx, "link closed", "class", link.Class().String())
				return err
			}
			r.logger.Warn(ctx, "receive failed", "class", link.Class().String(), "error", err)
			continue
		}
		handle(ctx, msg)
	}
}

func (r *Relay) heartbeatLoop(ctx context.Context) error {
	t := r.clock.NewTicker(r.opts.HeartbeatInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C():
			r.tick(ctx)
		}
	}
}

func (r *Relay) tick(ctx context.Context) {
	now := r.clock.Now()

	hb := wire.Control{
		Type:      wire.TypeRelayHeartbeat,
		RequestID: uuid.NewString(),
		RelayName: r.Name(),
		Endpoints: r.registry.Counts(),
	}
	r.sendUp(ctx, &hb)

	if r.stale(now) && r.serverConnected.Swap(false) {
		r.logger.Warn(ctx, "server unreachable", "server", string(r.opts.Server), "silent_for", now.Sub(r.serverSeen.Load()).String())
	}

	for _, addr := range r.registry.Evict(r.opts.EndpointTTL, now) {
		r.limits.forget(addr)
		r.logger.Info(ctx, "endpoint expired", "address", string(addr))
	}
}

// handleDownstream processes a frame from an endpoint.
func (r *Relay) handleDownstream(ctx context.Context, msg transport.Message) {
	if msg.Class != transport.ClassPointToPoint || msg.Channel != wire.ChannelRPC {
		r.logger.Debug(ctx, "dropping frame outside the rpc tunnel", "from", string(msg.From), "class", msg.Class.String())
		return
	}
	h, err := wire.PeekHeader(msg.Payload)
	if err != nil {
		r.logger.Debug(ctx, "dropping malformed frame", "from", string(msg.From), "error", err)
		return
	}
	now := r.clock.Now()

	if kind, ok := wire.KindOf(h.Type); ok {
		c, err := wire.DecodeControl(msg.Payload)
		if err != nil {
			r.logger.Debug(ctx, "dropping malformed registration", "from", string(msg.From), "error", err)
			return
		}
		if r.registry.Register(msg.From, c.Name, kind, now) {
			r.logger.Info(ctx, "endpoint registered", "address", string(msg.From), "name", c.Name, "kind", kind)
		}
		r.ack(ctx, msg.From, h)
		return
	}

	switch {
	case h.Type == wire.TypeEndpointHeartbeat:
		if !r.registry.Touch(msg.From, now) {
			r.replyDown(ctx, msg.From, wire.ErrorResponse(h, common.ErrNotRegistered))
			return
		}
		r.ack(ctx, msg.From, h)
	case h.Type == wire.TypeClientDeregister:
		if r.registry.Remove(msg.From) {
			r.limits.forget(msg.From)
			r.logger.Info(ctx, "endpoint deregistered", "address", string(msg.From))
		}
	case h.IsRequest():
		r.forward(ctx, msg, h, now)
	default:
		r.logger.Debug(ctx, "dropping unexpected frame", "from", string(msg.From), "type", h.Type)
	}
}

func (r *Relay) forward(ctx context.Context, msg transport.Message, h wire.Header, now time.Time) {
	if !r.registry.Touch(msg.From, now) {
		r.replyDown(ctx, msg.From, wire.ErrorResponse(h, common.ErrNotRegistered))
		return
	}
	if !r.limits.allow(msg.From, now) {
		r.logger.Debug(ctx, "rate limited", "address", string(msg.From), "command", h.Command)
		return
	}
	if r.stale(now) {
		r.replyDown(ctx, msg.From, wire.ErrorResponse(h, common.ErrUnreachable))
		r.ping(ctx, now)
		return
	}

	raw, err := wire.Rewrite(msg.Payload, wire.Origin{Address: string(msg.From), Channel: msg.Channel}, r.Name())
	if err != nil {
		r.logger.Debug(ctx, "dropping unforwardable request", "from", string(msg.From), "error", err)
		return
	}
	if err := r.upstream.Send(ctx, r.opts.Server, wire.ChannelRPC, raw); err != nil {
		r.logger.Warn(ctx, "forward failed", "command", h.Command, "error", err)
		r.replyDown(ctx, msg.From, wire.ErrorResponse(h, common.ErrUnreachable))
	}
}

// handleUpstream processes a frame heard on the broadcast medium.
func (r *Relay) handleUpstream(ctx context.Context, msg transport.Message) {
	if msg.From == r.upstream.LocalAddress() || msg.From != r.opts.Server {
		return
	}
	if msg.Channel != wire.ChannelRPC {
		return
	}
	h, err := wire.PeekHeader(msg.Payload)
	if err != nil {
		r.logger.Debug(ctx, "dropping malformed server frame", "error", err)
		return
	}

	switch h.Type {
	case wire.TypeServerAck:
		r.markServer(ctx)
	case wire.TypeResponse:
		r.markServer(ctx)
		r.deliver(ctx, msg, h)
	case wire.TypeNotify:
		r.fanOut(ctx, msg)
	}
}

func (r *Relay) markServer(ctx context.Context) {
	r.serverSeen.Store(r.clock.Now())
	if !r.serverConnected.Swap(true) {
		r.logger.Info(ctx, "server reachable", "server", string(r.opts.Server))
	}
}

func (r *Relay) deliver(ctx context.Context, msg transport.Message, h wire.Header) {
	if h.Via != r.Name() {
		return
	}
	if h.Origin == nil {
		r.logger.Debug(ctx, "dropping response without origin", "request_id", h.RequestID)
		return
	}
	addr := transport.Address(h.Origin.Address)
	if _, ok := r.registry.Get(addr); !ok {
		r.logger.Debug(ctx, "dropping response for unregistered endpoint", "address", string(addr), "request_id", h.RequestID)
		return
	}
	if err := r.downstream.Send(ctx, addr, h.Origin.Channel, msg.Payload); err != nil {
		r.logger.Warn(ctx, "response delivery failed", "address", string(addr), "error", err)
	}
}

func (r *Relay) fanOut(ctx context.Context, msg transport.Message) {
	c, err := wire.DecodeControl(msg.Payload)
	if err != nil {
		r.logger.Debug(ctx, "dropping malformed notify", "error", err)
		return
	}
	for _, addr := range r.registry.Matching(c.Addressed) {
		if err := r.downstream.Send(ctx, addr, wire.ChannelRPC, msg.Payload); err != nil {
			r.logger.Warn(ctx, "notify delivery failed", "address", string(addr), "event", c.Event, "error", err)
		}
	}
}

func (r *Relay) ack(ctx context.Context, to transport.Address, h wire.Header) {
	ack := wire.Control{
		Type:            wire.TypeRelayAck,
		RequestID:       h.RequestID,
		RelayName:       r.Name(),
		ServerConnected: r.serverConnected.Load(),
	}
	raw, err := ack.Encode()
	if err != nil {
		r.logger.Error(ctx, "encode relay_ack", "error", err)
		return
	}
	if err := r.downstream.Send(ctx, to, wire.ChannelRPC, raw); err != nil {
		r.logger.Warn(ctx, "relay_ack send failed", "address", string(to), "error", err)
	}
}

// ping probes the server at most once per heartbeat interval.
func (r *Relay) ping(ctx context.Context, now time.Time) {
	last := r.lastPing.Load()
	if !last.IsZero() && now.Sub(last) < r.opts.HeartbeatInterval {
		return
	}
	r.lastPing.Store(now)
	r.sendUp(ctx, &wire.Control{Type: wire.TypeRelayPing, RequestID: uuid.NewString(), RelayName: r.Name()})
}

func (r *Relay) sendUp(ctx context.Context, c *wire.Control) {
	raw, err := c.Encode()
	if err != nil {
		r.logger.Error(ctx, "encode control frame", "type", c.Type, "error", err)
		return
	}
	if err := r.upstream.Send(ctx, r.opts.Server, wire.ChannelRPC, raw); err != nil {
		r.logger.Warn(ctx, "control send failed", "type", c.Type, "error", err)
	}
}

func (r *Relay) replyDown(ctx context.Context, to transport.Address, resp *wire.Response) {
	raw, err := resp.Encode()
	if err != nil {
		r.logger.Error(ctx, "encode response", "error", err)
		return
	}
	if err := r.downstream.Send(ctx, to, wire.ChannelRPC, raw); err != nil {
		r.logger.Warn(ctx, "response send failed", "address", string(to), "error", err)
	}
}
