// Package rpc runs the account server on the broadcast link: it answers relay
// control frames, decodes requests once and dispatches them to the services
// on a bounded worker group.
package rpc

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/clock"
	"github.com/dmitrijs2005/linkledger/internal/locator"
	"github.com/dmitrijs2005/linkledger/internal/logging"
	"github.com/dmitrijs2005/linkledger/internal/server/services"
	"github.com/dmitrijs2005/linkledger/internal/transport"
	"github.com/dmitrijs2005/linkledger/internal/wire"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers             = 32
	DefaultMaintenanceInterval = 10 * time.Second
	DefaultRelayTTL            = 30 * time.Second
)

type Options struct {
	// Workers bounds concurrently running handlers.
	Workers int
	// MaintenanceInterval is the period of the session, relay and entity sweeps.
	MaintenanceInterval time.Duration
	// RelayTTL evicts relays not heard from for this long.
	RelayTTL time.Duration
	// EntityTTL evicts entities not updated for this long. Zero keeps them.
	EntityTTL time.Duration
}

type Server struct {
	link    transport.Link
	bank    *services.BankService
	admin   *services.AdminService
	locator *locator.Registry
	relays  *RelayTable
	clock   clock.Clock
	opts    Options
	logger  logging.Logger
}

func NewServer(link transport.Link, bank *services.BankService, admin *services.AdminService, loc *locator.Registry, clk clock.Clock, opts Options, l logging.Logger) *Server {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.MaintenanceInterval <= 0 {
		opts.MaintenanceInterval = DefaultMaintenanceInterval
	}
	if opts.RelayTTL <= 0 {
		opts.RelayTTL = DefaultRelayTTL
	}
	return &Server{
		link:    link,
		bank:    bank,
		admin:   admin,
		locator: loc,
		relays:  NewRelayTable(),
		clock:   clk,
		opts:    opts,
		logger:  l.With("module", "rpc_server"),
	}
}

// Name is the server's broadcast address.
func (s *Server) Name() string { return string(s.link.LocalAddress()) }

// Relays exposes the relay table.
func (s *Server) Relays() *RelayTable { return s.relays }

// Run serves until ctx is cancelled or the link closes.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Starting rpc server", "address", s.Name(), "workers", s.opts.Workers)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.receiveLoop(ctx) })
	g.Go(func() error { return s.maintenanceLoop(ctx) })
	return g.Wait()
}

func (s *Server) receiveLoop(ctx context.Context) error {
	var handlers errgroup.Group
	handlers.SetLimit(s.opts.Workers)
	defer handlers.Wait()

	for {
		msg, err := s.link.Receive(ctx, 0)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, transport.ErrClosed) {
				s.logger.Info(ctx, "broadcast link closed")
				return err
			}
			s.logger.Warn(ctx, "receive failed", "error", err)
			continue
		}
		s.handle(ctx, &handlers, msg)
	}
}

func (s *Server) maintenanceLoop(ctx context.Context) error {
	t := s.clock.NewTicker(s.opts.MaintenanceInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C():
			s.maintain(ctx)
		}
	}
}

func (s *Server) maintain(ctx context.Context) {
	s.bank.Sweep(ctx)
	for _, addr := range s.relays.Evict(s.opts.RelayTTL, s.clock.Now()) {
		s.logger.Info(ctx, "relay went silent", "relay", addr)
	}
	if removed := s.locator.Sweep(s.opts.EntityTTL); len(removed) > 0 {
		s.logger.Debug(ctx, "stale entities removed", "count", len(removed))
	}
}

// handle classifies one frame. Requests run on the handler group, control
// frames inline.
func (s *Server) handle(ctx context.Context, handlers *errgroup.Group, msg transport.Message) {
	if msg.From == s.link.LocalAddress() {
		return
	}
	if msg.Channel != wire.ChannelRPC {
		return
	}

	h, err := wire.PeekHeader(msg.Payload)
	if err != nil {
		s.logger.Debug(ctx, "dropping malformed frame", "from", string(msg.From), "error", err)
		return
	}

	switch {
	case h.IsRequest():
		handlers.Go(func() error {
			s.serve(ctx, msg)
			return nil
		})
	case h.Type == wire.TypeRelayHeartbeat || h.Type == wire.TypeRelayPing:
		s.answerRelay(ctx, msg, h)
	default:
		// responses, acks and notifies of other nodes
	}
}

func (s *Server) answerRelay(ctx context.Context, msg transport.Message, h wire.Header) {
	c, err := wire.DecodeControl(msg.Payload)
	if err != nil {
		s.logger.Debug(ctx, "dropping malformed control frame", "from", string(msg.From), "error", err)
		return
	}

	var endpoints map[string]int
	if h.Type == wire.TypeRelayHeartbeat {
		endpoints = c.Endpoints
		if endpoints == nil {
			endpoints = map[string]int{}
		}
	}
	s.relays.Seen(string(msg.From), c.RelayName, endpoints, s.clock.Now())

	ack := wire.Control{Type: wire.TypeServerAck, RequestID: h.RequestID, ServerName: s.Name()}
	raw, err := ack.Encode()
	if err != nil {
		s.logger.Error(ctx, "encode server_ack", "error", err)
		return
	}
	if err := s.link.Send(ctx, msg.From, wire.ChannelRPC, raw); err != nil {
		s.logger.Warn(ctx, "server_ack send failed", "relay", string(msg.From), "error", err)
	}
}

// serve decodes, dispatches and answers one request.
func (s *Server) serve(ctx context.Context, msg transport.Message) {
	env, err := wire.DecodeRequest(msg.Payload)
	if err != nil {
		if wire.IsDropped(err) {
			s.logger.Debug(ctx, "dropping malformed request", "from", string(msg.From), "error", err)
			return
		}
		s.reply(ctx, msg.From, wire.ErrorResponse(env.Header, err))
		return
	}

	origin := env.Origin
	if origin == nil {
		origin = &wire.Origin{Address: string(msg.From), Channel: msg.Channel}
	}

	resp := s.dispatch(ctx, env, *origin)
	s.reply(ctx, msg.From, resp)
}

func (s *Server) reply(ctx context.Context, to transport.Address, resp *wire.Response) {
	raw, err := resp.Encode()
	if err != nil {
		s.logger.Error(ctx, "encode response", "command", resp.Command, "error", err)
		return
	}
	if err := s.link.Send(ctx, to, wire.ChannelRPC, raw); err != nil {
		s.logger.Warn(ctx, "response send failed", "to", string(to), "command", resp.Command, "error", err)
	}
}
