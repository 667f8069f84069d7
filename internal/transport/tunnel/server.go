package tunnel

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/dmitrijs2005/linkledger/internal/logging"
	"github.com/dmitrijs2005/linkledger/internal/transport"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	serviceName = "linkledger.transport.Tunnel"
	linkMethod  = "/" + serviceName + "/Link"
)

// tunnelService is the handler type gRPC checks registrations against.
type tunnelService interface {
	serveLink(stream grpc.ServerStream) error
}

var tunnelDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*tunnelService)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Link",
			Handler:       linkHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "linkledger/transport/tunnel",
}

func linkHandler(srv any, stream grpc.ServerStream) error {
	return srv.(tunnelService).serveLink(stream)
}

// GRPCServer accepts tunnel streams and feeds them into a Hub.
type GRPCServer struct {
	address string
	hub     *Hub
	logger  logging.Logger
}

func NewGRPCServer(address string, hub *Hub, l logging.Logger) *GRPCServer {
	return &GRPCServer{
		address: address,
		hub:     hub,
		logger:  l.With("module", "tunnel_grpc"),
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves on an existing listener until ctx is done. Tunnel streams
// never finish on their own, so shutdown is a hard stop.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(grpc.ChainStreamInterceptor(s.linkAddressInterceptor))
	srv.RegisterService(&tunnelDesc, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping tunnel gRPC server...")
		srv.Stop()
	}()

	s.logger.Info(ctx, "Starting tunnel gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}

func (s *GRPCServer) serveLink(stream grpc.ServerStream) error {
	addr, ok := stream.Context().Value(peerAddressKey).(transport.Address)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing link address")
	}

	p := &grpcPeer{stream: stream}
	if err := s.hub.attach(addr, p); err != nil {
		return status.Error(codes.AlreadyExists, err.Error())
	}
	defer s.hub.detach(addr, p)

	for {
		var f Frame
		if err := stream.RecvMsg(&f); err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}
		if err := s.hub.deliver(stream.Context(), addr, &f); err != nil {
			return status.Error(codes.Unavailable, err.Error())
		}
	}
}

type grpcPeer struct {
	stream grpc.ServerStream
}

func (p *grpcPeer) send(f *Frame) error { return p.stream.SendMsg(f) }

// close is a no-op: the stream ends when the server stops.
func (p *grpcPeer) close() {}
