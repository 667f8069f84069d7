package tunnel

import (
	"context"
	"fmt"
	"net/url"

	"github.com/dmitrijs2005/linkledger/internal/transport"
	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// DialGRPC opens a tunnel to the relay's gRPC endpoint at target. hub is the
// relay's address as it appears in frames.
func DialGRPC(ctx context.Context, target string, self, hub transport.Address, opts ...grpc.DialOption) (*ClientLink, error) {
	if !ValidAddress(string(self)) {
		return nil, fmt.Errorf("invalid endpoint address %q", self)
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	streamCtx = metadata.AppendToOutgoingContext(streamCtx, LinkAddressHeader, string(self))

	opened := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-opened:
		}
	}()

	stream, err := conn.NewStream(streamCtx, &tunnelDesc.Streams[0], linkMethod, grpc.WaitForReady(true))
	close(opened)
	if err != nil {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("open tunnel: %w", err)
	}

	return newClientLink(self, hub, &grpcClientConn{stream: stream, cancel: cancel, conn: conn}), nil
}

type grpcClientConn struct {
	stream grpc.ClientStream
	cancel context.CancelFunc
	conn   *grpc.ClientConn
}

func (c *grpcClientConn) Send(f *Frame) error { return c.stream.SendMsg(f) }
func (c *grpcClientConn) Recv(f *Frame) error { return c.stream.RecvMsg(f) }

func (c *grpcClientConn) Close() error {
	_ = c.stream.CloseSend()
	c.cancel()
	return c.conn.Close()
}

// DialWebsocket opens a tunnel to the relay's websocket endpoint, e.g.
// "ws://relay:8089/tunnel".
func DialWebsocket(ctx context.Context, rawURL string, self, hub transport.Address) (*ClientLink, error) {
	if !ValidAddress(string(self)) {
		return nil, fmt.Errorf("invalid endpoint address %q", self)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("address", string(self))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	return newClientLink(self, hub, &wsConn{conn: conn}), nil
}
