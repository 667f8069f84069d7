package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/logging"
	"github.com/dmitrijs2005/linkledger/internal/relay/config"
	"github.com/dmitrijs2005/linkledger/internal/transport"
	"github.com/dmitrijs2005/linkledger/internal/transport/tunnel"
	"github.com/dmitrijs2005/linkledger/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useMedium puts the relay on an in-memory broadcast domain and records the
// tunnel listeners it opens.
func useMedium(t *testing.T) (*transport.Medium, func(addr string) string) {
	t.Helper()
	medium := transport.NewMedium()

	origJoin, origListen := joinBroadcast, listen
	t.Cleanup(func() { joinBroadcast, listen = origJoin, origListen })

	var mu sync.Mutex
	bound := make(map[string]string)

	joinBroadcast = func(_ context.Context, cfg *config.Config, _ logging.Logger) (transport.Link, error) {
		return medium.JoinBroadcast(transport.Address(cfg.Name))
	}
	listen = func(address string) (net.Listener, error) {
		lis, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, err
		}
		mu.Lock()
		bound[address] = lis.Addr().String()
		mu.Unlock()
		return lis, nil
	}

	lookup := func(addr string) string {
		var got string
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			got = bound[addr]
			return got != ""
		}, 2*time.Second, 10*time.Millisecond)
		return got
	}
	return medium, lookup
}

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.Name = "relay-a"
	c.Server = "server"
	c.GRPCAddr = "grpc"
	c.WebsocketAddr = "ws"
	return c
}

func runApp(t *testing.T, cfg *config.Config) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewApp(cfg, logging.Nop()).Run(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("relay app did not stop")
		}
	}
}

func TestApp_RegistersOverBothTunnels(t *testing.T) {
	medium, bound := useMedium(t)
	stop := runApp(t, testConfig())
	defer stop()

	server, err := medium.JoinBroadcast("server")
	require.NoError(t, err)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	grpcLink, err := tunnel.DialGRPC(ctx, bound("grpc"), "ep-grpc", "relay-a")
	require.NoError(t, err)
	defer grpcLink.Close()

	wsLink, err := tunnel.DialWebsocket(ctx, fmt.Sprintf("ws://%s%s", bound("ws"), WebsocketPath), "ep-ws", "relay-a")
	require.NoError(t, err)
	defer wsLink.Close()

	for _, ep := range []transport.Link{grpcLink, wsLink} {
		ack := register(t, ep, wire.KindClient)
		assert.Equal(t, "relay-a", ack.RelayName)
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/livez", bound("ws")))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestApp_RequiresATunnel(t *testing.T) {
	useMedium(t)
	cfg := testConfig()
	cfg.GRPCAddr, cfg.WebsocketAddr = "", ""

	err := NewApp(cfg, logging.Nop()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tunnel address")
}

func TestApp_ListenFailure(t *testing.T) {
	useMedium(t)
	listen = func(string) (net.Listener, error) { return nil, errors.New("address in use") }

	err := NewApp(testConfig(), logging.Nop()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
}
