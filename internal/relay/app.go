package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/clock"
	"github.com/dmitrijs2005/linkledger/internal/logging"
	"github.com/dmitrijs2005/linkledger/internal/relay/config"
	"github.com/dmitrijs2005/linkledger/internal/transport"
	"github.com/dmitrijs2005/linkledger/internal/transport/multicast"
	"github.com/dmitrijs2005/linkledger/internal/transport/tunnel"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// WebsocketPath is where the websocket tunnel is mounted.
const WebsocketPath = "/tunnel"

// joinBroadcast and listen are replaced in tests.
var (
	joinBroadcast = func(ctx context.Context, cfg *config.Config, l logging.Logger) (transport.Link, error) {
		return multicast.Listen(ctx, transport.Address(cfg.Name), multicast.Config{
			Group:     cfg.MulticastGroup,
			Interface: cfg.MulticastInterface,
			TTL:       cfg.MulticastTTL,
			Loopback:  true,
		}, l)
	}
	listen = func(address string) (net.Listener, error) {
		return net.Listen("tcp", address)
	}
)

type App struct {
	config *config.Config
	logger logging.Logger
	clock  clock.Clock
}

func NewApp(c *config.Config, l logging.Logger) *App {
	return &App{config: c, logger: l, clock: clock.Real()}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run starts the relay and blocks until a signal arrives, ctx is cancelled
// or a component fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "name", app.config.Name)

	app.initSignalHandler(cancelFunc)

	if app.config.GRPCAddr == "" && app.config.WebsocketAddr == "" {
		return errors.New("no tunnel address configured")
	}

	upstream, err := joinBroadcast(ctx, app.config, app.logger)
	if err != nil {
		return fmt.Errorf("broadcast link: %w", err)
	}
	defer upstream.Close()

	hub := tunnel.NewHub(transport.Address(app.config.Name), app.logger)
	defer hub.Close()

	r, err := New(upstream, hub, app.clock, Options{
		Server:            transport.Address(app.config.Server),
		HeartbeatInterval: app.config.HeartbeatInterval,
		StaleBeats:        app.config.StaleBeats,
		EndpointTTL:       app.config.EndpointTTL,
		RateLimit:         rate.Limit(app.config.RateLimit),
		RateBurst:         app.config.RateBurst,
	}, app.logger)
	if err != nil {
		return err
	}

	var grpcLis, wsLis net.Listener
	if app.config.GRPCAddr != "" {
		if grpcLis, err = listen(app.config.GRPCAddr); err != nil {
			return fmt.Errorf("grpc tunnel: %w", err)
		}
	}
	if app.config.WebsocketAddr != "" {
		if wsLis, err = listen(app.config.WebsocketAddr); err != nil {
			if grpcLis != nil {
				grpcLis.Close()
			}
			return fmt.Errorf("websocket tunnel: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.Run(gctx) })
	if grpcLis != nil {
		g.Go(func() error { return tunnel.NewGRPCServer(app.config.GRPCAddr, hub, app.logger).Serve(gctx, grpcLis) })
	}
	if wsLis != nil {
		g.Go(func() error { return app.serveWebsocket(gctx, wsLis, hub) })
	}

	err = g.Wait()
	app.logger.Info(ctx, "App stopped")
	return err
}

func (app *App) serveWebsocket(ctx context.Context, lis net.Listener, hub *tunnel.Hub) error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/livez", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle(WebsocketPath, tunnel.WebsocketHandler(hub, app.logger))

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping websocket tunnel...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		// hijacked websocket connections are not tracked by Shutdown
		_ = hub.Close()
	}()

	app.logger.Info(ctx, "Starting websocket tunnel", "address", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
