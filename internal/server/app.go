// Package server wires the account server together: storage replicas, the
// account store, sessions, the entity registry, the broadcast link, the RPC
// loop and the optional admin HTTP API. It handles graceful shutdown on
// SIGINT, SIGTERM and SIGQUIT.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dmitrijs2005/linkledger/internal/accounts"
	"github.com/dmitrijs2005/linkledger/internal/audit"
	"github.com/dmitrijs2005/linkledger/internal/clock"
	"github.com/dmitrijs2005/linkledger/internal/cryptox"
	"github.com/dmitrijs2005/linkledger/internal/filex"
	"github.com/dmitrijs2005/linkledger/internal/locator"
	"github.com/dmitrijs2005/linkledger/internal/logging"
	"github.com/dmitrijs2005/linkledger/internal/server/adminapi"
	"github.com/dmitrijs2005/linkledger/internal/server/config"
	"github.com/dmitrijs2005/linkledger/internal/server/rpc"
	"github.com/dmitrijs2005/linkledger/internal/server/services"
	"github.com/dmitrijs2005/linkledger/internal/sessions"
	"github.com/dmitrijs2005/linkledger/internal/storage"
	"github.com/dmitrijs2005/linkledger/internal/transport"
	"github.com/dmitrijs2005/linkledger/internal/transport/multicast"
	"golang.org/x/sync/errgroup"
)

// joinBroadcast opens the server's broadcast link. Tests replace it with an
// in-memory medium.
var joinBroadcast = func(ctx context.Context, cfg *config.Config, l logging.Logger) (transport.Link, error) {
	return multicast.Listen(ctx, transport.Address(cfg.Name), multicast.Config{
		Group:     cfg.MulticastGroup,
		Interface: cfg.MulticastInterface,
		TTL:       cfg.MulticastTTL,
		Loopback:  true,
	}, l)
}

type App struct {
	config *config.Config
	logger logging.Logger
	clock  clock.Clock
}

func NewApp(c *config.Config, l logging.Logger) *App {
	return &App{config: c, logger: l, clock: clock.Real()}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) openReplicas(ctx context.Context) (*storage.ReplicaSet, error) {
	comp, err := storage.ParseCompression(app.config.Compression)
	if err != nil {
		return nil, err
	}
	volumes, err := storage.OpenAll(ctx, app.config.Volumes, storage.OpenOptions{S3: app.config.S3})
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}
	replicas, err := storage.NewReplicaSet(volumes, storage.Options{
		WriteQuorum: app.config.WriteQuorum,
		Compression: comp,
	}, app.logger)
	if err != nil {
		for _, v := range volumes {
			_ = v.Close()
		}
		return nil, err
	}
	return replicas, nil
}

func (app *App) openAudit() (audit.Recorder, func(), error) {
	if app.config.AuditLog == "" {
		return audit.Discard, func() {}, nil
	}
	if _, err := filex.EnsureDir(filepath.Dir(app.config.AuditLog)); err != nil {
		return nil, nil, err
	}
	log, err := audit.Open(app.config.AuditLog, app.clock)
	if err != nil {
		return nil, nil, err
	}
	return log, func() { _ = log.Close() }, nil
}

// Run starts the server and blocks until a signal arrives, ctx is cancelled
// or a component fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "name", app.config.Name)

	app.initSignalHandler(cancelFunc)

	replicas, err := app.openReplicas(ctx)
	if err != nil {
		return err
	}
	defer replicas.Close()

	hasher, err := cryptox.NewHasher([]byte(app.config.CredentialSecret), []byte(app.config.CredentialSalt))
	if err != nil {
		return err
	}

	store := accounts.NewStore(hasher, replicas, app.clock, app.logger)
	found, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	app.logger.Info(ctx, "account table loaded", "found", found, "accounts", len(store.List()), "read_only", store.ReadOnly())

	recorder, closeAudit, err := app.openAudit()
	if err != nil {
		return err
	}
	defer closeAudit()

	link, err := joinBroadcast(ctx, app.config, app.logger)
	if err != nil {
		return fmt.Errorf("broadcast link: %w", err)
	}
	defer link.Close()

	notifier := rpc.NewBroadcaster(link, app.logger)
	sm := sessions.NewManager(app.clock, app.config.SessionTimeout)
	bank := services.NewBankService(store, sm, recorder, notifier, app.logger)
	admin := services.NewAdminService(store, sm, recorder, notifier, []byte(app.config.JWTSecret), app.logger)
	registry := locator.NewRegistry(app.clock, app.config.HistoryLength)

	srv := rpc.NewServer(link, bank, admin, registry, app.clock, rpc.Options{
		Workers:             app.config.Workers,
		MaintenanceInterval: app.config.MaintenanceInterval,
		RelayTTL:            app.config.RelayTTL,
		EntityTTL:           app.config.EntityTTL,
	}, app.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	if app.config.AdminAddr != "" {
		api := adminapi.NewServer(app.config.AdminAddr, admin, srv.Relays(), app.logger)
		g.Go(func() error { return api.Run(gctx) })
	}

	err = g.Wait()
	app.logger.Info(ctx, "App stopped")
	return err
}
