package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/linkledger/internal/client"
	"github.com/dmitrijs2005/linkledger/internal/client/config"
	"github.com/dmitrijs2005/linkledger/internal/clock"
	"github.com/dmitrijs2005/linkledger/internal/locator"
	"github.com/dmitrijs2005/linkledger/internal/logging"
	"github.com/dmitrijs2005/linkledger/internal/transport"
	"github.com/dmitrijs2005/linkledger/internal/transport/tunnel"
	"github.com/dmitrijs2005/linkledger/internal/wire"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ledger is the part of *client.Client the commands use.
type ledger interface {
	Login(ctx context.Context, username, password string) (*client.LoggedIn, decimal.Decimal, error)
	Logout(ctx context.Context) error
	Balance(ctx context.Context) (decimal.Decimal, error)
	Transfer(ctx context.Context, recipient string, amount decimal.Decimal) (decimal.Decimal, error)
	ListAccounts(ctx context.Context) ([]wire.AccountSummary, error)
	GetLocation(ctx context.Context, entity string) (locator.Entity, error)
	FindNearby(ctx context.Context, center locator.Position, radius float64, limit int) ([]locator.Match, error)
}

// dialRelay opens the tunnel to the relay. Replaced in tests.
var dialRelay = func(ctx context.Context, cfg *config.Config) (transport.Link, error) {
	self, hub := transport.Address(cfg.Endpoint), transport.Address(cfg.RelayName)
	switch cfg.Tunnel {
	case config.TunnelGRPC:
		link, err := tunnel.DialGRPC(ctx, cfg.RelayAddr, self, hub)
		if err != nil {
			return nil, err
		}
		return link, nil
	case config.TunnelWebsocket:
		link, err := tunnel.DialWebsocket(ctx, cfg.RelayAddr, self, hub)
		if err != nil {
			return nil, err
		}
		return link, nil
	default:
		return nil, fmt.Errorf("unknown tunnel kind %q", cfg.Tunnel)
	}
}

type App struct {
	config *config.Config
	logger logging.Logger
	ledger ledger
	reader *bufio.Reader
	out    io.Writer

	mu      sync.Mutex
	session client.Session
	relay   client.RelayInfo
}

func NewApp(c *config.Config, l logging.Logger) *App {
	return &App{
		config:  c,
		logger:  l,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		session: client.LoggedOut{},
	}
}

// Run connects to the relay, registers, and serves the REPL until the user
// exits or stdin closes. An active session is logged out on the way out.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	link, err := dialRelay(ctx, a.config)
	if err != nil {
		return fmt.Errorf("connect to relay: %w", err)
	}
	defer link.Close()

	c := client.New(link, transport.Address(a.config.RelayName), clock.Real(), client.Options{
		Name:              a.config.Name,
		Kind:              a.config.Kind,
		Timeout:           a.config.Timeout,
		AdminTimeout:      a.config.AdminTimeout,
		KeepAliveInterval: a.config.KeepAliveInterval,
	}, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Run(gctx) })

	info, err := c.Register(ctx)
	if err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	a.ledger = c
	a.mu.Lock()
	a.relay = info
	a.mu.Unlock()

	printlnFn(fmt.Sprintf("Connected to %s (type 'help' for commands)", info.Name))
	if !info.ServerConnected {
		printlnFn("Warning: the relay has no server connection yet")
	}

	g.Go(func() error { return c.KeepAlive(gctx) })
	g.Go(func() error {
		a.watchNotifications(gctx, c.Notifications())
		return nil
	})

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))

	if a.isLoggedIn() {
		_ = a.Logout(ctx)
	}
	_ = c.Deregister(ctx)

	cancel()
	return g.Wait()
}

func (a *App) isLoggedIn() bool {
	return a.currentSession().LoggedIn()
}

func (a *App) currentSession() client.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

func (a *App) setSession(s client.Session) {
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
}

// withSession attaches the current session to ctx for the client library.
func (a *App) withSession(ctx context.Context) context.Context {
	return client.WithSession(ctx, a.currentSession())
}

func (a *App) getStatus() string {
	s := ""
	if li, ok := a.currentSession().(*client.LoggedIn); ok {
		s = li.Username
	}
	a.mu.Lock()
	relay := a.relay.Name
	a.mu.Unlock()
	if relay != "" {
		s += "@" + relay
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// watchNotifications reports events about the logged in account. Lock and
// delete events end the local session.
func (a *App) watchNotifications(ctx context.Context, ch <-chan *wire.Control) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-ch:
			a.notify(n)
		}
	}
}

func (a *App) notify(n *wire.Control) {
	li, ok := a.currentSession().(*client.LoggedIn)
	if !ok || n.Account != li.Username {
		return
	}
	switch n.Event {
	case wire.EventBalanceChanged:
		printlnFn("Notice: your balance has changed")
	case wire.EventAccountLocked:
		a.setSession(client.LoggedOut{})
		printlnFn("Notice: your account has been locked, you have been logged out")
	case wire.EventAccountDeleted:
		a.setSession(client.LoggedOut{})
		printlnFn("Notice: your account has been deleted, you have been logged out")
	}
}
