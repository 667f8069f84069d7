package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/client"
	"github.com/dmitrijs2005/linkledger/internal/client/config"
	"github.com/dmitrijs2005/linkledger/internal/common"
	"github.com/dmitrijs2005/linkledger/internal/locator"
	"github.com/dmitrijs2005/linkledger/internal/logging"
	"github.com/dmitrijs2005/linkledger/internal/transport"
	"github.com/dmitrijs2005/linkledger/internal/wire"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	loginErr    error
	balance     decimal.Decimal
	balanceErr  error
	transferErr error
	logoutErr   error

	gotUser      string
	gotPassword  string
	gotRecipient string
	gotAmount    decimal.Decimal
	gotSession   client.Session
	gotCenter    locator.Position
	gotRadius    float64

	accounts []wire.AccountSummary
	entity   locator.Entity
	matches  []locator.Match
}

// loggedInAs builds a session the way the client library does, through Login.
func loggedInAs(t *testing.T, name string) *client.LoggedIn {
	t.Helper()
	s, _, err := (&fakeLedger{}).Login(context.Background(), name, "pw")
	require.NoError(t, err)
	return s
}

func (f *fakeLedger) Login(_ context.Context, username, password string) (*client.LoggedIn, decimal.Decimal, error) {
	f.gotUser, f.gotPassword = username, password
	if f.loginErr != nil {
		return nil, decimal.Zero, f.loginErr
	}
	return &client.LoggedIn{Username: username, Since: time.Unix(0, 0)}, f.balance, nil
}

func (f *fakeLedger) Logout(ctx context.Context) error {
	f.gotSession = client.SessionFrom(ctx)
	return f.logoutErr
}

func (f *fakeLedger) Balance(ctx context.Context) (decimal.Decimal, error) {
	f.gotSession = client.SessionFrom(ctx)
	return f.balance, f.balanceErr
}

func (f *fakeLedger) Transfer(ctx context.Context, recipient string, amount decimal.Decimal) (decimal.Decimal, error) {
	f.gotSession = client.SessionFrom(ctx)
	f.gotRecipient, f.gotAmount = recipient, amount
	if f.transferErr != nil {
		return decimal.Zero, f.transferErr
	}
	return f.balance.Sub(amount), nil
}

func (f *fakeLedger) ListAccounts(context.Context) ([]wire.AccountSummary, error) {
	return f.accounts, nil
}

func (f *fakeLedger) GetLocation(_ context.Context, entity string) (locator.Entity, error) {
	if entity != f.entity.ID {
		return locator.Entity{}, common.ErrEntityNotFound
	}
	return f.entity, nil
}

func (f *fakeLedger) FindNearby(_ context.Context, center locator.Position, radius float64, _ int) ([]locator.Match, error) {
	f.gotCenter, f.gotRadius = center, radius
	return f.matches, nil
}

func newTestApp(t *testing.T, l *fakeLedger, input string) (*App, *[]string) {
	t.Helper()
	out := capturePrints(t)

	origText, origPassword := getSimpleText, getPassword
	t.Cleanup(func() { getSimpleText, getPassword = origText, origPassword })
	getPassword = func(io.Writer) (string, error) { return "alice-pw", nil }

	return &App{
		ledger:  l,
		logger:  logging.Nop(),
		reader:  bufio.NewReader(strings.NewReader(input)),
		out:     &bytes.Buffer{},
		session: client.LoggedOut{},
	}, out
}

func TestApp_Login(t *testing.T) {
	l := &fakeLedger{balance: decimal.RequireFromString("100")}
	app, out := newTestApp(t, l, "alice\n")

	require.NoError(t, app.Login(context.Background()))
	assert.True(t, app.isLoggedIn())
	assert.Equal(t, "alice", l.gotUser)
	assert.Equal(t, "alice-pw", l.gotPassword)
	assert.Contains(t, *out, "Logged in as alice. Balance: 100.00")
	assert.Equal(t, "(alice)", app.getStatus())

	require.ErrorIs(t, app.Login(context.Background()), client.ErrAlreadyLoggedIn)
	assert.Contains(t, *out, "Already logged in as alice")
}

func TestApp_LoginFailure(t *testing.T) {
	l := &fakeLedger{loginErr: common.Locked(common.CodeAccountLocked, "fraud review", time.Unix(0, 0))}
	app, out := newTestApp(t, l, "alice\n")

	err := app.Login(context.Background())
	require.ErrorIs(t, err, common.ErrAccountLocked)
	assert.False(t, app.isLoggedIn())
	assert.Contains(t, *out, "Lock reason: fraud review")
	assert.NotContains(t, *out, "You have been logged out")
}

func TestApp_CommandsRequireSession(t *testing.T) {
	app, out := newTestApp(t, &fakeLedger{}, "")
	ctx := context.Background()

	assert.ErrorIs(t, app.Balance(ctx), client.ErrNotLoggedIn)
	assert.ErrorIs(t, app.Transfer(ctx, []string{"bob", "1"}), client.ErrNotLoggedIn)
	assert.ErrorIs(t, app.Logout(ctx), client.ErrNotLoggedIn)
	assert.Contains(t, *out, "Log in first")
}

func TestApp_Transfer(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		input       string
		transferErr error
		wantErr     error
		wantOut     string
		stillIn     bool
	}{
		{name: "args", args: []string{"bob", "40"}, wantOut: "Sent 40.00 to bob. Balance: 60.00", stillIn: true},
		{name: "prompted", input: "bob\n12.5\n", wantOut: "Sent 12.50 to bob. Balance: 87.50", stillIn: true},
		{name: "bad amount", args: []string{"bob", "-3"}, wantOut: "Invalid amount: -3", stillIn: true},
		{name: "insufficient funds", args: []string{"bob", "1000"}, transferErr: common.ErrInsufficientFunds,
			wantErr: common.ErrInsufficientFunds, wantOut: "Error: insufficient_funds: insufficient funds", stillIn: true},
		{name: "outcome unknown", args: []string{"bob", "5"}, transferErr: client.ErrOutcomeUnknown,
			wantErr: client.ErrOutcomeUnknown, wantOut: "Transfer outcome unknown: check your balance before retrying", stillIn: true},
		{name: "session expired", args: []string{"bob", "5"}, transferErr: common.ErrSessionExpired,
			wantErr: common.ErrSessionExpired, wantOut: "You have been logged out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &fakeLedger{balance: decimal.NewFromInt(100), transferErr: tt.transferErr}
			app, out := newTestApp(t, l, tt.input)
			app.session = loggedInAs(t, "alice")

			err := app.Transfer(context.Background(), tt.args)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
			assert.Contains(t, *out, tt.wantOut)
			assert.Equal(t, tt.stillIn, app.isLoggedIn())
			if l.gotSession != nil {
				assert.True(t, l.gotSession.LoggedIn(), "session must travel in the context")
			}
		})
	}
}

func TestApp_BalanceAndLogout(t *testing.T) {
	l := &fakeLedger{balance: decimal.RequireFromString("60"), logoutErr: errors.New("relay gone")}
	app, out := newTestApp(t, l, "")
	app.session = loggedInAs(t, "alice")
	ctx := context.Background()

	require.NoError(t, app.Balance(ctx))
	assert.Contains(t, *out, "Balance: 60.00")

	require.NoError(t, app.Logout(ctx))
	assert.False(t, app.isLoggedIn())
	assert.Contains(t, *out, "Logged out")
}

func TestApp_ListAndLocator(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := &fakeLedger{
		accounts: []wire.AccountSummary{{Name: "alice", Online: true}, {Name: "bob"}},
		entity: locator.Entity{ID: "cart-7", Sample: locator.Sample{
			Position: locator.Position{X: 3, Y: 4, Dimension: "overworld"}, Reporter: "ctl-1", UpdatedAt: at,
		}},
		matches: []locator.Match{{Entity: locator.Entity{ID: "cart-7", Sample: locator.Sample{
			Position: locator.Position{X: 3, Y: 4, Dimension: "overworld"},
		}}, Distance: 5}},
	}
	app, out := newTestApp(t, l, "")
	ctx := context.Background()

	require.NoError(t, app.List(ctx))
	assert.Contains(t, *out, fmt.Sprintf("%-20s %s", "alice", "online"))
	assert.Contains(t, *out, fmt.Sprintf("%-20s %s", "bob", "offline"))

	require.NoError(t, app.WhereIs(ctx, []string{"cart-7"}))
	assert.Contains(t, *out, "cart-7 at (3.00, 4.00, 0.00) in overworld, reported by ctl-1 at 2024-05-01T12:00:00Z")

	require.ErrorIs(t, app.WhereIs(ctx, []string{"cart-9"}), common.ErrEntityNotFound)

	require.NoError(t, app.Nearby(ctx, []string{"0", "0", "0", "10", "nether"}))
	assert.Equal(t, locator.Position{Dimension: "nether"}, l.gotCenter)
	assert.Equal(t, 10.0, l.gotRadius)
	assert.Contains(t, *out, fmt.Sprintf("%-20s %8.2f  %s", "cart-7", 5.0, "(3.00, 4.00, 0.00) in overworld"))

	require.Error(t, app.Nearby(ctx, []string{"0", "0"}))
	require.Error(t, app.Nearby(ctx, []string{"0", "x", "0", "1"}))
}

func TestApp_Notifications(t *testing.T) {
	app, out := newTestApp(t, &fakeLedger{}, "")
	app.session = loggedInAs(t, "alice")

	app.notify(&wire.Control{Type: wire.TypeNotify, Event: wire.EventBalanceChanged, Account: "bob"})
	assert.Empty(t, *out)

	app.notify(&wire.Control{Type: wire.TypeNotify, Event: wire.EventBalanceChanged, Account: "alice"})
	assert.Contains(t, *out, "Notice: your balance has changed")
	assert.True(t, app.isLoggedIn())

	app.notify(&wire.Control{Type: wire.TypeNotify, Event: wire.EventAccountLocked, Account: "alice"})
	assert.False(t, app.isLoggedIn())
}

func TestApp_Run(t *testing.T) {
	capturePrints(t)

	medium := transport.NewMedium()
	hub, err := medium.Hub("relay-a")
	require.NoError(t, err)
	t.Cleanup(func() { _ = hub.Close() })

	origDial := dialRelay
	t.Cleanup(func() { dialRelay = origDial })
	dialRelay = func(_ context.Context, cfg *config.Config) (transport.Link, error) {
		return medium.Dial(transport.Address(cfg.Endpoint), transport.Address(cfg.RelayName))
	}

	// the relay answers the registration, then sees the deregistration
	seen := make(chan string, 4)
	go func() {
		for {
			msg, err := hub.Receive(context.Background(), 0)
			if err != nil {
				return
			}
			h, err := wire.PeekHeader(msg.Payload)
			if err != nil {
				continue
			}
			seen <- h.Type
			if h.Type == wire.TypeClientRegister {
				raw, _ := (&wire.Control{Type: wire.TypeRelayAck, RequestID: h.RequestID, RelayName: "relay-a", ServerConnected: true}).Encode()
				_ = hub.Send(context.Background(), msg.From, wire.ChannelRPC, raw)
			}
		}
	}()

	var cfg config.Config
	cfg.LoadDefaults()
	cfg.RelayName = "relay-a"
	cfg.Endpoint = "ep-cli"

	app := NewApp(&cfg, logging.Nop())
	app.reader = bufio.NewReader(strings.NewReader("help\nexit\n"))

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not exit")
	}

	assert.Equal(t, wire.TypeClientRegister, <-seen)
	assert.Equal(t, wire.TypeClientDeregister, <-seen)
	assert.Equal(t, "(@relay-a)", app.getStatus())
}

func TestApp_RunDialFailure(t *testing.T) {
	origDial := dialRelay
	t.Cleanup(func() { dialRelay = origDial })
	dialRelay = func(context.Context, *config.Config) (transport.Link, error) {
		return nil, errors.New("refused")
	}

	var cfg config.Config
	cfg.LoadDefaults()
	err := NewApp(&cfg, logging.Nop()).Run(context.Background())
	require.ErrorContains(t, err, "connect to relay: refused")
}

func TestDialRelay_UnknownTunnel(t *testing.T) {
	_, err := dialRelay(context.Background(), &config.Config{Tunnel: "carrier-pigeon"})
	require.ErrorContains(t, err, `unknown tunnel kind "carrier-pigeon"`)
}
