package client

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/linkledger/internal/common"
	"github.com/dmitrijs2005/linkledger/internal/money"
	"github.com/dmitrijs2005/linkledger/internal/wire"
	"github.com/shopspring/decimal"
)

// Login authenticates and returns the new session with the current balance.
// It is only valid from LoggedOut.
func (c *Client) Login(ctx context.Context, username, password string) (*LoggedIn, decimal.Decimal, error) {
	if SessionFrom(ctx).LoggedIn() {
		return nil, decimal.Zero, ErrAlreadyLoggedIn
	}
	resp, err := c.Do(ctx, &wire.LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, decimal.Zero, err
	}
	balance, err := parseBalance(resp)
	if err != nil {
		return nil, decimal.Zero, err
	}
	return &LoggedIn{Username: username, password: password, Since: c.clock.Now()}, balance, nil
}

// Logout ends the server session. Callers drop to LoggedOut whatever the
// result: the server side logout is idempotent.
func (c *Client) Logout(ctx context.Context) error {
	s, err := loggedIn(ctx)
	if err != nil {
		return err
	}
	_, err = c.Do(ctx, &wire.LogoutRequest{Username: s.Username, Password: s.password})
	return err
}

func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	s, err := loggedIn(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := c.Do(ctx, &wire.BalanceRequest{Username: s.Username, Password: s.password})
	if err != nil {
		return decimal.Zero, err
	}
	return parseBalance(resp)
}

// Transfer moves amount to recipient and returns the new own balance. It is
// never retried: when the answer is lost it fails with ErrOutcomeUnknown.
func (c *Client) Transfer(ctx context.Context, recipient string, amount decimal.Decimal) (decimal.Decimal, error) {
	s, err := loggedIn(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := c.Do(ctx, &wire.TransferRequest{
		Username:  s.Username,
		Password:  s.password,
		Recipient: recipient,
		AmountRaw: money.Format(amount),
	})
	if err != nil {
		return decimal.Zero, err
	}
	return parseBalance(resp)
}

// ListAccounts returns every account name with its online flag.
func (c *Client) ListAccounts(ctx context.Context) ([]wire.AccountSummary, error) {
	resp, err := c.Do(ctx, &wire.ListAccountsRequest{})
	if err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

// EndsSession reports whether err means the local session is gone and the
// user has to log in again.
func EndsSession(err error) bool {
	switch common.CodeOf(err) {
	case common.CodeSessionExpired, common.CodeInvalidCredential, common.CodeAccountLocked:
		return true
	default:
		return false
	}
}

func parseBalance(resp *wire.Response) (decimal.Decimal, error) {
	d, err := money.Parse(resp.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: bad balance %q: %w", resp.Command, resp.Balance, err)
	}
	return d, nil
}
