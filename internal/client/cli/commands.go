package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/client"
	"github.com/dmitrijs2005/linkledger/internal/common"
	"github.com/dmitrijs2005/linkledger/internal/locator"
	"github.com/dmitrijs2005/linkledger/internal/money"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

const nearbyLimit = 20

// report prints err for the user and drops the session when the server says
// it is gone. It returns err unchanged.
func (a *App) report(err error) error {
	var e *common.Error
	switch {
	case errors.Is(err, client.ErrOutcomeUnknown):
		printlnFn("Transfer outcome unknown: check your balance before retrying")
	case errors.Is(err, client.ErrTimeout):
		printlnFn("No answer from the server, try again later")
	case client.EndsSession(err):
		wasLoggedIn := a.isLoggedIn()
		a.setSession(client.LoggedOut{})
		printlnFn("Error:", err)
		if errors.As(err, &e) && e.LockReason != "" {
			printlnFn("Lock reason:", e.LockReason)
		}
		if wasLoggedIn {
			printlnFn("You have been logged out")
		}
	default:
		printlnFn("Error:", err)
	}
	return err
}

// Login prompts for credentials and opens a session.
func (a *App) Login(ctx context.Context) error {
	if li, ok := a.currentSession().(*client.LoggedIn); ok {
		printlnFn("Already logged in as", li.Username)
		return client.ErrAlreadyLoggedIn
	}

	username, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}

	s, balance, err := a.ledger.Login(ctx, username, password)
	if err != nil {
		return a.report(err)
	}
	a.setSession(s)
	printlnFn(fmt.Sprintf("Logged in as %s. Balance: %s", s.Username, money.Format(balance)))
	return nil
}

// Logout ends the session. The local session is dropped even when the
// server could not be told.
func (a *App) Logout(ctx context.Context) error {
	if !a.isLoggedIn() {
		printlnFn("Not logged in")
		return client.ErrNotLoggedIn
	}
	err := a.ledger.Logout(a.withSession(ctx))
	a.setSession(client.LoggedOut{})
	if err != nil {
		a.logger.Warn(ctx, "logout failed", "error", err)
	}
	printlnFn("Logged out")
	return nil
}

func (a *App) Balance(ctx context.Context) error {
	if !a.isLoggedIn() {
		printlnFn("Log in first")
		return client.ErrNotLoggedIn
	}
	balance, err := a.ledger.Balance(a.withSession(ctx))
	if err != nil {
		return a.report(err)
	}
	printlnFn("Balance:", money.Format(balance))
	return nil
}

// Transfer takes the recipient and amount from args or prompts for them.
func (a *App) Transfer(ctx context.Context, args []string) error {
	if !a.isLoggedIn() {
		printlnFn("Log in first")
		return client.ErrNotLoggedIn
	}

	recipient, err := argOrPrompt(args, 0, a.reader, "Recipient", a.out)
	if err != nil {
		return err
	}
	raw, err := argOrPrompt(args, 1, a.reader, "Amount", a.out)
	if err != nil {
		return err
	}
	amount, err := money.ParsePositive(raw)
	if err != nil {
		printlnFn("Invalid amount:", raw)
		return err
	}

	balance, err := a.ledger.Transfer(a.withSession(ctx), recipient, amount)
	if err != nil {
		return a.report(err)
	}
	printlnFn(fmt.Sprintf("Sent %s to %s. Balance: %s", money.Format(amount), recipient, money.Format(balance)))
	return nil
}

func (a *App) List(ctx context.Context) error {
	accounts, err := a.ledger.ListAccounts(ctx)
	if err != nil {
		return a.report(err)
	}
	if len(accounts) == 0 {
		printlnFn("No accounts")
	}
	for _, acc := range accounts {
		status := "offline"
		if acc.Online {
			status = "online"
		}
		printlnFn(fmt.Sprintf("%-20s %s", acc.Name, status))
	}
	return nil
}

func (a *App) WhereIs(ctx context.Context, args []string) error {
	entity, err := argOrPrompt(args, 0, a.reader, "Entity", a.out)
	if err != nil {
		return err
	}
	e, err := a.ledger.GetLocation(ctx, entity)
	if err != nil {
		return a.report(err)
	}
	printlnFn(fmt.Sprintf("%s at %s, reported by %s at %s",
		e.ID, formatPosition(e.Position), e.Reporter, e.UpdatedAt.Format(time.RFC3339)))
	return nil
}

// Nearby expects x y z radius and an optional dimension.
func (a *App) Nearby(ctx context.Context, args []string) error {
	if len(args) < 4 {
		printlnFn("Usage: nearby <x> <y> <z> <radius> [dimension]")
		return common.ErrInvalidRequest
	}
	var nums [4]float64
	for i := range nums {
		v, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			printlnFn("Not a number:", args[i])
			return err
		}
		nums[i] = v
	}
	center := locator.Position{X: nums[0], Y: nums[1], Z: nums[2]}
	if len(args) > 4 {
		center.Dimension = args[4]
	}

	matches, err := a.ledger.FindNearby(ctx, center, nums[3], nearbyLimit)
	if err != nil {
		return a.report(err)
	}
	if len(matches) == 0 {
		printlnFn("Nothing nearby")
	}
	for _, m := range matches {
		printlnFn(fmt.Sprintf("%-20s %8.2f  %s", m.ID, m.Distance, formatPosition(m.Position)))
	}
	return nil
}

func formatPosition(p locator.Position) string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f) in %s", p.X, p.Y, p.Z, p.Dimension)
}
