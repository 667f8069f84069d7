// ledger-admin manages accounts through the server's admin HTTP API.
//
// The bearer token is taken from --token or LEDGER_ADMIN_TOKEN. With
// --secret it is minted locally instead, which needs the server's JWT secret.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/money"
	"github.com/dmitrijs2005/linkledger/internal/server/adminapi"
	"github.com/dmitrijs2005/linkledger/internal/server/auth"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
)

var errUsage = errors.New("usage")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	var (
		baseURL  string
		token    string
		secret   string
		admin    string
		validity time.Duration
		timeout  time.Duration
	)

	fs := pflag.NewFlagSet("ledger-admin", pflag.ContinueOnError)
	fs.StringVarP(&baseURL, "url", "u", "http://127.0.0.1:8081", "admin API base URL")
	fs.StringVarP(&token, "token", "t", os.Getenv("LEDGER_ADMIN_TOKEN"), "admin bearer token")
	fs.StringVar(&secret, "secret", "", "JWT secret to mint a token with")
	fs.StringVar(&admin, "admin", "admin", "administrator name for minted tokens")
	fs.DurationVar(&validity, "validity", time.Hour, "validity of minted tokens")
	fs.DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	fs.Usage = func() { printHelp(fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		printHelp(fs)
		return errUsage
	}
	cmd, rest := rest[0], rest[1:]

	if secret != "" {
		minted, err := auth.GenerateToken(admin, []byte(secret), validity)
		if err != nil {
			return err
		}
		token = minted
	}
	if cmd == "token" {
		if token == "" {
			return errors.New("token: --secret is required")
		}
		fmt.Fprintln(stdout, token)
		return nil
	}
	if token == "" {
		return errors.New("no admin token: use --token, LEDGER_ADMIN_TOKEN or --secret")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	c := adminapi.NewClient(baseURL, token, nil)

	need := func(n int, usage string) error {
		if len(rest) < n {
			return fmt.Errorf("%w: %s %s", errUsage, cmd, usage)
		}
		return nil
	}

	switch cmd {
	case "list":
		list, err := c.List(ctx)
		if err != nil {
			return err
		}
		printAccounts(stdout, list)
		return nil

	case "relays":
		relays, err := c.Relays(ctx)
		if err != nil {
			return err
		}
		printRelays(stdout, relays)
		return nil

	case "create":
		if err := need(2, "<name> <password> [balance]"); err != nil {
			return err
		}
		balance := decimal.Zero
		if len(rest) > 2 {
			var err error
			if balance, err = money.Parse(rest[2]); err != nil {
				return err
			}
		}
		return c.Create(ctx, rest[0], rest[1], balance)

	case "delete":
		if err := need(1, "<name>"); err != nil {
			return err
		}
		return c.Delete(ctx, rest[0])

	case "set-balance":
		if err := need(2, "<name> <amount>"); err != nil {
			return err
		}
		amount, err := money.Parse(rest[1])
		if err != nil {
			return err
		}
		return c.SetBalance(ctx, rest[0], amount)

	case "lock":
		if err := need(1, "<name> [reason...]"); err != nil {
			return err
		}
		return c.Lock(ctx, rest[0], strings.Join(rest[1:], " "))

	case "unlock":
		if err := need(1, "<name>"); err != nil {
			return err
		}
		return c.Unlock(ctx, rest[0])

	case "reset-credential":
		if err := need(2, "<name> <password>"); err != nil {
			return err
		}
		return c.ResetCredential(ctx, rest[0], rest[1])

	default:
		printHelp(fs)
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func printAccounts(w io.Writer, list []adminapi.Account) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tBALANCE\tONLINE\tLOCKED\tTXNS\tRELAY")
	for _, a := range list {
		locked := "-"
		if a.Locked {
			locked = "yes"
			if a.LockReason != "" {
				locked += " (" + a.LockReason + ")"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%d\t%s\n", a.Name, a.Balance, a.Online, locked, a.TransactionCount, a.RelayHint)
	}
	_ = tw.Flush()
}

func printRelays(w io.Writer, relays []adminapi.Relay) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tNAME\tLAST SEEN\tENDPOINTS")
	for _, r := range relays {
		seen := time.UnixMilli(r.LastSeen).UTC().Format(time.RFC3339)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", r.Address, r.Name, seen, r.Endpoints)
	}
	_ = tw.Flush()
}

func printHelp(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `ledger-admin manages ledger accounts through the admin API.

Usage:
  ledger-admin [flags] <command> [args]

Commands:
  token                               print a freshly minted token (needs --secret)
  list                                list accounts
  relays                              list relays the server has heard from
  create <name> <password> [balance]  create an account
  delete <name>                       delete an account
  set-balance <name> <amount>         overwrite a balance
  lock <name> [reason...]             lock an account
  unlock <name>                       unlock an account
  reset-credential <name> <password>  set a new password

Flags:
`)
	fs.SetOutput(os.Stderr)
	fs.PrintDefaults()
}
