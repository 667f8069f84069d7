package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Balance(ctx context.Context) error
	Transfer(ctx context.Context, args []string) error
	List(ctx context.Context) error
	WhereIs(ctx context.Context, args []string) error
	Nearby(ctx context.Context, args []string) error
}

// runREPL starts a simple read-eval-print loop for the ledger CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. The loop exits on scanner EOF or
// when the user types "exit" or "quit".
//
//	Not logged in:
//	  - help                          show available commands
//	  - login                         authenticate
//	  - list                          list accounts
//	  - whereis <entity>              show an entity's position
//	  - nearby <x> <y> <z> <radius>   entities around a point
//	  - exit | quit                   leave the program
//
//	Logged in, additionally:
//	  - balance                       show own balance
//	  - transfer <recipient> <amount> move funds
//	  - logout                        end the session
//
// Errors returned by command handlers are ignored here; handlers report
// their own errors.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("ledger %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: (b)alance, (t)ransfer, (l)ist, whereis, nearby, logout, exit")
			} else {
				printlnFn("Available commands: login, (l)ist, whereis, nearby, exit")
			}

		case "login":
			_ = a.Login(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "b", "balance":
			_ = a.Balance(ctx)

		case "t", "transfer":
			_ = a.Transfer(ctx, args)

		case "l", "list":
			_ = a.List(ctx)

		case "whereis":
			_ = a.WhereIs(ctx, args)

		case "nearby":
			_ = a.Nearby(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
