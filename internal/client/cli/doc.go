// Package cli provides the interactive ledger command-line client.
//
// It connects to a relay over a gRPC or websocket tunnel, registers as an
// endpoint and runs a REPL on top of the client library. The session lives
// only in memory: the server re-checks the credential on every call.
//
// Key features:
//   - Login / Logout
//   - Balance and Transfer
//   - List accounts with their online flag
//   - Look up tracked entities (whereis, nearby)
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
