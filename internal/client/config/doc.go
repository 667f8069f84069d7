// Package config loads runtime configuration for the ledger client CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON or YAML file selected via -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   relay tunnel address: host:port for grpc, ws:// URL for websocket
//	-t string   tunnel kind, grpc or ws
//	-n string   relay name (the relay's address on its tunnels)
//	-e string   this endpoint's address; generated when empty
//	-name string display name announced to the relay
//	-k string   endpoint kind: client, controller or manager
//	-timeout int  request timeout (seconds)
//	-level string log level
//
// # File schema
//
// Intervals use timex.Duration, so values can be strings like "5s" or integer
// nanoseconds:
//
//	{
//	  "relay_addr": "127.0.0.1:7000",
//	  "tunnel": "grpc",
//	  "relay_name": "ledger-relay",
//	  "timeout": "5s",
//	  "keep_alive_interval": "30s"
//	}
//
// Note: This package does not read environment variables directly.
package config
