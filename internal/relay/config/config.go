// Package config handles configuration for the relay, including defaults,
// a JSON or YAML file overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for a relay.
//
// Fields:
//   - Name: the relay's address on the broadcast medium, also reported to
//     endpoints as relay_name.
//   - Server: the account server's broadcast address.
//   - MulticastGroup / MulticastInterface / MulticastTTL: the broadcast medium.
//   - GRPCAddr: bind address of the gRPC tunnel; empty disables it.
//   - WebsocketAddr: bind address of the websocket tunnel; empty disables it.
//   - HeartbeatInterval: period of relay_heartbeat frames and staleness checks.
//   - StaleBeats: silent heartbeat intervals before the server counts as down.
//   - EndpointTTL: idle endpoints are dropped after this long.
//   - RateLimit / RateBurst: per-endpoint request budget (requests per second).
//   - LogLevel: debug, info, warn or error.
type Config struct {
	Name               string
	Server             string
	MulticastGroup     string
	MulticastInterface string
	MulticastTTL       int
	GRPCAddr           string
	WebsocketAddr      string
	HeartbeatInterval  time.Duration
	StaleBeats         int
	EndpointTTL        time.Duration
	RateLimit          float64
	RateBurst          int
	LogLevel           string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.Name = "ledger-relay"
	c.Server = "ledger-server"
	c.MulticastGroup = "239.77.77.77:47000"
	c.MulticastInterface = ""
	c.MulticastTTL = 1
	c.GRPCAddr = "127.0.0.1:7000"
	c.WebsocketAddr = "127.0.0.1:7001"
	c.HeartbeatInterval = 5 * time.Second
	c.StaleBeats = 3
	c.EndpointTTL = 90 * time.Second
	c.RateLimit = 20
	c.RateBurst = 40
	c.LogLevel = "info"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional config file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	return cfg
}
