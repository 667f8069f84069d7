package config

import (
	"time"

	"github.com/google/uuid"
)

// Tunnel kinds.
const (
	TunnelGRPC      = "grpc"
	TunnelWebsocket = "ws"
)

// Config holds runtime settings for the ledger CLI.
//
// Fields:
//   - RelayAddr: where the relay's tunnel listens.
//   - Tunnel: TunnelGRPC or TunnelWebsocket.
//   - RelayName: the relay's own address, the peer of every frame.
//   - Endpoint: this endpoint's address as seen by the relay.
//   - Name: display name announced on registration; empty means the address.
//   - Kind: the endpoint kind announced on registration.
//   - Timeout / AdminTimeout: per-call response deadlines.
//   - KeepAliveInterval: endpoint_heartbeat period.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	RelayAddr         string
	Tunnel            string
	RelayName         string
	Endpoint          string
	Name              string
	Kind              string
	Timeout           time.Duration
	AdminTimeout      time.Duration
	KeepAliveInterval time.Duration
	LogLevel          string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.RelayAddr = "127.0.0.1:7000"
	c.Tunnel = TunnelGRPC
	c.RelayName = "ledger-relay"
	c.Endpoint = ""
	c.Name = ""
	c.Kind = "client"
	c.Timeout = 5 * time.Second
	c.AdminTimeout = 10 * time.Second
	c.KeepAliveInterval = 30 * time.Second
	c.LogLevel = "warn"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// a config file (if present) and command-line flags (if present). An empty
// Endpoint is replaced by a random one.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "ep-" + uuid.NewString()
	}
	return cfg
}
