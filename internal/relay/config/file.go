package config

import (
	"os"

	"github.com/dmitrijs2005/linkledger/internal/configx"
	"github.com/dmitrijs2005/linkledger/internal/flagx"
	"github.com/dmitrijs2005/linkledger/internal/timex"
)

// FileConfig is the on-disk shape of Config.
type FileConfig struct {
	Name               string          `json:"name" yaml:"name"`
	Server             string          `json:"server" yaml:"server"`
	MulticastGroup     string          `json:"multicast_group" yaml:"multicast_group"`
	MulticastInterface string          `json:"multicast_interface" yaml:"multicast_interface"`
	MulticastTTL       *int            `json:"multicast_ttl" yaml:"multicast_ttl"`
	GRPCAddr           *string         `json:"grpc_addr" yaml:"grpc_addr"`
	WebsocketAddr      *string         `json:"websocket_addr" yaml:"websocket_addr"`
	HeartbeatInterval  *timex.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	StaleBeats         int             `json:"stale_beats" yaml:"stale_beats"`
	EndpointTTL        *timex.Duration `json:"endpoint_ttl" yaml:"endpoint_ttl"`
	RateLimit          *float64        `json:"rate_limit" yaml:"rate_limit"`
	RateBurst          int             `json:"rate_burst" yaml:"rate_burst"`
	LogLevel           string          `json:"log_level" yaml:"log_level"`
}

// parseFile loads configuration values from the file named by -c or -config.
func parseFile(config *Config) {
	path := flagx.ConfigFileFlag(os.Args[1:])
	if path == "" {
		return
	}

	c := &FileConfig{}
	if err := configx.DecodeFile(path, c); err != nil {
		panic(err)
	}
	c.apply(config)
}

func (c *FileConfig) apply(config *Config) {
	setString(&config.Name, c.Name)
	setString(&config.Server, c.Server)
	setString(&config.MulticastGroup, c.MulticastGroup)
	setString(&config.MulticastInterface, c.MulticastInterface)
	if c.MulticastTTL != nil {
		config.MulticastTTL = *c.MulticastTTL
	}
	if c.GRPCAddr != nil {
		config.GRPCAddr = *c.GRPCAddr
	}
	if c.WebsocketAddr != nil {
		config.WebsocketAddr = *c.WebsocketAddr
	}
	if c.HeartbeatInterval != nil {
		config.HeartbeatInterval = c.HeartbeatInterval.Duration
	}
	if c.StaleBeats > 0 {
		config.StaleBeats = c.StaleBeats
	}
	if c.EndpointTTL != nil {
		config.EndpointTTL = c.EndpointTTL.Duration
	}
	if c.RateLimit != nil {
		config.RateLimit = *c.RateLimit
	}
	if c.RateBurst > 0 {
		config.RateBurst = c.RateBurst
	}
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
