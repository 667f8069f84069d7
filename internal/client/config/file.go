package config

import (
	"os"

	"github.com/dmitrijs2005/linkledger/internal/configx"
	"github.com/dmitrijs2005/linkledger/internal/flagx"
	"github.com/dmitrijs2005/linkledger/internal/timex"
)

// FileConfig is a DTO used only for decoding the config file. Zero values
// leave the defaults in place.
type FileConfig struct {
	RelayAddr         string         `json:"relay_addr" yaml:"relay_addr"`
	Tunnel            string         `json:"tunnel" yaml:"tunnel"`
	RelayName         string         `json:"relay_name" yaml:"relay_name"`
	Endpoint          string         `json:"endpoint" yaml:"endpoint"`
	Name              string         `json:"name" yaml:"name"`
	Kind              string         `json:"kind" yaml:"kind"`
	Timeout           timex.Duration `json:"timeout" yaml:"timeout"`
	AdminTimeout      timex.Duration `json:"admin_timeout" yaml:"admin_timeout"`
	KeepAliveInterval timex.Duration `json:"keep_alive_interval" yaml:"keep_alive_interval"`
	LogLevel          string         `json:"log_level" yaml:"log_level"`
}

// parseFile overlays cfg with the file named by -c or -config. It panics on
// read or decode errors.
func parseFile(cfg *Config) {
	path := flagx.ConfigFileFlag(os.Args[1:])
	if path == "" {
		return
	}

	var fc FileConfig
	if err := configx.DecodeFile(path, &fc); err != nil {
		panic(err)
	}

	for dst, v := range map[*string]string{
		&cfg.RelayAddr: fc.RelayAddr,
		&cfg.Tunnel:    fc.Tunnel,
		&cfg.RelayName: fc.RelayName,
		&cfg.Endpoint:  fc.Endpoint,
		&cfg.Name:      fc.Name,
		&cfg.Kind:      fc.Kind,
		&cfg.LogLevel:  fc.LogLevel,
	} {
		if v != "" {
			*dst = v
		}
	}
	if fc.Timeout.Duration > 0 {
		cfg.Timeout = fc.Timeout.Duration
	}
	if fc.AdminTimeout.Duration > 0 {
		cfg.AdminTimeout = fc.AdminTimeout.Duration
	}
	if fc.KeepAliveInterval.Duration > 0 {
		cfg.KeepAliveInterval = fc.KeepAliveInterval.Duration
	}
}
