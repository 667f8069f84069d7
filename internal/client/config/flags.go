package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-t", "-n", "-e", "-name", "-k", "-timeout", "-level"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.RelayAddr, "a", cfg.RelayAddr, "relay tunnel address")
	fs.StringVar(&cfg.Tunnel, "t", cfg.Tunnel, "tunnel kind (grpc or ws)")
	fs.StringVar(&cfg.RelayName, "n", cfg.RelayName, "relay name")
	fs.StringVar(&cfg.Endpoint, "e", cfg.Endpoint, "endpoint address")
	fs.StringVar(&cfg.Name, "name", cfg.Name, "display name announced to the relay")
	fs.StringVar(&cfg.Kind, "k", cfg.Kind, "endpoint kind")
	timeout := fs.Int("timeout", int(cfg.Timeout.Seconds()), "request timeout (in seconds)")
	fs.StringVar(&cfg.LogLevel, "level", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.Timeout = time.Duration(*timeout) * time.Second
}
