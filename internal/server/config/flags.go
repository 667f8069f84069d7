package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-n string   server name on the broadcast medium
//	-m string   multicast group (e.g., "239.77.77.77:47000")
//	-i string   multicast interface name
//	-a string   admin HTTP bind address, empty disables
//	-v string   comma separated volume specs
//	-q int      write quorum
//	-z string   chunk compression (zstd, lz4, none)
//	-s string   JWT HMAC secret key
//	-k string   credential secret
//	-t int      session timeout, minutes
//	-l string   audit log path
//	-w int      handler workers
//	-level      log level
//
// Notes:
//   - os.Args is first filtered to the flags handled here using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - The session timeout is accepted as an integer in minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-n", "-m", "-i", "-a", "-v", "-q", "-z", "-s", "-k", "-t", "-l", "-w", "-level"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.Name, "n", config.Name, "server name on the broadcast medium")
	fs.StringVar(&config.MulticastGroup, "m", config.MulticastGroup, "multicast group address")
	fs.StringVar(&config.MulticastInterface, "i", config.MulticastInterface, "multicast interface")
	fs.StringVar(&config.AdminAddr, "a", config.AdminAddr, "admin API address")
	volumes := fs.String("v", strings.Join(config.Volumes, ","), "storage volumes")
	fs.IntVar(&config.WriteQuorum, "q", config.WriteQuorum, "write quorum")
	fs.StringVar(&config.Compression, "z", config.Compression, "chunk compression")
	fs.StringVar(&config.JWTSecret, "s", config.JWTSecret, "secret key")
	fs.StringVar(&config.CredentialSecret, "k", config.CredentialSecret, "credential secret")

	sessionTimeout := fs.Int("t", int(config.SessionTimeout.Minutes()), "session timeout (in minutes)")

	fs.StringVar(&config.AuditLog, "l", config.AuditLog, "audit log path")
	fs.IntVar(&config.Workers, "w", config.Workers, "handler workers")
	fs.StringVar(&config.LogLevel, "level", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.Volumes = splitList(*volumes)
	config.SessionTimeout = time.Duration(*sessionTimeout) * time.Minute
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
