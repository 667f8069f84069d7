package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/flagx"
)

// parseFlags populates selected relay Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-n string   relay name on the broadcast medium
//	-s string   server name on the broadcast medium
//	-m string   multicast group
//	-i string   multicast interface name
//	-g string   gRPC tunnel bind address
//	-w string   websocket tunnel bind address
//	-b int      heartbeat interval, seconds
//	-r float    per-endpoint requests per second, 0 disables limiting
//	-level      log level
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-n", "-s", "-m", "-i", "-g", "-w", "-b", "-r", "-level"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.Name, "n", config.Name, "relay name on the broadcast medium")
	fs.StringVar(&config.Server, "s", config.Server, "server name on the broadcast medium")
	fs.StringVar(&config.MulticastGroup, "m", config.MulticastGroup, "multicast group address")
	fs.StringVar(&config.MulticastInterface, "i", config.MulticastInterface, "multicast interface")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC tunnel address")
	fs.StringVar(&config.WebsocketAddr, "w", config.WebsocketAddr, "websocket tunnel address")

	heartbeat := fs.Int("b", int(config.HeartbeatInterval.Seconds()), "heartbeat interval (in seconds)")

	fs.Float64Var(&config.RateLimit, "r", config.RateLimit, "per-endpoint request rate")
	fs.StringVar(&config.LogLevel, "level", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.HeartbeatInterval = time.Duration(*heartbeat) * time.Second
}
