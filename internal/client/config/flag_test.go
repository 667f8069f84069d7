package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"cmd", "-a", "ws://relay:7001/tunnel", "-t", "ws", "-n", "relay-b", "-timeout", "2"},
			expected: &Config{RelayAddr: "ws://relay:7001/tunnel", Tunnel: "ws", RelayName: "relay-b", Timeout: 2 * time.Second}},
		{name: "Test2 kind and endpoint", args: []string{"cmd", "-k", "controller", "-e", "ctl-1", "-name", "till-3", "-level", "debug", "-x", "ignored"},
			expected: &Config{Kind: "controller", Endpoint: "ctl-1", Name: "till-3", LogLevel: "debug"}},
		{name: "Test3 incorrect timeout", args: []string{"cmd", "-timeout", "abc"}, expectPanic: true, expected: &Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(tt.expected, config))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
