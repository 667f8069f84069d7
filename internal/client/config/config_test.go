package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "127.0.0.1:7000", c.RelayAddr)
	assert.Equal(t, TunnelGRPC, c.Tunnel)
	assert.Equal(t, "ledger-relay", c.RelayName)
	assert.Empty(t, c.Endpoint)
	assert.Equal(t, "client", c.Kind)
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.Equal(t, 10*time.Second, c.AdminTimeout)
	assert.Equal(t, 30*time.Second, c.KeepAliveInterval)
}

func TestLoadConfig_GeneratesEndpoint(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	cfg := LoadConfig()
	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.True(t, strings.HasPrefix(cfg.Endpoint, "ep-"), cfg.Endpoint)
	assert.Equal(t, "127.0.0.1:7000", cfg.RelayAddr)

	os.Args = []string{"testbin", "-e", "ctl-1"}
	assert.Equal(t, "ctl-1", LoadConfig().Endpoint)
}
