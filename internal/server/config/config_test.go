package config

import (
	"os"
	"testing"
	"time"

	"github.com/dmitrijs2005/linkledger/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "ledger-server", c.Name)
	assert.Equal(t, "239.77.77.77:47000", c.MulticastGroup)
	assert.Equal(t, 1, c.MulticastTTL)
	assert.Equal(t, "127.0.0.1:8081", c.AdminAddr)
	assert.Equal(t, []string{"dir:data/replica-1", "dir:data/replica-2", "bolt:data/replica-3.db"}, c.Volumes)
	assert.Equal(t, 0, c.WriteQuorum)
	assert.Equal(t, "zstd", c.Compression)
	assert.Equal(t, "secretKey", c.JWTSecret)
	assert.Equal(t, 30*time.Minute, c.SessionTimeout)
	assert.Equal(t, "data/audit.log", c.AuditLog)
	assert.Equal(t, storage.S3Config{Region: "us-east-1", BaseEndpoint: "http://127.0.0.1:9000/"}, c.S3)
	assert.Equal(t, 32, c.Workers)
	assert.Equal(t, 10*time.Second, c.MaintenanceInterval)
	assert.Equal(t, 30*time.Second, c.RelayTTL)
	assert.Equal(t, 32, c.HistoryLength)
	assert.Equal(t, "info", c.LogLevel)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	c := LoadConfig()
	require.NotNil(t, c, "LoadConfig must not return nil")

	var want Config
	want.LoadDefaults()
	assert.Equal(t, &want, c)
}
