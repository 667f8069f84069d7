// Package config handles configuration for the account server,
// including defaults, a JSON or YAML file overlay, and command-line flags.
package config

import (
	"time"

	"github.com/dmitrijs2005/linkledger/internal/storage"
)

// Config holds runtime settings for the account server.
//
// Fields:
//   - Name: the server's address on the broadcast medium. Relays forward to it.
//   - MulticastGroup / MulticastInterface / MulticastTTL: the broadcast medium.
//   - AdminAddr: bind address of the admin HTTP API; empty disables it.
//   - Volumes: storage volume specs (dir:, bolt:, sqlite:, postgres:, s3:).
//   - WriteQuorum: volumes that must confirm a write; 0 picks a default.
//   - Compression: chunk compression, "zstd", "lz4" or "none".
//   - CredentialSecret / CredentialSalt: key material for credential digests.
//     Changing them invalidates every stored credential.
//   - JWTSecret: HMAC secret for admin tokens (HS256). Do not use test defaults in prod.
//   - SessionTimeout: idle timeout of client sessions.
//   - AuditLog: path of the JSON lines audit log; empty disables auditing.
//   - S3: connection settings used by s3: volumes.
//   - Workers: concurrently running request handlers.
//   - MaintenanceInterval / RelayTTL / EntityTTL / HistoryLength: housekeeping.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	Name                string
	MulticastGroup      string
	MulticastInterface  string
	MulticastTTL        int
	AdminAddr           string
	Volumes             []string
	WriteQuorum         int
	Compression         string
	CredentialSecret    string
	CredentialSalt      string
	JWTSecret           string
	SessionTimeout      time.Duration
	AuditLog            string
	S3                  storage.S3Config
	Workers             int
	MaintenanceInterval time.Duration
	RelayTTL            time.Duration
	EntityTTL           time.Duration
	HistoryLength       int
	LogLevel            string
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: the secrets are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.Name = "ledger-server"
	c.MulticastGroup = "239.77.77.77:47000"
	c.MulticastInterface = ""
	c.MulticastTTL = 1
	c.AdminAddr = "127.0.0.1:8081"
	c.Volumes = []string{"dir:data/replica-1", "dir:data/replica-2", "bolt:data/replica-3.db"}
	c.WriteQuorum = 0
	c.Compression = "zstd"
	c.CredentialSecret = "credentialSecret"
	c.CredentialSalt = "linkledger"
	c.JWTSecret = "secretKey"
	c.SessionTimeout = 30 * time.Minute
	c.AuditLog = "data/audit.log"
	c.S3 = storage.S3Config{Region: "us-east-1", BaseEndpoint: "http://127.0.0.1:9000/"}
	c.Workers = 32
	c.MaintenanceInterval = 10 * time.Second
	c.RelayTTL = 30 * time.Second
	c.EntityTTL = 0
	c.HistoryLength = 32
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
