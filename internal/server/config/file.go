package config

import (
	"os"

	"github.com/dmitrijs2005/linkledger/internal/configx"
	"github.com/dmitrijs2005/linkledger/internal/flagx"
	"github.com/dmitrijs2005/linkledger/internal/storage"
	"github.com/dmitrijs2005/linkledger/internal/timex"
)

// FileConfig is the on-disk shape of Config. Durations accept "30m" style
// strings or integer nanoseconds. Only fields present in the file override
// the current values.
type FileConfig struct {
	Name                string            `json:"name" yaml:"name"`
	MulticastGroup      string            `json:"multicast_group" yaml:"multicast_group"`
	MulticastInterface  string            `json:"multicast_interface" yaml:"multicast_interface"`
	MulticastTTL        *int              `json:"multicast_ttl" yaml:"multicast_ttl"`
	AdminAddr           *string           `json:"admin_addr" yaml:"admin_addr"`
	Volumes             []string          `json:"volumes" yaml:"volumes"`
	WriteQuorum         *int              `json:"write_quorum" yaml:"write_quorum"`
	Compression         string            `json:"compression" yaml:"compression"`
	CredentialSecret    string            `json:"credential_secret" yaml:"credential_secret"`
	CredentialSalt      string            `json:"credential_salt" yaml:"credential_salt"`
	JWTSecret           string            `json:"jwt_secret" yaml:"jwt_secret"`
	SessionTimeout      *timex.Duration   `json:"session_timeout" yaml:"session_timeout"`
	AuditLog            *string           `json:"audit_log" yaml:"audit_log"`
	S3                  *storage.S3Config `json:"s3" yaml:"s3"`
	Workers             int               `json:"workers" yaml:"workers"`
	MaintenanceInterval *timex.Duration   `json:"maintenance_interval" yaml:"maintenance_interval"`
	RelayTTL            *timex.Duration   `json:"relay_ttl" yaml:"relay_ttl"`
	EntityTTL           *timex.Duration   `json:"entity_ttl" yaml:"entity_ttl"`
	HistoryLength       int               `json:"history_length" yaml:"history_length"`
	LogLevel            string            `json:"log_level" yaml:"log_level"`
}

// parseFile loads configuration values from the file named by -c or -config.
// Without either flag nothing is loaded. Unreadable or undecodable files
// panic, like invalid flags do.
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
	setString(&config.MulticastGroup, c.MulticastGroup)
	setString(&config.MulticastInterface, c.MulticastInterface)
	if c.MulticastTTL != nil {
		config.MulticastTTL = *c.MulticastTTL
	}
	if c.AdminAddr != nil {
		config.AdminAddr = *c.AdminAddr
	}
	if c.Volumes != nil {
		config.Volumes = c.Volumes
	}
	if c.WriteQuorum != nil {
		config.WriteQuorum = *c.WriteQuorum
	}
	setString(&config.Compression, c.Compression)
	setString(&config.CredentialSecret, c.CredentialSecret)
	setString(&config.CredentialSalt, c.CredentialSalt)
	setString(&config.JWTSecret, c.JWTSecret)
	if c.SessionTimeout != nil {
		config.SessionTimeout = c.SessionTimeout.Duration
	}
	if c.AuditLog != nil {
		config.AuditLog = *c.AuditLog
	}
	if c.S3 != nil {
		config.S3 = *c.S3
	}
	if c.Workers > 0 {
		config.Workers = c.Workers
	}
	if c.MaintenanceInterval != nil {
		config.MaintenanceInterval = c.MaintenanceInterval.Duration
	}
	if c.RelayTTL != nil {
		config.RelayTTL = c.RelayTTL.Duration
	}
	if c.EntityTTL != nil {
		config.EntityTTL = c.EntityTTL.Duration
	}
	if c.HistoryLength > 0 {
		config.HistoryLength = c.HistoryLength
	}
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
