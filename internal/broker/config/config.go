// Package config handles configuration for the document broker,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the document broker.
//
// Fields:
//   - EndpointAddrGRPC: bind address for the session-channel gRPC endpoint.
//   - DatabaseDSN: PostgreSQL DSN (pgx) for the upload-attempt audit trail;
//     empty keeps the audit trail in memory.
//   - StorageBackend: "memory" or "s3".
//   - LimitStoreFailures: maximum PutFile attempts per modification cycle
//     before the broker gives up (per_document.limit_store_failures).
//   - AlwaysSaveOnExit: attempt an upload at unload time even when the
//     modified flag was already cleared (per_document.always_save_on_exit).
//   - ShutdownTimeout: grace period for draining on shutdown.
//   - S3RootUser / S3RootPassword: credentials for the S3-compatible backend.
//   - S3Bucket / S3Region / S3BaseEndpoint: object storage settings.
type Config struct {
	EndpointAddrGRPC   string
	DatabaseDSN        string
	StorageBackend     string
	LimitStoreFailures int
	AlwaysSaveOnExit   bool
	ShutdownTimeout    time.Duration
	S3RootUser         string
	S3RootPassword     string
	S3Bucket           string
	S3Region           string
	S3BaseEndpoint     string
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.EndpointAddrGRPC = ":50052"
	c.DatabaseDSN = ""
	c.StorageBackend = "memory"
	c.LimitStoreFailures = 5
	c.AlwaysSaveOnExit = false
	c.ShutdownTimeout = 10 * time.Second
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "documents"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
