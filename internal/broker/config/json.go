package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/docbroker/internal/flagx"
	"github.com/dmitrijs2005/docbroker/internal/timex"
)

// JsonPerDocument mirrors the "per_document" configuration block.
type JsonPerDocument struct {
	LimitStoreFailures *int  `json:"limit_store_failures"`
	AlwaysSaveOnExit   *bool `json:"always_save_on_exit"`
}

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It is an intermediate DTO: after unmarshalling, its
// fields are copied into the runtime Config struct. Pointer fields
// distinguish "absent" from zero values so the JSON overlay only touches
// what it names.
type JsonConfig struct {
	EndpointAddrGRPC *string          `json:"endpoint_addr_grpc"`
	DatabaseDSN      *string          `json:"database_dsn"`
	StorageBackend   *string          `json:"storage_backend"`
	PerDocument      *JsonPerDocument `json:"per_document"`
	ShutdownTimeout  *timex.Duration  `json:"shutdown_timeout"`
	S3RootUser       *string          `json:"s3_root_user"`
	S3RootPassword   *string          `json:"s3_root_password"`
	S3Bucket         *string          `json:"s3_bucket"`
	S3Region         *string          `json:"s3_region"`
	S3BaseEndpoint   *string          `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags; when
// neither is set, no JSON file is loaded. An unreadable or invalid file
// panics: a broker pointed at broken configuration must not start.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.EndpointAddrGRPC != nil {
		config.EndpointAddrGRPC = *c.EndpointAddrGRPC
	}
	if c.DatabaseDSN != nil {
		config.DatabaseDSN = *c.DatabaseDSN
	}
	if c.StorageBackend != nil {
		config.StorageBackend = *c.StorageBackend
	}
	if c.PerDocument != nil {
		if c.PerDocument.LimitStoreFailures != nil {
			config.LimitStoreFailures = *c.PerDocument.LimitStoreFailures
		}
		if c.PerDocument.AlwaysSaveOnExit != nil {
			config.AlwaysSaveOnExit = *c.PerDocument.AlwaysSaveOnExit
		}
	}
	if c.ShutdownTimeout != nil {
		config.ShutdownTimeout = time.Duration(c.ShutdownTimeout.Duration)
	}
	if c.S3RootUser != nil {
		config.S3RootUser = *c.S3RootUser
	}
	if c.S3RootPassword != nil {
		config.S3RootPassword = *c.S3RootPassword
	}
	if c.S3Bucket != nil {
		config.S3Bucket = *c.S3Bucket
	}
	if c.S3Region != nil {
		config.S3Region = *c.S3Region
	}
	if c.S3BaseEndpoint != nil {
		config.S3BaseEndpoint = *c.S3BaseEndpoint
	}
}
