package config

import (
	"time"
)

// Config is the process-bootstrap configuration read once at startup --
// transport endpoint, persistence paths, and the optional analytics
// mirror. Everything the OCPP protocol itself can change at runtime
// (meter value intervals, heartbeat interval, supported measurands, ...)
// lives in internal/variables.Store instead, loaded from its own file and
// mutated by ChangeConfiguration/SetVariables.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Station   StationConfig   `mapstructure:"station"`
	CSMS      CSMSConfig      `mapstructure:"csms"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or text
	Output string `mapstructure:"output"` // stdout, stderr, or file path
}

// StationConfig identifies this charge point and selects its protocol.
type StationConfig struct {
	ID              string `mapstructure:"id"`
	ProtocolVersion string `mapstructure:"protocol_version"` // "1.6" or "2.0.1"
	VendorName      string `mapstructure:"vendor_name"`
	Model           string `mapstructure:"model"`
	SerialNumber    string `mapstructure:"serial_number"`
	FirmwareVersion string `mapstructure:"firmware_version"`
	ConnectorCount  int    `mapstructure:"connector_count"`
}

// CSMSConfig holds the outbound connection's target and retry policy.
type CSMSConfig struct {
	URL                  string        `mapstructure:"url"`
	ConnectionTimeout    time.Duration `mapstructure:"connection_timeout"`
	HeartbeatInterval    time.Duration `mapstructure:"heartbeat_interval"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	ReconnectBackoff     time.Duration `mapstructure:"reconnect_backoff"`
	ReconnectMaxBackoff  time.Duration `mapstructure:"reconnect_max_backoff"`
	TLS                  TLSCSMSConfig `mapstructure:"tls"`
	BasicAuthUsername    string        `mapstructure:"basic_auth_username"`
	BasicAuthPassword    string        `mapstructure:"basic_auth_password"`
}

// TLSCSMSConfig holds TLS configuration for the CSMS connection.
type TLSCSMSConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	CACert             string `mapstructure:"ca_cert"`
	ClientCert         string `mapstructure:"client_cert"`
	ClientKey          string `mapstructure:"client_key"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// StorageConfig points at the directory internal/persistence.Dir writes
// journal, variable, auth list, reservation, profile, and certificate
// records into.
type StorageConfig struct {
	Directory string `mapstructure:"directory"`
}

// AnalyticsConfig configures the optional internal/analytics mirror. If
// Enabled is false the charge point runs with no analytics mirror at all --
// it is never required for correctness. Enabled with an empty MongoDB.URI
// is rejected by Load.
type AnalyticsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	MongoDB       MongoDBConfig `mapstructure:"mongodb"`
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	Collection    string        `mapstructure:"collection"`
}

// MongoDBConfig holds MongoDB connection configuration for the analytics
// mirror.
type MongoDBConfig struct {
	URI               string        `mapstructure:"uri"`
	Database          string        `mapstructure:"database"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	MaxPoolSize       uint64        `mapstructure:"max_pool_size"`
}
