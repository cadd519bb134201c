package config

import "time"

// BridgeConfig is the root configuration for a bridge instance.
type BridgeConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Target     TargetConfig     `yaml:"target"`
	Connection ConnectionConfig `yaml:"connection"`
	Journal    JournalConfig    `yaml:"journal"`
	Relay      RelayConfig      `yaml:"relay"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// InstanceConfig identifies this bridge.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// TargetConfig describes the WebSocket endpoint to bridge.
type TargetConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"` // extra handshake headers
}

// ConnectionConfig holds connection manager settings.
type ConnectionConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout"`
	SendResolveDelay time.Duration `yaml:"send_resolve_delay"`
	RedialBaseDelay  time.Duration `yaml:"redial_base_delay"`
	RedialMaxDelay   time.Duration `yaml:"redial_max_delay"`
}

// JournalConfig holds event journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DBConfig holds a PostgreSQL connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RelayConfig holds NATS republishing settings.
type RelayConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	SubjectPrefix  string        `yaml:"subject_prefix"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait"`
	MaxReconnects  int           `yaml:"max_reconnects"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
