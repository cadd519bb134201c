package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultProbeTimeout     = 10 * time.Second
	DefaultSendResolveDelay = 1 * time.Second
	DefaultRedialBaseDelay  = 1 * time.Second
	DefaultRedialMaxDelay   = 60 * time.Second
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultBatchSize        = 500
	DefaultFlushInterval    = 1 * time.Second
	DefaultSubjectPrefix    = "wsbridge"
	DefaultConnectTimeout   = 5 * time.Second
	DefaultReconnectWait    = 2 * time.Second
	DefaultMaxReconnects    = -1 // retry forever
	DefaultMetricsPort      = 9090
	DefaultMetricsPath      = "/metrics"
)

func (c *BridgeConfig) applyDefaults() {
	// Connection defaults
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.ProbeTimeout == 0 {
		c.Connection.ProbeTimeout = DefaultProbeTimeout
	}
	if c.Connection.SendResolveDelay == 0 {
		c.Connection.SendResolveDelay = DefaultSendResolveDelay
	}
	if c.Connection.RedialBaseDelay == 0 {
		c.Connection.RedialBaseDelay = DefaultRedialBaseDelay
	}
	if c.Connection.RedialMaxDelay == 0 {
		c.Connection.RedialMaxDelay = DefaultRedialMaxDelay
	}

	// Journal defaults
	applyDBDefaults(&c.Journal.Database)
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}

	// Relay defaults
	if c.Relay.SubjectPrefix == "" {
		c.Relay.SubjectPrefix = DefaultSubjectPrefix
	}
	if c.Relay.ConnectTimeout == 0 {
		c.Relay.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Relay.ReconnectWait == 0 {
		c.Relay.ReconnectWait = DefaultReconnectWait
	}
	if c.Relay.MaxReconnects == 0 {
		c.Relay.MaxReconnects = DefaultMaxReconnects
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
