package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
instance:
  id: bridge-1
target:
  url: wss://example.com/stream
`

func TestLoadAndValidate_Minimal(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}

	if cfg.Instance.ID != "bridge-1" {
		t.Errorf("instance.id = %q", cfg.Instance.ID)
	}
	if cfg.Connection.SendResolveDelay != DefaultSendResolveDelay {
		t.Errorf("send_resolve_delay = %v, want default %v",
			cfg.Connection.SendResolveDelay, DefaultSendResolveDelay)
	}
	if cfg.Connection.RedialMaxDelay != DefaultRedialMaxDelay {
		t.Errorf("redial_max_delay = %v, want default", cfg.Connection.RedialMaxDelay)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("metrics.port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
	if cfg.Relay.SubjectPrefix != DefaultSubjectPrefix {
		t.Errorf("relay.subject_prefix = %q, want default", cfg.Relay.SubjectPrefix)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("BRIDGE_TARGET", "wss://env.example.com/ws")
	path := writeConfig(t, `
instance:
  id: bridge-env
target:
  url: ${BRIDGE_TARGET}
`)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Target.URL != "wss://env.example.com/ws" {
		t.Errorf("target.url = %q, want expanded env value", cfg.Target.URL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
instance:
  id: bridge-2
target:
  url: ws://localhost:8080/ws
  headers:
    Authorization: Bearer token
connection:
  send_resolve_delay: 250ms
  handshake_timeout: 3s
journal:
  enabled: true
  batch_size: 100
  database:
    host: localhost
    name: events
    user: bridge
    password: secret
relay:
  enabled: true
  url: nats://localhost:4222
  subject_prefix: custom
`)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}

	if cfg.Connection.SendResolveDelay != 250*time.Millisecond {
		t.Errorf("send_resolve_delay = %v, want 250ms", cfg.Connection.SendResolveDelay)
	}
	if cfg.Connection.HandshakeTimeout != 3*time.Second {
		t.Errorf("handshake_timeout = %v, want 3s", cfg.Connection.HandshakeTimeout)
	}
	if cfg.Target.Headers["Authorization"] != "Bearer token" {
		t.Errorf("headers = %v", cfg.Target.Headers)
	}
	if cfg.Journal.BatchSize != 100 {
		t.Errorf("journal.batch_size = %d, want 100", cfg.Journal.BatchSize)
	}
	if cfg.Journal.Database.Port != DefaultDBPort {
		t.Errorf("journal db port = %d, want default", cfg.Journal.Database.Port)
	}
	if cfg.Relay.SubjectPrefix != "custom" {
		t.Errorf("relay.subject_prefix = %q, want custom", cfg.Relay.SubjectPrefix)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing instance id", `
target:
  url: wss://x
`},
		{"missing target url", `
instance:
  id: a
`},
		{"bad scheme", `
instance:
  id: a
target:
  url: https://example.com
`},
		{"journal without db host", `
instance:
  id: a
target:
  url: wss://x
journal:
  enabled: true
  database:
    name: events
    user: u
    password: p
`},
		{"relay without url", `
instance:
  id: a
target:
  url: wss://x
relay:
  enabled: true
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			if _, err := LoadAndValidate(path); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/bridge.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
