package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("store: /tmp/apx.json\n"))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.MaxConnections != DefaultMaxConnections {
		t.Errorf("MaxConnections = %d", cfg.MaxConnections)
	}
	if cfg.HandshakeTimeout != DefaultHandshakeTimeout {
		t.Errorf("HandshakeTimeout = %v", cfg.HandshakeTimeout)
	}
	if cfg.EventUpdateInterval != time.Second {
		t.Errorf("EventUpdateInterval = %v", cfg.EventUpdateInterval)
	}
}

func TestParseConfig_Values(t *testing.T) {
	data := []byte(`
listen_addr: 127.0.0.1:6000
max_connections: 5
handshake_timeout: 250ms
status_addr: :8080
event_log: /var/log/apx.log
event_update_interval: 100ms
tap_addr: tcp://127.0.0.1:6001
store: postgres://apx@localhost/apx
log_level: debug
`)
	cfg, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:6000" || cfg.MaxConnections != 5 || cfg.HandshakeTimeout != 250*time.Millisecond {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.TapAddr != "tcp://127.0.0.1:6001" || cfg.Store != "postgres://apx@localhost/apx" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		field string
	}{
		{"bad listen address", "listen_addr: nope\n", "listen_addr"},
		{"short handshake", "handshake_timeout: 1ms\n", "handshake_timeout"},
		{"bad log level", "log_level: loud\n", "log_level"},
		{"bad tap scheme", "tap_addr: http://x\n", "tap_addr"},
		{"bad store scheme", "store: mysql://x\n", "store"},
		{"bad status address", "status_addr: x\n", "status_addr"},
		{"not yaml", "listen_addr: [\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data))
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.field != "" && !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not name %s", err, tt.field)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apx-server.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: 127.0.0.1:0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != "127.0.0.1:0" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
