package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "indexer.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "node: ws://localhost:8545/ws/events\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":7080" || cfg.HistoryLimit != 100 || cfg.Reconnect.Duration != 2*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadParsesValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `listen: 127.0.0.1:9000
database: /tmp/idx.sqlite
node: wss://node.example/ws/events
reconnect: 750ms
history_limit: 25
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Reconnect.Duration != 750*time.Millisecond || cfg.HistoryLimit != 25 || cfg.DatabasePath != "/tmp/idx.sqlite" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]string{
		"missing node":  "listen: :1\n",
		"bad scheme":    "node: ftp://node\n",
		"bad duration":  "node: ws://node\nreconnect: soon\n",
		"unknown field": "node: ws://node\nbogus: 1\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, contents)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil || !strings.Contains(err.Error(), "open config") {
		t.Fatalf("expected open error, got %v", err)
	}
}
