package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	if value.Value == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for the swap indexer.
type Config struct {
	ListenAddress string   `yaml:"listen"`
	DatabasePath  string   `yaml:"database"`
	NodeURL       string   `yaml:"node"`
	Reconnect     Duration `yaml:"reconnect"`
	HistoryLimit  int      `yaml:"history_limit"`
	LogLevel      string   `yaml:"log_level"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7080"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "./swap-indexer.sqlite"
	}
	if cfg.Reconnect.Duration == 0 {
		cfg.Reconnect.Duration = 2 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}
}

func validate(cfg Config) error {
	raw := strings.TrimSpace(cfg.NodeURL)
	if raw == "" {
		return fmt.Errorf("node websocket url must be configured")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse node url: %w", err)
	}
	switch parsed.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("node url must use ws, wss, http or https")
	}
	if cfg.Reconnect.Duration < 0 {
		return fmt.Errorf("reconnect must be positive")
	}
	return nil
}
