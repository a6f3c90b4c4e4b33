package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"swapledger/crypto"
	"swapledger/native/swap"
)

const (
	defaultListenAddress = ":8545"
	defaultDataDir       = "./swap-data"
	defaultNetworkName   = "swap-local"
	defaultEnv           = "dev"
)

// Config is the swapd configuration file.
type Config struct {
	ListenAddress string          `toml:"ListenAddress"`
	DataDir       string          `toml:"DataDir"`
	NetworkName   string          `toml:"NetworkName"`
	ContractID    string          `toml:"ContractID"`
	Env           string          `toml:"Env"`
	LogLevel      string          `toml:"LogLevel"`
	LogFile       string          `toml:"LogFile"`
	RateLimit     RateLimitConfig `toml:"RateLimit"`
	Telemetry     TelemetryConfig `toml:"Telemetry"`
	Pairs         []swap.Pair     `toml:"Pairs"`
}

// RateLimitConfig bounds JSON-RPC traffic per client address.
type RateLimitConfig struct {
	RequestsPerMinute int  `toml:"RequestsPerMinute"`
	Burst             int  `toml:"Burst"`
	TrustProxy        bool `toml:"TrustProxy"`
}

// TelemetryConfig configures the OTLP exporters.
type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Headers  string `toml:"Headers"`
	Insecure bool   `toml:"Insecure"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

// Load loads the configuration from the given path, writing a default file
// first when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := ensureContractID(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Contract decodes the configured contract address.
func (c *Config) Contract() (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(c.ContractID))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("config: ContractID: %w", err)
	}
	if addr.Prefix() != crypto.ContractPrefix {
		return crypto.Address{}, fmt.Errorf("config: ContractID must use the %s prefix", crypto.ContractPrefix)
	}
	return addr, nil
}

// Validate reports configuration values the daemon cannot run with.
func (c *Config) Validate() error {
	if _, err := c.Contract(); err != nil {
		return err
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("config: RateLimit values must be non-negative")
	}
	seen := make(map[string]struct{}, len(c.Pairs))
	for _, pair := range c.Pairs {
		if pair.RateDen == 0 {
			return fmt.Errorf("config: pair %s has zero denominator", pair.Name())
		}
		name := strings.ToUpper(pair.Name())
		if _, dup := seen[name]; dup {
			return fmt.Errorf("config: duplicate pair %s", pair.Name())
		}
		seen[name] = struct{}{}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = defaultListenAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = defaultNetworkName
	}
	if strings.TrimSpace(c.Env) == "" {
		c.Env = defaultEnv
	}
	if c.RateLimit.RequestsPerMinute == 0 {
		c.RateLimit.RequestsPerMinute = 600
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 60
	}
	if c.Pairs == nil {
		c.Pairs = swap.DefaultPairs()
	}
}

// ensureContractID assigns a fresh contract address to configs that do not
// carry one and persists it so restarts keep addressing the same state.
func ensureContractID(path string, cfg *Config) error {
	if strings.TrimSpace(cfg.ContractID) != "" {
		return nil
	}
	id, err := newContractID()
	if err != nil {
		return err
	}
	cfg.ContractID = id
	return persist(path, cfg)
}

func newContractID() (string, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return "", err
	}
	raw := key.PubKey().Address().Raw()
	addr, err := crypto.NewAddress(crypto.ContractPrefix, raw[:])
	if err != nil {
		return "", err
	}
	return addr.String(), nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	id, err := newContractID()
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		ListenAddress: defaultListenAddress,
		DataDir:       defaultDataDir,
		NetworkName:   defaultNetworkName,
		ContractID:    id,
		Env:           defaultEnv,
		LogLevel:      "info",
		RateLimit:     RateLimitConfig{RequestsPerMinute: 600, Burst: 60},
		Pairs:         swap.DefaultPairs(),
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
