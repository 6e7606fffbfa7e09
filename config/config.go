package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"cyberswap/crypto"
)

type LogConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File,omitempty"`
	MaxSizeMB  int    `toml:"MaxSizeMB,omitempty"`
	MaxBackups int    `toml:"MaxBackups,omitempty"`
	MaxAgeDays int    `toml:"MaxAgeDays,omitempty"`
}

type RPCConfig struct {
	RequestsPerMinute   float64 `toml:"RequestsPerMinute"`
	Burst               int     `toml:"Burst"`
	TrustForwardedFor   bool    `toml:"TrustForwardedFor"`
	ReadTimeoutSeconds  int     `toml:"ReadTimeoutSeconds"`
	WriteTimeoutSeconds int     `toml:"WriteTimeoutSeconds"`
}

type OTELConfig struct {
	Endpoint string `toml:"Endpoint,omitempty"`
	Insecure bool   `toml:"Insecure"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

type Config struct {
	RPCAddress    string     `toml:"RPCAddress"`
	DataDir       string     `toml:"DataDir"`
	GenesisFile   string     `toml:"GenesisFile"`
	AddressPrefix string     `toml:"AddressPrefix"`
	Environment   string     `toml:"Environment"`
	Log           LogConfig  `toml:"Log"`
	RPC           RPCConfig  `toml:"RPC"`
	OTEL          OTELConfig `toml:"OTEL"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0].String())
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written on first run.
func Default() *Config {
	cfg := &Config{
		RPCAddress:  ":26657",
		DataDir:     "./cyberswap-data",
		GenesisFile: "genesis.yaml",
		RPC: RPCConfig{
			RequestsPerMinute: 600,
			Burst:             60,
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.AddressPrefix) == "" {
		c.AddressPrefix = string(crypto.DefaultPrefix)
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = "info"
	}
	if c.RPC.ReadTimeoutSeconds <= 0 {
		c.RPC.ReadTimeoutSeconds = 15
	}
	if c.RPC.WriteTimeoutSeconds <= 0 {
		c.RPC.WriteTimeoutSeconds = 15
	}
}

// Validate rejects configurations the node cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("RPCAddress must be set")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	if c.RPC.RequestsPerMinute < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("RPC rate limits must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// ResolvePath interprets p relative to the directory of the config file.
func ResolvePath(configPath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), p)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
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
