package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support TOML and YAML unmarshalling.
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
	return d.UnmarshalText([]byte(value.Value))
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration for TOML encoding.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config captures runtime configuration for fixedrated.
type Config struct {
	ListenAddress   string          `toml:"ListenAddress" yaml:"listen"`
	DataDir         string          `toml:"DataDir" yaml:"data_dir"`
	JournalPath     string          `toml:"JournalPath" yaml:"journal"`
	EngineAddress   string          `toml:"EngineAddress" yaml:"engine_address"`
	AllowedCreators []string        `toml:"AllowedCreators" yaml:"allowed_creators"`
	ShutdownTimeout Duration        `toml:"ShutdownTimeout" yaml:"shutdown_timeout"`
	Fees            FeeConfig       `toml:"fees" yaml:"fees"`
	RateLimit       RateLimitConfig `toml:"ratelimit" yaml:"ratelimit"`
	Auth            AuthConfig      `toml:"auth" yaml:"auth"`
	Telemetry       TelemetryConfig `toml:"telemetry" yaml:"telemetry"`
	Log             LogConfig       `toml:"log" yaml:"log"`
	Tokens          []TokenConfig   `toml:"tokens" yaml:"tokens"`
}

// FeeConfig is the registry-level protocol fee. ProtocolFeeRate is a decimal
// integer in 1e18 fixed point.
type FeeConfig struct {
	ProtocolFeeRate string   `toml:"ProtocolFeeRate" yaml:"protocol_fee_rate"`
	Collector       string   `toml:"Collector" yaml:"collector"`
	Exempt          []string `toml:"Exempt" yaml:"exempt"`
}

// RateLimitConfig throttles requests per client address.
type RateLimitConfig struct {
	RequestsPerSecond float64  `toml:"RequestsPerSecond" yaml:"rps"`
	Burst             int      `toml:"Burst" yaml:"burst"`
	EntryTTL          Duration `toml:"EntryTTL" yaml:"entry_ttl"`
}

// AuthConfig controls signed request verification.
type AuthConfig struct {
	MaxClockSkew Duration `toml:"MaxClockSkew" yaml:"max_clock_skew"`
}

// TelemetryConfig configures the OTLP exporters.
type TelemetryConfig struct {
	Endpoint    string  `toml:"Endpoint" yaml:"endpoint"`
	Insecure    bool    `toml:"Insecure" yaml:"insecure"`
	Headers     string  `toml:"Headers" yaml:"headers"`
	Metrics     bool    `toml:"Metrics" yaml:"metrics"`
	Traces      bool    `toml:"Traces" yaml:"traces"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"sample_ratio"`
	Environment string  `toml:"Environment" yaml:"environment"`
}

// LogConfig selects an optional rotating log file.
type LogConfig struct {
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
}

// TokenConfig seeds the reference token ledger. Balances map account
// addresses to raw integer amounts.
type TokenConfig struct {
	Address  string            `toml:"Address" yaml:"address"`
	Symbol   string            `toml:"Symbol" yaml:"symbol"`
	Name     string            `toml:"Name" yaml:"name"`
	Decimals uint8             `toml:"Decimals" yaml:"decimals"`
	Balances map[string]string `toml:"Balances" yaml:"balances"`
}

const (
	envListen   = "FIXEDRATED_LISTEN"
	envDataDir  = "FIXEDRATED_DATA_DIR"
	envJournal  = "FIXEDRATED_JOURNAL"
	envEndpoint = "FIXEDRATED_OTLP_ENDPOINT"
	envLogFile  = "FIXEDRATED_LOG_FILE"
	envEnv      = "FIXEDRATED_ENV"
)

// LoadEnv reads dotenv files into the process environment. Missing files are
// skipped and existing variables are never overwritten.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load reads configuration from the supplied path. Files ending in .yaml or
// .yml are decoded as YAML, everything else as TOML. Environment overrides are
// applied after decoding.
func Load(path string) (Config, error) {
	cfg := Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	default:
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return cfg, fmt.Errorf("config %s: unknown key %s", path, undecoded[0])
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Default returns a configuration with defaults applied and no tokens.
func Default() Config {
	cfg := Config{}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&cfg.ListenAddress, envListen)
	override(&cfg.DataDir, envDataDir)
	override(&cfg.JournalPath, envJournal)
	override(&cfg.Telemetry.Endpoint, envEndpoint)
	override(&cfg.Log.File, envLogFile)
	override(&cfg.Telemetry.Environment, envEnv)
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7080"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data/fixedrated"
	}
	if cfg.JournalPath == "" {
		cfg.JournalPath = filepath.Join(cfg.DataDir, "journal.sqlite")
	}
	if cfg.EngineAddress == "" {
		cfg.EngineAddress = DefaultEngineAddress.Hex()
	}
	if cfg.ShutdownTimeout.Duration == 0 {
		cfg.ShutdownTimeout.Duration = 10 * time.Second
	}
	if strings.TrimSpace(cfg.Fees.ProtocolFeeRate) == "" {
		cfg.Fees.ProtocolFeeRate = "0"
	}
	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 20
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 40
	}
	if cfg.RateLimit.EntryTTL.Duration == 0 {
		cfg.RateLimit.EntryTTL.Duration = 10 * time.Minute
	}
	if cfg.Auth.MaxClockSkew.Duration == 0 {
		cfg.Auth.MaxClockSkew.Duration = 2 * time.Minute
	}
	if cfg.Telemetry.Environment == "" {
		cfg.Telemetry.Environment = "dev"
	}
	if cfg.Log.File != "" {
		if cfg.Log.MaxSizeMB <= 0 {
			cfg.Log.MaxSizeMB = 100
		}
		if cfg.Log.MaxBackups <= 0 {
			cfg.Log.MaxBackups = 5
		}
	}
}
