// Package config loads the bot's static, restart-only settings: API base
// URLs, storage DSN, logging, and the chain poll interval. Everything
// an operator needs to change without restarting the process lives in
// domain.RuntimeConfig instead, persisted through RuntimeConfigStorage.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete static configuration for the copy-trading bot.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	Chain   ChainConfig   `yaml:"chain"`
}

// APIConfig contains the base URLs of the Polymarket endpoints this bot
// speaks to: CLOB order/book reads and writes, Gamma market metadata, the
// Data API's trade history feed, and the public market WebSocket.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
	DataBase  string `yaml:"data_base"`
	WSBase    string `yaml:"ws_base"`
}

// StorageConfig controls where persisted data lives.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // path to the SQLite file, or ":memory:"
}

// LogConfig controls logging format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// ChainConfig holds the chain-side settings; PollInterval is its only field.
// PollInterval governs how often the chain listener (when enabled) checks
// for market resolution events; it has no live-secret content so it stays
// in the static file rather than RuntimeConfig.
type ChainConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Secrets holds the operator's live credentials — never read from YAML,
// never logged, and fatal to start without once live trading is requested.
type Secrets struct {
	// WalletPrivateKey signs both CLOB L1/L2 auth and on-chain transactions.
	WalletPrivateKey string
	// RPCURL is the Polygon JSON-RPC endpoint used for on-chain balance and
	// share-balance reads.
	RPCURL string
}

// Load reads the YAML config file and applies any .env overrides. Load
// never reads secrets — call LoadSecrets separately, and only once live
// (non-dry-run) operation is actually requested.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // silently ignore a missing .env

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// LoadSecrets reads the live-trading credentials from the environment.
// Both are fatal to omit: a private key error means no order can ever be
// signed, and a missing RPC URL means on-chain balance/approval checks can
// never run. Neither is ever logged.
func LoadSecrets() (Secrets, error) {
	key := os.Getenv("POLY_PRIVATE_KEY")
	if key == "" {
		return Secrets{}, fmt.Errorf("config.LoadSecrets: POLY_PRIVATE_KEY is not set")
	}
	rpcURL := os.Getenv("POLYGON_RPC_URL")
	if rpcURL == "" {
		return Secrets{}, fmt.Errorf("config.LoadSecrets: POLYGON_RPC_URL is not set")
	}
	return Secrets{WalletPrivateKey: key, RPCURL: rpcURL}, nil
}

// applyEnvOverrides overrides YAML values with environment variables where
// present — infra knobs only, never secrets.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

// setDefaults fills in sane values for anything the operator left blank.
func setDefaults(cfg *Config) {
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = "https://data-api.polymarket.com"
	}
	if cfg.API.WSBase == "" {
		cfg.API.WSBase = "wss://ws-subscriptions-clob.polymarket.com/ws"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polybot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Chain.PollInterval <= 0 {
		cfg.Chain.PollInterval = 30 * time.Second
	}
}
