package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a nexa configuration from the given YAML file path.
// After parsing, it fills unset fields with defaults and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the first
// one found. Search order: ./nexa.yaml, ~/.nexa/config.yaml. When neither
// exists the built-in defaults are returned.
func LoadDefault() (*Config, error) {
	candidates := []string{"nexa.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".nexa", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return Default(), nil
}

// Default returns a config with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.Server.DefaultUser == "" {
		cfg.Server.DefaultUser = "local"
	}

	l := &cfg.LLM
	if l.Provider == "" {
		l.Provider = "ChatGPT"
	}
	if l.Temperature == 0 {
		l.Temperature = 0.2
	}
	if l.RateLimit.MaxCalls == 0 {
		l.RateLimit.MaxCalls = 10
	}
	if l.RateLimit.Period == 0 {
		l.RateLimit.Period = 60 * time.Second
	}
	if l.Retry.Attempts == 0 {
		l.Retry.Attempts = 5
	}
	if l.Retry.BaseDelay == 0 {
		l.Retry.BaseDelay = 4 * time.Second
	}
	if l.Retry.Multiplier == 0 {
		l.Retry.Multiplier = 2
	}
	if l.Retry.MaxDelay == 0 {
		l.Retry.MaxDelay = 20 * time.Second
	}
	// Overrides only; the gateway fills in the built-in table.
	limits := make(map[string]int, len(l.TokenLimits))
	for k, v := range l.TokenLimits {
		limits[strings.ToLower(k)] = v
	}
	l.TokenLimits = limits

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = filepath.Join(nexaHome(), "nexa.db")
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "local"
	}
	if cfg.Storage.LocalDir == "" {
		cfg.Storage.LocalDir = filepath.Join(nexaHome(), "projects")
	}

	r := &cfg.Retrieval
	if r.SearchURL == "" {
		r.SearchURL = "https://html.duckduckgo.com/html/"
	}
	if r.MaxResults == 0 {
		r.MaxResults = 5
	}
	if r.FetchTimeout == 0 {
		r.FetchTimeout = 15 * time.Second
	}
	if r.MaxBodyBytes == 0 {
		r.MaxBodyBytes = 1 << 20
	}
	if r.Concurrency == 0 {
		r.Concurrency = 1
	}
	if r.SearchInterval == 0 {
		r.SearchInterval = time.Second
	}

	if cfg.Keywords.TopN == 0 {
		cfg.Keywords.TopN = 5
	}
	if cfg.Keywords.Diversity == 0 {
		cfg.Keywords.Diversity = 0.7
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// applyEnv lets deployment secrets and URLs override the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("NEXA_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("NEXA_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("NEXA_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("NEXA_GCS_BUCKET"); v != "" {
		cfg.Storage.Backend = "gcs"
		cfg.Storage.GCS.Bucket = v
	}
}

// nexaHome returns ~/.nexa, or .nexa when the home directory is unknown.
func nexaHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nexa"
	}
	return filepath.Join(home, ".nexa")
}
