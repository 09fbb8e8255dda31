package config

import "time"

// Config is the top-level configuration structure parsed from nexa YAML.
type Config struct {
	Server    Server    `yaml:"server"`
	LLM       LLM       `yaml:"llm"`
	Database  Database  `yaml:"database"`
	Storage   Storage   `yaml:"storage"`
	Retrieval Retrieval `yaml:"retrieval"`
	Keywords  Keywords  `yaml:"keywords"`
	Prompts   Prompts   `yaml:"prompts"`
	Log       Log       `yaml:"log"`
}

// Server configures the HTTP layer.
type Server struct {
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	DefaultUser       string        `yaml:"default_user"`
}

// LLM selects the provider and tunes the gateway.
type LLM struct {
	Provider    string         `yaml:"provider"`
	Model       string         `yaml:"model"`
	APIKey      string         `yaml:"api_key"`
	BaseURL     string         `yaml:"base_url"`
	Temperature float32        `yaml:"temperature"`
	RateLimit   RateLimit      `yaml:"rate_limit"`
	Retry       Retry          `yaml:"retry"`
	TokenLimits map[string]int `yaml:"token_limits"`
}

// RateLimit bounds calls per rolling period across all runs.
type RateLimit struct {
	MaxCalls int           `yaml:"max_calls"`
	Period   time.Duration `yaml:"period"`
}

// Retry is the backoff applied to provider rate-limit errors.
type Retry struct {
	Attempts   int           `yaml:"attempts"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	Multiplier float64       `yaml:"multiplier"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

// Database holds the conversation store DSN. A postgres:// URL selects pgx,
// anything else is treated as a sqlite path.
type Database struct {
	DSN string `yaml:"dsn"`
}

// Storage configures where generated project files are kept.
type Storage struct {
	Backend  string `yaml:"backend"`
	LocalDir string `yaml:"local_dir"`
	GCS      GCS    `yaml:"gcs"`
}

// GCS points at a Cloud Storage bucket.
type GCS struct {
	Bucket          string `yaml:"bucket"`
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

// Retrieval tunes the search + fetch collaborator.
type Retrieval struct {
	SearchURL      string        `yaml:"search_url"`
	MaxResults     int           `yaml:"max_results"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	Concurrency    int           `yaml:"concurrency"`
	SearchInterval time.Duration `yaml:"search_interval"`
}

// Keywords tunes keyword extraction.
type Keywords struct {
	TopN      int     `yaml:"top_n"`
	Diversity float64 `yaml:"diversity"`
}

// Prompts points at an optional directory of template overrides.
type Prompts struct {
	Dir string `yaml:"dir"`
}

// Log configures the zap logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
