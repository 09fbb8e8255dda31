package config

import "fmt"

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// recognizedProviders is the set of model identifiers the gateway can build.
var recognizedProviders = map[string]bool{
	"Gemini-Pro": true,
	"Cohere":     true,
	"ChatGPT":    true,
	"DeepSeek":   true,
}

var recognizedBackends = map[string]bool{
	"local": true,
	"gcs":   true,
}

var recognizedLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		add("server.port", "must be between 0 and 65535, got %d", cfg.Server.Port)
	}

	l := cfg.LLM
	if !recognizedProviders[l.Provider] {
		add("llm.provider", "unrecognized provider %q", l.Provider)
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		add("llm.temperature", "must be between 0 and 2")
	}
	if l.RateLimit.MaxCalls < 1 {
		add("llm.rate_limit.max_calls", "must be at least 1")
	}
	if l.RateLimit.Period <= 0 {
		add("llm.rate_limit.period", "must be positive")
	}
	if l.Retry.Attempts < 1 {
		add("llm.retry.attempts", "must be at least 1")
	}
	if l.Retry.Multiplier < 1 {
		add("llm.retry.multiplier", "must be at least 1")
	}
	if l.Retry.MaxDelay < l.Retry.BaseDelay {
		add("llm.retry.max_delay", "must not be below base_delay")
	}
	for agent, limit := range l.TokenLimits {
		if limit < 1 {
			add("llm.token_limits."+agent, "must be positive, got %d", limit)
		}
	}

	if cfg.Database.DSN == "" {
		add("database.dsn", "is required")
	}

	s := cfg.Storage
	if !recognizedBackends[s.Backend] {
		add("storage.backend", "unrecognized backend %q", s.Backend)
	}
	if s.Backend == "local" && s.LocalDir == "" {
		add("storage.local_dir", "is required for the local backend")
	}
	if s.Backend == "gcs" && s.GCS.Bucket == "" {
		add("storage.gcs.bucket", "is required for the gcs backend")
	}

	if cfg.Retrieval.Concurrency < 1 {
		add("retrieval.concurrency", "must be at least 1")
	}
	if cfg.Retrieval.MaxBodyBytes < 1 {
		add("retrieval.max_body_bytes", "must be positive")
	}

	if cfg.Keywords.TopN < 1 {
		add("keywords.top_n", "must be at least 1")
	}
	if cfg.Keywords.Diversity < 0 || cfg.Keywords.Diversity > 1 {
		add("keywords.diversity", "must be between 0 and 1")
	}

	if !recognizedLevels[cfg.Log.Level] {
		add("log.level", "unrecognized level %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "console" {
		add("log.format", "must be json or console")
	}

	return errs
}
