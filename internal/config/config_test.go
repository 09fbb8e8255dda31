package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validConfig = `
server:
  port: 9090
llm:
  provider: DeepSeek
  api_key: sk-test
  temperature: 0.4
  rate_limit:
    max_calls: 2
    period: 30s
  retry:
    attempts: 3
    base_delay: 1s
    multiplier: 2
    max_delay: 5s
  token_limits:
    Coder: 8192
database:
  dsn: /tmp/nexa-test.db
storage:
  backend: local
  local_dir: /tmp/nexa-projects
retrieval:
  concurrency: 2
keywords:
  top_n: 7
log:
  level: debug
  format: console
`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"NEXA_PROVIDER", "NEXA_MODEL", "NEXA_API_KEY", "DATABASE_URL", "NEXA_GCS_BUCKET"} {
		t.Setenv(k, "")
	}
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "nexa.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeTestConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.LLM.Provider != "DeepSeek" {
		t.Errorf("Provider = %q, want %q", cfg.LLM.Provider, "DeepSeek")
	}
	if cfg.LLM.RateLimit.MaxCalls != 2 || cfg.LLM.RateLimit.Period != 30*time.Second {
		t.Errorf("RateLimit = %+v, want 2/30s", cfg.LLM.RateLimit)
	}
	if cfg.LLM.Retry.MaxDelay != 5*time.Second {
		t.Errorf("Retry.MaxDelay = %v, want 5s", cfg.LLM.Retry.MaxDelay)
	}
	if cfg.Keywords.TopN != 7 {
		t.Errorf("TopN = %d, want 7", cfg.Keywords.TopN)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}
}

func TestLoadLowercasesTokenLimits(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeTestConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if got := cfg.LLM.TokenLimits["coder"]; got != 8192 {
		t.Errorf("coder limit = %d, want 8192 (keys are lowercased)", got)
	}
	if _, ok := cfg.LLM.TokenLimits["planner"]; ok {
		t.Error("planner should not be present; only overrides are kept")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Default()

	if cfg.LLM.Provider != "ChatGPT" {
		t.Errorf("Provider = %q, want ChatGPT", cfg.LLM.Provider)
	}
	if cfg.LLM.RateLimit.MaxCalls != 10 || cfg.LLM.RateLimit.Period != time.Minute {
		t.Errorf("RateLimit = %+v, want 10/1m", cfg.LLM.RateLimit)
	}
	r := cfg.LLM.Retry
	if r.Attempts != 5 || r.BaseDelay != 4*time.Second || r.Multiplier != 2 || r.MaxDelay != 20*time.Second {
		t.Errorf("Retry = %+v, want 5 attempts 4s x2 cap 20s", r)
	}
	if cfg.Keywords.TopN != 5 || cfg.Keywords.Diversity != 0.7 {
		t.Errorf("Keywords = %+v, want top 5 diversity 0.7", cfg.Keywords)
	}
	if cfg.Retrieval.Concurrency != 1 {
		t.Errorf("Concurrency = %d, want 1", cfg.Retrieval.Concurrency)
	}
	if !strings.HasSuffix(cfg.Database.DSN, "nexa.db") {
		t.Errorf("DSN = %q, want a nexa.db path", cfg.Database.DSN)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("Validate(Default()) = %v, want no errors", errs)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("NEXA_PROVIDER", "Cohere")
	t.Setenv("NEXA_API_KEY", "env-key")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/nexa")
	t.Setenv("NEXA_GCS_BUCKET", "nexa-projects")

	cfg, err := Load(writeTestConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LLM.Provider != "Cohere" {
		t.Errorf("Provider = %q, want Cohere", cfg.LLM.Provider)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want env-key", cfg.LLM.APIKey)
	}
	if cfg.Database.DSN != "postgres://u:p@localhost/nexa" {
		t.Errorf("DSN = %q", cfg.Database.DSN)
	}
	if cfg.Storage.Backend != "gcs" || cfg.Storage.GCS.Bucket != "nexa-projects" {
		t.Errorf("Storage = %+v, want gcs/nexa-projects", cfg.Storage)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("error = %v, want reading config file prefix", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeTestConfig(t, "llm: [unclosed"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "parsing config YAML") {
		t.Errorf("error = %v, want parsing config YAML prefix", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.LLM.Provider = "Llama"
	cfg.LLM.RateLimit.MaxCalls = 0
	cfg.Storage.Backend = "gcs"
	cfg.Keywords.Diversity = 1.5
	cfg.Log.Level = "chatty"

	errs := Validate(cfg)
	want := map[string]bool{
		"llm.provider":             false,
		"llm.rate_limit.max_calls": false,
		"storage.gcs.bucket":       false,
		"keywords.diversity":       false,
		"log.level":                false,
	}
	for _, e := range errs {
		if _, ok := want[e.Field]; ok {
			want[e.Field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("expected validation error for %s, got %v", field, errs)
		}
	}
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Field: "llm.provider", Message: "is required"}
	if e.Error() != "llm.provider: is required" {
		t.Errorf("Error() = %q", e.Error())
	}
}

func TestLoadDefaultPrefersWorkingDirectory(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "nexa.yaml"), []byte(validConfig), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error: %v", err)
	}
	if cfg.LLM.Provider != "DeepSeek" {
		t.Errorf("Provider = %q, want DeepSeek from ./nexa.yaml", cfg.LLM.Provider)
	}
}
