package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/ARIHARAN-KC/nexa/internal/prompt"
)

// resetFlags clears flag values left over from earlier Execute calls on the
// shared command tree.
func resetFlags(cmd *cobra.Command) {
	for _, name := range []string{"help", "format", "user", "yes", "since"} {
		if f := cmd.Flags().Lookup(name); f != nil {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func executeCommand(args ...string) (string, error) {
	configPath = ""
	logLevel = ""
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// writeConfig writes a config pointing the database and object store into a
// temp dir and returns its path.
func writeConfig(t *testing.T, provider string) string {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("NEXA_PROVIDER", "")

	dir := t.TempDir()
	body := fmt.Sprintf(`llm:
  provider: %s
database:
  dsn: %s
storage:
  backend: local
  local_dir: %s
log:
  level: error
`, provider, filepath.Join(dir, "nexa.db"), filepath.Join(dir, "projects"))

	path := filepath.Join(dir, "nexa.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersionCommand(t *testing.T) {
	SetVersion("test-version")
	out, err := executeCommand("version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "nexa version test-version") {
		t.Errorf("expected version output to contain 'test-version', got: %s", out)
	}
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedSubcommands := []string{
		"serve", "run", "fix", "history", "analytics",
		"config", "db", "prompts", "version",
	}
	for _, sub := range expectedSubcommands {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing subcommand %q", sub)
		}
	}
}

func TestSubcommandHelp(t *testing.T) {
	cmds := [][]string{
		{"history", "list"},
		{"history", "show"},
		{"history", "delete"},
		{"history", "clear"},
		{"analytics", "run"},
		{"config", "validate"},
		{"config", "show"},
		{"db", "migrate"},
		{"db", "reset"},
		{"prompts", "list"},
		{"prompts", "install"},
		{"serve"},
		{"run"},
		{"fix"},
	}
	for _, c := range cmds {
		out, err := executeCommand(append(c, "--help")...)
		if err != nil {
			t.Errorf("%s --help failed: %v", strings.Join(c, " "), err)
		}
		if out == "" {
			t.Errorf("%s --help produced no output", strings.Join(c, " "))
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	_, err := executeCommand("nonexistent")
	if err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestRunRequiresPrompt(t *testing.T) {
	path := writeConfig(t, "ChatGPT")
	if _, err := executeCommand("run", "-c", path); err == nil {
		t.Error("expected error when no prompt is given")
	}
}

func TestConfigValidate(t *testing.T) {
	path := writeConfig(t, "ChatGPT")
	out, err := executeCommand("config", "validate", "-c", path)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Configuration is valid.") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestConfigValidateRejectsProvider(t *testing.T) {
	path := writeConfig(t, "Llama")
	out, err := executeCommand("config", "validate", "-c", path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(out, `llm.provider: unrecognized provider "Llama"`) {
		t.Errorf("expected provider error, got: %s", out)
	}
}

func TestConfigShowMasksKey(t *testing.T) {
	path := writeConfig(t, "ChatGPT")
	t.Setenv("NEXA_API_KEY", "sk-secret")

	out, err := executeCommand("config", "show", "-c", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "sk-secret") {
		t.Error("api key leaked into config show")
	}
	if !strings.Contains(out, "provider: ChatGPT") {
		t.Errorf("expected provider in output, got: %s", out)
	}
}

func TestDBMigrateAndHistory(t *testing.T) {
	path := writeConfig(t, "ChatGPT")

	out, err := executeCommand("db", "migrate", "-c", path)
	if err != nil {
		t.Fatalf("db migrate: %v", err)
	}
	if !strings.Contains(out, "Schema up to date (sqlite3)") {
		t.Errorf("unexpected migrate output: %s", out)
	}

	out, err = executeCommand("history", "list", "-c", path)
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	if !strings.Contains(out, "No conversations found.") {
		t.Errorf("unexpected history output: %s", out)
	}

	out, err = executeCommand("history", "clear", "-c", path)
	if err != nil {
		t.Fatalf("history clear: %v", err)
	}
	if !strings.Contains(out, "Deleted 0 conversation(s).") {
		t.Errorf("unexpected clear output: %s", out)
	}
}

func TestHistoryShowRejectsBadID(t *testing.T) {
	path := writeConfig(t, "ChatGPT")
	if _, err := executeCommand("history", "show", "abc", "-c", path); err == nil {
		t.Error("expected error for non-numeric id")
	}
}

func TestDBResetNeedsConfirmation(t *testing.T) {
	path := writeConfig(t, "ChatGPT")
	_, err := executeCommand("db", "reset", "-c", path)
	if err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Errorf("expected refusal without --yes, got %v", err)
	}
}

func TestAnalyticsEmpty(t *testing.T) {
	path := writeConfig(t, "ChatGPT")
	out, err := executeCommand("analytics", "-c", path)
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if !strings.Contains(out, "No runs recorded.") {
		t.Errorf("unexpected analytics output: %s", out)
	}

	if _, err := executeCommand("analytics", "run", "missing-run", "-c", path); err == nil {
		t.Error("expected error for unknown run id")
	}
}

func TestPromptsInstall(t *testing.T) {
	path := writeConfig(t, "ChatGPT")
	dir := filepath.Join(t.TempDir(), "prompts")

	out, err := executeCommand("prompts", "install", dir, "-c", path)
	if err != nil {
		t.Fatalf("prompts install: %v", err)
	}
	for _, name := range prompt.Names() {
		if !strings.Contains(out, "wrote "+name) {
			t.Errorf("expected %s to be written, got: %s", name, out)
		}
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("template %s not on disk: %v", name, err)
		}
	}

	out, err = executeCommand("prompts", "install", dir, "-c", path)
	if err != nil {
		t.Fatalf("second install: %v", err)
	}
	if !strings.Contains(out, "All templates already present.") {
		t.Errorf("expected no-op install, got: %s", out)
	}
}

func TestPromptsList(t *testing.T) {
	path := writeConfig(t, "ChatGPT")
	out, err := executeCommand("prompts", "list", "-c", path)
	if err != nil {
		t.Fatalf("prompts list: %v", err)
	}
	for _, name := range prompt.Names() {
		if !strings.Contains(out, name) {
			t.Errorf("list missing %s", name)
		}
	}
}
