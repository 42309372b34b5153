package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"AGENT_SESSIONS_HTTP_ADDR",
		"AGENT_SESSIONS_DATA_DIR",
		"AGENT_SESSIONS_DB_PATH",
		"AGENT_SESSIONS_LLM_MODEL",
		"AGENT_SESSIONS_MAX_SESSIONS",
		"AGENT_SESSIONS_MAX_HISTORY",
		"AGENT_SESSIONS_MAX_TURNS",
	} {
		os.Unsetenv(key)
	}

	cfg := Load()
	if cfg.HTTPAddr != ":8787" {
		t.Fatalf("addr = %q", cfg.HTTPAddr)
	}
	if cfg.DBPath != filepath.Join("data", "agent-sessions.db") {
		t.Fatalf("db path = %q", cfg.DBPath)
	}
	if cfg.LLMModel != "gpt-4o-mini" {
		t.Fatalf("model = %q", cfg.LLMModel)
	}
	if cfg.MaxSessions != 256 || cfg.MaxHistory != 200 || cfg.DefaultMaxTurns != 10 {
		t.Fatalf("bounds = %d/%d/%d", cfg.MaxSessions, cfg.MaxHistory, cfg.DefaultMaxTurns)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AGENT_SESSIONS_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("AGENT_SESSIONS_MAX_SESSIONS", "5")
	t.Setenv("AGENT_SESSIONS_MAX_TURNS", "not a number")

	cfg := Load()
	if cfg.HTTPAddr != "127.0.0.1:9000" {
		t.Fatalf("addr = %q", cfg.HTTPAddr)
	}
	if cfg.MaxSessions != 5 {
		t.Fatalf("max sessions = %d", cfg.MaxSessions)
	}
	if cfg.DefaultMaxTurns != 10 {
		t.Fatalf("bad integer should fall back, got %d", cfg.DefaultMaxTurns)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nexport AGENT_SESSIONS_TEST_ONE=\"quoted\"\nAGENT_SESSIONS_TEST_TWO=plain\nmalformed line\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	os.Unsetenv("AGENT_SESSIONS_TEST_ONE")
	t.Setenv("AGENT_SESSIONS_TEST_TWO", "already set")

	loadDotEnv(path)
	t.Cleanup(func() { os.Unsetenv("AGENT_SESSIONS_TEST_ONE") })

	if got := os.Getenv("AGENT_SESSIONS_TEST_ONE"); got != "quoted" {
		t.Fatalf("TEST_ONE = %q", got)
	}
	// Real environment wins over .env entries.
	if got := os.Getenv("AGENT_SESSIONS_TEST_TWO"); got != "already set" {
		t.Fatalf("TEST_TWO = %q", got)
	}
}
