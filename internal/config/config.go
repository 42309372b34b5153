package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr string
	DataDir  string
	DBPath   string

	LLMModel  string
	LLMAPIKey string

	// Bounds on in-memory session state. Sessions beyond MaxSessions are
	// refused with a session_limit error; history is truncated to the
	// newest MaxHistory entries after each completed run.
	MaxSessions     int
	MaxHistory      int
	DefaultMaxTurns int
}

func Load() Config {
	loadDotEnv(".env")
	dataDir := getEnv("AGENT_SESSIONS_DATA_DIR", "data")
	return Config{
		HTTPAddr: getEnv("AGENT_SESSIONS_HTTP_ADDR", ":8787"),
		DataDir:  dataDir,
		DBPath:   getEnv("AGENT_SESSIONS_DB_PATH", filepath.Join(dataDir, "agent-sessions.db")),

		LLMModel:  getEnv("AGENT_SESSIONS_LLM_MODEL", "gpt-4o-mini"),
		LLMAPIKey: getEnv("AGENT_SESSIONS_LLM_API_KEY", ""),

		MaxSessions:     getEnvInt("AGENT_SESSIONS_MAX_SESSIONS", 256),
		MaxHistory:      getEnvInt("AGENT_SESSIONS_MAX_HISTORY", 200),
		DefaultMaxTurns: getEnvInt("AGENT_SESSIONS_MAX_TURNS", 10),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func loadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, value)
	}
}
