package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr     string
	DataDir      string
	SessionsPath string
	DBPath       string
	WebDir       string

	LLMProvider string
	LLMModel    string
	LLMAPIKey   string
	LLMBaseURL  string

	MaxSteps    int
	Python      string
	ExecTimeout time.Duration

	RestartToken string
}

func Load() Config {
	loadDotEnv(".env")
	dataDir := getEnv("AGENTCHAT_DATA_DIR", "data")
	return Config{
		HTTPAddr:     getEnv("AGENTCHAT_HTTP_ADDR", ":8080"),
		DataDir:      dataDir,
		SessionsPath: getEnv("AGENTCHAT_SESSIONS_PATH", filepath.Join(dataDir, "sessions.json")),
		DBPath:       getEnv("AGENTCHAT_DB_PATH", filepath.Join(dataDir, "agentchat.db")),
		WebDir:       getEnv("AGENTCHAT_WEB_DIR", "web"),

		LLMProvider: getEnv("AGENTCHAT_LLM_PROVIDER", "openai"),
		LLMModel:    getEnv("AGENTCHAT_LLM_MODEL", ""),
		LLMAPIKey:   getEnv("AGENTCHAT_LLM_API_KEY", ""),
		LLMBaseURL:  getEnv("AGENTCHAT_LLM_BASE_URL", ""),

		MaxSteps:    getEnvInt("AGENTCHAT_MAX_STEPS", 10),
		Python:      getEnv("AGENTCHAT_PYTHON", "python3"),
		ExecTimeout: getEnvDuration("AGENTCHAT_EXEC_TIMEOUT", 2*time.Minute),

		RestartToken: getEnv("AGENTCHAT_RESTART_TOKEN", ""),
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
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
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
