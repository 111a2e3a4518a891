package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	// Server
	Port               string
	Env                string
	StreamWriteTimeout time.Duration
	MaxBodyBytes       int64

	// Provider
	Provider      string
	OpenAIModel   string
	OpenAIBaseURL string
	GeminiModel   string

	// Persona served on /api/chat; /api/xp/chat always uses winxp
	DefaultPersona string

	// Frontend
	FrontendURL string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:               getEnvOrDefault("PORT", "8080"),
		Env:                getEnvOrDefault("ENV", "development"),
		StreamWriteTimeout: getEnvAsDurationOrDefault("STREAM_WRITE_TIMEOUT", 2*time.Minute),
		MaxBodyBytes:       int64(getEnvAsIntOrDefault("MAX_BODY_BYTES", 1<<20)),
		Provider:           getEnvOrDefault("PROVIDER", ProviderOpenAI),
		OpenAIModel:        getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:      getEnvOrDefault("OPENAI_BASE_URL", ""),
		GeminiModel:        getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		DefaultPersona:     getEnvOrDefault("PERSONA", "win95"),
		FrontendURL:        getEnvOrDefault("FRONTEND_URL", "http://localhost:3000"),
	}

	if cfg.Provider != ProviderOpenAI && cfg.Provider != ProviderGemini {
		return nil, fmt.Errorf("PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderGemini, cfg.Provider)
	}

	return cfg, nil
}

// CredentialEnv names the environment variable holding the key for the
// configured provider.
func (c *Config) CredentialEnv() string {
	if c.Provider == ProviderGemini {
		return "GEMINI_API_KEY"
	}
	return "OPENAI_API_KEY"
}

// EnvCredential reads key from the process environment on every call. The
// credential is never cached in Config so its absence is detected per request.
func EnvCredential(key string) func() (string, bool) {
	return func() (string, bool) {
		val := os.Getenv(key)
		return val, val != ""
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
