package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the env-var-driven configuration record injected into the
// engine, search/LLM adapters, and rate limiter at process startup. It is
// built once via Load and never mutated afterward.
type Config struct {
	SearchProviderAPIKey  string
	SearchProviderBaseURL string
	SearchProviderTimeout time.Duration

	LLMProviderAPIKey  string
	LLMProviderBaseURL string
	LLMProvider        string // "google" or "openai"
	LLMProviderTimeout time.Duration

	DefaultModelID string

	RateLimitRPM            int
	RateLimitInitialBackoff time.Duration
	RateLimitMaxBackoff     time.Duration
	RateLimitMultiplier     float64

	EngineMaxConcurrency int
	EngineMaxDepth       int
	EngineMaxBreadth     int
	EngineEventBuffer    int

	DatabaseURL        string
	DatabaseMaxConns   int32
	DatabaseMinConns   int32
	DatabaseMaxConnAge time.Duration
	Port               string

	EnableArxivSource bool
}

// Load reads Config from the environment, applying the defaults from the
// configuration table. A missing .env file is not an error — godotenv.Load
// is best-effort, matching the teacher's cmd/*/main.go startup sequence.
func Load() *Config {
	return &Config{
		SearchProviderAPIKey:  getEnv("SEARCH_PROVIDER_API_KEY", ""),
		SearchProviderBaseURL: getEnv("SEARCH_PROVIDER_BASE_URL", "https://api.firecrawl.dev/v1"),
		SearchProviderTimeout: getEnvAsMillis("SEARCH_PROVIDER_TIMEOUT_MS", 45000),

		LLMProviderAPIKey:  getEnv("LLM_PROVIDER_API_KEY", getEnv("GOOGLE_API_KEY", "")),
		LLMProviderBaseURL: getEnv("LLM_PROVIDER_BASE_URL", ""),
		LLMProvider:        getEnv("LLM_PROVIDER", "google"),
		LLMProviderTimeout: getEnvAsMillis("LLM_PROVIDER_TIMEOUT_MS", 60000),

		DefaultModelID: getEnv("DEFAULT_MODEL_ID", "gemini-2.0-flash"),

		RateLimitRPM:            getEnvAsInt("RATE_LIMIT_RPM", 5),
		RateLimitInitialBackoff: getEnvAsMillis("RATE_LIMIT_INITIAL_BACKOFF_MS", 1000),
		RateLimitMaxBackoff:     getEnvAsMillis("RATE_LIMIT_MAX_BACKOFF_MS", 60000),
		RateLimitMultiplier:     getEnvAsFloat("RATE_LIMIT_MULTIPLIER", 2.0),

		EngineMaxConcurrency: getEnvAsInt("ENGINE_MAX_CONCURRENCY", 2),
		EngineMaxDepth:       getEnvAsInt("ENGINE_MAX_DEPTH", 5),
		EngineMaxBreadth:     getEnvAsInt("ENGINE_MAX_BREADTH", 5),
		EngineEventBuffer:    getEnvAsInt("ENGINE_EVENT_BUFFER_SIZE", 64),

		DatabaseURL:        getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:   int32(getEnvAsInt("DATABASE_MAX_CONNS", 25)),
		DatabaseMinConns:   int32(getEnvAsInt("DATABASE_MIN_CONNS", 5)),
		DatabaseMaxConnAge: getEnvAsMillis("DATABASE_MAX_CONN_AGE_MS", 0),
		Port:               getEnv("PORT", "3000"),

		EnableArxivSource: getEnvAsBool("ENABLE_ARXIV_SOURCE", true),
	}
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsMillis(key string, defaultMillis int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultMillis)) * time.Millisecond
}
