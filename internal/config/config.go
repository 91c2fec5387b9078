package config

import (
	"encoding/hex"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration values loaded from environment variables.
type Config struct {
	DatabaseURL     string
	JWTSecret       string
	HTTPPort        string
	TokenExpiration time.Duration
	EncryptionKey   []byte // Raw key bytes (32 for AES-256)

	// LLM provider settings.
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	RequestTimeout time.Duration // Per model call deadline
	MaxRetries     int
	RetryBaseDelay time.Duration

	// Assistant defaults applied when an organization has no settings row yet.
	DefaultModel       string
	DefaultDailyLimit  int
	DefaultMaxTokens   int
	DefaultTemperature float64

	// Optional path to a rego file overriding the built-in tool policy.
	ToolPolicyPath string

	// Per-organization request rate for /v1/assistant routes.
	AssistantRatePerSec float64
	AssistantRateBurst  int

	LogLevel string
	LogJSON  bool
}

// LoadConfig loads configuration from environment variables.
// It looks for a .env file first, then checks actual environment variables.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file (useful for development)
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Could not load .env file. Using environment variables only.", err)
	}

	dbURL := getEnv("DATABASE_URL", "")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set.")
	}

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is not set.")
	}

	openAIKey := getEnv("OPENAI_API_KEY", "")
	if openAIKey == "" {
		log.Fatal("OPENAI_API_KEY environment variable is not set.")
	}

	// Load and decode the Encryption Key (MUST be 64 hex characters for 32 bytes)
	encryptionKeyHex := getEnv("ENCRYPTION_KEY", "")
	if encryptionKeyHex == "" {
		log.Fatal("FATAL: ENCRYPTION_KEY environment variable is not set.")
	}
	encryptionKeyBytes, err := hex.DecodeString(encryptionKeyHex)
	if err != nil {
		log.Fatalf("FATAL: Failed to decode ENCRYPTION_KEY from hex: %v", err)
	}
	if len(encryptionKeyBytes) != 32 {
		log.Fatalf("FATAL: ENCRYPTION_KEY must be 32 bytes (64 hex characters) long, got %d bytes", len(encryptionKeyBytes))
	}

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		JWTSecret:       jwtSecret,
		DatabaseURL:     dbURL,
		TokenExpiration: time.Hour * time.Duration(getEnvInt("JWT_EXPIRATION_HOURS", 24)),
		EncryptionKey:   encryptionKeyBytes,

		OpenAIAPIKey:   openAIKey,
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		RequestTimeout: time.Second * time.Duration(getEnvInt("LLM_REQUEST_TIMEOUT_SECONDS", 60)),
		MaxRetries:     getEnvInt("LLM_MAX_RETRIES", 3),
		RetryBaseDelay: time.Millisecond * time.Duration(getEnvInt("LLM_RETRY_BASE_DELAY_MS", 1000)),

		DefaultModel:       getEnv("ASSISTANT_DEFAULT_MODEL", "gpt-4o-mini"),
		DefaultDailyLimit:  getEnvInt("ASSISTANT_DEFAULT_DAILY_LIMIT", 50),
		DefaultMaxTokens:   getEnvInt("ASSISTANT_DEFAULT_MAX_TOKENS", 1024),
		DefaultTemperature: getEnvFloat("ASSISTANT_DEFAULT_TEMPERATURE", 0.2),

		ToolPolicyPath: getEnv("TOOL_POLICY_PATH", ""),

		AssistantRatePerSec: getEnvFloat("ASSISTANT_RATE_PER_SEC", 1),
		AssistantRateBurst:  getEnvInt("ASSISTANT_RATE_BURST", 5),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogJSON:  getEnv("LOG_FORMAT", "json") == "json",
	}

	log.Printf("Loaded config: Port=%s, DB_URL=***, TokenExp=%s, Model=%s", cfg.HTTPPort, cfg.TokenExpiration, cfg.DefaultModel)

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s', using default %d. Error: %v", key, raw, fallback, err)
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s', using default %g. Error: %v", key, raw, fallback, err)
		return fallback
	}
	return v
}
