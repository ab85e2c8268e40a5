package config

import (
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// SequenceBackend selects the reference counter store: postgres, redis or memory.
	// Empty picks postgres when DATABASE_URL is set, then redis, then memory.
	SequenceBackend string
	ReferencePrefix string

	// Clinic branding used in emails and slips
	ClinicName    string
	ClinicAddress string
	ClinicPhone   string
	FrontendURL   string
	AdminEmails   []string

	JWTSecret          string
	CORSAllowedOrigins []string
	PublicRateLimit    float64
	PublicRateBurst    int

	// Email Configuration
	EmailProvider    string
	SendGridAPIKey   string
	EmailFromAddress string
	EmailFromName    string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Confirmation pipeline
	ConfirmationQueueURL string
	WorkerCount          int
	RendererURL          string
	RenderTimeout        time.Duration
	SlipArchiveBucket    string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SequenceBackend: strings.ToLower(strings.TrimSpace(getEnv("SEQUENCE_BACKEND", ""))),
		ReferencePrefix: normalizePrefix(getEnv("REFERENCE_PREFIX", "SOBER")),

		ClinicName:    getEnv("CLINIC_NAME", "Sober Steps Clinic"),
		ClinicAddress: getEnv("CLINIC_ADDRESS", ""),
		ClinicPhone:   getEnv("CLINIC_PHONE", ""),
		FrontendURL:   strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/"),
		AdminEmails:   getEnvAsList("ADMIN_EMAILS"),

		JWTSecret:          getEnv("JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		PublicRateLimit:    getEnvAsFloat("PUBLIC_RATE_LIMIT", 2),
		PublicRateBurst:    getEnvAsInt("PUBLIC_RATE_BURST", 10),

		EmailProvider:    strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),
		SendGridAPIKey:   getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Sober Steps Clinic"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		ConfirmationQueueURL: getEnv("CONFIRMATION_QUEUE_URL", ""),
		WorkerCount:          getEnvAsInt("WORKER_COUNT", 2),
		RendererURL:          strings.TrimRight(getEnv("RENDERER_URL", "http://localhost:3000"), "/"),
		RenderTimeout:        getEnvAsDuration("RENDER_TIMEOUT", 60*time.Second),
		SlipArchiveBucket:    getEnv("SLIP_ARCHIVE_BUCKET", ""),
	}
}

// UsesSQS reports whether confirmation jobs go through a durable SQS queue.
func (c *Config) UsesSQS() bool {
	return strings.TrimSpace(c.ConfirmationQueueURL) != ""
}

// normalizePrefix keeps only upper-case ASCII letters so reference ids stay
// machine-checkable; an empty result falls back to SOBER.
func normalizePrefix(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if r <= unicode.MaxASCII && unicode.IsUpper(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "SOBER"
	}
	return b.String()
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
