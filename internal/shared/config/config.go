package config

import (
	"log"
	"os"
	"strings"
)

// Config holds application configuration.
type Config struct {
	Port               string
	CORSAllowOrigin    []string
	Env                string
	Debug              bool
	EncryptionKey      string
	ServiceAccount     string
	ServiceAccountPath string
	MongoURI           string
	MongoDatabase      string
	AWSRegion          string
	S3Bucket           string
	S3Prefix           string
	GeminiAPIKey       string
	GeminiModel        string
}

// Load reads configuration from environment variables with sensible defaults.
// Values absent from the environment fall back to KEY=VALUE settings files;
// the environment always wins.
func Load() Config {
	// Best-effort load of local env/secrets files for dev convenience.
	loadEnvFiles(".env", "config/secrets.env", "config/settings.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	mongoURI := os.Getenv("MONGODB_URI")

	if env == "production" && mongoURI == "" {
		log.Printf("MONGODB_URI is required in production")
	}

	return Config{
		Port:               getEnv("APP_PORT", "5000"),
		CORSAllowOrigin:    splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "*")),
		Env:                env,
		Debug:              parseBool(getEnv("DEBUG_MODE", "false")),
		EncryptionKey:      getEnv("ENCRYPTION_KEY", ""),
		ServiceAccount:     getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		ServiceAccountPath: getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		MongoURI:           mongoURI,
		MongoDatabase:      getEnv("MONGODB_DATABASE", "carecompass"),
		AWSRegion:          getEnv("AWS_REGION", ""),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		S3Prefix:           getEnv("S3_PREFIX", ""),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}
