package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	APIPort int

	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string
	// DatabaseReadHost serves dashboard analytics reads (may be a replica)
	DatabaseReadHost string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	GovAPI    GovAPIConfig
	MLService MLServiceConfig
	Dashboard DashboardConfig
	Realtime  RealtimeConfig
}

// GovAPIConfig holds government pricing API integration settings
type GovAPIConfig struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	FieldMapFile string // optional YAML file overriding field-name synonyms
}

// Configured reports whether both base URL and API key are set
func (c GovAPIConfig) Configured() bool {
	return c.BaseURL != "" && c.APIKey != ""
}

// MLServiceConfig holds prediction service settings
type MLServiceConfig struct {
	URL     string
	Timeout time.Duration
}

// DashboardConfig holds dashboard summary settings
type DashboardConfig struct {
	CacheTTL              time.Duration
	DefaultSpikeThreshold float64 // Percent, used until a SystemSetting row exists
}

// RealtimeConfig holds live-update fan-out settings
type RealtimeConfig struct {
	RedisChannel string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	dbHost := getEnvOrDefault("DB_HOST", "localhost")

	return &Config{
		APIPort: getEnvInt("API_PORT", 8080),

		// Database configuration
		DatabaseHost:     dbHost,
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "harga_pangan"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "pangan"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "pangan123"),
		DatabaseReadHost: getEnvOrDefault("DB_READ_HOST", dbHost),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		GovAPI: GovAPIConfig{
			BaseURL:      os.Getenv("GOV_API_BASE_URL"),
			APIKey:       os.Getenv("GOV_API_KEY"),
			Timeout:      getEnvDuration("GOV_API_TIMEOUT", 30*time.Second),
			FieldMapFile: os.Getenv("GOV_API_FIELD_MAP"),
		},

		MLService: MLServiceConfig{
			URL:     getEnvOrDefault("ML_SERVICE_URL", "http://localhost:5000"),
			Timeout: getEnvDuration("ML_SERVICE_TIMEOUT", 60*time.Second),
		},

		Dashboard: DashboardConfig{
			CacheTTL:              getEnvDuration("DASHBOARD_CACHE_TTL", 60*time.Second),
			DefaultSpikeThreshold: getEnvFloat("DEFAULT_SPIKE_THRESHOLD", 15.0),
		},

		Realtime: RealtimeConfig{
			RedisChannel: getEnvOrDefault("REALTIME_CHANNEL", "harga:events"),
		},
	}
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvDuration accepts Go duration strings ("30s", "2m") or plain seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	var seconds int
	if _, err := fmt.Sscanf(value, "%d", &seconds); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
