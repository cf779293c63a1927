// Package config provides configuration management for the guard.
// It loads environment variables and makes them available throughout the application.
package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the guard
type Config struct {
	// Identidad del bot en el transporte
	BotJID   string
	OwnerJID string

	// MongoDB
	MongoDBURL string
	DBName     string

	// MQTT (puente con el proceso de transporte)
	MQTTHost     string
	MQTTPort     string
	MQTTUser     string
	MQTTPassword string

	// Web Server
	Port string

	// Environment
	Environment string

	// Webhooks
	ErrorWebhook string
	LogsWebhook  string

	// Umbrales de escalado por categoría
	SalesThreshold      int
	LinkThreshold       int
	AdminAbuseThreshold int

	// Recuperación del bot
	RecoveryMaxAttempts int
	RecoveryDelay       time.Duration

	// Anti-delete
	ShadowRetention time.Duration
	SweepInterval   time.Duration

	// Chequeo de integridad de grupos
	IntegritySweepInterval time.Duration
}

var (
	Version   = "Dev-Local"
	BuildTime = "Hoy"
)

// cfg holds the global configuration instance
var (
	cfg     *Config
	cfgOnce sync.Once
)

// resetForTesting resets the configuration for testing purposes.
// This function should only be called from test code.
func resetForTesting() {
	cfg = nil
	cfgOnce = sync.Once{}
}

// loadConfig performs the actual configuration loading
func loadConfig() {
	// Load .env file if it exists (ignoring error if it doesn't)
	_ = godotenv.Load()

	cfg = &Config{
		// Identidad
		BotJID:   getEnv("botJid", ""),
		OwnerJID: getEnv("ownerJid", ""),

		// MongoDB
		MongoDBURL: getEnv("mongodbUrl", "mongodb://localhost:27017"),
		DBName:     getEnv("dbName", "TechitoonGuard"),

		// MQTT
		MQTTHost:     getEnv("MQTT_Host", "localhost"),
		MQTTPort:     getEnv("MQTT_Port", "1883"),
		MQTTUser:     getEnv("MQTT_User", ""),
		MQTTPassword: getEnv("MQTT_Password", ""),

		// Web Server
		Port: getEnv("PORT", "3000"),

		// Environment
		Environment: getEnv("enviroment", "dev"),

		// Webhooks
		ErrorWebhook: getEnv("errorWebhook", ""),
		LogsWebhook:  getEnv("logsWebhook", ""),

		// Umbrales
		SalesThreshold:      getEnvInt("salesThreshold", 3),
		LinkThreshold:       getEnvInt("linkThreshold", 3),
		AdminAbuseThreshold: getEnvInt("adminAbuseThreshold", 5),

		// Recuperación
		RecoveryMaxAttempts: getEnvInt("recoveryMaxAttempts", 5),
		RecoveryDelay:       getEnvDuration("recoveryDelay", 5*time.Minute),

		// Anti-delete
		ShadowRetention: getEnvDuration("shadowRetention", 72*time.Hour),
		SweepInterval:   getEnvDuration("sweepInterval", time.Hour),

		// Integridad
		IntegritySweepInterval: getEnvDuration("integritySweepInterval", time.Hour),
	}
}

// Load initializes the configuration from environment variables
func Load() (*Config, error) {
	cfgOnce.Do(loadConfig)
	return cfg, nil
}

// Get returns the current configuration
func Get() *Config {
	// Use sync.Once to ensure thread-safe initialization if Load wasn't called
	cfgOnce.Do(loadConfig)
	return cfg
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// IsProd returns true if the environment is production
func (c *Config) IsProd() bool {
	return c.Environment == "prod"
}
