package config

import (
	"os"
	"strconv"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverBadger   = "badger"
)

// Config holds node configuration.
type Config struct {
	LogLevel        string
	Denom           string
	AddressPrefix   string
	AdminAddress    string
	TreasuryAddress string

	StoreDriver   string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	BadgerPath    string

	GatewayRPS   float64
	GatewayBurst int

	OTelEnabled  bool
	OTelEndpoint string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		LogLevel:        env("LOG_LEVEL", "INFO"),
		Denom:           env("TICKET_DENOM", "utkt"),
		AddressPrefix:   env("ADDRESS_PREFIX", "tkt"),
		AdminAddress:    env("ADMIN_ADDRESS", "admin-wallet"),
		TreasuryAddress: os.Getenv("TREASURY_ADDRESS"),

		StoreDriver:   env("STORE_DRIVER", DriverMemory),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),
		BadgerPath:    env("BADGER_PATH", "data/badger"),

		GatewayRPS:   envFloat("GATEWAY_RPS", 0),
		GatewayBurst: envInt("GATEWAY_BURST", 10),

		OTelEnabled:  os.Getenv("OTEL_ENABLED") == "true",
		OTelEndpoint: env("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Malformed numbers fall back to the default.
func envInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return f
}
