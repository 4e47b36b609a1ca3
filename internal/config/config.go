package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Server   ServerConfig
	Logger   LoggerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Engine   EngineConfig
	Paystack PaystackConfig
}

type ServerConfig struct {
	AppEnv        string
	Port          string
	AllowedOrigin string
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

type PostgresConfig struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	StaffCacheTTL time.Duration
	EventsChannel string
}

type AuthConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
}

type EngineConfig struct {
	TxMaxAttempts   int
	ShortageEpsilon decimal.Decimal
	WarehouseKeeper string
}

type PaystackConfig struct {
	SecretKey string
	BaseURL   string
}

func Load() Config {
	epsilon, err := decimal.NewFromString(getEnv("SHORTAGE_EPSILON", "0.01"))
	if err != nil || epsilon.IsNegative() {
		epsilon = decimal.RequireFromString("0.01")
	}

	return Config{
		Server: ServerConfig{
			AppEnv:        getEnv("APP_ENV", "production"),
			Port:          getEnv("PORT", "8080"),
			AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		},
		Logger: LoggerConfig{
			Level:             os.Getenv("LOG_LEVEL"),
			Encoding:          getEnv("LOG_ENCODING", "json"),
			DisableCaller:     getEnvBool("LOG_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOG_DISABLE_STACKTRACE", false),
		},
		Postgres: PostgresConfig{
			DatabaseURL:     os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 30),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 8),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr:          os.Getenv("REDIS_ADDR"),
			Password:      os.Getenv("REDIS_PASSWORD"),
			DB:            getEnvInt("REDIS_DB", 0),
			StaffCacheTTL: time.Duration(getEnvInt("STAFF_CACHE_TTL_SECONDS", 300)) * time.Second,
			EventsChannel: getEnv("EVENTS_CHANNEL", "bakehouse.events"),
		},
		Auth: AuthConfig{
			Secret:         strings.TrimSpace(os.Getenv("AUTH_SECRET")),
			AccessTokenTTL: time.Duration(getEnvInt("ACCESS_TOKEN_TTL_MINUTES", 480)) * time.Minute,
		},
		Engine: EngineConfig{
			TxMaxAttempts:   getEnvInt("TX_MAX_ATTEMPTS", 5),
			ShortageEpsilon: epsilon,
			WarehouseKeeper: getEnv("WAREHOUSE_KEEPER", "store"),
		},
		Paystack: PaystackConfig{
			SecretKey: strings.TrimSpace(os.Getenv("PAYSTACK_SECRET_KEY")),
			BaseURL:   getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
		},
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Server.Port)
}

func (c Config) IsDevelopment() bool {
	return c.Server.AppEnv == "development"
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// getEnvInt falls back on unparsable or non-positive values.
func getEnvInt(key string, fallback int) int {
	val, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || val < 1 {
		return fallback
	}
	return val
}

func getEnvBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return val
}
