package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Конфигурация приложения из переменных окружения
type Config struct {
	AppPort string
	Env     string // production или development

	JWTSecret    string
	BridgeSecret string // ключ подписи сообщений моста (пустой = подпись выключена)

	// дополнительные origins для allow-list моста (через запятую)
	ExtraOrigins []string

	RedisAddr     string
	RedisPassword string

	LogLevel string
	LogJSON  bool
}

// Load читает .env (если есть) и собирает конфигурацию
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		AppPort:       getEnv("APP_PORT", "8080"),
		Env:           getEnv("APP_ENV", "development"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		BridgeSecret:  os.Getenv("BRIDGE_SECRET"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogJSON:       os.Getenv("LOG_FORMAT") == "json",
	}

	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				cfg.ExtraOrigins = append(cfg.ExtraOrigins, o)
			}
		}
	}

	return cfg
}

// IsProduction сообщает, работаем ли мы в продакшене
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
