package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type DBConfig struct {
	Host         string `envconfig:"DB_HOST" default:"localhost"`
	Port         int    `envconfig:"DB_PORT" default:"5432"`
	User         string `envconfig:"DB_USER" default:"eduwallet"`
	Password     string `envconfig:"DB_PASSWORD" required:"true"`
	Name         string `envconfig:"DB_NAME" default:"eduwallet"`
	MaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns int    `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
}

type AppConfig struct {
	HTTPAddr       string        `envconfig:"HTTP_ADDR" default:":8080"`
	OrderPrefix    string        `envconfig:"ORDER_PREFIX" default:"EDU"`
	RateLimitRPS   float64       `envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst int           `envconfig:"RATE_LIMIT_BURST" default:"40"`
	PendingTTL     time.Duration `envconfig:"REQUEST_PENDING_TTL" default:"168h"`
	MigrationsPath string        `envconfig:"MIGRATIONS_PATH" default:"migrations"`
}

type Config struct {
	DB  DBConfig
	App AppConfig
}

// Load читает config.env (если есть) и переменные окружения.
func Load() (*Config, error) {
	// .env необязателен: в контейнере всё приходит из окружения.
	_ = godotenv.Load("config.env")

	var cfg Config
	if err := envconfig.Process("", &cfg.DB); err != nil {
		return nil, err
	}
	if err := envconfig.Process("", &cfg.App); err != nil {
		return nil, err
	}

	return &cfg, nil
}
