package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const minProdSecretLen = 32

type Config struct {
	Port           string `env:"APP_PORT" envDefault:"8080"`
	Env            string `env:"APP_ENV" envDefault:"dev"`
	LogLevel       string `env:"LOG_LEVEL"`
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseDSN    string `env:"DATABASE_DSN" envDefault:"host=localhost user=postgres password=postgres dbname=messaging port=5432 sslmode=disable TimeZone=UTC"`

	// 签名密钥与算法必须在启动时显式提供，没有默认值。
	JWTSecret       string        `env:"JWT_SECRET"`
	JWTAlgorithm    string        `env:"JWT_ALGORITHM"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"30m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	BcryptCost      int           `env:"BCRYPT_COST" envDefault:"10"`

	AdminUsername string `env:"ADMIN_USERNAME"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"chat.events"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	RateLimitRPS   float64       `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int           `env:"RATE_LIMIT_BURST" envDefault:"40"`
	WSAuthTimeout  time.Duration `env:"WS_AUTH_TIMEOUT" envDefault:"5s"`
}

// Load 从环境变量读取配置，格式错误时返回 error。
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}
	return cfg, nil
}

// Validate 检查启动所必需的配置项。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("APP_PORT must not be empty")
	}
	switch cfg.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN must not be empty")
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch cfg.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	case "":
		return errors.New("JWT_ALGORITHM is required")
	default:
		return fmt.Errorf("unsupported JWT_ALGORITHM %q", cfg.JWTAlgorithm)
	}
	if cfg.Env != "dev" && len(cfg.JWTSecret) < minProdSecretLen {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes outside dev", minProdSecretLen)
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if (cfg.AdminUsername == "") != (cfg.AdminPassword == "") {
		return errors.New("ADMIN_USERNAME and ADMIN_PASSWORD must be set together")
	}
	return nil
}
