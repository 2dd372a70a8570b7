package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Port          string `env:"PORT" envDefault:"8080"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:"http://127.0.0.1:3000"`

	DatabaseURL         string `env:"DATABASE_URL"`
	DatabaseAutoMigrate bool   `env:"DATABASE_AUTO_MIGRATE" envDefault:"false"`

	CacheProvider   string        `env:"CACHE_PROVIDER" envDefault:"memory" validate:"oneof=none memory redis"`
	RedisAddr       string        `env:"REDIS_ADDR" validate:"required_if=CacheProvider redis"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0" validate:"gte=0"`
	RuleCacheTTL    time.Duration `env:"RULE_CACHE_TTL" envDefault:"5m" validate:"gt=0"`
	RuleCacheSize   int           `env:"RULE_CACHE_SIZE" envDefault:"1024" validate:"gte=1"`
	AuthSecret      string        `env:"AUTH_SECRET"`
	AuthIssuer      string        `env:"AUTH_ISSUER"`
	KafkaBrokers    []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaAuditTopic string        `env:"KAFKA_AUDIT_TOPIC" envDefault:"pricing.audit" validate:"required_with=KafkaBrokers"`

	ConflictPolicy      string `env:"PRICING_CONFLICT_POLICY" envDefault:"best_deal" validate:"oneof=best_deal best_for_customer priority best_for_business highest_percentage"`
	ExclusivePromotions bool   `env:"PRICING_EXCLUSIVE_PROMOTIONS" envDefault:"false"`
	RateLimitPerMinute  int    `env:"PRICING_RATE_LIMIT_PER_MINUTE" envDefault:"120" validate:"gte=1"`

	RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"15s" validate:"gt=0"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"oneof=text json"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.CacheProvider = strings.ToLower(strings.TrimSpace(cfg.CacheProvider))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))

	if err := configValidator.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}
