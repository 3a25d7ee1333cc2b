// Package config содержит логику чтения конфигурации сервиса электронной очереди.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress   string `env:"RUN_ADDRESS"`
	DatabaseURI  string `env:"DATABASE_URI"`
	RedisAddress string `env:"REDIS_ADDRESS"`
	KafkaBrokers string `env:"KAFKA_BROKERS"`
	JWTSecret    string `env:"JWT_SECRET"`
	Timezone     string `env:"TIMEZONE"`

	ReminderInterval time.Duration `env:"REMINDER_INTERVAL" envDefault:"1m"`

	SMTPHost string `env:"SMTP_HOST"`
	SMTPPort int    `env:"SMTP_PORT" envDefault:"25"`
	SMTPFrom string `env:"SMTP_FROM"`

	SMSWebhookURL   string `env:"SMS_WEBHOOK_URL"`
	SMSWebhookToken string `env:"SMS_WEBHOOK_TOKEN"`

	// BookingRateLimit задаёт число бронирований в минуту с одного адреса.
	BookingRateLimit int `env:"BOOKING_RATE_LIMIT" envDefault:"30"`

	// PublicRateLimit задаёт число запросов к публичным маршрутам с одного адреса за PublicRateWindow.
	PublicRateLimit  int           `env:"PUBLIC_RATE_LIMIT" envDefault:"150"`
	PublicRateWindow time.Duration `env:"PUBLIC_RATE_WINDOW" envDefault:"15m"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for reminder markers and rate limiting")
	flag.StringVar(&cfg.KafkaBrokers, "k", "", "comma separated kafka brokers for domain events")
	flag.StringVar(&cfg.JWTSecret, "s", "", "secret for staff tokens")
	flag.StringVar(&cfg.Timezone, "z", "Local", "IANA time zone of the branches")

	flag.Parse()

	override(&cfg.RunAddress, fromEnv.RunAddress)
	override(&cfg.DatabaseURI, fromEnv.DatabaseURI)
	override(&cfg.RedisAddress, fromEnv.RedisAddress)
	override(&cfg.KafkaBrokers, fromEnv.KafkaBrokers)
	override(&cfg.JWTSecret, fromEnv.JWTSecret)
	override(&cfg.Timezone, fromEnv.Timezone)

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	if cfg.ReminderInterval <= 0 {
		return nil, fmt.Errorf("reminder interval must be positive, got %s", cfg.ReminderInterval)
	}

	return cfg, nil
}

func override(dst *string, envValue string) {
	if envValue != "" {
		*dst = envValue
	}
}

// Location возвращает часовой пояс отделений.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
