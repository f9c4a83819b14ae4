// Package config содержит логику чтения конфигурации сервиса Phantom.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const defaultPort = "3000"

// Config содержит параметры конфигурации сервиса Phantom.
type Config struct {
	Port               string        `env:"PORT"`
	DatabaseURI        string        `env:"DATABASE_URI"`
	WebhookURL         string        `env:"WEBHOOK_URL"`
	DiscordInvite      string        `env:"DISCORD_INVITE"`
	AdminToken         string        `env:"ADMIN_TOKEN"`
	RosterPollInterval time.Duration `env:"ROSTER_POLL_INTERVAL"`
	SubmitRateLimit    float64       `env:"SUBMIT_RATE_LIMIT"`
}

// Addr возвращает адрес, на котором слушает HTTP-сервер.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// LoadDotEnv подгружает переменные окружения из файла .env, если он есть.
// Уже выставленные переменные не перезаписываются.
func LoadDotEnv(paths ...string) error {
	return godotenv.Load(paths...)
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	// Для числовых параметров ноль допустим, поэтому запоминаем, какие переменные заданы.
	set := make(map[string]bool)
	opts := env.Options{
		OnSet: func(tag string, value any, isDefault bool) {
			if !isDefault {
				set[tag] = true
			}
		},
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg

	var (
		pollInterval time.Duration
		rateLimit    float64
	)

	flag.StringVar(&cfg.Port, "p", defaultPort, "port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.WebhookURL, "w", "", "order notification webhook URL")
	flag.StringVar(&cfg.DiscordInvite, "i", "", "invite link returned to customers")
	flag.StringVar(&cfg.AdminToken, "t", "", "token required for booster administration")
	flag.DurationVar(&pollInterval, "poll", 0, "roster polling interval, 0 disables polling")
	flag.Float64Var(&rateLimit, "rate", 5, "order submissions per second")

	flag.Parse()

	cfg.RosterPollInterval = pollInterval
	cfg.SubmitRateLimit = rateLimit

	if fromEnv.Port != "" {
		cfg.Port = fromEnv.Port
	}
	if fromEnv.DatabaseURI != "" {
		cfg.DatabaseURI = fromEnv.DatabaseURI
	}
	if fromEnv.WebhookURL != "" {
		cfg.WebhookURL = fromEnv.WebhookURL
	}
	if fromEnv.DiscordInvite != "" {
		cfg.DiscordInvite = fromEnv.DiscordInvite
	}
	if fromEnv.AdminToken != "" {
		cfg.AdminToken = fromEnv.AdminToken
	}
	if set["ROSTER_POLL_INTERVAL"] {
		cfg.RosterPollInterval = fromEnv.RosterPollInterval
	}
	if set["SUBMIT_RATE_LIMIT"] {
		cfg.SubmitRateLimit = fromEnv.SubmitRateLimit
	}

	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	return cfg, nil
}

// Validate проверяет, что заданы все обязательные параметры.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURI == "" {
		errs = append(errs, errors.New("DATABASE_URI is required"))
	}
	if c.WebhookURL == "" {
		errs = append(errs, errors.New("WEBHOOK_URL is required"))
	}
	if c.DiscordInvite == "" {
		errs = append(errs, errors.New("DISCORD_INVITE is required"))
	}
	if c.RosterPollInterval < 0 {
		errs = append(errs, errors.New("ROSTER_POLL_INTERVAL must not be negative"))
	}
	if c.SubmitRateLimit < 0 {
		errs = append(errs, errors.New("SUBMIT_RATE_LIMIT must not be negative"))
	}
	return errors.Join(errs...)
}
