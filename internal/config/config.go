package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"` // postgres | sqlite
	DatabaseURL string `env:"DATABASE_URL"`

	// Sem AMQP_URL a fila de retry fica desligada e falhas secundárias só são logadas.
	AMQPURL string `env:"AMQP_URL"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	BridgeSweepInterval time.Duration `env:"BRIDGE_SWEEP_INTERVAL" envDefault:"1h"`
	BridgeRateLimit     int           `env:"BRIDGE_RATE_LIMIT" envDefault:"60"` // req/min por IP

	// Só ligue atrás de um proxy que sobrescreve X-Forwarded-For/X-Real-IP.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"leadstitch"`
	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load lê o .env (se existir) e depois as variáveis de ambiente.
func Load() (*Config, error) {
	// .env é opcional: em produção tudo vem do ambiente.
	_ = godotenv.Load()
	return Parse()
}

func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be postgres or sqlite, got %q", c.StoreDriver))
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.BridgeRateLimit <= 0 {
		errs = append(errs, errors.New("BRIDGE_RATE_LIMIT must be positive"))
	}
	if c.BridgeSweepInterval < 0 {
		errs = append(errs, errors.New("BRIDGE_SWEEP_INTERVAL must not be negative"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) Addr() string {
	return ":" + c.Port
}

// NewLogger monta o logger JSON usado como slog.Default.
func NewLogger(w io.Writer, level string) *slog.Logger {
	lvl, err := parseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return lvl, nil
}
