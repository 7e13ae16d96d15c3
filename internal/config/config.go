package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel        string        `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPAddr        string        `yaml:"http-addr" env:"HTTP_ADDR" env-default:":8080"`
	WebDir          string        `yaml:"web-dir" env:"WEB_DIR" env-default:"./web"`
	SessionTTL      time.Duration `yaml:"session-ttl" env:"SESSION_TTL" env-default:"30m"`
	CleanupInterval time.Duration `yaml:"cleanup-interval" env:"CLEANUP_INTERVAL" env-default:"1m"`
	Opponent        Opponent      `yaml:"opponent"`
	Redis           Redis         `yaml:"redis"`
	Telemetry       Telemetry     `yaml:"telemetry"`
}

// Opponent holds the upper bounds of the simulated thinking time.
type Opponent struct {
	FirstDelay time.Duration `yaml:"first-delay" env:"OPPONENT_FIRST_DELAY" env-default:"1s"`
	RetryDelay time.Duration `yaml:"retry-delay" env:"OPPONENT_RETRY_DELAY" env-default:"100ms"`
}

// Redis is optional; game events are only published when Addr is set.
type Redis struct {
	Addr string `yaml:"addr" env:"REDIS_CONNSTRING" env-default:""`
}

type Telemetry struct {
	Enabled        bool   `yaml:"enabled" env:"OTEL_ENABLED" env-default:"false"`
	Endpoint       string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"otel-collector:4317"`
	ServiceName    string `yaml:"service-name" env:"OTEL_SERVICE_NAME" env-default:"tic-tac-toe-solo"`
	ServiceVersion string `yaml:"service-version" env-default:"v0.1.0"`
	StdoutTraces   bool   `yaml:"stdout-traces" env:"OTEL_STDOUT_TRACES" env-default:"false"`
}

// Load reads the YAML file at path with env overrides. A missing file is not
// an error; the configuration then comes from the environment alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		err := cleanenv.ReadConfig(path, cfg)
		if err == nil {
			return cfg, cfg.validate()
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("unable to load config file: %w", err)
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("unable to load config from env: %w", err)
	}
	return cfg, cfg.validate()
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) validate() error {
	if c.Opponent.FirstDelay < 0 || c.Opponent.RetryDelay < 0 {
		return errors.New("opponent delays must not be negative")
	}
	if c.SessionTTL <= 0 {
		return errors.New("session-ttl must be positive")
	}
	if c.CleanupInterval <= 0 {
		return errors.New("cleanup-interval must be positive")
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Path returns the config path from CONFIG_PATH or the default.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "./config.yml"
}
