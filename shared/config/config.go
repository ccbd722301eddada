package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the server settings read from the environment.
type Config struct {
	Port             int           `env:"PORT" envDefault:"8080"`
	GinMode          string        `env:"GIN_MODE" envDefault:"release"`
	ImageDir         string        `env:"IMAGE_DIR" envDefault:"./images"`
	ImageCacheMaxAge time.Duration `env:"IMAGE_CACHE_MAX_AGE" envDefault:"24h"`
	MaxUploadBytes   int64         `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" envDefault:"10m"`
	SweepGrace       time.Duration `env:"SWEEP_GRACE" envDefault:"1h"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty        bool          `env:"LOG_PRETTY" envDefault:"false"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads Config from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("unknown gin mode %q", c.GinMode)
	}
	if c.ImageDir == "" {
		return fmt.Errorf("image directory cannot be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", c.MaxUploadBytes)
	}
	if c.SweepInterval < 0 || c.SweepGrace < 0 {
		return fmt.Errorf("sweep interval and grace cannot be negative")
	}
	return nil
}
