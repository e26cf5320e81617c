package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Variables are read only with this prefix, e.g. GOCHAT_SERVER_URL.
const envPrefix = "GOCHAT"

type Config struct {
	ServerURL      string        `split_words:"true" default:"http://localhost:3000" validate:"required,url,startswith=http"`
	Username       string        `split_words:"true"`
	DebugAddr      string        `split_words:"true" validate:"omitempty,hostname_port"`
	LogLevel       string        `split_words:"true" default:"info" validate:"oneof=trace debug info warn error"`
	RequestTimeout time.Duration `split_words:"true" default:"15s" validate:"gt=0"`
	HistoryCount   int           `split_words:"true" default:"50" validate:"gte=0,lte=1000"`
}

// Load reads GOCHAT_* variables, after loading them from the given .env
// files when they exist.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration after flags have been applied.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
