package multi

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/adamwoolhether/httpmulti/client/transfer"
	"github.com/adamwoolhether/httpmulti/internal/validate"
)

// Config holds the dispatcher settings that can come from the environment.
type Config struct {
	Concurrency   int           `env:"MULTI_CONCURRENCY" envDefault:"25" validate:"gte=1"`
	WaitTimeout   time.Duration `env:"MULTI_WAIT_TIMEOUT" envDefault:"1s" validate:"gt=0"`
	FallbackSleep time.Duration `env:"MULTI_FALLBACK_SLEEP" envDefault:"250us" validate:"gte=0"`
	Retries       int           `env:"MULTI_RETRIES" envDefault:"0" validate:"gte=0"`
}

// LoadConfig reads a Config from the process environment.
func LoadConfig() (Config, error) {
	return parseConfig(env.Options{})
}

// LoadConfigFrom reads a Config from environ instead of the process environment.
func LoadConfigFrom(environ map[string]string) (Config, error) {
	return parseConfig(env.Options{Environment: environ})
}

func parseConfig(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Options converts cfg into dispatcher options. A positive Retries
// becomes the default fixed-count retry policy.
func (cfg Config) Options() []Option {
	opts := []Option{
		WithConcurrency(cfg.Concurrency),
		WithWaitTimeout(cfg.WaitTimeout),
		WithFallbackSleep(cfg.FallbackSleep),
	}

	if cfg.Retries > 0 {
		policy := transfer.RetryCount(cfg.Retries)
		opts = append(opts, func(o *options) error {
			o.defaults.Retry = &policy
			return nil
		})
	}

	return opts
}
