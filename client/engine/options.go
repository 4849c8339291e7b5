package engine

import (
	"errors"
	"log/slog"
)

type options struct {
	maxTransfers int
	logger       *slog.Logger
}

// Option is a functional option for configuring a [Loop].
type Option func(*options) error

// WithMaxTransfers caps how many transfers may be registered at once.
// Zero means no limit.
func WithMaxTransfers(n int) Option {
	return func(o *options) error {
		if n < 0 {
			return errors.New("max transfers must not be negative")
		}
		o.maxTransfers = n
		return nil
	}
}

// WithLogger injects a custom [slog.Logger].
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}
