package multi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/httpmulti/client/engine"
)

type options struct {
	concurrency   int
	defaults      Defaults
	engine        engine.Engine
	client        *http.Client
	logger        *slog.Logger
	tracer        trace.Tracer
	waitTimeout   time.Duration
	fallbackSleep time.Duration
}

// Option is a functional option for configuring a [Dispatcher].
type Option func(*options) error

// WithConcurrency sets how many transfers may be active at once.
func WithConcurrency(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return errors.New("concurrency must be at least 1")
		}
		o.concurrency = n
		return nil
	}
}

// WithDefaults sets the callbacks and retry policy applied to handles
// that have none of their own.
func WithDefaults(d Defaults) Option {
	return func(o *options) error {
		o.defaults = d
		return nil
	}
}

// WithEngine runs transfers on e instead of a fresh [engine.Loop] per
// [Dispatcher.Start]. The caller keeps ownership and closes it.
func WithEngine(e engine.Engine) Option {
	return func(o *options) error {
		if e == nil {
			return errors.New("engine must not be nil")
		}
		o.engine = e
		return nil
	}
}

// WithHTTPClient sets the base client for handles that did not set their own.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) error {
		if hc == nil {
			return errors.New("client must not be nil")
		}
		o.client = hc
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

// WithTracer sets the tracer for the run and attempt spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		o.tracer = tracer
		return nil
	}
}

// WithWaitTimeout bounds each blocking wait on the engine.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New("wait timeout must be positive")
		}
		o.waitTimeout = d
		return nil
	}
}

// WithFallbackSleep sets the pause taken when the engine's wait fails.
func WithFallbackSleep(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return errors.New("fallback sleep must not be negative")
		}
		o.fallbackSleep = d
		return nil
	}
}
