package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/httpmulti/client/download"
)

// Callback is invoked with the handle at a lifecycle point.
type Callback func(*Handle)

// Option is a functional option for configuring a [Handle] via [New].
type Option func(*Handle) error

// WithHeader adds a request header. It may be repeated.
func WithHeader(name, value string) Option {
	return func(h *Handle) error {
		if name == "" {
			return errors.New("header name must not be empty")
		}
		h.header.Add(name, value)
		return nil
	}
}

// WithHeaders adds all given headers to the request.
func WithHeaders(headers map[string][]string) Option {
	return func(h *Handle) error {
		for k, v := range headers {
			for _, element := range v {
				h.header.Add(k, element)
			}
		}
		return nil
	}
}

// WithBody sets the request payload. It is read once and replayed on every attempt.
func WithBody(body io.Reader) Option {
	return func(h *Handle) error {
		if body == nil {
			h.body = nil
			return nil
		}

		b, err := io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("reading body: %w", err)
		}
		h.body = b
		return nil
	}
}

// WithContext sets the context every attempt's request is bound to.
func WithContext(ctx context.Context) Option {
	return func(h *Handle) error {
		if ctx == nil {
			return errors.New("context must not be nil")
		}
		h.ctx = ctx
		return nil
	}
}

// WithTimeout bounds each attempt, from connect to the end of the body.
func WithTimeout(d time.Duration) Option {
	return func(h *Handle) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		h.timeout = d
		return nil
	}
}

// WithBasicAuth sets HTTP basic authentication.
func WithBasicAuth(username, password string) Option {
	return func(h *Handle) error {
		h.auth = func(r *http.Request) { r.SetBasicAuth(username, password) }
		return nil
	}
}

// WithBearerToken sets a bearer Authorization header.
func WithBearerToken(token string) Option {
	return func(h *Handle) error {
		if token == "" {
			return errors.New("bearer token must not be empty")
		}
		h.auth = func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
		return nil
	}
}

// WithProxy routes the transfer through the given proxy URL.
func WithProxy(rawURL string) Option {
	return func(h *Handle) error {
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("parsing proxy url: %w", err)
		}
		h.proxy = u
		return nil
	}
}

// WithCookies attaches the given cookies to every attempt.
func WithCookies(cookies ...*http.Cookie) Option {
	return func(h *Handle) error {
		h.cookies = append(h.cookies, cookies...)
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
func WithInsecureSkipVerify() Option {
	return func(h *Handle) error {
		h.insecure = true
		return nil
	}
}

// WithClient sets the base [http.Client]. A dispatcher's client is
// used when unset, and [http.DefaultClient] after that.
func WithClient(hc *http.Client) Option {
	return func(h *Handle) error {
		if hc == nil {
			return errors.New("client must not be nil")
		}
		h.base = hc
		return nil
	}
}

// WithRequestIDHeader sends the handle's request ID in header name.
func WithRequestIDHeader(name string) Option {
	return func(h *Handle) error {
		if name == "" {
			return errors.New("request id header must not be empty")
		}
		h.requestIDHeader = name
		return nil
	}
}

// WithDownload streams successful response bodies to path instead of memory.
func WithDownload(path string, opts ...download.Option) Option {
	return func(h *Handle) error {
		if path == "" {
			return errors.New("download path must not be empty")
		}
		h.dlPath = path
		h.dlOpts = opts
		return nil
	}
}

// WithRetry sets the retry policy.
func WithRetry(p RetryPolicy) Option {
	return func(h *Handle) error {
		h.SetRetry(p)
		return nil
	}
}

// WithRetryBackoff waits between retries, growing exponentially from
// min to max and honouring Retry-After on 429 and 503 responses.
func WithRetryBackoff(min, max time.Duration) Option {
	return func(h *Handle) error {
		if min < 0 || max < min {
			return fmt.Errorf("invalid backoff range [%s, %s]", min, max)
		}
		h.backoffMin, h.backoffMax = min, max
		return nil
	}
}

// WithBeforeSend runs fn right before every attempt is started.
func WithBeforeSend(fn Callback) Option {
	return func(h *Handle) error {
		h.beforeSend = fn
		return nil
	}
}

// WithOnSuccess runs fn once when the transfer finally succeeds.
func WithOnSuccess(fn Callback) Option {
	return func(h *Handle) error {
		h.onSuccess = fn
		return nil
	}
}

// WithOnError runs fn once when the transfer finally fails.
func WithOnError(fn Callback) Option {
	return func(h *Handle) error {
		h.onError = fn
		return nil
	}
}

// WithOnComplete runs fn once after the success or error callback.
func WithOnComplete(fn Callback) Option {
	return func(h *Handle) error {
		h.onComplete = fn
		return nil
	}
}

// WithLogger injects a custom [slog.Logger].
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handle) error {
		h.logger = logger
		return nil
	}
}

// WithTracer sets the tracer used for per-attempt spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(h *Handle) error {
		h.tracer = tracer
		return nil
	}
}
