// Package breaker provides an [http.RoundTripper] guarded by a circuit
// breaker from [github.com/sony/gobreaker].
//
// A batch of transfers against an unhealthy origin would otherwise burn
// every attempt (and every retry) waiting on timeouts. Once the breaker
// opens, round trips fail immediately with [ErrOpen], which the transfer
// layer reports as a transport error and the retry policy can act on.
package breaker

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

var (
	// ErrOpen is returned while the breaker rejects requests.
	ErrOpen = errors.New("circuit breaker open")
	// ErrMustNotBeZero is returned for a zero trip threshold.
	ErrMustNotBeZero = errors.New("must be greater than zero")
)

// Config defines when the breaker trips and how it recovers.
//
// TripAfter consecutive failures open the circuit. After OpenTimeout the
// breaker lets HalfOpenRequests through; if they succeed the circuit closes.
// Interval resets the failure counts while closed; zero never resets.
// FailureCodes lists response status codes counted as failures; when empty
// every 5xx counts.
type Config struct {
	Name             string
	TripAfter        uint32
	HalfOpenRequests uint32
	OpenTimeout      time.Duration
	Interval         time.Duration
	FailureCodes     []int
}

type statusError struct {
	resp *http.Response
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status code %d counted as failure", e.resp.StatusCode)
}

type breaker struct {
	cb        *gobreaker.CircuitBreaker
	next      http.RoundTripper
	isFailure func(int) bool
}

// NewRoundTripper wraps next with a circuit breaker described by cfg.
func NewRoundTripper(cfg Config, logFn func() *slog.Logger, next http.RoundTripper) (http.RoundTripper, error) {
	if cfg.TripAfter == 0 {
		return nil, fmt.Errorf("trip after %w", ErrMustNotBeZero)
	}

	if next == nil {
		next = http.DefaultTransport
	}

	if logFn == nil {
		logFn = slog.Default
	}

	isFailure := func(code int) bool { return code >= http.StatusInternalServerError }
	if len(cfg.FailureCodes) > 0 {
		codes := make(map[int]struct{}, len(cfg.FailureCodes))
		for _, code := range cfg.FailureCodes {
			codes[code] = struct{}{}
		}
		isFailure = func(code int) bool {
			_, ok := codes[code]
			return ok
		}
	}

	b := &breaker{
		next:      next,
		isFailure: isFailure,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: cfg.HalfOpenRequests,
			Interval:    cfg.Interval,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.TripAfter
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger := logFn()
				if logger == nil {
					return
				}
				switch to {
				case gobreaker.StateOpen:
					logger.Error("circuit opened", "breaker", name, "from", from.String())
				case gobreaker.StateHalfOpen:
					logger.Warn("circuit half open", "breaker", name, "max_requests", cfg.HalfOpenRequests)
				case gobreaker.StateClosed:
					logger.Info("circuit closed", "breaker", name)
				}
			},
		}),
	}

	return b, nil
}

func (b *breaker) RoundTrip(r *http.Request) (*http.Response, error) {
	v, err := b.cb.Execute(func() (any, error) {
		resp, err := b.next.RoundTrip(r)
		if err != nil {
			return nil, err
		}
		if b.isFailure(resp.StatusCode) {
			return nil, &statusError{resp: resp}
		}
		return resp, nil
	})

	var serr *statusError
	switch {
	case errors.As(err, &serr):
		// The failure is recorded by the breaker; the caller still gets the response.
		return serr.resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	case err != nil:
		return nil, err
	}

	return v.(*http.Response), nil
}
