package transfer

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// RetryPolicy decides whether a failed attempt is tried again. A policy
// is either a fixed count or a predicate; the zero value never retries.
type RetryPolicy struct {
	max  int
	when func(*Handle) bool
}

// RetryCount allows up to n retries, so at most n+1 attempts.
func RetryCount(n int) RetryPolicy {
	if n < 0 {
		n = 0
	}
	return RetryPolicy{max: n}
}

// RetryWhen retries while fn returns true for the failed handle.
// There is no implicit upper bound: fn must stop on its own, usually by
// checking [Handle.Attempts] or [Handle.Retries].
func RetryWhen(fn func(*Handle) bool) RetryPolicy {
	return RetryPolicy{when: fn}
}

// RetryRecoverable retries up to max times when the failure looks
// transient: connection errors, 429 and 5xx other than 501. The
// decision is delegated to [retryablehttp.DefaultRetryPolicy].
func RetryRecoverable(max int) RetryPolicy {
	return RetryWhen(func(h *Handle) bool {
		if h.Retries() >= max {
			return false
		}

		var resp *http.Response
		err := h.Err()
		if h.Kind() == KindHTTP {
			resp = h.rawResponse()
			err = nil
		}

		ok, _ := retryablehttp.DefaultRetryPolicy(h.ctx, resp, err)
		return ok
	})
}

// IsZero reports whether p never retries.
func (p RetryPolicy) IsZero() bool {
	return p.when == nil && p.max == 0
}

// backoff returns how long to wait before attempt number attempt (1-based),
// honouring Retry-After on 429 and 503 responses.
func backoff(min, max time.Duration, attempt int, resp *http.Response) time.Duration {
	if max <= 0 || attempt <= 1 {
		return 0
	}

	return retryablehttp.DefaultBackoff(min, max, attempt-2, resp)
}

// AttemptRetry reports whether the last attempt failed and the retry
// policy allows another one. It records the retry on the handle when it
// returns true. Configuration errors are never retried.
func (h *Handle) AttemptRetry() bool {
	if h.kind == KindNone || h.kind == KindConfiguration || h.retry == nil {
		return false
	}

	if h.retry.when != nil {
		if !h.retry.when(h) {
			return false
		}
		h.retries++
		return true
	}

	if h.remaining < 1 {
		return false
	}
	h.remaining--
	h.retries++

	return true
}
