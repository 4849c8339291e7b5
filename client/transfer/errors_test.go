package transfer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"
)

func TestTransportCode(t *testing.T) {
	tests := map[string]struct {
		err  error
		want int
	}{
		"cancelled":    {err: fmt.Errorf("wrapped: %w", context.Canceled), want: CodeAborted},
		"deadline":     {err: context.DeadlineExceeded, want: CodeTimeout},
		"dns":          {err: &net.DNSError{Err: "no such host", Name: "nope.invalid"}, want: CodeResolveHost},
		"tls record":   {err: tls.RecordHeaderError{Msg: "bad record"}, want: CodeSSLConnect},
		"refused":      {err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, want: CodeConnect},
		"write":        {err: &net.OpError{Op: "write", Err: syscall.EPIPE}, want: CodeSend},
		"unclassified": {err: fmt.Errorf("unexpected EOF"), want: CodeRecv},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := transportCode(tc.err); got != tc.want {
				t.Errorf("transportCode() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestAttemptRetry(t *testing.T) {
	t.Run("success never retries", func(t *testing.T) {
		h := &Handle{}
		h.SetRetry(RetryCount(3))
		if h.AttemptRetry() {
			t.Error("expected no retry after success")
		}
	})

	t.Run("no policy", func(t *testing.T) {
		h := &Handle{kind: KindTransport}
		if h.AttemptRetry() {
			t.Error("expected no retry without a policy")
		}
	})

	t.Run("zero count", func(t *testing.T) {
		h := &Handle{kind: KindHTTP}
		h.SetRetry(RetryCount(0))
		if h.AttemptRetry() {
			t.Error("expected no retry with a zero count")
		}
	})

	t.Run("count decrements", func(t *testing.T) {
		h := &Handle{kind: KindHTTP}
		h.SetRetry(RetryCount(2))

		for i := range 2 {
			if !h.AttemptRetry() {
				t.Fatalf("retry %d denied", i+1)
			}
		}
		if h.AttemptRetry() {
			t.Error("expected retries to be exhausted")
		}
		if h.Retries() != 2 || h.RemainingRetries() != 0 {
			t.Errorf("retries=%d remaining=%d, want 2 and 0", h.Retries(), h.RemainingRetries())
		}
	})

	t.Run("configuration errors are final", func(t *testing.T) {
		h := &Handle{kind: KindConfiguration}
		h.SetRetry(RetryWhen(func(*Handle) bool { return true }))
		if h.AttemptRetry() {
			t.Error("expected configuration errors to be final")
		}
	})
}

func TestBackoff(t *testing.T) {
	if got := backoff(time.Second, 0, 3, nil); got != 0 {
		t.Errorf("no max: got %s, want 0", got)
	}
	if got := backoff(time.Second, 2*time.Second, 1, nil); got != 0 {
		t.Errorf("first attempt: got %s, want 0", got)
	}
	if got := backoff(10*time.Millisecond, time.Second, 2, nil); got != 10*time.Millisecond {
		t.Errorf("first retry: got %s, want 10ms", got)
	}
	if got := backoff(10*time.Millisecond, 15*time.Millisecond, 5, nil); got != 15*time.Millisecond {
		t.Errorf("capped: got %s, want 15ms", got)
	}

	resp := &http.Response{StatusCode: http.StatusServiceUnavailable, Header: http.Header{"Retry-After": {"2"}}}
	if got := backoff(10*time.Millisecond, time.Minute, 2, resp); got != 2*time.Second {
		t.Errorf("retry-after: got %s, want 2s", got)
	}
}

func TestParseContentRange(t *testing.T) {
	tests := map[string]struct {
		value     string
		wantStart int64
		wantTotal int64
		wantOK    bool
	}{
		"range":           {value: "bytes 6-10/11", wantStart: 6, wantTotal: 11, wantOK: true},
		"unknown total":   {value: "bytes 0-4/*", wantStart: 0, wantTotal: -1, wantOK: true},
		"unsatisfied":     {value: "bytes */11", wantStart: -1, wantTotal: 11, wantOK: true},
		"unsatisfied any": {value: "bytes */*"},
		"end past total":  {value: "bytes 0-11/11"},
		"reversed":        {value: "bytes 5-4/11"},
		"wrong unit":      {value: "items 0-4/11"},
		"no total":        {value: "bytes 0-4"},
		"empty":           {value: ""},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			start, total, ok := parseContentRange(tc.value)
			if ok != tc.wantOK {
				t.Fatalf("exp ok=%v, got %v", tc.wantOK, ok)
			}
			if !ok {
				return
			}
			if start != tc.wantStart || total != tc.wantTotal {
				t.Errorf("exp (%d, %d), got (%d, %d)", tc.wantStart, tc.wantTotal, start, total)
			}
		})
	}
}
