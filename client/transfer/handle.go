package transfer

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/httpmulti/client/download"
)

const instrumentationName = "github.com/adamwoolhether/httpmulti/client/transfer"

// Handle is one HTTP request/response exchange together with its retry
// policy, callbacks and per-attempt bookkeeping.
//
// A Handle is owned by one goroutine at a time: the caller while it is
// being configured, then a dispatcher (or [Handle.Exec]) until it is
// finalized. Accessors are meant to be called from callbacks or after
// the transfer completes.
type Handle struct {
	id        uint64
	requestID uuid.UUID
	owned     bool
	finalized bool

	method  string
	url     *url.URL
	header  http.Header
	body    []byte
	cookies []*http.Cookie
	auth    func(*http.Request)
	ctx     context.Context

	timeout         time.Duration
	proxy           *url.URL
	insecure        bool
	requestIDHeader string

	base      *http.Client
	client    *http.Client
	transport *http.Transport
	openErr   error
	logger    *slog.Logger
	tracer    trace.Tracer

	retry      *RetryPolicy
	remaining  int
	retries    int
	attempts   int
	backoffMin time.Duration
	backoffMax time.Duration

	beforeSend Callback
	onSuccess  Callback
	onError    Callback
	onComplete Callback

	dlPath  string
	dlOpts  []download.Option
	dl      *download.File
	skipped bool

	// Outcome of the last attempt.
	kind    Kind
	err     error
	resp    *Response
	raw     *http.Response
	lastReq *http.Request
}

// New configures a transfer of method against rawURL. An empty rawURL is
// accepted here and reported as a configuration error when executed.
func New(method, rawURL string, opts ...Option) (*Handle, error) {
	h := &Handle{
		requestID: uuid.New(),
		method:    method,
		header:    make(http.Header),
		ctx:       context.Background(),
	}

	if h.method == "" {
		h.method = http.MethodGet
	}

	if rawURL != "" {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, &ConfigurationError{Reason: "parsing url", Err: err}
		}
		h.url = u
	}

	if err := h.configure(opts); err != nil {
		return nil, err
	}

	return h, nil
}

// FromRequest configures a transfer replaying req. The request body is
// consumed and kept so that retries can resend it.
func FromRequest(req *http.Request, opts ...Option) (*Handle, error) {
	if req == nil {
		return nil, &ConfigurationError{Reason: "request must not be nil"}
	}

	h := &Handle{
		requestID: uuid.New(),
		method:    req.Method,
		header:    req.Header.Clone(),
		ctx:       req.Context(),
	}
	if h.header == nil {
		h.header = make(http.Header)
	}
	if h.method == "" {
		h.method = http.MethodGet
	}
	if req.URL != nil {
		u := *req.URL
		h.url = &u
	}

	if req.Body != nil && req.Body != http.NoBody {
		b, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, &ConfigurationError{Reason: "reading request body", Err: err}
		}
		h.body = b
	}

	if err := h.configure(opts); err != nil {
		return nil, err
	}

	return h, nil
}

func (h *Handle) configure(opts []Option) error {
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return &ConfigurationError{Reason: "applying option", Err: err}
		}
	}

	if h.dlPath != "" {
		f, err := download.New(h.dlPath, h.log(), h.dlOpts...)
		if err != nil {
			return &ConfigurationError{Reason: "configuring download", Err: err}
		}
		h.dl = f
	}

	return nil
}

// ID returns the sequential ID assigned when the handle was enqueued,
// or zero if it never was.
func (h *Handle) ID() uint64 { return h.id }

// TransferID implements the engine's transfer contract.
func (h *Handle) TransferID() uint64 { return h.id }

// RequestID returns the random identifier assigned at creation.
func (h *Handle) RequestID() uuid.UUID { return h.requestID }

// Method returns the request method.
func (h *Handle) Method() string { return h.method }

// URL returns the target URL, or nil if unset.
func (h *Handle) URL() *url.URL { return h.url }

// Attempts returns how many attempts have been started.
func (h *Handle) Attempts() int { return h.attempts }

// Retries returns how many retries the policy granted so far.
func (h *Handle) Retries() int { return h.retries }

// RemainingRetries returns the retries left under a fixed-count policy.
func (h *Handle) RemainingRetries() int { return h.remaining }

// Kind classifies the last attempt.
func (h *Handle) Kind() Kind { return h.kind }

// Err returns the error of the last attempt, or nil on success.
func (h *Handle) Err() error { return h.err }

// Failed reports whether the last attempt ended in error.
func (h *Handle) Failed() bool { return h.kind != KindNone }

// ErrorCode returns the transport error code for transport failures, the
// status code for HTTP errors and zero otherwise.
func (h *Handle) ErrorCode() int {
	switch e := h.err.(type) {
	case *TransportError:
		return e.Code
	case *HTTPStatusError:
		return e.StatusCode
	case *DownloadIOError:
		return CodeWrite
	case *ConfigurationError:
		return CodeMalformedURL
	}
	return 0
}

// StatusCode returns the status of the last response, or zero.
func (h *Handle) StatusCode() int {
	if h.resp == nil {
		return 0
	}
	return h.resp.StatusCode
}

// Response returns the last response, or nil if none was received.
func (h *Handle) Response() *Response { return h.resp }

// Request returns the request sent by the last attempt, or nil.
func (h *Handle) Request() *http.Request { return h.lastReq }

// Skipped reports whether a download was satisfied by an existing file.
func (h *Handle) Skipped() bool { return h.skipped }

// DownloadPath returns the download destination, or "".
func (h *Handle) DownloadPath() string { return h.dlPath }

// Finalized reports whether the handle reached its terminal state.
func (h *Handle) Finalized() bool { return h.finalized }

// HasRetry reports whether a retry policy was set.
func (h *Handle) HasRetry() bool { return h.retry != nil }

// SetRetry replaces the retry policy.
func (h *Handle) SetRetry(p RetryPolicy) {
	h.retry = &p
	h.remaining = p.max
}

// AddHeader adds a request header for subsequent attempts.
func (h *Handle) AddHeader(name, value string) {
	h.header.Add(name, value)
}

func (h *Handle) rawResponse() *http.Response { return h.raw }

func (h *Handle) log() *slog.Logger {
	if h.logger == nil {
		return slog.Default()
	}
	return h.logger
}

// Claim assigns the dispatcher-issued id and marks the handle as owned.
func (h *Handle) Claim(id uint64) error {
	switch {
	case h.finalized:
		return ErrFinalized
	case h.owned:
		return ErrOwned
	}

	h.id = id
	h.owned = true
	return nil
}

// Defaults are applied to a handle that has none of its own.
type Defaults struct {
	BeforeSend Callback
	OnSuccess  Callback
	OnError    Callback
	OnComplete Callback
	Retry      *RetryPolicy
}

// ApplyDefaults fills every unset callback and the retry policy from d.
func (h *Handle) ApplyDefaults(d Defaults) {
	if h.beforeSend == nil {
		h.beforeSend = d.BeforeSend
	}
	if h.onSuccess == nil {
		h.onSuccess = d.OnSuccess
	}
	if h.onError == nil {
		h.onError = d.OnError
	}
	if h.onComplete == nil {
		h.onComplete = d.OnComplete
	}
	if h.retry == nil && d.Retry != nil {
		h.SetRetry(*d.Retry)
	}
}

// Env carries what a runner lends a handle that did not set its own.
type Env struct {
	Client *http.Client
	Logger *slog.Logger
	Tracer trace.Tracer
}

// Open builds the per-handle client from the base client and the
// handle's timeout, proxy and TLS settings. A failure is recorded and
// reported by the next attempt as a configuration error. Opening an
// already opened handle has no effect.
func (h *Handle) Open(env Env) {
	if h.client != nil || h.openErr != nil {
		return
	}

	if h.logger == nil {
		h.logger = env.Logger
	}
	if h.tracer == nil {
		h.tracer = env.Tracer
	}
	if h.tracer == nil {
		h.tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}

	base := h.base
	if base == nil {
		base = env.Client
	}
	if base == nil {
		base = http.DefaultClient
	}

	c := *base
	if h.timeout > 0 {
		c.Timeout = h.timeout
	}

	if h.proxy != nil || h.insecure {
		rt := c.Transport
		if rt == nil {
			rt = http.DefaultTransport
		}

		tr, ok := rt.(*http.Transport)
		if !ok {
			h.openErr = &ConfigurationError{Reason: fmt.Sprintf("proxy and TLS options need an *http.Transport, got %T", rt)}
			return
		}

		tr = tr.Clone()
		if h.proxy != nil {
			tr.Proxy = http.ProxyURL(h.proxy)
		}
		if h.insecure {
			if tr.TLSClientConfig == nil {
				tr.TLSClientConfig = &tls.Config{}
			}
			tr.TLSClientConfig.InsecureSkipVerify = true
		}
		c.Transport = tr
		h.transport = tr
	}

	h.client = &c
}

// RunBeforeSend invokes the before-send callback, if any.
func (h *Handle) RunBeforeSend() {
	if h.beforeSend != nil {
		h.beforeSend(h)
	}
}

// Finalize fires the success or error callback, then the complete
// callback, and releases the handle's resources. A successful download
// is committed before the callbacks so they observe the final file; a
// failed one is discarded after them. Only the first call has effect.
func (h *Handle) Finalize() {
	if h.finalized {
		return
	}
	h.finalized = true

	if h.dl != nil && h.kind == KindNone && !h.skipped {
		if err := h.dl.Commit(); err != nil {
			h.fail(KindDownloadIO, &DownloadIOError{Path: h.dlPath, Err: err})
		}
	}

	if h.kind == KindNone {
		if h.onSuccess != nil {
			h.onSuccess(h)
		}
	} else if h.onError != nil {
		h.onError(h)
	}

	if h.onComplete != nil {
		h.onComplete(h)
	}

	h.release()
}

func (h *Handle) release() {
	if h.dl != nil {
		var err error
		if h.kind != KindNone {
			err = h.dl.Discard()
		} else {
			err = h.dl.Close()
		}
		if err != nil {
			h.log().Error("releasing download file", "path", h.dlPath, "error", err)
		}
	}

	if h.transport != nil {
		h.transport.CloseIdleConnections()
		h.transport = nil
	}
	h.client = nil
}

// Exec runs the transfer on the calling goroutine without a dispatcher:
// attempts are repeated while the retry policy allows, then the handle
// is finalized. It returns the error of the final attempt. Cancelling
// ctx aborts the attempt in flight and stops further retries.
func (h *Handle) Exec(ctx context.Context) error {
	switch {
	case h.finalized:
		return ErrFinalized
	case h.owned:
		return ErrOwned
	}
	h.owned = true

	if ctx == nil {
		ctx = context.Background()
	}

	h.Open(Env{})
	for {
		h.RunBeforeSend()
		h.Perform(ctx)
		if ctx.Err() != nil || !h.AttemptRetry() {
			break
		}
	}
	h.Finalize()

	return h.err
}
