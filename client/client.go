package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/adamwoolhether/httpmulti/client/breaker"
	"github.com/adamwoolhether/httpmulti/client/multi"
	"github.com/adamwoolhether/httpmulti/client/throttle"
	"github.com/adamwoolhether/httpmulti/client/transfer"
)

// Client wraps the std-lib *http.Client
// It sets a default *http.Client and *http.Transport, which
// can be customized via optional funcs. Every request, single or
// dispatched, goes through the same client and transport chain.
type Client struct {
	c      *http.Client
	logger *slog.Logger
}

func Build(optFns ...Option) (*Client, error) {
	client := &Client{
		logger: slog.Default(),
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	base := http.DefaultClient
	if opts.client != nil {
		base = opts.client
	}
	hc := *base
	client.c = &hc

	if opts.logger != nil {
		client.logger = opts.logger
	}

	if opts.timeout != nil {
		client.c.Timeout = *opts.timeout
	}

	if opts.noFollowRedirects {
		client.c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	var transport http.RoundTripper
	switch {
	case opts.rt != nil:
		transport = opts.rt
	case opts.client != nil && opts.client.Transport != nil:
		transport = opts.client.Transport
	default:
		transport = http.DefaultTransport
	}
	if opts.userAgent != "" {
		transport = userAgent{value: opts.userAgent, base: transport}
	}
	logFn := func() *slog.Logger { return client.logger }
	if opts.breaker != nil {
		rt, err := breaker.NewRoundTripper(*opts.breaker, logFn, transport)
		if err != nil {
			return nil, fmt.Errorf("configuring circuit breaker: %w", err)
		}
		transport = rt
	}
	if opts.throttle != nil {
		rt, err := throttle.NewRoundTripper(*opts.throttle, logFn, transport)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		transport = rt
	}
	if opts.tracing {
		var otelOpts []otelhttp.Option
		if opts.tracerProvider != nil {
			otelOpts = append(otelOpts, otelhttp.WithTracerProvider(opts.tracerProvider))
		}
		transport = otelhttp.NewTransport(transport, otelOpts...)
	}
	client.c.Transport = transport

	return client, nil
}

// HTTPClient returns the configured [http.Client].
func (c *Client) HTTPClient() *http.Client { return c.c }

// Do will fire the request, and write response to the given dest object if any.
// The request is retried according to [WithRetry].
func (c *Client) Do(req *http.Request, expCode int, opts ...DoOption) error {
	var settings doOpts
	for _, opt := range opts {
		err := opt(&settings)
		if err != nil {
			return err
		}
	}

	h, err := c.Handle(req, settings.transferOpts...)
	if err != nil {
		return err
	}

	resp, err := c.exec(req.Context(), h, expCode)
	if err != nil {
		return err
	}

	if settings.responseBody != nil {
		d := json.NewDecoder(bytes.NewReader(resp.Body))

		if settings.useJSONNum {
			d.UseNumber()
		}

		if err := d.Decode(settings.responseBody); err != nil {
			return fmt.Errorf("exec fn: decoding body: %w", err)
		}
	}

	return nil
}

// Download executes a request that's intended to stream the response body it to destPath.
// Data streams to destPath plus [PartialSuffix] and is renamed to destPath on
// success or removed on failure. A partial file left by an earlier run is resumed.
func (c *Client) Download(req *http.Request, expCode int, destPath string, opts ...DownloadOption) error {
	if destPath == "" {
		return errors.New("destPath must not be empty")
	}

	h, err := c.Handle(req, transfer.WithDownload(destPath, opts...))
	if err != nil {
		return err
	}

	if _, err := c.exec(req.Context(), h, expCode); err != nil {
		return err
	}

	return nil
}

// exec runs h to completion and checks the final status against expCode.
// A 206 satisfies an expected 200 since it answers a resumed download,
// as does a 416 the handle accepted because the partial file was complete.
func (c *Client) exec(ctx context.Context, h *transfer.Handle, expCode int) (*transfer.Response, error) {
	err := h.Exec(ctx)
	if h.Skipped() {
		return &transfer.Response{}, nil
	}

	resp := h.Response()
	if resp == nil {
		return nil, fmt.Errorf("exec http do: %w", err)
	}

	switch {
	case resp.StatusCode == expCode,
		expCode == http.StatusOK && resp.StatusCode == http.StatusPartialContent,
		expCode == http.StatusOK && resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && !h.Failed():
		if h.Kind() != transfer.KindNone && h.Kind() != transfer.KindHTTP {
			return nil, fmt.Errorf("exec fn: %w", err)
		}
		return resp, nil
	}

	body := resp.Body
	if len(body) > maxErrBodySize {
		body = body[:maxErrBodySize]
	}

	sentinel := ErrUnexpectedStatusCode
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		sentinel = errors.Join(ErrUnexpectedStatusCode, ErrAuthFailure)
	}

	return nil, &UnexpectedStatusError{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Err:        sentinel,
	}
}

// Handle wraps req in a [transfer.Handle] bound to this client, ready to
// be run with [transfer.Handle.Exec] or queued on a dispatcher.
func (c *Client) Handle(req *http.Request, opts ...transfer.Option) (*transfer.Handle, error) {
	return transfer.FromRequest(req, slices.Concat(c.transferDefaults(), opts)...)
}

// NewHandle configures a transfer of method against rawURL bound to this client.
func (c *Client) NewHandle(method, rawURL string, opts ...transfer.Option) (*transfer.Handle, error) {
	return transfer.New(method, rawURL, slices.Concat(c.transferDefaults(), opts)...)
}

func (c *Client) transferDefaults() []transfer.Option {
	return []transfer.Option{transfer.WithClient(c.c), transfer.WithLogger(c.logger)}
}

// Multi returns a dispatcher whose transfers use this client unless
// they set their own.
func (c *Client) Multi(opts ...multi.Option) (*multi.Dispatcher, error) {
	return multi.New(slices.Concat([]multi.Option{multi.WithHTTPClient(c.c), multi.WithLogger(c.logger)}, opts)...)
}

// Request instantiates an *http.Request with the provided information.
// It's just a convenience method that wraps the public Request func.
func (c *Client) Request(ctx context.Context, reqURL *url.URL, method string, opts ...RequestOption) (*http.Request, error) {
	return Request(ctx, reqURL, method, opts...)
}

// URL creates a url.URL for use in Request.
// It's just a convenience method that wraps the public URL func.
func (c *Client) URL(scheme, host, path string, opts ...URLOption) *url.URL {
	return URL(scheme, host, path, opts...)
}

// Request instantiates an *http.Request with the provided information.
// Content-Type defaults to `application/json` if unspecified via WithContentType.
func Request(ctx context.Context, reqURL *url.URL, method string, opts ...RequestOption) (*http.Request, error) {
	var settings requestOpts
	for _, opt := range opts {
		err := opt(&settings)
		if err != nil {
			return nil, err
		}
	}

	var payload bytes.Buffer
	if settings.body != nil {
		if err := json.NewEncoder(&payload).Encode(settings.body); err != nil {
			return nil, fmt.Errorf("encoding request payload: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), &payload)
	if err != nil {
		return nil, fmt.Errorf("instantiating request: %w", err)
	}

	for _, cookie := range settings.cookies {
		req.AddCookie(cookie)
	}

	var contentType string
	if settings.contentType == nil {
		contentType = "application/json"
	} else {
		contentType = *settings.contentType
	}

	req.Header.Set("Content-Type", contentType)
	for k, v := range settings.headers {
		for _, element := range v {
			req.Header.Add(k, element)
		}
	}

	return req, nil
}

// URL creates a url.URL for use in Request.
func URL(scheme, host, path string, opts ...URLOption) *url.URL {
	var settings urlOpts
	for _, opt := range opts {
		opt(&settings)
	}

	if settings.port != nil {
		host = fmt.Sprintf("%s:%d", host, *settings.port)
	}

	endpoint := url.URL{
		Scheme: scheme,
		Host:   host,
		Path:   path,
	}

	if settings.queryStrings != nil {
		queryParams := url.Values{}
		for k, v := range settings.queryStrings {
			queryParams.Add(k, v)
		}

		endpoint.RawQuery = queryParams.Encode()
	}

	return &endpoint
}
