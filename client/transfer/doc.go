// Package transfer models a single HTTP exchange driven by a dispatcher
// or run on its own.
//
// A [Handle] carries the request (method, URL, headers, body, auth,
// proxy, TLS and timeout settings), an optional download destination,
// a [RetryPolicy] and four callbacks: before-send, success, error and
// complete. Each attempt is classified as success, a transport error
// (no complete response) or an HTTP error (4xx/5xx):
//
//	h, err := transfer.New(http.MethodGet, "https://example.com/data.json",
//		transfer.WithRetry(transfer.RetryCount(2)),
//		transfer.WithOnSuccess(func(h *transfer.Handle) { ... }),
//	)
//	err = h.Exec(ctx)
//
// Under a dispatcher the same handle is enqueued instead of executed,
// see [github.com/adamwoolhether/httpmulti/client/multi]. The success
// or error callback fires exactly once, followed by the complete
// callback, however many retries happened.
package transfer
