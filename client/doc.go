// Package client provides the core implementation of the configurable HTTP
// client built on [net/http].
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithTimeout(10 * time.Second),
//		client.WithUserAgent("myapp/1.0"),
//		client.WithThrottle(50, 10),
//	)
//
// # Making Requests
//
// Construct a [URL] and [Request], then execute with [Client.Do]:
//
//	u := client.URL("https", "api.example.com", "/v1/resource")
//	req, err := client.Request(ctx, u, http.MethodGet)
//	err = c.Do(req, http.StatusOK, client.WithDestination(&result))
//
// Failed attempts can be retried with [WithRetry].
//
// # Downloading Files
//
// Stream a response body directly to disk with optional checksum
// verification and progress reporting. An interrupted download leaves a
// partial file that the next call resumes with a Range request:
//
//	err = c.Download(req, http.StatusOK, "/tmp/file.bin",
//		client.WithChecksum(sha256.New(), expectedHex),
//		client.WithProgress(),
//	)
//
// # Many Requests
//
// [Client.Multi] returns a dispatcher that runs many transfers through
// the client with bounded concurrency:
//
//	d, err := c.Multi(multi.WithConcurrency(8))
//	h, err := c.NewHandle(http.MethodGet, "https://example.com/a",
//		transfer.WithRetry(transfer.RetryCount(2)),
//		transfer.WithOnComplete(func(h *transfer.Handle) { ... }),
//	)
//	err = d.Enqueue(h)
//	err = d.Start(ctx)
//
// See [github.com/adamwoolhether/httpmulti/client/multi] and
// [github.com/adamwoolhether/httpmulti/client/promise].
package client
