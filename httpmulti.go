// Package httpmulti exposes the client, dispatcher and promise builders.
package httpmulti

import (
	"github.com/adamwoolhether/httpmulti/client"
	"github.com/adamwoolhether/httpmulti/client/multi"
	"github.com/adamwoolhether/httpmulti/client/promise"
)

// NewClient instantiates a new *Client with the provided options.
// If not specified, the default http.Client and http.Transport are used.
func NewClient(opts ...client.Option) (*client.Client, error) {
	return client.Build(opts...)
}

// NewDispatcher instantiates a dispatcher running transfers with
// bounded concurrency.
func NewDispatcher(opts ...multi.Option) (*multi.Dispatcher, error) {
	return multi.New(opts...)
}

// NewPromise wraps a run of d in a promise.
func NewPromise(d *multi.Dispatcher, opts ...promise.Option) *promise.Promise {
	return promise.New(d, opts...)
}
