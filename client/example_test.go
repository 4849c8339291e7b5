package client_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/adamwoolhether/httpmulti/client"
	"github.com/adamwoolhether/httpmulti/client/breaker"
	"github.com/adamwoolhether/httpmulti/client/transfer"
)

func ExampleBuild() {
	c, err := client.Build(
		client.WithTimeout(10*time.Second),
		client.WithUserAgent("example/1.0"),
		client.WithThrottle(50, 10),
		client.WithCircuitBreaker(breaker.Config{TripAfter: 5, OpenTimeout: 30 * time.Second}),
	)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	_ = c
	fmt.Println("client built")
	// Output: client built
}

func ExampleURL() {
	u := client.URL("https", "example.com", "/api/v1",
		client.WithPort(8443),
		client.WithQueryStrings(map[string]string{"key": "value"}),
	)

	fmt.Println(u.String())
	// Output: https://example.com:8443/api/v1?key=value
}

func ExampleRequest() {
	type payload struct {
		Name string `json:"name"`
	}

	u := client.URL("https", "example.com", "/users")

	req, err := client.Request(context.Background(), u, http.MethodPost,
		client.WithPayload(payload{Name: "alice"}),
		client.WithHeaders(map[string][]string{"X-Request-ID": {"abc123"}}),
	)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println(req.Method, req.URL.Path)
	// Output: POST /users
}

func ExampleClient_Do() {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer ts.Close()

	c, _ := client.Build()
	u, _ := url.Parse(ts.URL)
	req, _ := client.Request(context.Background(), u, http.MethodGet)

	var resp struct{ Status string }
	if err := c.Do(req, http.StatusOK, client.WithDestination(&resp)); err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println(resp.Status)
	// Output: ok
}

func ExampleWithRetry() {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "recovered")
	}))
	defer ts.Close()

	c, _ := client.Build()
	u, _ := url.Parse(ts.URL)
	req, _ := client.Request(context.Background(), u, http.MethodGet)

	err := c.Do(req, http.StatusOK, client.WithRetry(transfer.RetryRecoverable(3)))

	fmt.Println(err, calls.Load())
	// Output: <nil> 2
}

func ExampleClient_Download() {
	body := []byte("file contents")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
	}))
	defer ts.Close()

	c, _ := client.Build()
	u, _ := url.Parse(ts.URL)
	req, _ := client.Request(context.Background(), u, http.MethodGet)

	dir, _ := os.MkdirTemp("", "httpmulti-example")
	defer os.RemoveAll(dir)
	dest := filepath.Join(dir, "dl.bin")

	if err := c.Download(req, http.StatusOK, dest); err != nil {
		fmt.Println("error:", err)
		return
	}

	data, _ := os.ReadFile(dest)
	fmt.Println(string(data))
	// Output: file contents
}

func ExampleClient_Multi() {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, r.URL.Path)
	}))
	defer ts.Close()

	c, _ := client.Build()
	d, _ := c.Multi()

	for _, path := range []string{"/one", "/two"} {
		h, _ := c.NewHandle(http.MethodGet, ts.URL+path, transfer.WithOnSuccess(func(h *transfer.Handle) {
			fmt.Println(h.Response().String())
		}))
		_ = d.Enqueue(h)
	}

	// Concurrency defaults to 25, so completion order is not fixed.
	if err := d.Start(context.Background()); err != nil {
		fmt.Println("error:", err)
	}
	// Unordered output:
	// /one
	// /two
}
