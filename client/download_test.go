package client_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/adamwoolhether/httpmulti/client"
	"github.com/adamwoolhether/httpmulti/client/transfer"
)

func downloadServer(t *testing.T, body []byte) (*client.Client, *url.URL) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/file", func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "file.bin", time.Time{}, strings.NewReader(string(body)))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	})
	mux.HandleFunc("/short", func(w http.ResponseWriter, r *http.Request) {
		// Announce more than is sent.
		w.Header().Set("Content-Length", strconv.Itoa(len(body)+10))
		_, _ = w.Write(body)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		_, _ = w.Write(body)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c, err := client.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	u, _ := url.Parse(server.URL)
	return c, u
}

func downloadReq(t *testing.T, ctx context.Context, c *client.Client, base *url.URL, path string) *http.Request {
	t.Helper()

	u := *base
	u.Path = path
	req, err := c.Request(ctx, &u, http.MethodGet)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	return req
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(b)
}

func assertNoFile(t *testing.T, path string) {
	t.Helper()

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected %s to not exist, stat err: %v", path, err)
	}
}

func TestClient_Download_Basic(t *testing.T) {
	body := []byte("hello download world")
	c, u := downloadServer(t, body)
	dest := filepath.Join(t.TempDir(), "out.bin")

	if err := c.Download(downloadReq(t, t.Context(), c, u, "/file"), http.StatusOK, dest); err != nil {
		t.Fatalf("Download: %v", err)
	}

	if got := readFile(t, dest); got != string(body) {
		t.Errorf("exp %q, got %q", body, got)
	}
	assertNoFile(t, dest+client.PartialSuffix)
}

func TestClient_Download_Resume(t *testing.T) {
	body := []byte("0123456789abcdef")
	c, u := downloadServer(t, body)
	dest := filepath.Join(t.TempDir(), "out.bin")

	if err := os.WriteFile(dest+client.PartialSuffix, body[:6], 0o644); err != nil {
		t.Fatal(err)
	}

	sum := sha256.Sum256(body)
	err := c.Download(downloadReq(t, t.Context(), c, u, "/file"), http.StatusOK, dest,
		client.WithChecksum(sha256.New(), hex.EncodeToString(sum[:])),
	)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	if got := readFile(t, dest); got != string(body) {
		t.Errorf("exp %q, got %q", body, got)
	}
}

func TestClient_Download_CompletePartial(t *testing.T) {
	body := []byte("0123456789abcdef")
	sum := sha256.Sum256(body)

	testCases := map[string]struct {
		expected string
		wantErr  bool
	}{
		"committed":         {expected: hex.EncodeToString(sum[:])},
		"checksum mismatch": {expected: strings.Repeat("0", 64), wantErr: true},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			c, u := downloadServer(t, body)
			dest := filepath.Join(t.TempDir(), "out.bin")

			if err := os.WriteFile(dest+client.PartialSuffix, body, 0o644); err != nil {
				t.Fatal(err)
			}

			err := c.Download(downloadReq(t, t.Context(), c, u, "/file"), http.StatusOK, dest,
				client.WithChecksum(sha256.New(), tc.expected),
			)

			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				assertNoFile(t, dest)
				assertNoFile(t, dest+client.PartialSuffix)
				return
			}

			if err != nil {
				t.Fatalf("Download: %v", err)
			}
			if got := readFile(t, dest); got != string(body) {
				t.Errorf("exp %q, got %q", body, got)
			}
			assertNoFile(t, dest+client.PartialSuffix)
		})
	}
}

func TestClient_Download_WithoutResume(t *testing.T) {
	body := []byte("0123456789abcdef")
	c, u := downloadServer(t, body)
	dest := filepath.Join(t.TempDir(), "out.bin")

	if err := os.WriteFile(dest+client.PartialSuffix, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := c.Download(downloadReq(t, t.Context(), c, u, "/file"), http.StatusOK, dest, client.WithoutResume()); err != nil {
		t.Fatalf("Download: %v", err)
	}

	if got := readFile(t, dest); got != string(body) {
		t.Errorf("exp %q, got %q", body, got)
	}
}

func TestClient_Download_Checksum(t *testing.T) {
	body := []byte("checksum me")
	sum := sha256.Sum256(body)

	testCases := map[string]struct {
		expected string
		wantErr  bool
	}{
		"pass": {expected: hex.EncodeToString(sum[:])},
		"fail": {expected: strings.Repeat("0", 64), wantErr: true},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			c, u := downloadServer(t, body)
			dest := filepath.Join(t.TempDir(), "out.bin")

			err := c.Download(downloadReq(t, t.Context(), c, u, "/file"), http.StatusOK, dest,
				client.WithChecksum(sha256.New(), tc.expected),
			)

			if !tc.wantErr {
				if err != nil {
					t.Fatalf("Download: %v", err)
				}
				return
			}

			if !errors.Is(err, client.ErrChecksumMismatch) {
				t.Fatalf("expected ErrChecksumMismatch, got: %v", err)
			}
			var dlErr *transfer.DownloadIOError
			if !errors.As(err, &dlErr) {
				t.Errorf("expected DownloadIOError, got %T", err)
			}
			assertNoFile(t, dest)
			assertNoFile(t, dest+client.PartialSuffix)
		})
	}
}

func TestClient_Download_ContentLengthMismatch(t *testing.T) {
	c, u := downloadServer(t, []byte("short body"))
	dest := filepath.Join(t.TempDir(), "out.bin")

	err := c.Download(downloadReq(t, t.Context(), c, u, "/short"), http.StatusOK, dest)
	if err == nil {
		t.Fatal("expected error")
	}

	var terr *transfer.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got: %v", err)
	}
	assertNoFile(t, dest)
}

func TestClient_Download_StatusCodeMismatch(t *testing.T) {
	c, u := downloadServer(t, nil)
	dest := filepath.Join(t.TempDir(), "out.bin")

	err := c.Download(downloadReq(t, t.Context(), c, u, "/missing"), http.StatusOK, dest)

	var statusErr *client.UnexpectedStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected UnexpectedStatusError, got: %v", err)
	}
	if statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("exp %d, got %d", http.StatusNotFound, statusErr.StatusCode)
	}
	assertNoFile(t, dest)
	assertNoFile(t, dest+client.PartialSuffix)
}

func TestClient_Download_SkipExisting(t *testing.T) {
	c, u := downloadServer(t, []byte("new content"))
	dest := filepath.Join(t.TempDir(), "out.bin")

	if err := os.WriteFile(dest, []byte("old content"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := c.Download(downloadReq(t, t.Context(), c, u, "/file"), http.StatusOK, dest, client.WithSkipExisting()); err != nil {
		t.Fatalf("Download: %v", err)
	}

	if got := readFile(t, dest); got != "old content" {
		t.Errorf("expected existing file to be kept, got %q", got)
	}
}

func TestClient_Download_CancelMidDownload(t *testing.T) {
	c, u := downloadServer(t, []byte("first chunk"))
	dest := filepath.Join(t.TempDir(), "out.bin")

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	err := c.Download(downloadReq(t, ctx, c, u, "/slow"), http.StatusOK, dest)
	if err == nil {
		t.Fatal("expected error")
	}

	var terr *transfer.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got: %v", err)
	}
	assertNoFile(t, dest)
	assertNoFile(t, dest+client.PartialSuffix)
}

func TestClient_Download_EmptyDestPath(t *testing.T) {
	c, u := downloadServer(t, nil)

	if err := c.Download(downloadReq(t, t.Context(), c, u, "/file"), http.StatusOK, ""); err == nil {
		t.Error("expected error for empty destPath")
	}
}
