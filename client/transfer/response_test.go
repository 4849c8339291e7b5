package transfer

import (
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResponse_ContentType(t *testing.T) {
	tests := map[string]struct {
		header string
		body   []byte
		want   string
	}{
		"header wins":  {header: "application/json; charset=utf-8", body: []byte("plain"), want: "application/json"},
		"sniffed json": {body: []byte(`{"a":1}`), want: "application/json"},
		"sniffed png":  {body: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), want: "image/png"},
		"empty":        {want: ""},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r := &Response{Header: http.Header{}, Body: tc.body}
			if tc.header != "" {
				r.Header.Set("Content-Type", tc.header)
			}

			if got := r.ContentType(); got != tc.want {
				t.Errorf("ContentType() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResponse_Decode(t *testing.T) {
	type item struct {
		Name string `json:"name" xml:"name"`
	}

	t.Run("json", func(t *testing.T) {
		r := &Response{Header: http.Header{"Content-Type": {"application/problem+json"}}, Body: []byte(`{"name":"a"}`)}

		var got item
		if err := r.Decode(&got); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if diff := cmp.Diff(item{Name: "a"}, got); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("xml", func(t *testing.T) {
		r := &Response{Header: http.Header{"Content-Type": {"application/xml"}}, Body: []byte(`<item><name>b</name></item>`)}

		var got item
		if err := r.Decode(&got); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if diff := cmp.Diff(item{Name: "b"}, got); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("form", func(t *testing.T) {
		r := &Response{Header: http.Header{"Content-Type": {"application/x-www-form-urlencoded"}}, Body: []byte("a=1&b=2")}

		var got url.Values
		if err := r.Decode(&got); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if diff := cmp.Diff(url.Values{"a": {"1"}, "b": {"2"}}, got); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("text", func(t *testing.T) {
		r := &Response{Header: http.Header{"Content-Type": {"text/plain"}}, Body: []byte("hi")}

		var got string
		if err := r.Decode(&got); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got != "hi" {
			t.Errorf("got %q, want %q", got, "hi")
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		r := &Response{Header: http.Header{"Content-Type": {"application/octet-stream"}}, Body: []byte{0, 1}}

		var got item
		if err := r.Decode(&got); !errors.Is(err, ErrUnsupportedContentType) {
			t.Errorf("expected ErrUnsupportedContentType, got %v", err)
		}
	})

	t.Run("text into struct", func(t *testing.T) {
		r := &Response{Header: http.Header{"Content-Type": {"text/plain"}}, Body: []byte("hi")}

		var got item
		if err := r.Decode(&got); !errors.Is(err, ErrUnsupportedContentType) {
			t.Errorf("expected ErrUnsupportedContentType, got %v", err)
		}
	})
}

func TestResponse_Get(t *testing.T) {
	r := &Response{Body: []byte(`{"items":[{"name":"x"},{"name":"y"}]}`)}

	if got := r.Get("items.1.name").String(); got != "y" {
		t.Errorf("Get = %q, want %q", got, "y")
	}
	if r.Get("missing").Exists() {
		t.Error("expected missing path to not exist")
	}
}
