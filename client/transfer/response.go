package transfer

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/tidwall/gjson"
)

// ErrUnsupportedContentType is returned by [Response.Decode] when the
// content type has no decoder for the destination.
var ErrUnsupportedContentType = errors.New("unsupported content type")

// Response is a completed response with its body held in memory. For
// downloads Body is empty and the payload lives on disk.
type Response struct {
	StatusCode    int
	Status        string
	Proto         string
	Header        http.Header
	ContentLength int64
	Body          []byte
}

func newResponse(resp *http.Response, body []byte) *Response {
	return &Response{
		StatusCode:    resp.StatusCode,
		Status:        resp.Status,
		Proto:         resp.Proto,
		Header:        resp.Header,
		ContentLength: resp.ContentLength,
		Body:          body,
	}
}

// ContentType returns the media type of the body, without parameters.
// The Content-Type header wins; otherwise the type is sniffed from the body.
func (r *Response) ContentType() string {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			return mt
		}
	}

	if len(r.Body) == 0 {
		return ""
	}

	mt, _, err := mime.ParseMediaType(mimetype.Detect(r.Body).String())
	if err != nil {
		return ""
	}

	return mt
}

// Decode parses the body into v according to the content type. JSON and
// XML (including +json and +xml suffixes) decode into any value; form
// bodies decode into *url.Values and text into *string.
func (r *Response) Decode(v any) error {
	ct := r.ContentType()

	switch {
	case ct == "application/json" || strings.HasSuffix(ct, "+json"):
		if err := json.Unmarshal(r.Body, v); err != nil {
			return fmt.Errorf("decoding json: %w", err)
		}
		return nil

	case ct == "application/xml" || ct == "text/xml" || strings.HasSuffix(ct, "+xml"):
		if err := xml.Unmarshal(r.Body, v); err != nil {
			return fmt.Errorf("decoding xml: %w", err)
		}
		return nil

	case ct == "application/x-www-form-urlencoded":
		dst, ok := v.(*url.Values)
		if !ok {
			return fmt.Errorf("%w: %s into %T", ErrUnsupportedContentType, ct, v)
		}
		vals, err := url.ParseQuery(string(r.Body))
		if err != nil {
			return fmt.Errorf("decoding form: %w", err)
		}
		*dst = vals
		return nil

	case strings.HasPrefix(ct, "text/"):
		dst, ok := v.(*string)
		if !ok {
			return fmt.Errorf("%w: %s into %T", ErrUnsupportedContentType, ct, v)
		}
		*dst = string(r.Body)
		return nil
	}

	return fmt.Errorf("%w: %q", ErrUnsupportedContentType, ct)
}

// Get looks up a JSON path (gjson syntax, e.g. "items.0.name") in the body.
func (r *Response) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}

// String returns the body as text.
func (r *Response) String() string {
	return string(r.Body)
}
