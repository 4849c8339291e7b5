package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/httpmulti/client/download"
)

// Perform runs one attempt and records its outcome on the handle. The
// request is bound to the handle's own context and is also cancelled
// when ctx is done; ctx carries the caller's span.
func (h *Handle) Perform(ctx context.Context) {
	h.attempts++
	prev := h.raw
	h.reset()

	if h.client == nil && h.openErr == nil {
		h.Open(Env{})
	}

	ctx, span := h.tracer.Start(ctx, "transfer.attempt", trace.WithAttributes(
		attribute.Int64("transfer.id", int64(h.id)),
		attribute.Int("transfer.attempt", h.attempts),
		attribute.String("http.request.method", h.method),
	))
	defer func() {
		h.endSpan(span)
	}()

	if h.openErr != nil {
		h.fail(KindConfiguration, h.openErr)
		return
	}

	if h.url == nil || h.url.String() == "" {
		h.fail(KindConfiguration, &ConfigurationError{Reason: "url is not set"})
		return
	}
	span.SetAttributes(attribute.String("url.full", h.url.String()))

	reqCtx, cancel := context.WithCancel(trace.ContextWithSpan(h.ctx, span))
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := ctx.Err(); err != nil {
		h.fail(KindTransport, &TransportError{Code: CodeAborted, Err: err})
		return
	}

	if wait := backoff(h.backoffMin, h.backoffMax, h.attempts, prev); wait > 0 {
		if err := sleep(reqCtx, wait); err != nil {
			h.fail(KindTransport, &TransportError{Code: transportCode(err), Err: err})
			return
		}
	}

	if h.dl != nil && h.dl.Satisfied() {
		h.skipped = true
		h.log().Info("skipping existing file", "path", h.dlPath, "transfer", h.id)
		return
	}

	req, err := h.newRequest(reqCtx)
	if err != nil {
		h.fail(KindConfiguration, &ConfigurationError{Reason: "building request", Err: err})
		return
	}

	var offset int64
	if h.dl != nil {
		if offset = h.dl.Offset(); offset > 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		}
	}
	h.lastReq = req

	resp, err := h.client.Do(req)
	if err != nil {
		h.fail(KindTransport, &TransportError{Code: transportCode(err), Err: err})
		return
	}

	discard := true
	defer func() {
		if discard {
			if _, err := io.Copy(io.Discard, resp.Body); err != nil {
				h.log().Debug("failed to discard unused body", "error", err)
			}
		}
		if err := resp.Body.Close(); err != nil {
			h.log().Error("failed to close response body", "error", err)
		}
	}()

	h.raw = resp

	if offset > 0 && resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		h.rangeNotSatisfiable(resp, offset)
		return
	}

	if class := resp.StatusCode / 100; class == 4 || class == 5 {
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrBodySize))
		if err != nil {
			b = []byte("unable to read body")
		}
		h.resp = newResponse(resp, b)
		h.fail(KindHTTP, &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(b)})
		return
	}

	if h.dl != nil && resp.StatusCode/100 == 2 {
		var appendFrom int64
		h.resp = newResponse(resp, nil)
		if resp.StatusCode == http.StatusPartialContent {
			cr := resp.Header.Get("Content-Range")
			if start, _, ok := parseContentRange(cr); !ok || start != offset {
				h.fail(KindTransport, &TransportError{
					Code: CodePartialFile,
					Err:  fmt.Errorf("content range %q does not continue at byte %d", cr, offset),
				})
				return
			}
			appendFrom = offset
		}

		if err := h.dl.Receive(reqCtx, resp.Body, resp.ContentLength, appendFrom); err != nil {
			discard = false
			h.failDownload(err)
		}
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		discard = false
		h.fail(KindTransport, &TransportError{Code: transportCode(err), Err: err})
		return
	}
	h.resp = newResponse(resp, body)
}

// rangeNotSatisfiable handles a 416 to a resumed download. A partial
// file that already holds the whole resource is accepted as complete;
// any other partial file is removed so the next attempt starts over.
func (h *Handle) rangeNotSatisfiable(resp *http.Response, offset int64) {
	h.resp = newResponse(resp, nil)

	if _, total, ok := parseContentRange(resp.Header.Get("Content-Range")); ok && total == offset {
		err := h.dl.Complete(total)
		if err == nil {
			h.log().Info("partial file already complete", "path", h.dlPath, "size", total, "transfer", h.id)
			return
		}
		h.failDownload(err)
	} else {
		h.fail(KindHTTP, &HTTPStatusError{StatusCode: resp.StatusCode})
	}

	if err := h.dl.Restart(); err != nil {
		h.log().Error("removing stale partial file", "path", h.dlPath, "error", err)
	}
}

// parseContentRange parses "bytes first-last/total" and "bytes */total".
// start is -1 for the unsatisfied form; total is -1 when unknown.
func parseContentRange(v string) (start, total int64, ok bool) {
	rng, found := strings.CutPrefix(v, "bytes ")
	if !found {
		return 0, 0, false
	}

	rng, size, found := strings.Cut(rng, "/")
	if !found {
		return 0, 0, false
	}

	total = -1
	if size != "*" {
		n, err := strconv.ParseInt(size, 10, 64)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		total = n
	}

	if rng == "*" {
		return -1, total, total >= 0
	}

	first, last, found := strings.Cut(rng, "-")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}
	end, err := strconv.ParseInt(last, 10, 64)
	if err != nil || end < start || (total >= 0 && end >= total) {
		return 0, 0, false
	}

	return start, total, true
}

func (h *Handle) newRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if h.body != nil {
		body = bytes.NewReader(h.body)
	}

	req, err := http.NewRequestWithContext(ctx, h.method, h.url.String(), body)
	if err != nil {
		return nil, err
	}

	req.Header = h.header.Clone()
	for _, cookie := range h.cookies {
		req.AddCookie(cookie)
	}
	if h.auth != nil {
		h.auth(req)
	}
	if h.requestIDHeader != "" {
		req.Header.Set(h.requestIDHeader, h.requestID.String())
	}

	return req, nil
}

// failDownload classifies an error raised while writing a download.
func (h *Handle) failDownload(err error) {
	switch {
	case errors.Is(err, download.ErrContentLengthMismatch):
		h.fail(KindTransport, &TransportError{Code: CodePartialFile, Err: err})
	case errors.Is(err, download.ErrDownloadCancelled):
		h.fail(KindTransport, &TransportError{Code: CodeAborted, Err: err})
	case errors.Is(err, download.ErrOpenFile),
		errors.Is(err, download.ErrWriteFile),
		errors.Is(err, download.ErrChecksumMismatch):
		h.fail(KindDownloadIO, &DownloadIOError{Path: h.dlPath, Err: err})
	default:
		h.fail(KindTransport, &TransportError{Code: transportCode(err), Err: err})
	}
}

func (h *Handle) fail(kind Kind, err error) {
	h.kind = kind
	h.err = err
}

// reset clears the outcome of the previous attempt.
func (h *Handle) reset() {
	h.kind = KindNone
	h.err = nil
	h.resp = nil
	h.raw = nil
	h.skipped = false
}

func (h *Handle) endSpan(span trace.Span) {
	if h.resp != nil {
		span.SetAttributes(attribute.Int("http.response.status_code", h.resp.StatusCode))
	}
	if h.err != nil {
		span.SetAttributes(
			attribute.String("transfer.error_kind", h.kind.String()),
			attribute.Int("transfer.error_code", h.ErrorCode()),
		)
		span.RecordError(h.err)
		span.SetStatus(codes.Error, h.err.Error())
	}
	span.End()
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
