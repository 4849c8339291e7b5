package transfer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// maxErrBodySize caps the amount of response body kept for a 4xx/5xx
// response, so a large error page cannot grow without bound.
const maxErrBodySize = 4 << 10 // 4KB

// Kind classifies how the last attempt of a transfer ended.
type Kind int

const (
	KindNone Kind = iota
	KindTransport
	KindHTTP
	KindConfiguration
	KindDownloadIO
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransport:
		return "transport"
	case KindHTTP:
		return "http"
	case KindConfiguration:
		return "configuration"
	case KindDownloadIO:
		return "download-io"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Transport error codes. The values follow libcurl's numbering so that
// callers porting retry predicates keyed on those codes keep working.
const (
	CodeUnsupportedProtocol = 1
	CodeMalformedURL        = 3
	CodeResolveHost         = 6
	CodeConnect             = 7
	CodePartialFile         = 18
	CodeWrite               = 23
	CodeTimeout             = 28
	CodeAborted             = 42
	CodeSSLConnect          = 35
	CodeSend                = 55
	CodeRecv                = 56
	CodePeerFailedVerify    = 60
)

var (
	// ErrFinalized is returned when a finalized handle is executed or enqueued again.
	ErrFinalized = errors.New("transfer already finalized")
	// ErrOwned is returned when a handle already belongs to a dispatcher.
	ErrOwned = errors.New("transfer already owned by a dispatcher")
)

// ConfigurationError reports a handle that cannot be executed as configured.
// It is never retried.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration: %s: %v", e.Reason, e.Err)
	}
	return "configuration: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TransportError reports an attempt that failed before a complete
// response was obtained.
type TransportError struct {
	Code int
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error %d: %v", e.Code, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the transport error was a timeout.
func (e *TransportError) Timeout() bool { return e.Code == CodeTimeout }

// HTTPStatusError reports a well-formed 4xx or 5xx response.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d, body: %s", e.StatusCode, e.Body)
}

// DownloadIOError reports a failure handling the download file.
type DownloadIOError struct {
	Path string
	Err  error
}

func (e *DownloadIOError) Error() string {
	return fmt.Sprintf("download %s: %v", e.Path, e.Err)
}

func (e *DownloadIOError) Unwrap() error { return e.Err }

// transportCode maps a round trip failure onto a transport error code.
func transportCode(err error) int {
	var (
		dnsErr     *net.DNSError
		verifyErr  *tls.CertificateVerificationError
		unknownCA  x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
		recordErr  tls.RecordHeaderError
		opErr      *net.OpError
		netErr     net.Error
	)

	switch {
	case errors.Is(err, context.Canceled):
		return CodeAborted
	case errors.As(err, &dnsErr):
		return CodeResolveHost
	case errors.As(err, &verifyErr), errors.As(err, &unknownCA), errors.As(err, &hostErr), errors.As(err, &invalidErr):
		return CodePeerFailedVerify
	case errors.As(err, &recordErr):
		return CodeSSLConnect
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return CodeTimeout
	case errors.Is(err, syscall.ECONNREFUSED), errors.As(err, &opErr) && opErr.Op == "dial":
		return CodeConnect
	case errors.As(err, &opErr) && opErr.Op == "write":
		return CodeSend
	default:
		return CodeRecv
	}
}
