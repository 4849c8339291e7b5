package client

import (
	"hash"

	"github.com/adamwoolhether/httpmulti/client/download"
)

// PartialSuffix is appended to the destination path while a download is in progress.
const PartialSuffix = download.PartialSuffix

type (
	// DownloadError wraps a sentinel error with additional detail.
	DownloadError = download.Error

	// DownloadOption configures [Client.Download].
	DownloadOption = download.Option
)

var (
	// ErrContentLengthMismatch indicates the byte count did not match Content-Length.
	ErrContentLengthMismatch = download.ErrContentLengthMismatch

	// ErrChecksumMismatch indicates the file checksum did not match the expected value.
	ErrChecksumMismatch = download.ErrChecksumMismatch

	// ErrDownloadCancelled indicates the download was cancelled via context.
	ErrDownloadCancelled = download.ErrDownloadCancelled
)

// WithChecksum enables checksum validation of the downloaded file.
// h is a [hash.Hash] instance (e.g. sha256.New()), and expected is the
// hex-encoded expected checksum string.
func WithChecksum(h hash.Hash, expected string) DownloadOption {
	return download.WithChecksum(h, expected)
}

// WithProgress enables periodic download progress logging.
func WithProgress() DownloadOption { return download.WithProgress() }

// WithSkipExisting causes a download to return nil immediately when
// the destination file already exists.
func WithSkipExisting() DownloadOption { return download.WithSkipExisting() }

// WithoutResume always restarts a download instead of continuing a partial file.
func WithoutResume() DownloadOption { return download.WithoutResume() }
