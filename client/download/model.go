package download

import (
	"errors"
	"fmt"
)

// PartialSuffix is appended to the destination path while a download is in flight.
const PartialSuffix = ".partial"

var (
	ErrContentLengthMismatch = errors.New("content length mismatch")
	ErrChecksumMismatch      = errors.New("checksum mismatch")
	ErrDownloadCancelled     = errors.New("download cancelled")
	ErrOpenFile              = errors.New("opening partial file")
	ErrWriteFile             = errors.New("writing partial file")
	ErrCommitFile            = errors.New("committing download")
)

// Error wraps one of the package sentinels with additional detail.
type Error struct {
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}
