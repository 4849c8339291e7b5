package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
)

// File is the on-disk side of one download. It is owned by a single
// transfer and is not safe for concurrent use.
type File struct {
	dest    string
	partial string
	logger  *slog.Logger
	opts    options

	// open holds the partial file while an attempt is writing to it.
	open *os.File
}

// New prepares a download into dest. Nothing is touched on disk until
// the first call to Receive.
func New(dest string, logger *slog.Logger, optFns ...Option) (*File, error) {
	if dest == "" {
		return nil, errors.New("destination path must not be empty")
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &File{
		dest:    dest,
		partial: dest + PartialSuffix,
		logger:  logger,
		opts:    opts,
	}, nil
}

// Dest returns the final destination path.
func (f *File) Dest() string { return f.dest }

// PartialPath returns the temp path written during the transfer.
func (f *File) PartialPath() string { return f.partial }

// Satisfied reports whether skip-existing is enabled and the destination exists.
func (f *File) Satisfied() bool {
	if !f.opts.skipExisting {
		return false
	}

	_, err := os.Stat(f.dest)
	return err == nil
}

// Offset returns the size of a non-empty partial file that the next
// attempt should resume from, or zero.
func (f *File) Offset() int64 {
	if f.opts.noResume {
		return 0
	}

	info, err := os.Stat(f.partial)
	if err != nil || !info.Mode().IsRegular() {
		return 0
	}

	return info.Size()
}

// Receive streams body into the partial file. When appendFrom is greater
// than zero the body continues an existing partial file of that size;
// otherwise the file is truncated. contentLength is the length of body
// as announced by the server, or -1.
func (f *File) Receive(ctx context.Context, body io.Reader, contentLength, appendFrom int64) (err error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendFrom > 0 {
		flags = os.O_WRONLY | os.O_APPEND
	}

	if f.opts.checksum != nil {
		if err := f.opts.checksum.seed(f.partial, appendFrom); err != nil {
			return &Error{Err: ErrOpenFile, Detail: fmt.Sprintf("seeding checksum: %v", err)}
		}
	}

	file, err := os.OpenFile(f.partial, flags, 0o644)
	if err != nil {
		return &Error{Err: ErrOpenFile, Detail: err.Error()}
	}
	f.open = file

	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &Error{Err: ErrWriteFile, Detail: cerr.Error()}
		}
	}()

	var writer io.Writer = file
	if f.opts.checksum != nil {
		writer = io.MultiWriter(writer, f.opts.checksum)
	}

	if f.opts.progress {
		total := int64(-1)
		if contentLength >= 0 {
			total = appendFrom + contentLength
		}
		writer = newProgressWriter(writer, f.logger, f.dest, appendFrom, total)
	}

	n, err := io.Copy(writer, &contextReader{ctx: ctx, r: body})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %w", ErrDownloadCancelled, err)
		}

		var perr *fs.PathError
		if errors.As(err, &perr) {
			return &Error{Err: ErrWriteFile, Detail: perr.Error()}
		}

		return fmt.Errorf("copying body: %w", err)
	}

	if contentLength >= 0 && n != contentLength {
		return &Error{
			Err:    ErrContentLengthMismatch,
			Detail: fmt.Sprintf("expected %d bytes, got %d", contentLength, n),
		}
	}

	if err := f.opts.checksum.Verify(); err != nil {
		return err
	}

	if err := file.Sync(); err != nil {
		return &Error{Err: ErrWriteFile, Detail: fmt.Sprintf("syncing: %v", err)}
	}

	return nil
}

// Complete accepts an existing partial file of exactly size bytes as the
// whole body, verifying its checksum when one is configured.
func (f *File) Complete(size int64) error {
	if got := f.Offset(); size <= 0 || got != size {
		return &Error{
			Err:    ErrContentLengthMismatch,
			Detail: fmt.Sprintf("partial file holds %d bytes, resource has %d", got, size),
		}
	}

	if f.opts.checksum != nil {
		if err := f.opts.checksum.seed(f.partial, size); err != nil {
			return &Error{Err: ErrOpenFile, Detail: fmt.Sprintf("seeding checksum: %v", err)}
		}
		if err := f.opts.checksum.Verify(); err != nil {
			return err
		}
	}

	return nil
}

// Restart removes the partial file so the next attempt starts from zero.
func (f *File) Restart() error {
	if err := f.Discard(); err != nil {
		return &Error{Err: ErrWriteFile, Detail: err.Error()}
	}

	return nil
}

// Commit renames the finished partial file to the destination.
func (f *File) Commit() error {
	if err := f.Close(); err != nil {
		return &Error{Err: ErrCommitFile, Detail: err.Error()}
	}

	if err := os.Rename(f.partial, f.dest); err != nil {
		return &Error{Err: ErrCommitFile, Detail: err.Error()}
	}

	return nil
}

// Discard closes and removes the partial file.
func (f *File) Discard() error {
	closeErr := f.Close()

	if err := os.Remove(f.partial); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Join(closeErr, fmt.Errorf("removing partial file: %w", err))
	}

	return closeErr
}

// Close releases the partial file descriptor if an attempt left it open.
// It is safe to call more than once.
func (f *File) Close() error {
	if f.open == nil {
		return nil
	}

	err := f.open.Close()
	f.open = nil
	if err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}

	return nil
}

// contextReader stops a copy as soon as ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}

	return cr.r.Read(p)
}
