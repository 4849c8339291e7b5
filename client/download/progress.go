package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

const progressInterval = time.Second

// progressWriter counts bytes on their way to the partial file and
// reports them through the logger at most once per progressInterval.
// Throughput only covers bytes written in this run, not the resumed
// prefix.
type progressWriter struct {
	w       io.Writer
	logger  *slog.Logger
	path    string
	offset  int64
	written int64
	total   int64
	started time.Time
	last    time.Time
	done    bool
}

func newProgressWriter(w io.Writer, logger *slog.Logger, path string, offset, total int64) *progressWriter {
	now := time.Now()
	return &progressWriter{
		w:       w,
		logger:  logger,
		path:    path,
		offset:  offset,
		total:   total,
		started: now,
		last:    now,
	}
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.written += int64(n)

	switch {
	case pw.total >= 0 && pw.offset+pw.written == pw.total && !pw.done:
		pw.done = true
		pw.report(slog.LevelInfo, "download complete")
	case time.Since(pw.last) >= progressInterval:
		pw.last = time.Now()
		pw.report(slog.LevelDebug, "downloading")
	}

	return n, err
}

func (pw *progressWriter) report(level slog.Level, msg string) {
	elapsed := time.Since(pw.started)
	have := pw.offset + pw.written

	attrs := []slog.Attr{
		slog.String("path", pw.path),
		slog.Int64("bytes", have),
		slog.Duration("elapsed", elapsed.Round(time.Millisecond)),
	}
	if pw.offset > 0 {
		attrs = append(attrs, slog.Int64("resumed_from", pw.offset))
	}
	if secs := elapsed.Seconds(); secs > 0 {
		attrs = append(attrs, slog.String("mbps", fmt.Sprintf("%.2f", float64(pw.written)/secs/(1<<20))))
	}
	if pw.total > 0 {
		attrs = append(attrs,
			slog.Int64("total", pw.total),
			slog.String("progress", fmt.Sprintf("%.1f%%", float64(have)/float64(pw.total)*100)),
		)
	}

	pw.logger.LogAttrs(context.Background(), level, msg, attrs...)
}
