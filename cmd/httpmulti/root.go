package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/httpmulti/client"
	"github.com/adamwoolhether/httpmulti/client/multi"
	"github.com/adamwoolhether/httpmulti/client/promise"
	"github.com/adamwoolhether/httpmulti/client/transfer"
)

var errTransfersFailed = errors.New("transfers failed")

type settings struct {
	cfg         multi.Config
	concurrency int
	retries     int
	timeout     time.Duration
	rps         int
	burst       int
	userAgent   string
	headers     []string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	cfg, cfgErr := multi.LoadConfig()
	if cfgErr != nil {
		cfg = multi.Config{Concurrency: multi.DefaultConcurrency}
	}

	s := &settings{cfg: cfg}

	root := &cobra.Command{
		Use:          "httpmulti",
		Short:        "Run many HTTP transfers concurrently",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfgErr
		},
	}

	pf := root.PersistentFlags()
	pf.IntVarP(&s.concurrency, "concurrency", "c", cfg.Concurrency, "maximum transfers in flight")
	pf.IntVarP(&s.retries, "retries", "r", cfg.Retries, "retries per transfer")
	pf.DurationVarP(&s.timeout, "timeout", "t", 0, "per-request timeout (0 disables)")
	pf.IntVar(&s.rps, "rps", 0, "requests per second (0 disables throttling)")
	pf.IntVar(&s.burst, "burst", 1, "throttle burst size")
	pf.StringVar(&s.userAgent, "user-agent", "", "User-Agent header sent with every request")
	pf.StringArrayVarP(&s.headers, "header", "H", nil, `extra request header as "Name: value"`)
	pf.BoolVarP(&s.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(newFetchCmd(s), newDownloadCmd(s))

	return root
}

func (s *settings) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if s.verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// dispatcher builds the shared client and a dispatcher over it.
func (s *settings) dispatcher(logger *slog.Logger) (*client.Client, *multi.Dispatcher, error) {
	copts := []client.Option{client.WithLogger(logger)}
	if s.timeout > 0 {
		copts = append(copts, client.WithTimeout(s.timeout))
	}
	if s.rps > 0 {
		copts = append(copts, client.WithThrottle(s.rps, s.burst))
	}
	if s.userAgent != "" {
		copts = append(copts, client.WithUserAgent(s.userAgent))
	}

	c, err := client.Build(copts...)
	if err != nil {
		return nil, nil, fmt.Errorf("building client: %w", err)
	}

	cfg := s.cfg
	cfg.Concurrency = s.concurrency
	cfg.Retries = s.retries

	d, err := c.Multi(cfg.Options()...)
	if err != nil {
		return nil, nil, fmt.Errorf("building dispatcher: %w", err)
	}

	return c, d, nil
}

func (s *settings) transferOptions() ([]transfer.Option, error) {
	headers := make(map[string][]string, len(s.headers))
	for _, raw := range s.headers {
		name, value, err := parseHeader(raw)
		if err != nil {
			return nil, err
		}
		headers[name] = append(headers[name], value)
	}

	var opts []transfer.Option
	if len(headers) > 0 {
		opts = append(opts, transfer.WithHeaders(headers))
	}

	return opts, nil
}

// execute runs every handle through a promise over d and reports one
// line per handle, in the order given.
func execute(cmd *cobra.Command, d *multi.Dispatcher, logger *slog.Logger, handles []*transfer.Handle, report func(io.Writer, *transfer.Handle)) error {
	if err := d.Enqueue(handles...); err != nil {
		return fmt.Errorf("enqueueing: %w", err)
	}

	p := promise.New(d, promise.WithLogger(logger))
	if err := p.Wait(cmd.Context()); err != nil {
		return fmt.Errorf("running transfers: %w", err)
	}

	out := cmd.OutOrStdout()
	var failed int
	for _, h := range handles {
		report(out, h)
		if h.Failed() {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d: %w", failed, len(handles), errTransfersFailed)
	}

	return nil
}

func parseHeader(raw string) (string, string, error) {
	name, value, ok := strings.Cut(raw, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("malformed header %q: want \"Name: value\"", raw)
	}

	return name, strings.TrimSpace(value), nil
}
