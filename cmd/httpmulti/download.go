package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/httpmulti/client/download"
	"github.com/adamwoolhether/httpmulti/client/transfer"
)

func newDownloadCmd(s *settings) *cobra.Command {
	var skipExisting, noResume bool

	cmd := &cobra.Command{
		Use:   "download URL=PATH...",
		Short: "Download every URL to its paired path",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := s.logger(cmd.ErrOrStderr())

			c, d, err := s.dispatcher(logger)
			if err != nil {
				return err
			}

			topts, err := s.transferOptions()
			if err != nil {
				return err
			}

			var dlOpts []download.Option
			if skipExisting {
				dlOpts = append(dlOpts, download.WithSkipExisting())
			}
			if noResume {
				dlOpts = append(dlOpts, download.WithoutResume())
			}

			handles := make([]*transfer.Handle, 0, len(args))
			for _, arg := range args {
				rawURL, path, err := parseTarget(arg)
				if err != nil {
					return err
				}

				opts := append([]transfer.Option{transfer.WithDownload(path, dlOpts...)}, topts...)
				h, err := c.NewHandle(http.MethodGet, rawURL, opts...)
				if err != nil {
					return fmt.Errorf("preparing %s: %w", rawURL, err)
				}
				handles = append(handles, h)
			}

			return execute(cmd, d, logger, handles, func(w io.Writer, h *transfer.Handle) {
				switch {
				case h.Skipped():
					fmt.Fprintf(w, "SKIP %s -> %s\n", h.URL(), h.DownloadPath())
				case h.Failed():
					fmt.Fprintf(w, "ERR %s %s\n", h.URL(), h.Err())
				default:
					fmt.Fprintf(w, "%d %s -> %s\n", h.StatusCode(), h.URL(), h.DownloadPath())
				}
			})
		},
	}

	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "skip targets whose file already exists")
	cmd.Flags().BoolVar(&noResume, "no-resume", false, "always start downloads from scratch")

	return cmd
}

// parseTarget splits URL=PATH on the last '=' so query strings survive.
func parseTarget(arg string) (string, string, error) {
	i := strings.LastIndex(arg, "=")
	if i <= 0 || i == len(arg)-1 {
		return "", "", fmt.Errorf("malformed target %q: want URL=PATH", arg)
	}

	return arg[:i], arg[i+1:], nil
}
