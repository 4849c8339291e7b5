package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/httpmulti/client/transfer"
)

func newFetchCmd(s *settings) *cobra.Command {
	var method string
	var showBody bool

	cmd := &cobra.Command{
		Use:   "fetch URL...",
		Short: "Request every URL and print its status",
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

			handles := make([]*transfer.Handle, 0, len(args))
			for _, rawURL := range args {
				h, err := c.NewHandle(strings.ToUpper(method), rawURL, topts...)
				if err != nil {
					return fmt.Errorf("preparing %s: %w", rawURL, err)
				}
				handles = append(handles, h)
			}

			return execute(cmd, d, logger, handles, func(w io.Writer, h *transfer.Handle) {
				if h.Response() == nil {
					fmt.Fprintf(w, "ERR %s %s\n", h.URL(), h.Err())
					return
				}

				resp := h.Response()
				fmt.Fprintf(w, "%d %s %d\n", resp.StatusCode, h.URL(), len(resp.Body))
				if showBody {
					fmt.Fprintln(w, resp.String())
				}
			})
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "request method")
	cmd.Flags().BoolVar(&showBody, "body", false, "print each response body")

	return cmd
}
