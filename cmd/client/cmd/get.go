package cmd

import (
	"fmt"
	"io"

	"auth-rotation/internal/wire"

	"github.com/spf13/cobra"
)

func newGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get [path]",
		Short: "Log in, then GET a path through the refresh coordinator",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := wire.PathProtected
			if len(args) == 1 {
				path = args[0]
			}

			s, err := openSession(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			defer s.close()

			resp, err := s.Get(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read body: %w", err)
			}
			s.printf("%d %s\n", resp.StatusCode, body)
			return nil
		},
	}
}
