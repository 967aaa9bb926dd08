package cmd

import (
	"github.com/spf13/cobra"
)

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Log in, log out, and optionally confirm the refresh credential is dead",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.Logout(ctx); err != nil {
				return err
			}
			s.println("logged out")

			if !check {
				return nil
			}
			if _, err := s.Refresh(ctx); err != nil {
				s.printf("refresh after logout rejected: %v\n", err)
				return nil
			}
			s.println("refresh after logout unexpectedly succeeded")
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", true, "attempt a refresh after logout")
	return cmd
}
