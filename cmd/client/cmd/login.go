package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in and show the issued access credential's subject and expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			defer s.close()

			exp, ok := s.Store().ExpiresAt()
			if !ok {
				s.printf("logged in (expiry unknown)\n")
				return nil
			}
			s.printf("logged in as %s, access expires %s (in %s)\n",
				s.Store().Subject(), exp.Format(time.RFC3339), time.Until(exp).Round(time.Second))
			return nil
		},
	}
}
