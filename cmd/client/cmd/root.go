package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	baseURL  string
	username string
	password string
	timeout  time.Duration
	verbose  bool
}

// NewRootCmd builds the command tree. Each invocation holds its session in
// memory only, so every subcommand logs in first.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "client",
		Short: "Exercise the session API with a rotating refresh credential",
		Long: `client logs in against the session API and drives requests through the
refresh coordinator. The access credential lives in process memory; the
refresh credential lives in the cookie jar.`,
		SilenceUsage: true,
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.baseURL, "url", envOr("AUTH_API_URL", "http://localhost:4000"), "API base URL")
	f.StringVarP(&opts.username, "user", "u", envOr("AUTH_USERNAME", "alice"), "username")
	f.StringVarP(&opts.password, "password", "p", os.Getenv("AUTH_PASSWORD"), "password (prompted when empty)")
	f.DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-request timeout")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log coordinator activity to stderr")

	root.AddCommand(
		newLoginCmd(opts),
		newGetCmd(opts),
		newBurstCmd(opts),
		newLogoutCmd(opts),
	)
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
