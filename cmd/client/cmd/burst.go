package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"auth-rotation/internal/client"
	"auth-rotation/internal/wire"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type burstOptions struct {
	n    int
	wait time.Duration
}

func newBurstCmd(opts *rootOptions) *cobra.Command {
	bo := &burstOptions{}
	cmd := &cobra.Command{
		Use:   "burst [path]",
		Short: "Log in, optionally wait, then fire N concurrent requests",
		Long: `burst sends N concurrent GETs through one coordinator. Waiting past the
access credential's expiry first shows that the whole burst shares a single
refresh.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if bo.n <= 0 {
				return errors.New("-n must be > 0")
			}
			path := wire.PathProtected
			if len(args) == 1 {
				path = args[0]
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer s.close()

			if bo.wait > 0 {
				s.printf("waiting %s\n", bo.wait)
				if err := sleep(ctx, bo.wait); err != nil {
					return err
				}
			}

			ok, expired, err := burst(ctx, s.Client, path, bo.n)
			s.printf("%d requests: %d ok, %d session expired, %d refresh(es)\n",
				bo.n, ok, expired, s.Coordinator().Refreshes())
			return err
		},
	}
	cmd.Flags().IntVarP(&bo.n, "n", "n", 10, "number of concurrent requests")
	cmd.Flags().DurationVar(&bo.wait, "wait", 0, "sleep after login before the burst")
	return cmd
}

// burst runs n concurrent GETs. Session expiry is counted, not returned; any
// other failure aborts the burst.
func burst(ctx context.Context, c *client.Client, path string, n int) (ok, expired int64, err error) {
	var okN, expiredN atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			resp, err := c.Get(gctx, path)
			if client.IsSessionExpired(err) {
				expiredN.Add(1)
				return nil
			}
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("%s: status %d", path, resp.StatusCode)
			}
			okN.Add(1)
			return nil
		})
	}
	err = g.Wait()
	return okN.Load(), expiredN.Load(), err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
