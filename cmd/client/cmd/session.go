package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"auth-rotation/internal/client"
	"auth-rotation/pkg/logger"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// session is a logged-in client plus the watcher that reports invalidation.
type session struct {
	*client.Client

	mu  sync.Mutex
	out io.Writer

	stopWatch func()
	done      chan struct{}
	wg        sync.WaitGroup
}

func openSession(ctx context.Context, cmd *cobra.Command, opts *rootOptions) (*session, error) {
	log := logger.NewText(cmd.ErrOrStderr(), opts.verbose)
	c, err := client.New(opts.baseURL, client.WithLogger(log), client.WithTimeout(opts.timeout))
	if err != nil {
		return nil, err
	}

	password := opts.password
	if password == "" {
		pw, err := promptPassword(cmd.ErrOrStderr())
		if err != nil {
			return nil, err
		}
		password = pw
	}

	s := &session{Client: c, out: cmd.OutOrStdout(), done: make(chan struct{})}
	ch, cancel := c.SessionInvalidated()
	s.stopWatch = cancel
	s.wg.Add(1)
	go s.watch(ch)

	if _, err := c.Login(ctx, opts.username, password); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) watch(ch <-chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-ch:
			s.println("session expired")
		case <-s.done:
			select {
			case <-ch:
				s.println("session expired")
			default:
			}
			return
		}
	}
}

// close stops the watcher after reporting any pending invalidation.
func (s *session) close() {
	close(s.done)
	s.wg.Wait()
	s.stopWatch()
}

func (s *session) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *session) println(msg string) { s.printf("%s\n", msg) }

func promptPassword(w io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("password required: pass --password or set AUTH_PASSWORD")
	}
	fmt.Fprint(w, "Password: ")
	pw, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
