// Package executor runs diagnostic shell commands locally or on a remote
// host and returns their standard output.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nuclearlighters/drivehealth/internal/circuitbreaker"
)

// ErrTimeout is returned when a command does not finish within its bound.
var ErrTimeout = errors.New("command timed out")

// Executor runs a shell command string and returns its standard output.
// Implementations must be safe for concurrent use.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// Func adapts a function to Executor.
type Func func(ctx context.Context, command string) (string, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, command string) (string, error) {
	return f(ctx, command)
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Stdout  string
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command %q exited with status %d", e.Command, e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Quote returns s as a single-quoted POSIX shell word.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

type timeoutExecutor struct {
	next    Executor
	timeout time.Duration
}

// WithTimeout bounds every command run through e. A non-positive timeout
// returns e unchanged.
func WithTimeout(e Executor, timeout time.Duration) Executor {
	if timeout <= 0 {
		return e
	}
	return &timeoutExecutor{next: e, timeout: timeout}
}

func (t *timeoutExecutor) Execute(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	out, err := t.next.Execute(ctx, command)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return out, fmt.Errorf("%w after %s: %q", ErrTimeout, t.timeout, command)
	}
	return out, err
}

type breakerExecutor struct {
	next Executor
	cb   *circuitbreaker.CircuitBreaker
}

// WithBreaker guards e with cb. Only transport failures count against the
// breaker; a command that ran and exited non-zero proves the host is up.
func WithBreaker(e Executor, cb *circuitbreaker.CircuitBreaker) Executor {
	return &breakerExecutor{next: e, cb: cb}
}

func (b *breakerExecutor) Execute(ctx context.Context, command string) (string, error) {
	var (
		out     string
		exitErr error
	)
	err := b.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = b.next.Execute(ctx, command)
		var ee *ExitError
		if errors.As(err, &ee) {
			exitErr = err
			return nil
		}
		return err
	})
	if err != nil {
		return out, err
	}
	return out, exitErr
}
