package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nuclearlighters/drivehealth/internal/circuitbreaker"
)

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/dev/sda", "'/dev/sda'"},
		{"it's", `'it'\''s'`},
		{"", "''"},
		{"a b;rm -rf /", "'a b;rm -rf /'"},
	}
	for _, tt := range tests {
		if got := Quote(tt.in); got != tt.want {
			t.Errorf("Quote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestLocalExecute(t *testing.T) {
	l := NewLocal()
	out, err := l.Execute(context.Background(), "printf 'hello'")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out != "hello" {
		t.Errorf("Execute() = %q, want hello", out)
	}
}

func TestLocalExitError(t *testing.T) {
	l := NewLocal()
	out, err := l.Execute(context.Background(), "echo partial; echo oops >&2; exit 3")

	var ee *ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *ExitError, got %T: %v", err, err)
	}
	if ee.Code != 3 {
		t.Errorf("exit code = %d, want 3", ee.Code)
	}
	if !strings.Contains(ee.Error(), "oops") {
		t.Errorf("error text %q should include stderr", ee.Error())
	}
	if out != "partial\n" {
		t.Errorf("stdout = %q, want partial output", out)
	}
}

func TestWithTimeout(t *testing.T) {
	slow := Func(func(ctx context.Context, command string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	_, err := WithTimeout(slow, 20*time.Millisecond).Execute(context.Background(), "smartctl -x --json /dev/sda")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got: %v", err)
	}
}

func TestWithTimeoutPassesFastCalls(t *testing.T) {
	fast := Func(func(ctx context.Context, command string) (string, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected a deadline on the context")
		}
		return "ok", nil
	})
	out, err := WithTimeout(fast, time.Second).Execute(context.Background(), "true")
	if err != nil || out != "ok" {
		t.Fatalf("Execute() = %q, %v", out, err)
	}

	if e := WithTimeout(fast, 0); e == nil {
		t.Fatal("WithTimeout(0) returned nil")
	}
}

func TestWithBreakerIgnoresExitErrors(t *testing.T) {
	cb := circuitbreaker.New("test", circuitbreaker.Config{Threshold: 1, Cooldown: time.Hour})
	exits := Func(func(ctx context.Context, command string) (string, error) {
		return "{}", &ExitError{Command: command, Code: 4}
	})
	e := WithBreaker(exits, cb)

	for i := 0; i < 3; i++ {
		out, err := e.Execute(context.Background(), "smartctl -x --json /dev/sda")
		var ee *ExitError
		if !errors.As(err, &ee) {
			t.Fatalf("expected exit error to pass through, got: %v", err)
		}
		if out != "{}" {
			t.Fatalf("stdout = %q, want {}", out)
		}
	}
	if cb.State() != circuitbreaker.StateClosed {
		t.Fatalf("exit errors should not open the breaker, got: %s", cb.State())
	}
}

func TestWithBreakerOpensOnTransportFailure(t *testing.T) {
	cb := circuitbreaker.New("test", circuitbreaker.Config{Threshold: 2, Cooldown: time.Hour})
	calls := 0
	down := Func(func(ctx context.Context, command string) (string, error) {
		calls++
		return "", errors.New("dial tcp 10.0.0.5:22: connect: connection refused")
	})
	e := WithBreaker(down, cb)

	e.Execute(context.Background(), "true")
	e.Execute(context.Background(), "true")
	_, err := e.Execute(context.Background(), "true")
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls before opening, got %d", calls)
	}
}

func TestSplitTarget(t *testing.T) {
	tests := []struct {
		in       string
		host     string
		user     string
		port     int
		wantFail bool
	}{
		{"nas01", "nas01", "", 0, false},
		{"admin@nas01", "nas01", "admin", 0, false},
		{"admin@nas01:2222", "nas01", "admin", 2222, false},
		{"10.0.0.5:22", "10.0.0.5", "", 22, false},
		{"", "", "", 0, true},
		{"root@", "", "", 0, true},
		{"nas01:ssh", "", "", 0, true},
	}
	for _, tt := range tests {
		host, user, port, err := splitTarget(tt.in)
		if (err != nil) != tt.wantFail {
			t.Errorf("splitTarget(%q) error = %v, wantFail %v", tt.in, err, tt.wantFail)
			continue
		}
		if tt.wantFail {
			continue
		}
		if host != tt.host || user != tt.user || port != tt.port {
			t.Errorf("splitTarget(%q) = %q, %q, %d", tt.in, host, user, port)
		}
	}
}

func TestNewSSHRequiresHost(t *testing.T) {
	if _, err := NewSSH(SSHConfig{}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for empty host")
	}
}

func TestNewSSHMissingKeyFile(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	_, err := NewSSH(SSHConfig{
		Host:                  "nas01",
		KeyFile:               filepath.Join(t.TempDir(), "missing"),
		InsecureIgnoreHostKey: true,
	}, zerolog.Nop())
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got: %v", err)
	}
}
