package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errHostDown = errors.New("ssh: connection refused")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestBreaker(cfg Config) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)}
	cb := New("ssh:nas01", cfg)
	cb.nowFunc = clock.Now
	return cb, clock
}

func fail(context.Context) error    { return errHostDown }
func succeed(context.Context) error { return nil }

func TestClosedPassesCalls(t *testing.T) {
	cb, _ := newTestBreaker(DefaultConfig())
	ctx := context.Background()

	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !called {
		t.Fatal("function was not called")
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed, got: %s", cb.State())
	}
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(Config{Threshold: 3, Cooldown: time.Minute, SuccessThreshold: 1})
	ctx := context.Background()

	cb.Execute(ctx, fail)
	cb.Execute(ctx, fail)
	if cb.State() != StateClosed || cb.Failures() != 2 {
		t.Fatalf("expected closed with 2 failures, got %s with %d", cb.State(), cb.Failures())
	}

	cb.Execute(ctx, succeed)
	if cb.Failures() != 0 {
		t.Fatalf("success should reset failures, got: %d", cb.Failures())
	}

	for i := 0; i < 3; i++ {
		cb.Execute(ctx, fail)
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected open after 3 failures, got: %s", cb.State())
	}
}

func TestOpenRejectsWithoutCalling(t *testing.T) {
	cb, _ := newTestBreaker(Config{Threshold: 1, Cooldown: time.Minute})
	ctx := context.Background()
	cb.Execute(ctx, fail)

	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got: %v", err)
	}
	if called {
		t.Fatal("function should not run while open")
	}
}

func TestHalfOpenProbe(t *testing.T) {
	cb, clock := newTestBreaker(Config{Threshold: 1, Cooldown: 10 * time.Second, SuccessThreshold: 2})
	ctx := context.Background()
	cb.Execute(ctx, fail)

	clock.Advance(10 * time.Second)
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half-open after cooldown, got: %s", cb.State())
	}

	if err := cb.Execute(ctx, succeed); err != nil {
		t.Fatalf("expected probe to run, got: %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half-open after 1 success, got: %s", cb.State())
	}
	cb.Execute(ctx, succeed)
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after 2 successes, got: %s", cb.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(Config{Threshold: 1, Cooldown: 10 * time.Second, SuccessThreshold: 3})
	ctx := context.Background()
	cb.Execute(ctx, fail)
	clock.Advance(11 * time.Second)

	cb.Execute(ctx, succeed)
	cb.Execute(ctx, fail)
	if cb.State() != StateOpen {
		t.Fatalf("expected open after half-open failure, got: %s", cb.State())
	}
	if err := cb.Execute(ctx, succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected rejection right after reopening, got: %v", err)
	}
}

func TestCallerCancellationIsNotAFailure(t *testing.T) {
	cb, _ := newTestBreaker(Config{Threshold: 1, Cooldown: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("cancellation should not open the breaker, got: %s", cb.State())
	}
}

func TestDeadlineCountsAsFailure(t *testing.T) {
	cb, _ := newTestBreaker(Config{Threshold: 1, Cooldown: time.Minute})
	cb.Execute(context.Background(), func(context.Context) error { return context.DeadlineExceeded })
	if cb.State() != StateOpen {
		t.Fatalf("expected open after timeout, got: %s", cb.State())
	}
}

func TestStateChangeHook(t *testing.T) {
	var mu sync.Mutex
	var transitions []string
	cfg := Config{
		Threshold: 1,
		Cooldown:  time.Second,
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			transitions = append(transitions, from.String()+">"+to.String())
			mu.Unlock()
		},
	}
	cb, clock := newTestBreaker(cfg)
	ctx := context.Background()

	cb.Execute(ctx, fail)
	clock.Advance(time.Second)
	cb.Execute(ctx, succeed)

	want := []string{"closed>open", "open>half-open", "half-open>closed"}
	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", transitions, want)
		}
	}
}

func TestReset(t *testing.T) {
	cb, _ := newTestBreaker(Config{Threshold: 1, Cooldown: time.Minute})
	ctx := context.Background()
	cb.Execute(ctx, fail)

	cb.Reset()
	if cb.State() != StateClosed || cb.Failures() != 0 {
		t.Fatalf("expected closed with 0 failures, got %s with %d", cb.State(), cb.Failures())
	}
	if err := cb.Execute(ctx, succeed); err != nil {
		t.Fatalf("expected call after reset, got: %v", err)
	}
}

func TestDefaults(t *testing.T) {
	cb := New("ssh:nas01", Config{})
	if cb.Name() != "ssh:nas01" {
		t.Fatalf("expected name ssh:nas01, got: %s", cb.Name())
	}
	if cb.cfg.Threshold != 3 || cb.cfg.Cooldown != time.Minute || cb.cfg.SuccessThreshold != 1 {
		t.Fatalf("unexpected defaults: %+v", cb.cfg)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown(99)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}

func TestConcurrentExecute(t *testing.T) {
	cb, _ := newTestBreaker(Config{Threshold: 1000, Cooldown: time.Minute})
	ctx := context.Background()

	var wg sync.WaitGroup
	var calls atomic.Int64
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				cb.Execute(ctx, func(context.Context) error {
					calls.Add(1)
					if j%4 == 0 {
						return errHostDown
					}
					return nil
				})
			}
		}()
	}
	wg.Wait()

	if calls.Load() != 1000 {
		t.Fatalf("expected 1000 calls, got: %d", calls.Load())
	}
}
