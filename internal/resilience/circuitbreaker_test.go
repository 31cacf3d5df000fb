package resilience

import (
	"errors"
	"testing"
	"time"
)

var errSynth = errors.New("synthesis error")

func TestNewCircuitBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker("speech", 0, 0)
	if cb.maxFailures != 5 {
		t.Errorf("maxFailures = %d, want 5", cb.maxFailures)
	}
	if cb.cooldown != 30*time.Second {
		t.Errorf("cooldown = %v, want 30s", cb.cooldown)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreakerClosedAllowsCalls(t *testing.T) {
	cb := NewCircuitBreaker("speech", 3, time.Hour)
	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("fn was not called")
	}
}

func TestCircuitBreakerClosedToOpen(t *testing.T) {
	// Long cooldown so the breaker stays open for the whole test.
	cb := NewCircuitBreaker("speech", 3, time.Hour)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errSynth })
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after 3 failures", cb.State())
	}

	err := cb.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("speech", 3, time.Hour)

	_ = cb.Execute(func() error { return errSynth })
	_ = cb.Execute(func() error { return errSynth })
	_ = cb.Execute(func() error { return nil })

	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed (success should reset counter)", cb.State())
	}

	_ = cb.Execute(func() error { return errSynth })
	_ = cb.Execute(func() error { return errSynth })
	if cb.State() != StateClosed {
		t.Fatal("should still be closed after 2 failures post-reset")
	}
}

func TestCircuitBreakerOpenToHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("speech", 2, 10*time.Millisecond)

	_ = cb.Execute(func() error { return errSynth })
	_ = cb.Execute(func() error { return errSynth })
	if cb.State() != StateOpen {
		t.Fatal("expected open")
	}

	time.Sleep(15 * time.Millisecond)

	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after cooldown", cb.State())
	}
}

func TestCircuitBreakerHalfOpenToClosed(t *testing.T) {
	cb := NewCircuitBreaker("speech", 2, 10*time.Millisecond)

	_ = cb.Execute(func() error { return errSynth })
	_ = cb.Execute(func() error { return errSynth })

	time.Sleep(15 * time.Millisecond)

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe: unexpected error: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after successful probe", cb.State())
	}
}

func TestCircuitBreakerHalfOpenToOpen(t *testing.T) {
	cb := NewCircuitBreaker("speech", 2, 10*time.Millisecond)

	_ = cb.Execute(func() error { return errSynth })
	_ = cb.Execute(func() error { return errSynth })

	time.Sleep(15 * time.Millisecond)

	err := cb.Execute(func() error { return errSynth })
	if !errors.Is(err, errSynth) {
		t.Fatalf("err = %v, want the probe's own error", err)
	}

	// Re-opened; the breaker rejects the next call without running it.
	err = cb.Execute(func() error {
		t.Error("fn must not run while open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen after failed probe", err)
	}
}

func TestCircuitBreakerHalfOpenSingleProbe(t *testing.T) {
	cb := NewCircuitBreaker("speech", 1, 10*time.Millisecond)

	_ = cb.Execute(func() error { return errSynth })
	time.Sleep(15 * time.Millisecond)

	// Claim the probe slot without finishing the call yet.
	if err := cb.admit(); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if err := cb.admit(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second concurrent probe: err = %v, want ErrCircuitOpen", err)
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
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
