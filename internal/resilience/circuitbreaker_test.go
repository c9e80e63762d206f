package resilience

import (
	"errors"
	"testing"
	"time"
)

// errQuota stands in for the rate-limit rejections the hosted translation
// endpoint returns once its per-minute budget is spent.
var errQuota = errors.New("429 too many requests")

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "sea-lion"})
	if cb.maxFailures != 5 {
		t.Errorf("maxFailures = %d, want 5", cb.maxFailures)
	}
	if cb.resetTimeout != 30*time.Second {
		t.Errorf("resetTimeout = %v, want 30s", cb.resetTimeout)
	}
	if cb.halfOpenMax != 3 {
		t.Errorf("halfOpenMax = %d, want 3", cb.halfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_ClosedPassesRequestsThrough(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "sea-lion", MaxFailures: 3})
	sent := false
	err := cb.Execute(func() error {
		sent = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sent {
		t.Fatal("request was not sent")
	}
}

func TestCircuitBreaker_OpensAfterRepeatedRejections(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "sea-lion",
		MaxFailures:  3,
		ResetTimeout: time.Hour, // stays open for the whole test
	})

	for range 3 {
		_ = cb.Execute(func() error { return errQuota })
	}

	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after 3 rejections", cb.State())
	}

	// The next translation request must be refused without touching the
	// endpoint.
	err := cb.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:        "sea-lion",
		MaxFailures: 3,
	})

	// Two rejections followed by a served request keep the breaker closed.
	_ = cb.Execute(func() error { return errQuota })
	_ = cb.Execute(func() error { return errQuota })
	_ = cb.Execute(func() error { return nil })

	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after a served request", cb.State())
	}

	// The failure budget starts over after the success.
	_ = cb.Execute(func() error { return errQuota })
	_ = cb.Execute(func() error { return errQuota })
	if cb.State() != StateClosed {
		t.Fatal("two rejections after a success must not open the breaker")
	}
}

func TestCircuitBreaker_OpenToHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "sea-lion",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})

	_ = cb.Execute(func() error { return errQuota })
	_ = cb.Execute(func() error { return errQuota })
	if cb.State() != StateOpen {
		t.Fatal("expected open")
	}

	time.Sleep(15 * time.Millisecond)

	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after the reset timeout", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenToClosed(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "sea-lion",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})

	_ = cb.Execute(func() error { return errQuota })
	_ = cb.Execute(func() error { return errQuota })

	time.Sleep(15 * time.Millisecond)

	// Served probe requests close the breaker again.
	for i := range 2 {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe request %d: unexpected error: %v", i, err)
		}
	}

	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after served probe requests", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenToOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "sea-lion",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  3,
	})

	_ = cb.Execute(func() error { return errQuota })
	_ = cb.Execute(func() error { return errQuota })

	time.Sleep(15 * time.Millisecond)

	// A rejected probe request re-opens the breaker.
	if err := cb.Execute(func() error { return errQuota }); err == nil {
		t.Fatal("expected error from rejected probe request")
	}

	// Read the raw state: State() would report half-open again once the
	// freshly stamped failure ages past the reset timeout.
	cb.mu.Lock()
	s := cb.state
	cb.mu.Unlock()
	if s != StateOpen {
		t.Fatalf("state = %v, want open after a rejected probe", s)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "sea-lion",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})

	_ = cb.Execute(func() error { return errQuota })
	_ = cb.Execute(func() error { return errQuota })
	if cb.State() != StateOpen {
		t.Fatal("expected open")
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after reset", cb.State())
	}

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error after reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
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
