package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/GriffinCanCode/slidecapture/internal/errors"
)

// fakeNow returns a breaker clock the test can move.
func fakeNow(b *Breaker) *time.Time {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return &now
}

func TestBreakerInitialState(t *testing.T) {
	b := New("grab", DefaultConfig())
	if b.State() != Closed {
		t.Errorf("initial state = %v, want Closed", b.State())
	}
	if b.Name() != "grab" {
		t.Errorf("Name() = %q", b.Name())
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New("grab", GrabConfig())

	for i := 0; i < GrabThreshold; i++ {
		b.Failure()
	}

	if b.State() != Open {
		t.Errorf("state = %v, want Open", b.State())
	}
}

func TestBreakerRejectsWhenOpen(t *testing.T) {
	b := New("grab", Config{Threshold: 1, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})
	b.Failure()

	err := b.Allow()
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Allow() = %v, want ErrOpen", err)
	}
	if !apperrors.IsCode(err, apperrors.Unavailable) {
		t.Errorf("open breaker should report unavailable, got %v", apperrors.CodeOf(err))
	}
}

func TestBreakerTransitionsToHalfOpen(t *testing.T) {
	b := New("grab", Config{Threshold: 1, ResetTimeout: time.Second, HalfOpenSuccesses: 1})
	now := fakeNow(b)
	b.Failure()

	*now = now.Add(2 * time.Second)

	if err := b.Allow(); err != nil {
		t.Errorf("Allow() = %v, want nil", err)
	}
	if b.State() != HalfOpen {
		t.Errorf("state = %v, want HalfOpen", b.State())
	}
}

func TestBreakerClosesAfterSuccesses(t *testing.T) {
	b := New("store", Config{Threshold: 1, ResetTimeout: time.Second, HalfOpenSuccesses: 2})
	now := fakeNow(b)
	b.Failure()

	*now = now.Add(2 * time.Second)
	_ = b.Allow()

	b.Success()
	b.Success()

	if b.State() != Closed {
		t.Errorf("state = %v, want Closed", b.State())
	}
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	b := New("store", Config{Threshold: 1, ResetTimeout: time.Second, HalfOpenSuccesses: 3})
	now := fakeNow(b)
	b.Failure()

	*now = now.Add(2 * time.Second)
	_ = b.Allow()

	b.Failure()

	if b.State() != Open {
		t.Errorf("state = %v, want Open", b.State())
	}
}

func TestBreakerReset(t *testing.T) {
	b := New("grab", Config{Threshold: 1, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})
	b.Failure()

	if b.State() != Open {
		t.Fatal("expected open state")
	}

	b.Reset()

	if b.State() != Closed {
		t.Errorf("state = %v, want Closed", b.State())
	}
}

func TestBreakerExecute(t *testing.T) {
	b := New("grab", Config{Threshold: 2, ResetTimeout: time.Second, HalfOpenSuccesses: 1})

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute success = %v, want nil", err)
	}

	testErr := errors.New("frame grab failed")
	if err := b.Execute(func() error { return testErr }); err != testErr {
		t.Errorf("Execute failure = %v, want %v", err, testErr)
	}
}

func TestBreakerExecuteWithResult(t *testing.T) {
	b := New("grab", DefaultConfig())

	result, err := ExecuteWithResult(b, func() ([]byte, error) {
		return []byte{0x89, 'P', 'N', 'G'}, nil
	})
	if err != nil || len(result) != 4 {
		t.Errorf("ExecuteWithResult = (%v, %v)", result, err)
	}
}

func TestBreakerHook(t *testing.T) {
	var transitions []struct{ from, to State }
	b := New("grab", Config{Threshold: 1, ResetTimeout: time.Second, HalfOpenSuccesses: 1})
	now := fakeNow(b)
	b.WithHook(func(from, to State) {
		transitions = append(transitions, struct{ from, to State }{from, to})
	})

	b.Failure()
	*now = now.Add(2 * time.Second)
	_ = b.Allow()
	b.Success()

	if len(transitions) != 3 {
		t.Errorf("got %d transitions, want 3", len(transitions))
	}
}

func TestBreakerConcurrentSafety(t *testing.T) {
	b := New("grab", Config{Threshold: 100, ResetTimeout: time.Second, HalfOpenSuccesses: 10})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Allow()
			if i%2 == 0 {
				b.Success()
			} else {
				b.Failure()
			}
		}()
	}
	wg.Wait()

	_ = b.State()
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Closed, "closed"},
		{Open, "open"},
		{HalfOpen, "half-open"},
	}

	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	if cfg.Threshold != DefaultThreshold {
		t.Errorf("Threshold = %d, want %d", cfg.Threshold, DefaultThreshold)
	}
	if cfg.ResetTimeout != DefaultResetTimeout {
		t.Errorf("ResetTimeout = %v, want %v", cfg.ResetTimeout, DefaultResetTimeout)
	}
	if cfg.HalfOpenSuccesses != DefaultHalfOpenSuccesses {
		t.Errorf("HalfOpenSuccesses = %d, want %d", cfg.HalfOpenSuccesses, DefaultHalfOpenSuccesses)
	}
}

func TestSuccessResetsFailures(t *testing.T) {
	b := New("grab", Config{Threshold: 3, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()

	if b.State() != Closed {
		t.Errorf("state = %v, want Closed", b.State())
	}
}
