package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

var errProvider = errors.New("provider unavailable")

func fail(context.Context) error    { return errProvider }
func succeed(context.Context) error { return nil }

func TestOpensAfterMaxFailures(t *testing.T) {
	cb := New(Config{Name: "payments", MaxFailures: 3, Timeout: time.Minute}, quietLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, fail); !errors.Is(err, errProvider) {
			t.Fatalf("call %d: expected provider error, got %v", i, err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Error("function must not run while the breaker is open")
	}

	snap := cb.Snapshot()
	if snap.TotalRejected != 1 || snap.TotalFailures != 3 || snap.TotalRequests != 3 {
		t.Errorf("unexpected counters: %+v", snap)
	}
}

func TestHalfOpenRecovery(t *testing.T) {
	cb := New(Config{Name: "email", MaxFailures: 1, Timeout: time.Second, MaxRequests: 1}, quietLogger())
	clock := time.Now()
	cb.now = func() time.Time { return clock }
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	clock = clock.Add(2 * time.Second)
	if err := cb.Execute(ctx, succeed); err != nil {
		t.Fatalf("probe should pass, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected closed after successful probe, got %s", cb.State())
	}

	_ = cb.Execute(ctx, fail)
	clock = clock.Add(2 * time.Second)
	_ = cb.Execute(ctx, fail)
	if cb.State() != StateOpen {
		t.Errorf("failed probe should reopen, got %s", cb.State())
	}
}

func TestHalfOpenLimitsProbes(t *testing.T) {
	cb := New(Config{Name: "captcha", MaxFailures: 1, Timeout: time.Second, MaxRequests: 1}, quietLogger())
	clock := time.Now()
	cb.now = func() time.Time { return clock }
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock = clock.Add(2 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = cb.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := cb.Execute(ctx, succeed); !errors.Is(err, ErrOpen) {
		t.Errorf("second probe should be rejected, got %v", err)
	}
	close(release)
	wg.Wait()

	if cb.State() != StateClosed {
		t.Errorf("expected closed, got %s", cb.State())
	}
}

func TestIsFailureClassifier(t *testing.T) {
	errDeclined := errors.New("card declined")
	cb := New(Config{
		Name:        "payments",
		MaxFailures: 1,
		Timeout:     time.Minute,
		IsFailure:   func(err error) bool { return !errors.Is(err, errDeclined) },
	}, quietLogger())

	for i := 0; i < 5; i++ {
		err := cb.Execute(context.Background(), func(context.Context) error { return errDeclined })
		if !errors.Is(err, errDeclined) {
			t.Fatalf("expected caller error to be returned, got %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("caller errors must not open the breaker, got %s", cb.State())
	}
}

func TestCanceledContextDoesNotCount(t *testing.T) {
	cb := New(Config{Name: "google", MaxFailures: 1, Timeout: time.Minute}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected closed, got %s", cb.State())
	}
}

func TestConcurrentCountersConsistent(t *testing.T) {
	cb := New(Config{Name: "test", MaxFailures: 3, Timeout: 100 * time.Millisecond, MaxRequests: 2}, quietLogger())

	const numGoroutines = 50
	const numIterations = 10

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < numIterations; j++ {
				if (i+j)%3 == 0 {
					_ = cb.Execute(context.Background(), fail)
				} else {
					_ = cb.Execute(context.Background(), succeed)
				}
			}
		}(i)
	}
	wg.Wait()

	snap := cb.Snapshot()
	if snap.TotalRequests != snap.TotalFailures+snap.TotalSuccesses {
		t.Errorf("Inconsistent metrics: %+v", snap)
	}
	if snap.TotalRequests+snap.TotalRejected != numGoroutines*numIterations {
		t.Errorf("expected every call to be attempted or rejected: %+v", snap)
	}
}

func TestStateChangeCallback(t *testing.T) {
	changes := make(chan State, 4)
	cb := New(Config{
		Name:          "cb",
		MaxFailures:   1,
		Timeout:       time.Minute,
		OnStateChange: func(_ string, _, to State) { changes <- to },
	}, quietLogger())

	_ = cb.Execute(context.Background(), fail)

	select {
	case to := <-changes:
		if to != StateOpen {
			t.Errorf("expected transition to open, got %s", to)
		}
	case <-time.After(time.Second):
		t.Fatal("state change callback was not called")
	}
}

func TestInvalidConfigUsesDefaults(t *testing.T) {
	cb := New(Config{MaxFailures: -1, Timeout: time.Hour, MaxRequests: 0}, quietLogger())
	def := DefaultConfig()

	if cb.name != "unnamed" {
		t.Errorf("expected unnamed, got %s", cb.name)
	}
	if cb.maxFailures != def.MaxFailures || cb.timeout != def.Timeout || cb.maxRequests != def.MaxRequests {
		t.Errorf("defaults not applied: %s", cb)
	}
}
