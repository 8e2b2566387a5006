package circuitbreaker

import (
	"context"
	"testing"
	"time"
)

func TestManager(t *testing.T) {
	manager := NewManager(quietLogger())

	cb1 := manager.GetOrCreate("sendgrid", Config{MaxFailures: 3, Timeout: time.Minute})
	if cb1 == nil {
		t.Fatal("Expected circuit breaker, got nil")
	}
	if again := manager.GetOrCreate("sendgrid", Config{MaxFailures: 9}); again != cb1 {
		t.Error("Expected same circuit breaker instance")
	}
	cb2 := manager.GetOrCreate("payments", DefaultConfig())
	if cb1 == cb2 {
		t.Error("Expected different circuit breaker instances")
	}
	if manager.Get("missing") != nil {
		t.Error("Expected nil for unknown breaker")
	}

	for i := 0; i < 3; i++ {
		_ = cb1.Execute(context.Background(), fail)
	}

	snaps := manager.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("Expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[0].Name != "payments" || snaps[1].Name != "sendgrid" {
		t.Errorf("Expected snapshots sorted by name, got %s, %s", snaps[0].Name, snaps[1].Name)
	}
	if snaps[1].State != StateOpen {
		t.Errorf("Expected sendgrid open, got %s", snaps[1].State)
	}

	if !manager.Reset("sendgrid") {
		t.Error("Expected reset to find sendgrid")
	}
	if cb1.State() != StateClosed {
		t.Errorf("Expected closed after reset, got %s", cb1.State())
	}
	if manager.Reset("missing") {
		t.Error("Expected reset of unknown breaker to report false")
	}
}
