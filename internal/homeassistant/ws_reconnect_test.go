package homeassistant

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaultReconnectConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultReconnectConfig()
	if cfg.InitialDelay != time.Second || cfg.MaxDelay != time.Minute || cfg.BackoffFactor != 2 || cfg.MaxAttempts != 0 {
		t.Errorf("DefaultReconnectConfig() = %+v", cfg)
	}
}

func TestReconnectManager_Backoff(t *testing.T) {
	t.Parallel()

	mgr := NewReconnectManager(ReconnectConfig{
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	})

	want := []time.Duration{2 * time.Millisecond, 4 * time.Millisecond, 5 * time.Millisecond, 5 * time.Millisecond}
	for i, w := range want {
		if err := mgr.WaitForReconnect(context.Background()); err != nil {
			t.Fatalf("WaitForReconnect() #%d error = %v", i, err)
		}
		mgr.mu.Lock()
		got := mgr.next
		mgr.mu.Unlock()
		if got != w {
			t.Errorf("next delay after #%d = %v, want %v", i, got, w)
		}
	}
	if mgr.Attempts() != len(want) {
		t.Errorf("Attempts() = %d, want %d", mgr.Attempts(), len(want))
	}

	mgr.Reset()
	if mgr.Attempts() != 0 || mgr.next != time.Millisecond {
		t.Errorf("after Reset attempts=%d next=%v", mgr.Attempts(), mgr.next)
	}
}

func TestReconnectManager_MaxAttempts(t *testing.T) {
	t.Parallel()

	mgr := NewReconnectManager(ReconnectConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1, MaxAttempts: 2})

	for range 2 {
		if !mgr.ShouldReconnect() {
			t.Fatal("ShouldReconnect() = false before budget spent")
		}
		if err := mgr.WaitForReconnect(context.Background()); err != nil {
			t.Fatalf("WaitForReconnect() error = %v", err)
		}
	}
	if mgr.ShouldReconnect() {
		t.Error("ShouldReconnect() = true after budget spent")
	}
	if err := mgr.WaitForReconnect(context.Background()); !errors.Is(err, ErrMaxReconnectAttempts) {
		t.Errorf("WaitForReconnect() error = %v, want ErrMaxReconnectAttempts", err)
	}
}

func TestReconnectManager_Cancel(t *testing.T) {
	t.Parallel()

	mgr := NewReconnectManager(ReconnectConfig{InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffFactor: 2})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := mgr.WaitForReconnect(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForReconnect() error = %v, want DeadlineExceeded", err)
	}

	done := make(chan error, 1)
	go func() { done <- mgr.WaitForReconnect(context.Background()) }()
	time.Sleep(10 * time.Millisecond)
	mgr.Stop()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("WaitForReconnect() after Stop error = %v, want Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Stop() did not interrupt WaitForReconnect")
	}
}
