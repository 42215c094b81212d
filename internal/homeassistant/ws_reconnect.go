package homeassistant

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMaxReconnectAttempts is returned when the reconnection budget is spent.
var ErrMaxReconnectAttempts = errors.New("maximum reconnection attempts reached")

// ReconnectConfig holds the backoff policy.
type ReconnectConfig struct {
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// MaxAttempts of 0 means retry forever.
	MaxAttempts int
}

// DefaultReconnectConfig returns an unlimited 1s..60s doubling backoff.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		InitialDelay:  1 * time.Second,
		MaxDelay:      60 * time.Second,
		BackoffFactor: 2.0,
	}
}

// ReconnectManager tracks attempts and sleeps with exponential backoff.
type ReconnectManager struct {
	config ReconnectConfig

	mu       sync.Mutex
	attempts int
	next     time.Duration
	cancel   context.CancelFunc
}

// NewReconnectManager creates a manager for the given policy.
func NewReconnectManager(config ReconnectConfig) *ReconnectManager {
	return &ReconnectManager{config: config, next: config.InitialDelay}
}

// Reset clears the attempt counter after a successful connection.
func (r *ReconnectManager) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts = 0
	r.next = r.config.InitialDelay
	r.stopLocked()
}

// Stop aborts a pending wait.
func (r *ReconnectManager) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *ReconnectManager) stopLocked() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// ShouldReconnect reports whether another attempt is allowed.
func (r *ReconnectManager) ShouldReconnect() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config.MaxAttempts == 0 || r.attempts < r.config.MaxAttempts
}

// Attempts returns the attempts made since the last Reset.
func (r *ReconnectManager) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// WaitForReconnect counts an attempt and sleeps for the current backoff.
func (r *ReconnectManager) WaitForReconnect(ctx context.Context) error {
	r.mu.Lock()
	if r.config.MaxAttempts > 0 && r.attempts >= r.config.MaxAttempts {
		r.mu.Unlock()
		return ErrMaxReconnectAttempts
	}

	r.attempts++
	wait := r.next
	r.next = min(time.Duration(float64(r.next)*r.config.BackoffFactor), r.config.MaxDelay)

	waitCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		cancel()
		return nil
	case <-waitCtx.Done():
		return waitCtx.Err()
	}
}

// OnReconnectFunc is called after a successful reconnection.
type OnReconnectFunc func(attempts int)

// OnDisconnectFunc is called when a disconnect is detected.
type OnDisconnectFunc func(err error)
