package worker

import (
	"context"
	"sync"
)

// Tokens tracks the cancel function of every running task job.
type Tokens struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewTokens returns an empty registry.
func NewTokens() *Tokens {
	return &Tokens{cancels: make(map[string]context.CancelFunc)}
}

func (t *Tokens) register(taskID string, cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancels[taskID] = cancel
}

func (t *Tokens) release(taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cancels, taskID)
}

// Cancel fires the token of a running task. It reports whether one was found.
func (t *Tokens) Cancel(taskID string) bool {
	t.mu.Lock()
	cancel, ok := t.cancels[taskID]
	t.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Running reports whether a job for taskID is in flight.
func (t *Tokens) Running(taskID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.cancels[taskID]
	return ok
}
