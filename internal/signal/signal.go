// Package signal cancels work on SIGINT/SIGTERM and lets critical sections
// (schema migrations, run ingestion) finish before the cancellation lands.
package signal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var (
	mu         sync.Mutex
	blockCount int
	// pendingCancel is called once the last critical section ends.
	pendingCancel context.CancelFunc
)

// WithSignalCancel returns a context that is cancelled when SIGINT or SIGTERM
// is received. A signal that arrives inside Critical cancels the context when
// the section returns.
func WithSignalCancel(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			if !deferCancel(cancel) {
				cancel()
			}
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// Critical runs fn with signal cancellation deferred. Sections nest: the
// cancellation lands when the outermost one returns.
func Critical(fn func() error) error {
	mu.Lock()
	blockCount++
	mu.Unlock()
	defer leave()
	return fn()
}

// deferCancel parks cancel while a critical section is running.
func deferCancel(cancel context.CancelFunc) bool {
	mu.Lock()
	defer mu.Unlock()
	if blockCount == 0 {
		return false
	}
	pendingCancel = cancel
	return true
}

func leave() {
	mu.Lock()
	defer mu.Unlock()
	if blockCount > 0 {
		blockCount--
	}
	if blockCount == 0 && pendingCancel != nil {
		pendingCancel()
		pendingCancel = nil
	}
}
