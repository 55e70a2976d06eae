// Package lifecycle coordinates named startup and shutdown hooks for the
// systems that make up a long-running process.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"
)

// Hook is a unit of startup or shutdown work. Startup hooks receive the
// coordinator context; shutdown hooks receive a context bounded by the
// shutdown timeout.
type Hook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   Hook
}

// Coordinator runs startup hooks concurrently as they are registered and
// shutdown hooks sequentially, in reverse registration order, once
// Shutdown is called.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelFunc

	startup sync.WaitGroup

	mu       sync.Mutex
	shutdown []namedHook
	failures map[string]error
	started  bool
}

// New creates a Coordinator with a cancellable context.
func New() *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		ctx:      ctx,
		cancel:   cancel,
		failures: make(map[string]error),
	}
}

// Context returns the coordinator context. It is cancelled when Shutdown begins.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// OnStartup runs fn in its own goroutine. A returned error marks the
// coordinator as not ready and is reported by Failures.
func (c *Coordinator) OnStartup(name string, fn Hook) {
	c.startup.Go(func() {
		if err := fn(c.ctx); err != nil {
			c.mu.Lock()
			c.failures[name] = err
			c.mu.Unlock()
		}
	})
}

// OnShutdown registers fn to run during Shutdown.
func (c *Coordinator) OnShutdown(name string, fn Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdown = append(c.shutdown, namedHook{name: name, fn: fn})
}

// WaitForStartup blocks until every startup hook registered so far has
// returned, then reports their failures joined into one error.
func (c *Coordinator) WaitForStartup() error {
	c.startup.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	return c.joinedFailures()
}

// Ready reports whether startup has completed without failures.
func (c *Coordinator) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && len(c.failures) == 0
}

// Failures returns the startup errors keyed by hook name.
func (c *Coordinator) Failures() map[string]error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.failures)
}

// Shutdown cancels the coordinator context and runs the shutdown hooks
// last-registered first, all within timeout. Hooks still pending when the
// timeout expires are not run.
func (c *Coordinator) Shutdown(timeout time.Duration) error {
	c.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	c.mu.Lock()
	hooks := c.shutdown
	c.shutdown = nil
	c.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]

		done := make(chan error, 1)
		go func() { done <- h.fn(ctx) }()

		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("%s: shutdown timeout after %v", h.name, timeout))
			return errors.Join(errs...)
		}
	}

	return errors.Join(errs...)
}

func (c *Coordinator) joinedFailures() error {
	errs := make([]error, 0, len(c.failures))
	for name, err := range c.failures {
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}
	return errors.Join(errs...)
}
