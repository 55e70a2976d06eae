package lifecycle_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JaimeStill/renewal/pkg/lifecycle"
)

func TestReadiness(t *testing.T) {
	lc := lifecycle.New()
	if lc.Ready() {
		t.Error("should not be ready before WaitForStartup")
	}

	var count atomic.Int32
	release := make(chan struct{})
	for range 3 {
		lc.OnStartup("hook", func(context.Context) error {
			<-release
			count.Add(1)
			return nil
		})
	}

	if lc.Ready() {
		t.Error("should not be ready while startup hooks run")
	}

	close(release)
	if err := lc.WaitForStartup(); err != nil {
		t.Fatalf("startup: %v", err)
	}

	if !lc.Ready() {
		t.Error("should be ready after WaitForStartup")
	}
	if got := count.Load(); got != 3 {
		t.Errorf("startup hooks: got %d, want 3", got)
	}
}

func TestStartupFailure(t *testing.T) {
	lc := lifecycle.New()
	boom := errors.New("ping refused")

	lc.OnStartup("database", func(context.Context) error { return boom })
	lc.OnStartup("storage", func(context.Context) error { return nil })

	err := lc.WaitForStartup()
	if !errors.Is(err, boom) {
		t.Fatalf("startup error: got %v, want %v", err, boom)
	}
	if !strings.Contains(err.Error(), "database") {
		t.Errorf("error should name the hook: %v", err)
	}
	if lc.Ready() {
		t.Error("should not be ready after a failed startup hook")
	}

	failures := lc.Failures()
	if len(failures) != 1 || failures["database"] != boom {
		t.Errorf("failures: got %v", failures)
	}
}

func TestShutdownOrder(t *testing.T) {
	lc := lifecycle.New()

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) lifecycle.Hook {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	lc.OnShutdown("database", record("database"))
	lc.OnShutdown("scheduler", record("scheduler"))
	lc.OnShutdown("http", record("http"))

	if err := lc.Shutdown(5 * time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	want := []string{"http", "scheduler", "database"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("order: got %v, want %v", order, want)
	}
	if lc.Context().Err() == nil {
		t.Error("context should be cancelled after shutdown")
	}
}

func TestShutdownErrors(t *testing.T) {
	lc := lifecycle.New()
	boom := errors.New("close failed")

	var ran atomic.Bool
	lc.OnShutdown("database", func(context.Context) error {
		ran.Store(true)
		return nil
	})
	lc.OnShutdown("storage", func(context.Context) error { return boom })

	err := lc.Shutdown(5 * time.Second)
	if !errors.Is(err, boom) {
		t.Fatalf("shutdown error: got %v, want %v", err, boom)
	}
	if !ran.Load() {
		t.Error("a failing hook should not stop the remaining hooks")
	}
}

func TestShutdownTimeout(t *testing.T) {
	lc := lifecycle.New()

	var ran atomic.Bool
	lc.OnShutdown("first", func(context.Context) error {
		ran.Store(true)
		return nil
	})
	lc.OnShutdown("slow", func(context.Context) error {
		time.Sleep(500 * time.Millisecond)
		return nil
	})

	err := lc.Shutdown(50 * time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "slow") {
		t.Errorf("expected timeout error naming the slow hook, got %v", err)
	}
	if ran.Load() {
		t.Error("hooks after a timeout should not run")
	}
}
