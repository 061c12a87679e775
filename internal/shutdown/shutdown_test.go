package shutdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type recordingComponent struct {
	name  string
	delay time.Duration
	fail  bool
	calls int32
}

func (m *recordingComponent) Name() string { return m.name }

func (m *recordingComponent) Shutdown(ctx context.Context) error {
	atomic.AddInt32(&m.calls, 1)
	select {
	case <-time.After(m.delay):
		if m.fail {
			return errors.New("shutdown failed")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *recordingComponent) Calls() int { return int(atomic.LoadInt32(&m.calls)) }

func quietCoordinator(opts ...Option) *Coordinator {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewCoordinator(opts...)
}

func TestShutdownRunsEveryComponentOnce(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("every registered component shuts down exactly once", prop.ForAll(
		func(n int) bool {
			c := quietCoordinator(WithTimeout(time.Second))
			comps := make([]*recordingComponent, n)
			for i := range comps {
				comps[i] = &recordingComponent{name: "comp", delay: time.Millisecond}
				c.Register(comps[i])
			}

			c.Shutdown()
			c.Shutdown() // idempotent
			c.Wait()

			for _, comp := range comps {
				if comp.Calls() != 1 {
					return false
				}
			}
			return c.ExitCode() == 0
		},
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}

func TestShutdownTimeoutForcesTermination(t *testing.T) {
	c := quietCoordinator(WithTimeout(50 * time.Millisecond))
	c.Register(&recordingComponent{name: "slow", delay: 5 * time.Second})

	start := time.Now()
	c.Shutdown()
	c.Wait()

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("shutdown took %v, should respect the timeout", elapsed)
	}
	if c.ExitCode() != 1 {
		t.Fatalf("exit code = %d, want 1 after forced termination", c.ExitCode())
	}
}

func TestShutdownFailureStillCompletes(t *testing.T) {
	c := quietCoordinator(WithTimeout(time.Second))
	c.Register(&recordingComponent{name: "bad", delay: time.Millisecond, fail: true})
	c.Register(&recordingComponent{name: "good", delay: time.Millisecond})

	c.Shutdown()
	c.Wait()

	// A failing component does not block the rest or flip the exit code.
	if c.ExitCode() != 0 {
		t.Fatalf("exit code = %d, want 0", c.ExitCode())
	}
}

func TestWaitForSignalTriggersShutdown(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	c := quietCoordinator(WithTimeout(time.Second), WithSignalChannel(sigCh))
	comp := &recordingComponent{name: "server", delay: time.Millisecond}
	c.Register(comp)

	go c.WaitForSignal()
	sigCh <- syscall.SIGTERM
	c.Wait()

	if comp.Calls() != 1 {
		t.Fatalf("component shut down %d times, want 1", comp.Calls())
	}
}

func TestWorkerComponentRespectsContext(t *testing.T) {
	blocked := make(chan struct{})
	w := NewWorkerComponent("stuck", stopFunc(func() { <-blocked }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := w.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	close(blocked)
}

type stopFunc func()

func (f stopFunc) Stop() { f() }
