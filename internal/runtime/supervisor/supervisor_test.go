package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	logx "msgsim/pkg/logx"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestFailuresDoNotCancelSiblings(t *testing.T) {
	t.Parallel()
	sup := NewSupervisor(context.Background(), WithLogger(logx.Nop()), WithCancelOnError(false))

	var finished atomic.Int32
	errBoom := errors.New("boom")
	sup.Go("fails", func(ctx context.Context) error { return errBoom })
	sup.Go("panics", func(ctx context.Context) error { panic("kaboom") })
	for i := 0; i < 5; i++ {
		sup.Go("slow", func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return errors.New("sibling was cancelled")
			case <-time.After(30 * time.Millisecond):
			}
			finished.Add(1)
			return nil
		})
	}

	err := sup.Wait(waitCtx(t))
	if got := finished.Load(); got != 5 {
		t.Fatalf("finished siblings = %d, want 5", got)
	}
	if !errors.Is(err, errBoom) {
		t.Fatalf("Wait err = %v, want to wrap boom", err)
	}
	errs := sup.Errs()
	if len(errs) != 2 {
		t.Fatalf("recorded %d errors, want 2: %v", len(errs), errs)
	}
	if !strings.Contains(err.Error(), "panic in panics: kaboom") {
		t.Fatalf("joined error %q missing panic", err)
	}
}

func TestCancelOnError(t *testing.T) {
	t.Parallel()
	sup := NewSupervisor(context.Background(), WithCancelOnError(true))
	sup.Go("fails", func(ctx context.Context) error { return errors.New("fatal") })
	sup.Go("waits", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := sup.Wait(waitCtx(t)); err == nil {
		t.Fatal("expected error")
	}
	if len(sup.Errs()) != 1 {
		t.Fatalf("context.Canceled should not be recorded: %v", sup.Errs())
	}
}

func TestSnapshotCounters(t *testing.T) {
	t.Parallel()
	sup := NewSupervisor(context.Background())
	for i := 0; i < 3; i++ {
		sup.Go("worker", func(ctx context.Context) error { return nil })
	}
	sup.Go0("other", func(ctx context.Context) {})
	if err := sup.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	snap := sup.Snapshot()
	if snap.Counters.Started != 4 || snap.Counters.Active != 0 {
		t.Fatalf("counters = %+v, want started=4 active=0", snap.Counters)
	}
	if len(snap.Goroutines) != 2 || snap.Goroutines[1].Name != "worker" || snap.Goroutines[1].Started != 3 {
		t.Fatalf("unexpected goroutine stats: %+v", snap.Goroutines)
	}
}

func TestGoRestart(t *testing.T) {
	t.Parallel()
	sup := NewSupervisor(context.Background())
	var runs atomic.Int32
	sup.GoRestart("flaky", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	if err := sup.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
}

func TestGoRestartGivesUp(t *testing.T) {
	t.Parallel()
	sup := NewSupervisor(context.Background())
	var runs atomic.Int32
	sup.GoRestart("broken", func(ctx context.Context) error {
		runs.Add(1)
		panic("always")
	}, WithRestartBackoff(time.Millisecond, time.Millisecond), WithMaxRestarts(2))

	err := sup.Wait(waitCtx(t))
	if err == nil || !strings.Contains(err.Error(), "gave up after 2 restarts") {
		t.Fatalf("err = %v, want give-up error", err)
	}
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()
	sup := NewSupervisor(context.Background())
	release := make(chan struct{})
	sup.Go("blocked", func(ctx context.Context) error {
		<-release
		return nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := sup.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait err = %v, want deadline exceeded", err)
	}
	close(release)
	if err := sup.Stop(waitCtx(t)); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
