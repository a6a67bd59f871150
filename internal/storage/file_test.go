package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	logx "msgsim/pkg/logx"
)

func openTestStore(t *testing.T) (Store, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "history")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st, filepath.Join(dir, "history.runs.jsonl")
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if st != nil || err != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("err = %v, want ErrUnknownDriver", err)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	st, _ := openTestStore(t)
	ctx := context.Background()

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	want := RunRecord{
		ID:           "run-1",
		StartedAt:    start,
		FinishedAt:   start.Add(3 * time.Second),
		Producers:    2,
		Senders:      8,
		BatchSize:    10,
		Capacity:     4,
		MessageCount: 100,
		Produced:     100,
		Dequeued:     100,
		Sent:         95,
		Failed:       5,
		SendTimeMS:   1200,
		Throughput:   33.3,
		HighWater:    4,
	}
	if err := st.AppendRun(ctx, want); err != nil {
		t.Fatalf("AppendRun: %v", err)
	}

	got, err := st.RecentRuns(ctx, 0)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	if !got[0].StartedAt.Equal(want.StartedAt) || got[0].Elapsed() != 3*time.Second {
		t.Fatalf("times = %v..%v", got[0].StartedAt, got[0].FinishedAt)
	}
	got[0].StartedAt, got[0].FinishedAt = want.StartedAt, want.FinishedAt
	if got[0] != want {
		t.Fatalf("got %+v, want %+v", got[0], want)
	}
}

func TestFileStoreRecentOrderAndLimit(t *testing.T) {
	t.Parallel()
	st, path := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		if err := st.AppendRun(ctx, RunRecord{ID: id}); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}
	// A torn line must not hide the rest of the history.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = f.WriteString("{\"id\":\"tor\n")
	_ = f.Close()
	if err := st.AppendRun(ctx, RunRecord{ID: "e"}); err != nil {
		t.Fatalf("AppendRun: %v", err)
	}

	got, err := st.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(got) != 2 || got[0].ID != "e" || got[1].ID != "d" {
		t.Fatalf("got %+v, want [e d]", got)
	}
	all, err := st.RecentRuns(ctx, 0)
	if err != nil || len(all) != 5 {
		t.Fatalf("RecentRuns(0) = %d records, %v; want 5", len(all), err)
	}
}

func TestFileStoreConcurrentAppends(t *testing.T) {
	t.Parallel()
	st, _ := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := st.AppendRun(ctx, RunRecord{ID: "x", Error: "some longer text to widen the line"}); err != nil {
				t.Errorf("AppendRun: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := st.RecentRuns(ctx, 0)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(got) != 50 {
		t.Fatalf("got %d records, want 50", len(got))
	}
}

func TestFileStoreClosed(t *testing.T) {
	t.Parallel()
	st, _ := openTestStore(t)
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := st.AppendRun(context.Background(), RunRecord{ID: "late"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}
