package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"msgsim/internal/broker"
	"msgsim/internal/stats"
	logx "msgsim/pkg/logx"
)

type fakeQueue struct{}

func (fakeQueue) Len() int { return 3 }
func (fakeQueue) Cap() int { return 8 }
func (fakeQueue) Counters() broker.Counters {
	return broker.Counters{Accepted: 10, Delivered: 7, HighWater: 5}
}

func seededAggregator() *stats.Aggregator {
	agg := stats.New()
	agg.LogProduced(100)
	agg.LogDequeued(25)
	for i := 0; i < 10; i++ {
		agg.LogSent(time.Second)
	}
	agg.LogFailed(2 * time.Second)
	return agg
}

func TestCollectorExposesSnapshot(t *testing.T) {
	t.Parallel()
	c := NewCollector()
	if n := testutil.CollectAndCount(c); n != 0 {
		t.Fatalf("unattached collector emitted %d metrics, want 0", n)
	}

	c.Attach(seededAggregator(), fakeQueue{})
	const want = `
# HELP msgsim_messages_failed_total Messages whose simulated send failed.
# TYPE msgsim_messages_failed_total counter
msgsim_messages_failed_total 1
# HELP msgsim_messages_processing Messages dequeued but not yet finished.
# TYPE msgsim_messages_processing gauge
msgsim_messages_processing 14
# HELP msgsim_messages_produced_total Messages handed to the broker by producers.
# TYPE msgsim_messages_produced_total counter
msgsim_messages_produced_total 100
# HELP msgsim_messages_sent_total Messages whose simulated send succeeded.
# TYPE msgsim_messages_sent_total counter
msgsim_messages_sent_total 10
# HELP msgsim_queue_high_water_batches Deepest observed broker queue.
# TYPE msgsim_queue_high_water_batches gauge
msgsim_queue_high_water_batches 5
# HELP msgsim_send_time_seconds_total Cumulative simulated send latency.
# TYPE msgsim_send_time_seconds_total counter
msgsim_send_time_seconds_total 12
`
	err := testutil.CollectAndCompare(c, strings.NewReader(want),
		"msgsim_messages_failed_total",
		"msgsim_messages_processing",
		"msgsim_messages_produced_total",
		"msgsim_messages_sent_total",
		"msgsim_queue_high_water_batches",
		"msgsim_send_time_seconds_total",
	)
	if err != nil {
		t.Fatalf("CollectAndCompare: %v", err)
	}
	if n := testutil.CollectAndCount(c); n != 12 {
		t.Fatalf("got %d metrics, want 12", n)
	}
}

func TestCollectorWithoutQueue(t *testing.T) {
	t.Parallel()
	c := NewCollector()
	c.Attach(seededAggregator(), nil)
	if n := testutil.CollectAndCount(c); n != 7 {
		t.Fatalf("got %d metrics, want 7", n)
	}
}

func TestServerServesMetrics(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.Collector.Attach(seededAggregator(), fakeQueue{})
	srv := NewServer(ServerConfig{Addr: "127.0.0.1:0"}, reg, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("Run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server not ready")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	for _, want := range []string{"msgsim_messages_produced_total 100", "msgsim_queue_batches 3", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("body missing %q", want)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerPprofMount(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		pprof bool
		want  int
	}{
		{name: "disabled", pprof: false, want: http.StatusNotFound},
		{name: "enabled", pprof: true, want: http.StatusOK},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := NewServer(ServerConfig{Addr: "127.0.0.1:0", Pprof: tt.pprof}, NewRegistry(), logx.Nop())
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go func() { _ = srv.Run(ctx) }()
			select {
			case <-srv.Ready():
			case <-time.After(5 * time.Second):
				t.Fatal("server not ready")
			}

			resp, err := http.Get("http://" + srv.Addr() + "/debug/pprof/")
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			_ = resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"127.0.0.1:9108": true,
		"localhost:9108": true,
		"[::1]:9108":     true,
		":9108":          false,
		"0.0.0.0:9108":   false,
		"bad":            false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
