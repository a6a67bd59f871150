package monitor

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"msgsim/internal/stats"
	logx "msgsim/pkg/logx"
)

// Report is one monitor sample: a stats snapshot plus the timing needed to
// derive overall and recent throughput.
type Report struct {
	Stats          stats.Snapshot
	Elapsed        time.Duration // since the monitor started
	RecentElapsed  time.Duration // since the previous sample
	RecentFinished uint64        // finished sends since the previous sample
	Final          bool
}

// Throughput returns finished messages per second since start.
func (r Report) Throughput() float64 { return r.Stats.Throughput(r.Elapsed) }

// RecentThroughput returns finished messages per second since the previous sample.
func (r Report) RecentThroughput() float64 {
	if r.RecentElapsed <= 0 {
		return 0
	}
	return float64(r.RecentFinished) / r.RecentElapsed.Seconds()
}

// String renders the human-readable block printed on every tick.
func (r Report) String() string {
	s := r.Stats
	failure := "n/a"
	if pct, ok := s.FailureRatePct(); ok {
		failure = fmt.Sprintf("%.1f%%", pct)
	}

	var b strings.Builder
	b.WriteString("\n")
	fmt.Fprintf(&b, "Total Produced: %d\n", s.Produced)
	fmt.Fprintf(&b, "Enqueued: %d\n", s.Enqueued())
	fmt.Fprintf(&b, "Processing: %d\n", s.Processing())
	fmt.Fprintf(&b, "Finished: %d\n", s.Finished())
	fmt.Fprintf(&b, "Failures: %d sent, %d failed. %s failure rate.\n", s.Sent, s.Failed, failure)
	fmt.Fprintf(&b, "Throughput: %.1f msgs/s overall, %.1f msgs/s recently.\n", r.Throughput(), r.RecentThroughput())
	fmt.Fprintf(&b, "Latency: %.3f s/msg.\n", s.AverageLatency().Seconds())
	fmt.Fprintf(&b, "Elapsed: %.1f s total run time.\n", r.Elapsed.Seconds())
	return b.String()
}

// Reporter consumes monitor samples.
type Reporter interface {
	Report(r Report) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(r Report) error

func (f ReporterFunc) Report(r Report) error { return f(r) }

// TextReporter prints the report block to W and emits a structured log line.
type TextReporter struct {
	mu  sync.Mutex
	W   io.Writer
	Log logx.Logger
}

func (t *TextReporter) Report(r Report) error {
	if !t.Log.IsZero() {
		fields := []logx.Field{
			logx.Uint64("produced", r.Stats.Produced),
			logx.Uint64("dequeued", r.Stats.Dequeued),
			logx.Uint64("sent", r.Stats.Sent),
			logx.Uint64("failed", r.Stats.Failed),
			logx.Float64("tput", r.Throughput()),
			logx.Float64("recent_tput", r.RecentThroughput()),
			logx.Duration("avg_latency", r.Stats.AverageLatency()),
			logx.Duration("elapsed", r.Elapsed),
		}
		if r.Final {
			t.Log.Info("final stats", fields...)
		} else {
			t.Log.Debug("stats", fields...)
		}
	}
	if t.W == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := io.WriteString(t.W, r.String())
	return err
}
