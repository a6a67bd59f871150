package app

import (
	"errors"
	"time"

	"msgsim/internal/broker"
	"msgsim/internal/config"
	rtsup "msgsim/internal/runtime/supervisor"
	"msgsim/internal/stats"
	"msgsim/internal/storage"
)

// Summary describes a finished run.
type Summary struct {
	RunID      string
	Settings   config.Simulation
	StartedAt  time.Time
	FinishedAt time.Time

	Stats  stats.Snapshot
	Broker broker.Counters

	Producers rtsup.SupervisorSnapshot
	Senders   rtsup.SupervisorSnapshot

	// Errors holds every task failure, in the order observed.
	Errors []error
}

func (s Summary) Elapsed() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Err joins all task errors (nil if the run was clean).
func (s Summary) Err() error { return errors.Join(s.Errors...) }

// Throughput is finished messages per second over the whole run.
func (s Summary) Throughput() float64 { return s.Stats.Throughput(s.Elapsed()) }

// Record converts the summary into a run-history entry.
func (s Summary) Record() storage.RunRecord {
	r := storage.RunRecord{
		ID:           s.RunID,
		StartedAt:    s.StartedAt,
		FinishedAt:   s.FinishedAt,
		Producers:    s.Settings.ProducerCount,
		Senders:      s.Settings.SenderCount,
		BatchSize:    s.Settings.BatchSize,
		Capacity:     s.Settings.MaxQueuedBatches,
		MessageCount: s.Settings.MessageCount,
		Produced:     s.Stats.Produced,
		Dequeued:     s.Stats.Dequeued,
		Sent:         s.Stats.Sent,
		Failed:       s.Stats.Failed,
		SendTimeMS:   s.Stats.SendTime.Milliseconds(),
		Throughput:   s.Throughput(),
		HighWater:    s.Broker.HighWater,
		Errors:       len(s.Errors),
	}
	if err := s.Err(); err != nil {
		r.Error = err.Error()
	}
	return r
}
