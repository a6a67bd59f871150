// Package stats aggregates pipeline counters shared by producers, senders
// and the monitor.
package stats

import (
	"sync"
	"time"
)

// Snapshot is a consistent, immutable copy of the aggregator counters.
//
// Derived metrics are computed from a snapshot on demand and never stored.
type Snapshot struct {
	Produced uint64        `json:"produced"`
	Dequeued uint64        `json:"dequeued"`
	Sent     uint64        `json:"sent"`
	Failed   uint64        `json:"failed"`
	SendTime time.Duration `json:"send_time"`
}

// Finished is the number of send attempts that completed, successful or not.
func (s Snapshot) Finished() uint64 { return s.Sent + s.Failed }

// Enqueued is the number of produced messages still waiting in the broker.
func (s Snapshot) Enqueued() uint64 {
	if s.Dequeued > s.Produced {
		return 0
	}
	return s.Produced - s.Dequeued
}

// Processing is the number of dequeued messages whose send has not finished.
func (s Snapshot) Processing() uint64 {
	f := s.Finished()
	if f > s.Dequeued {
		return 0
	}
	return s.Dequeued - f
}

// AverageLatency is SendTime / Finished, or 0 when nothing has finished.
func (s Snapshot) AverageLatency() time.Duration {
	f := s.Finished()
	if f == 0 {
		return 0
	}
	return time.Duration(int64(s.SendTime) / int64(f))
}

// FailureRatePct returns 100*Failed/Finished. ok is false when nothing has finished.
func (s Snapshot) FailureRatePct() (pct float64, ok bool) {
	f := s.Finished()
	if f == 0 {
		return 0, false
	}
	return 100 * float64(s.Failed) / float64(f), true
}

// Throughput returns finished messages per second over elapsed.
func (s Snapshot) Throughput(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(s.Finished()) / elapsed.Seconds()
}

// Aggregator is the single owner of the run counters.
//
// All methods are safe for concurrent use. Counters only grow; create a new
// Aggregator to start over.
type Aggregator struct {
	mu   sync.Mutex
	snap Snapshot
}

func New() *Aggregator { return &Aggregator{} }

// LogProduced records n messages handed to the broker.
func (a *Aggregator) LogProduced(n int) {
	if n <= 0 {
		return
	}
	a.mu.Lock()
	a.snap.Produced += uint64(n)
	a.mu.Unlock()
}

// LogDequeued records n messages taken off the broker by a sender.
func (a *Aggregator) LogDequeued(n int) {
	if n <= 0 {
		return
	}
	a.mu.Lock()
	a.snap.Dequeued += uint64(n)
	a.mu.Unlock()
}

// LogSent records one successful send that took d.
func (a *Aggregator) LogSent(d time.Duration) {
	if d < 0 {
		d = 0
	}
	a.mu.Lock()
	a.snap.Sent++
	a.snap.SendTime += d
	a.mu.Unlock()
}

// LogFailed records one failed send that took d.
func (a *Aggregator) LogFailed(d time.Duration) {
	if d < 0 {
		d = 0
	}
	a.mu.Lock()
	a.snap.Failed++
	a.snap.SendTime += d
	a.mu.Unlock()
}

// Snapshot returns a copy of all counters taken under the same lock.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap
}
