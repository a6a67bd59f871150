package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled      = errors.New("storage disabled")
	ErrClosed        = errors.New("storage closed")
	ErrUnknownDriver = errors.New("unknown storage driver")
)

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord summarizes one finished run.
// Keep it compact and schema-stable.
type RunRecord struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Producers    int `json:"producers"`
	Senders      int `json:"senders"`
	BatchSize    int `json:"batch_size"`
	Capacity     int `json:"capacity"`
	MessageCount int `json:"message_count"`

	Produced   uint64 `json:"produced"`
	Dequeued   uint64 `json:"dequeued"`
	Sent       uint64 `json:"sent"`
	Failed     uint64 `json:"failed"`
	SendTimeMS int64  `json:"send_time_ms"`

	Throughput float64 `json:"throughput"` // finished messages per second
	HighWater  int     `json:"high_water"` // deepest observed queue length
	Errors     int     `json:"errors"`
	Error      string  `json:"error,omitempty"`
}

// Elapsed is the wall-clock duration of the run.
func (r RunRecord) Elapsed() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }
