// Package broker implements the bounded FIFO hand-off between producers and
// senders, including the shutdown protocol that lets every consumer drain the
// remaining batches and then exit.
package broker

import (
	"context"
	"errors"
	"sync"

	"msgsim/internal/message"
)

var (
	// ErrClosed is returned by Put once Shutdown has been called.
	ErrClosed = errors.New("broker closed")
	// ErrInvalidCapacity is returned by New for a capacity below 1.
	ErrInvalidCapacity = errors.New("broker capacity must be >= 1")
)

// State is the broker shutdown state. Transitions are monotonic:
// Open -> ShuttingDown -> Drained.
type State int

const (
	StateOpen State = iota
	StateShuttingDown
	StateDrained
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateShuttingDown:
		return "shutting-down"
	case StateDrained:
		return "drained"
	default:
		return "unknown"
	}
}

// Counters is a diagnostic view of broker traffic.
type Counters struct {
	Accepted  uint64 `json:"accepted"`
	Delivered uint64 `json:"delivered"`
	HighWater int    `json:"high_water"`
}

// Broker is a bounded FIFO queue of batches.
//
// Waiters park on a "changed" channel that is closed and replaced on every
// state change (a broadcast), so blocked Put/Get calls can also honor ctx.
type Broker struct {
	mu    sync.Mutex
	state State

	// ring buffer
	buf  []message.Batch
	head int
	n    int

	notEmpty chan struct{}
	notFull  chan struct{}

	accepted  uint64
	delivered uint64
	highWater int
}

// New returns an open broker holding at most capacity batches.
func New(capacity int) (*Broker, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &Broker{
		buf:      make([]message.Batch, capacity),
		notEmpty: make(chan struct{}),
		notFull:  make(chan struct{}),
	}, nil
}

// Put appends batch to the tail, blocking while the queue is full.
//
// It returns ErrClosed if shutdown has been initiated (including while it was
// waiting for space) and ctx.Err() if ctx is done first.
func (b *Broker) Put(ctx context.Context, batch message.Batch) error {
	b.mu.Lock()
	for {
		if b.state != StateOpen {
			b.mu.Unlock()
			return ErrClosed
		}
		if b.n < len(b.buf) {
			b.buf[(b.head+b.n)%len(b.buf)] = batch
			b.n++
			b.accepted++
			if b.n > b.highWater {
				b.highWater = b.n
			}
			b.broadcastLocked(&b.notEmpty)
			b.mu.Unlock()
			return nil
		}

		wait := b.notFull
		b.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		b.mu.Lock()
	}
}

// Get pops the head of the queue, blocking while the queue is empty and open.
//
// ok is false once the broker is shut down and fully drained; that is the
// normal end-of-stream signal, not an error. err is only set when ctx is done
// while waiting.
func (b *Broker) Get(ctx context.Context) (batch message.Batch, ok bool, err error) {
	b.mu.Lock()
	for {
		if b.n > 0 {
			batch = b.buf[b.head]
			b.buf[b.head] = message.Batch{}
			b.head = (b.head + 1) % len(b.buf)
			b.n--
			b.delivered++
			if b.n == 0 && b.state == StateShuttingDown {
				b.state = StateDrained
			}
			b.broadcastLocked(&b.notFull)
			b.mu.Unlock()
			return batch, true, nil
		}
		if b.state != StateOpen {
			b.state = StateDrained
			b.mu.Unlock()
			return message.Batch{}, false, nil
		}

		wait := b.notEmpty
		b.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return message.Batch{}, false, ctx.Err()
		}
		b.mu.Lock()
	}
}

// Shutdown stops admitting new batches and wakes every blocked caller.
// Batches already queued stay available to Get. Calling it again is a no-op.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return
	}
	b.state = StateShuttingDown
	if b.n == 0 {
		b.state = StateDrained
	}
	b.broadcastLocked(&b.notEmpty)
	b.broadcastLocked(&b.notFull)
}

// State returns the current shutdown state.
func (b *Broker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Len returns the number of queued batches.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// Cap returns the configured capacity.
func (b *Broker) Cap() int { return len(b.buf) }

// Counters returns accepted/delivered totals and the queue high-water mark.
func (b *Broker) Counters() Counters {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Counters{Accepted: b.accepted, Delivered: b.delivered, HighWater: b.highWater}
}

func (b *Broker) broadcastLocked(ch *chan struct{}) {
	close(*ch)
	*ch = make(chan struct{})
}
