// Package sender drains the broker and simulates delivering each message.
package sender

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"msgsim/internal/message"
	logx "msgsim/pkg/logx"
)

// Result is the modeled outcome of one send. A failed send is a normal
// result, not an error.
type Result int

const (
	ResultSuccess Result = iota
	ResultFailure
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultFailure:
		return "failure"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Source is the part of the broker a sender needs.
type Source interface {
	Get(ctx context.Context) (message.Batch, bool, error)
}

// Recorder receives dequeue and send outcomes.
type Recorder interface {
	LogDequeued(n int)
	LogSent(d time.Duration)
	LogFailed(d time.Duration)
}

// Config is the latency/failure model shared by all senders of a run.
type Config struct {
	SendTimeMean   time.Duration
	SendTimeStdDev time.Duration
	FailureRate    float64 // probability in [0,1]
}

// Sender consumes batches until the broker reports end of stream.
// Each Sender owns its RNG; do not share one Sender between goroutines.
type Sender struct {
	cfg     Config
	src     Source
	stats   Recorder
	limiter *rate.Limiter
	rng     *rand.Rand
	log     logx.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Sender)

// WithLimiter shares a global send-rate limiter between senders.
// A nil limiter means unlimited.
func WithLimiter(l *rate.Limiter) Option { return func(s *Sender) { s.limiter = l } }

// WithSeed fixes the RNG seed (tests).
func WithSeed(seed int64) Option {
	return func(s *Sender) { s.rng = rand.New(rand.NewSource(seed)) }
}

// WithSleep replaces the latency wait (tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Sender) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

func New(cfg Config, src Source, stats Recorder, log logx.Logger, opts ...Option) *Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Sender{
		cfg:   cfg,
		src:   src,
		stats: stats,
		log:   log,
		sleep: sleepCtx,
	}
	for _, o := range opts {
		o(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s
}

// ConsumeMessages pulls batches until end of stream and sends every message.
// It returns nil on a clean drain and an error only if ctx ends the loop.
func (s *Sender) ConsumeMessages(ctx context.Context) error {
	for {
		batch, ok, err := s.src.Get(ctx)
		if err != nil {
			return fmt.Errorf("get batch: %w", err)
		}
		if !ok {
			return nil
		}
		s.stats.LogDequeued(batch.Len())
		for _, msg := range batch.Messages {
			if _, err := s.SendMessage(ctx, msg); err != nil {
				return err
			}
		}
	}
}

// SendMessage simulates one delivery: wait a normally distributed latency
// (clamped at zero), then fail with probability FailureRate. Latency is
// charged whether or not the send fails.
func (s *Sender) SendMessage(ctx context.Context, msg message.Message) (Result, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return ResultFailure, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	d := s.drawLatency()
	if err := s.sleep(ctx, d); err != nil {
		return ResultFailure, fmt.Errorf("send to %s: %w", msg.Destination, err)
	}

	if s.rng.Float64() < s.cfg.FailureRate {
		s.stats.LogFailed(d)
		s.log.Trace("send failed", logx.String("to", msg.Destination), logx.Duration("took", d))
		return ResultFailure, nil
	}
	s.stats.LogSent(d)
	return ResultSuccess, nil
}

func (s *Sender) drawLatency() time.Duration {
	v := s.rng.NormFloat64()*float64(s.cfg.SendTimeStdDev) + float64(s.cfg.SendTimeMean)
	if v < 0 {
		return 0
	}
	return time.Duration(v)
}

// NewLimiter builds the shared limiter for perSec sends per second.
// It returns nil (unlimited) for perSec <= 0.
func NewLimiter(perSec float64) *rate.Limiter {
	if perSec <= 0 {
		return nil
	}
	burst := int(perSec)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSec), burst)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
