// Package monitor periodically samples the stats aggregator and hands a
// formatted report to a Reporter.
//
// The monitor has no notion of "run finished"; it keeps ticking until its
// context is cancelled.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"msgsim/internal/stats"
	logx "msgsim/pkg/logx"
)

// Source is the read side of the aggregator.
type Source interface {
	Snapshot() stats.Snapshot
}

// Config controls when the monitor ticks.
//
// If Schedule is set it is parsed as a cron expression (seconds field
// optional, descriptors like "@every 5s" allowed); otherwise the monitor
// ticks every Every.
type Config struct {
	Every    time.Duration
	Schedule string
}

// interval is a cron.Schedule with sub-second precision
// (cron.Every truncates to whole seconds).
type interval time.Duration

func (i interval) Next(t time.Time) time.Time { return t.Add(time.Duration(i)) }

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule resolves cfg into a cron.Schedule.
func ParseSchedule(cfg Config) (cron.Schedule, error) {
	if expr := strings.TrimSpace(cfg.Schedule); expr != "" {
		s, err := parser.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("monitor schedule %q: %w", expr, err)
		}
		return s, nil
	}
	if cfg.Every <= 0 {
		return nil, fmt.Errorf("monitor interval must be > 0 (got %s)", cfg.Every)
	}
	return interval(cfg.Every), nil
}

type Monitor struct {
	src   Source
	rep   Reporter
	sched cron.Schedule
	log   logx.Logger
	now   func() time.Time

	mu           sync.Mutex
	start        time.Time
	lastTime     time.Time
	lastFinished uint64
}

type Option func(*Monitor)

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithStart sets the baseline start time (defaults to now at construction).
func WithStart(t time.Time) Option {
	return func(m *Monitor) { m.start, m.lastTime = t, t }
}

func New(cfg Config, src Source, rep Reporter, log logx.Logger, opts ...Option) (*Monitor, error) {
	sched, err := ParseSchedule(cfg)
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Monitor{src: src, rep: rep, sched: sched, log: log, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	if m.start.IsZero() {
		t := m.now()
		m.start, m.lastTime = t, t
	}
	return m, nil
}

// Run ticks on the schedule until ctx is done. It always returns nil;
// reporter errors are logged and the loop continues.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Debug("monitor started")
	for {
		now := m.now()
		next := m.sched.Next(now)
		wait := next.Sub(now)
		if wait < 0 {
			wait = 0
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			m.log.Debug("monitor stopped")
			return nil
		case <-t.C:
		}
		if err := m.rep.Report(m.Sample(m.now())); err != nil {
			m.log.Warn("report failed", logx.Err(err))
		}
	}
}

// Sample builds a report for now and advances the recent-window baseline.
func (m *Monitor) Sample(now time.Time) Report {
	snap := m.src.Snapshot()

	m.mu.Lock()
	defer m.mu.Unlock()

	finished := snap.Finished()
	r := Report{
		Stats:         snap,
		Elapsed:       now.Sub(m.start),
		RecentElapsed: now.Sub(m.lastTime),
	}
	if finished >= m.lastFinished {
		r.RecentFinished = finished - m.lastFinished
	}
	m.lastTime = now
	m.lastFinished = finished
	return r
}

// Final emits one last report marked Final, outside the schedule.
func (m *Monitor) Final() error {
	r := m.Sample(m.now())
	r.Final = true
	return m.rep.Report(r)
}
