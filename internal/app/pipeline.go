package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"msgsim/internal/broker"
	"msgsim/internal/config"
	"msgsim/internal/eventbus"
	"msgsim/internal/message"
	"msgsim/internal/monitor"
	"msgsim/internal/producer"
	rtsup "msgsim/internal/runtime/supervisor"
	"msgsim/internal/sender"
	"msgsim/internal/stats"
	logx "msgsim/pkg/logx"
)

// ErrAlreadyRun is returned when a pipeline is run twice.
var ErrAlreadyRun = errors.New("pipeline already run")

// State is the lifecycle of one run.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Deps are the collaborators of a pipeline. Zero values get defaults.
type Deps struct {
	Log      logx.Logger
	Bus      eventbus.Bus
	Reporter monitor.Reporter // default: text to Stdout
	Stdout   io.Writer
	Seed     int64 // 0 means time-based

	// SenderOptions are appended to every sender's options (tests).
	SenderOptions []sender.Option
}

// Pipeline is one simulation run: producers feed a shared broker, senders
// drain it, and a monitor reports progress.
type Pipeline struct {
	id    string
	sim   config.Simulation
	log   logx.Logger
	bus   eventbus.Bus
	rep   monitor.Reporter
	seed  int64
	sopts []sender.Option

	stats  *stats.Aggregator
	broker *broker.Broker

	state        atomic.Int32
	started      atomic.Bool
	shutdownOnce sync.Once
}

func NewPipeline(sim config.Simulation, deps Deps) (*Pipeline, error) {
	b, err := broker.New(sim.MaxQueuedBatches)
	if err != nil {
		return nil, fmt.Errorf("%w: broker.max_queued_batches: %v", config.ErrInvalid, err)
	}
	if sim.ProducerCount <= 0 || sim.SenderCount <= 0 || sim.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: producer, sender and batch counts must be > 0", config.ErrInvalid)
	}
	if _, err := monitor.ParseSchedule(monitorConfig(sim)); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	bus := deps.Bus
	if bus == nil {
		bus = eventbus.New()
	}
	id := uuid.NewString()
	log = log.With(logx.String("run", id))

	rep := deps.Reporter
	if rep == nil {
		w := deps.Stdout
		if w == nil {
			w = os.Stdout
		}
		rep = &monitor.TextReporter{W: w, Log: log.With(logx.String("comp", "monitor"))}
	}
	seed := deps.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Pipeline{
		id:     id,
		sim:    sim,
		log:    log,
		bus:    bus,
		rep:    rep,
		seed:   seed,
		sopts:  deps.SenderOptions,
		stats:  stats.New(),
		broker: b,
	}, nil
}

func (p *Pipeline) ID() string { return p.id }

func (p *Pipeline) Stats() *stats.Aggregator { return p.stats }

func (p *Pipeline) Broker() *broker.Broker { return p.broker }

func (p *Pipeline) State() State { return State(p.state.Load()) }

func (p *Pipeline) Settings() config.Simulation { return p.sim }

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
	p.bus.Publish(eventbus.Event{Type: eventbus.TypeRunState, Data: s.String()})
	p.log.Debug("run state", logx.String("state", s.String()))
}

// shutdownBroker closes the broker exactly once.
func (p *Pipeline) shutdownBroker() {
	p.shutdownOnce.Do(func() {
		p.broker.Shutdown()
		p.bus.Publish(eventbus.Event{Type: eventbus.TypeBrokerClosed})
		p.log.Debug("broker shut down", logx.Int("queued", p.broker.Len()))
	})
}

func monitorConfig(sim config.Simulation) monitor.Config {
	return monitor.Config{Every: sim.PrintFrequency, Schedule: sim.MonitorSchedule}
}

// Run executes the pipeline to completion. Task failures never cancel
// siblings; every failure is collected into the returned error. Cancelling
// ctx unblocks waiting producers and senders.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	if !p.started.CompareAndSwap(false, true) {
		return Summary{}, ErrAlreadyRun
	}

	sum := Summary{RunID: p.id, Settings: p.sim, StartedAt: time.Now()}
	p.log.Info("run started",
		logx.Int("messages", p.sim.MessageCount),
		logx.Int("producers", p.sim.ProducerCount),
		logx.Int("senders", p.sim.SenderCount),
		logx.Int("batch_size", p.sim.BatchSize),
		logx.Int("capacity", p.sim.MaxQueuedBatches),
	)

	mon, err := monitor.New(monitorConfig(p.sim), p.stats, p.rep, p.log.With(logx.String("comp", "monitor")),
		monitor.WithStart(sum.StartedAt))
	if err != nil {
		return sum, err
	}
	monSup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(p.log.With(logx.String("comp", "monitor"))))
	monSup.GoRestart("monitor", mon.Run, rtsup.WithRestartBackoff(100*time.Millisecond, 5*time.Second))

	p.setState(StateRunning)

	senders := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(p.log.With(logx.String("comp", "senders"))),
		rtsup.WithCancelOnError(false),
	)
	limiter := sender.NewLimiter(p.sim.SendRatePerSec)
	scfg := sender.Config{
		SendTimeMean:   p.sim.SendTimeMean,
		SendTimeStdDev: p.sim.SendTimeStdDev,
		FailureRate:    p.sim.SendFailureRate,
	}
	for i := 0; i < p.sim.SenderCount; i++ {
		opts := append([]sender.Option{sender.WithLimiter(limiter), sender.WithSeed(p.seed + int64(i))}, p.sopts...)
		s := sender.New(scfg, p.broker, p.stats, p.log.With(logx.String("comp", "sender")), opts...)
		name := fmt.Sprintf("sender-%d", i)
		senders.Go("sender", p.task(eventbus.TypeSenderDone, name, s.ConsumeMessages))
	}

	producers := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(p.log.With(logx.String("comp", "producers"))),
		rtsup.WithCancelOnError(false),
	)
	batchCount := producer.BatchesPerProducer(p.sim.MessageCount, p.sim.BatchSize, p.sim.ProducerCount)
	for i := 0; i < p.sim.ProducerCount; i++ {
		gen := message.NewGenerator(p.seed-int64(i+1), p.sim.MessageLengthMin, p.sim.MessageLengthMax)
		pr := producer.New(p.broker, p.stats, gen, p.log.With(logx.String("comp", "producer")))
		name := fmt.Sprintf("producer-%d", i)
		producers.Go("producer", p.task(eventbus.TypeProducerDone, name, func(ctx context.Context) error {
			return pr.SendMultipleBatches(ctx, batchCount, p.sim.BatchSize)
		}))
	}

	<-producers.Done()
	p.shutdownBroker()
	p.setState(StateDraining)

	<-senders.Done()

	monSup.Cancel()
	<-monSup.Done()
	if err := mon.Final(); err != nil {
		p.log.Warn("final report failed", logx.Err(err))
	}

	sum.FinishedAt = time.Now()
	sum.Stats = p.stats.Snapshot()
	sum.Broker = p.broker.Counters()
	sum.Producers = producers.Snapshot()
	sum.Senders = senders.Snapshot()
	sum.Errors = append(producers.Errs(), senders.Errs()...)
	if ctx.Err() != nil {
		sum.Errors = append(sum.Errors, fmt.Errorf("run interrupted: %w", context.Cause(ctx)))
	}

	p.setState(StateDone)
	p.log.Info("run finished",
		logx.Duration("elapsed", sum.Elapsed()),
		logx.Uint64("sent", sum.Stats.Sent),
		logx.Uint64("failed", sum.Stats.Failed),
		logx.Int("errors", len(sum.Errors)),
	)
	return sum, sum.Err()
}

// task wraps fn so its completion is published on the bus.
func (p *Pipeline) task(typ, name string, fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) (err error) {
		defer func() {
			done := eventbus.TaskDone{Name: name}
			if err != nil {
				done.Err = err.Error()
				err = fmt.Errorf("%s: %w", name, err)
			}
			p.bus.Publish(eventbus.Event{Type: typ, Data: done})
		}()
		return fn(ctx)
	}
}
