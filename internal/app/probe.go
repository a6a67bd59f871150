package app

import (
	"context"
	"fmt"
	"time"

	"msgsim/internal/monitor"
	logx "msgsim/pkg/logx"
)

// ProbeStep is the outcome of one scalability probe run.
type ProbeStep struct {
	Senders  int
	Messages int
	Elapsed  time.Duration
	Finished uint64

	// Throughput is finished messages per second; PerSender divides it by Senders.
	Throughput float64
	PerSender  float64
}

// Probe runs the pipeline repeatedly, doubling the sender count from 1 up
// to maxSenders. Each step sends ten messages per sender through a queue
// sized to the sender count, with failures disabled. Monitor output is
// suppressed; each step is logged instead.
func (a *App) Probe(ctx context.Context, maxSenders int) ([]ProbeStep, error) {
	if maxSenders <= 0 {
		return nil, fmt.Errorf("probe: max senders must be > 0, got %d", maxSenders)
	}
	quiet := monitor.ReporterFunc(func(monitor.Report) error { return nil })

	var steps []ProbeStep
	for n := 1; n <= maxSenders; n *= 2 {
		if err := ctx.Err(); err != nil {
			return steps, err
		}
		sim := a.cfg.Simulation()
		sim.SenderCount = n
		sim.MessageCount = n * 10
		sim.MaxQueuedBatches = n
		sim.BatchSize = 1
		sim.ProducerCount = 1
		sim.SendFailureRate = 0

		p, err := a.newPipeline(sim, quiet)
		if err != nil {
			return steps, err
		}
		sum, err := p.Run(ctx)
		a.record(ctx, sum)
		if err != nil {
			return steps, fmt.Errorf("probe %d senders: %w", n, err)
		}

		step := ProbeStep{
			Senders:    n,
			Messages:   sim.MessageCount,
			Elapsed:    sum.Elapsed(),
			Finished:   sum.Stats.Finished(),
			Throughput: sum.Throughput(),
		}
		step.PerSender = step.Throughput / float64(n)
		steps = append(steps, step)
		a.log.Info("probe step",
			logx.Int("senders", n),
			logx.Int("messages", step.Messages),
			logx.Duration("elapsed", step.Elapsed),
			logx.Float64("msgs_per_sec", step.Throughput),
			logx.Float64("msgs_per_sec_per_sender", step.PerSender),
		)
	}
	return steps, nil
}
