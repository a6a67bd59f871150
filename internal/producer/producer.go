// Package producer generates message batches and pushes them into the broker.
package producer

import (
	"context"
	"fmt"

	"msgsim/internal/message"
	logx "msgsim/pkg/logx"
)

// Queue is the part of the broker a producer needs.
type Queue interface {
	Put(ctx context.Context, batch message.Batch) error
}

// Recorder receives produced-message counts.
type Recorder interface {
	LogProduced(n int)
}

// Producer owns a message generator and feeds one broker.
type Producer struct {
	queue Queue
	stats Recorder
	gen   *message.Generator
	log   logx.Logger
}

func New(queue Queue, stats Recorder, gen *message.Generator, log logx.Logger) *Producer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Producer{queue: queue, stats: stats, gen: gen, log: log}
}

// SendMultipleBatches generates batchCount batches of batchSize messages and
// enqueues each one, blocking whenever the broker is full.
//
// LogProduced is called with the batch size only after the broker accepted it.
// The first Put error (e.g. broker.ErrClosed) ends this producer.
func (p *Producer) SendMultipleBatches(ctx context.Context, batchCount, batchSize int) error {
	if batchSize <= 0 {
		return fmt.Errorf("batch size must be > 0 (got %d)", batchSize)
	}
	for i := 0; i < batchCount; i++ {
		batch := p.gen.Batch(batchSize)
		if err := p.queue.Put(ctx, batch); err != nil {
			return fmt.Errorf("put batch %d/%d: %w", i+1, batchCount, err)
		}
		p.stats.LogProduced(batch.Len())
		p.log.Trace("batch enqueued", logx.String("batch", batch.ID), logx.Int("size", batch.Len()))
	}
	p.log.Debug("producer finished", logx.Int("batches", batchCount), logx.Int("batch_size", batchSize))
	return nil
}

// BatchesPerProducer returns ceil(messageCount / batchSize / producerCount).
//
// The result may over-produce relative to messageCount when the division is
// not exact; that slack is intentional.
func BatchesPerProducer(messageCount, batchSize, producerCount int) int {
	if messageCount <= 0 || batchSize <= 0 || producerCount <= 0 {
		return 0
	}
	per := batchSize * producerCount
	return (messageCount + per - 1) / per
}
