// Package metrics exposes run statistics in the Prometheus text format.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"msgsim/internal/broker"
	"msgsim/internal/stats"
)

const namespace = "msgsim"

// StatsSource is satisfied by *stats.Aggregator.
type StatsSource interface {
	Snapshot() stats.Snapshot
}

// QueueSource is satisfied by *broker.Broker.
type QueueSource interface {
	Len() int
	Cap() int
	Counters() broker.Counters
}

type sources struct {
	stats StatsSource
	queue QueueSource
}

// Collector reads the current run's aggregator and broker at scrape time.
// Attach switches it to a new run; before the first Attach it reports
// nothing.
type Collector struct {
	cur atomic.Pointer[sources]

	produced  *prometheus.Desc
	dequeued  *prometheus.Desc
	sent      *prometheus.Desc
	failed    *prometheus.Desc
	sendTime  *prometheus.Desc
	enqueued  *prometheus.Desc
	inflight  *prometheus.Desc
	queueLen  *prometheus.Desc
	queueCap  *prometheus.Desc
	highWater *prometheus.Desc
	accepted  *prometheus.Desc
	delivered *prometheus.Desc
}

func NewCollector() *Collector {
	d := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}
	return &Collector{
		produced:  d("messages_produced_total", "Messages handed to the broker by producers."),
		dequeued:  d("messages_dequeued_total", "Messages taken from the broker by senders."),
		sent:      d("messages_sent_total", "Messages whose simulated send succeeded."),
		failed:    d("messages_failed_total", "Messages whose simulated send failed."),
		sendTime:  d("send_time_seconds_total", "Cumulative simulated send latency."),
		enqueued:  d("messages_enqueued", "Messages produced but not yet dequeued."),
		inflight:  d("messages_processing", "Messages dequeued but not yet finished."),
		queueLen:  d("queue_batches", "Batches currently queued in the broker."),
		queueCap:  d("queue_capacity_batches", "Broker capacity in batches."),
		highWater: d("queue_high_water_batches", "Deepest observed broker queue."),
		accepted:  d("batches_accepted_total", "Batches accepted by the broker."),
		delivered: d("batches_delivered_total", "Batches handed to senders."),
	}
}

// Attach points the collector at a run. Either source may be nil.
func (c *Collector) Attach(s StatsSource, q QueueSource) {
	c.cur.Store(&sources{stats: s, queue: q})
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.produced, c.dequeued, c.sent, c.failed, c.sendTime, c.enqueued, c.inflight,
		c.queueLen, c.queueCap, c.highWater, c.accepted, c.delivered,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	cur := c.cur.Load()
	if cur == nil {
		return
	}
	if cur.stats != nil {
		s := cur.stats.Snapshot()
		counter := func(d *prometheus.Desc, v float64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
		}
		gauge := func(d *prometheus.Desc, v float64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
		}
		counter(c.produced, float64(s.Produced))
		counter(c.dequeued, float64(s.Dequeued))
		counter(c.sent, float64(s.Sent))
		counter(c.failed, float64(s.Failed))
		counter(c.sendTime, s.SendTime.Seconds())
		gauge(c.enqueued, float64(s.Enqueued()))
		gauge(c.inflight, float64(s.Processing()))
	}
	if cur.queue != nil {
		k := cur.queue.Counters()
		ch <- prometheus.MustNewConstMetric(c.queueLen, prometheus.GaugeValue, float64(cur.queue.Len()))
		ch <- prometheus.MustNewConstMetric(c.queueCap, prometheus.GaugeValue, float64(cur.queue.Cap()))
		ch <- prometheus.MustNewConstMetric(c.highWater, prometheus.GaugeValue, float64(k.HighWater))
		ch <- prometheus.MustNewConstMetric(c.accepted, prometheus.CounterValue, float64(k.Accepted))
		ch <- prometheus.MustNewConstMetric(c.delivered, prometheus.CounterValue, float64(k.Delivered))
	}
}

// Registry bundles the collector with a private registry.
type Registry struct {
	*prometheus.Registry
	Collector *Collector
}

// NewRegistry returns a registry carrying the run collector and the
// standard Go runtime collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	c := NewCollector()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{Registry: reg, Collector: c}
}
