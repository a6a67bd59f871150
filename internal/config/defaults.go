package config

import "time"

const (
	DefaultMessageCount     = 1000
	DefaultMessageLength    = 100
	DefaultProducerCount    = 1
	DefaultBatchSize        = 1
	DefaultMaxQueuedBatches = 1000
	DefaultSenderCount      = 1000
	DefaultSendTimeMean     = time.Second
	DefaultSendTimeStdDev   = 100 * time.Millisecond
	DefaultSendFailureRate  = 0.05
	DefaultPrintFrequency   = 2 * time.Second

	DefaultLogLevel    = "info"
	DefaultLogFile     = "./msgsim.log"
	DefaultStoragePath = "./msgsim_runs"
	DefaultMetricsPath = "/metrics"
)

// Default returns a fully populated config.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills every omitted field. Explicit values, including
// invalid ones, are left for Validate to judge.
func (c *Config) ApplyDefaults() {
	m := &c.Messages
	if m.MessageLength != nil {
		if m.MessageLengthMin == nil {
			m.MessageLengthMin = intPtr(*m.MessageLength)
		}
		if m.MessageLengthMax == nil {
			m.MessageLengthMax = intPtr(*m.MessageLength)
		}
	}
	setInt(&m.MessageCount, DefaultMessageCount)
	setInt(&m.MessageLengthMin, DefaultMessageLength)
	if m.MessageLengthMax == nil {
		// A lone minimum above the default would otherwise fail min <= max.
		m.MessageLengthMax = intPtr(max(DefaultMessageLength, *m.MessageLengthMin))
	}

	setInt(&c.Producer.ProducerCount, DefaultProducerCount)
	setInt(&c.Producer.BatchSize, DefaultBatchSize)
	setInt(&c.Broker.MaxQueuedBatches, DefaultMaxQueuedBatches)

	s := &c.Sender
	setInt(&s.SenderCount, DefaultSenderCount)
	if s.SendTimeMean == nil {
		s.SendTimeMean = durationPtr(DefaultSendTimeMean)
	}
	if s.SendTimeStdDev == nil {
		s.SendTimeStdDev = durationPtr(DefaultSendTimeStdDev)
	}
	setFloat(&s.SendFailureRate, DefaultSendFailureRate)
	setFloat(&s.RatePerSec, 0)

	if c.Monitor.PrintFrequency == nil {
		c.Monitor.PrintFrequency = durationPtr(DefaultPrintFrequency)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Console == nil {
		t := true
		c.Logging.Console = &t
	}
	if c.Logging.File.Enabled && c.Logging.File.Path == "" {
		c.Logging.File.Path = DefaultLogFile
	}

	if c.Storage != nil {
		if c.Storage.Driver == "" {
			c.Storage.Driver = "none"
		}
		if c.Storage.Path == "" {
			c.Storage.Path = DefaultStoragePath
		}
	}
	if c.Metrics.Addr != "" && c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func intPtr(v int) *int { return &v }

func setInt(p **int, def int) {
	if *p == nil {
		*p = intPtr(def)
	}
}

func setFloat(p **float64, def float64) {
	if *p == nil {
		*p = &def
	}
}
