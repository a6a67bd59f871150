package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "msgsim/pkg/logx"
)

// ErrInvalid marks a configuration that must not start a run.
var ErrInvalid = errors.New("invalid config")

// ValidationError lists every offending field.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Simulation is the resolved, typed view of the simulation sections.
type Simulation struct {
	MessageCount     int
	MessageLengthMin int
	MessageLengthMax int
	ProducerCount    int
	BatchSize        int
	MaxQueuedBatches int
	SenderCount      int
	SendTimeMean     time.Duration
	SendTimeStdDev   time.Duration
	SendFailureRate  float64
	SendRatePerSec   float64
	PrintFrequency   time.Duration
	MonitorSchedule  string
}

var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks a config after ApplyDefaults. Nil pointers are reported
// as missing.
func (c *Config) Validate() error {
	var p []string
	positive := func(name string, v *int) {
		switch {
		case v == nil:
			p = append(p, name+": missing")
		case *v <= 0:
			p = append(p, fmt.Sprintf("%s: must be > 0, got %d", name, *v))
		}
	}
	positive("messages.message_count", c.Messages.MessageCount)
	positive("messages.message_length_min", c.Messages.MessageLengthMin)
	positive("messages.message_length_max", c.Messages.MessageLengthMax)
	if lo, hi := c.Messages.MessageLengthMin, c.Messages.MessageLengthMax; lo != nil && hi != nil && *lo > *hi {
		p = append(p, fmt.Sprintf("messages: message_length_min (%d) > message_length_max (%d)", *lo, *hi))
	}
	positive("producer.producer_count", c.Producer.ProducerCount)
	positive("producer.batch_size", c.Producer.BatchSize)
	positive("broker.max_queued_batches", c.Broker.MaxQueuedBatches)
	positive("sender.sender_count", c.Sender.SenderCount)

	duration := func(name string, v *string, mustBePositive bool) {
		if v == nil {
			p = append(p, name+": missing")
			return
		}
		d, err := ParseDurationField(name, *v)
		if err != nil {
			p = append(p, err.Error())
			return
		}
		if mustBePositive && d <= 0 {
			p = append(p, name+": must be > 0")
		}
	}
	duration("sender.send_time_mean", c.Sender.SendTimeMean, false)
	duration("sender.send_time_stddev", c.Sender.SendTimeStdDev, false)
	duration("monitor.print_frequency", c.Monitor.PrintFrequency, true)

	if r := c.Sender.SendFailureRate; r == nil {
		p = append(p, "sender.send_failure_rate: missing")
	} else if *r < 0 || *r > 1 || *r != *r {
		p = append(p, fmt.Sprintf("sender.send_failure_rate: must be in [0,1], got %v", *r))
	}
	if r := c.Sender.RatePerSec; r != nil && (*r < 0 || *r != *r) {
		p = append(p, fmt.Sprintf("sender.rate_per_sec: must be >= 0, got %v", *r))
	}

	if s := strings.TrimSpace(c.Monitor.Schedule); s != "" {
		if _, err := scheduleParser.Parse(s); err != nil {
			p = append(p, fmt.Sprintf("monitor.schedule: %v", err))
		}
	}

	if !logx.ValidLevel(c.Logging.Level) {
		p = append(p, fmt.Sprintf("logging.level: unknown level %q", c.Logging.Level))
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		p = append(p, "logging.file.path: required when file logging is enabled")
	}

	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			p = append(p, fmt.Sprintf("storage.driver: unknown driver %q", c.Storage.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			p = append(p, err.Error())
		}
	}
	if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		p = append(p, "metrics.path: must start with /")
	}

	if len(p) > 0 {
		return &ValidationError{Problems: p}
	}
	return nil
}

// Simulation returns the resolved simulation settings. The config must
// have passed Validate.
func (c *Config) Simulation() Simulation {
	deref := func(p *int) int {
		if p == nil {
			return 0
		}
		return *p
	}
	derefF := func(p *float64) float64 {
		if p == nil {
			return 0
		}
		return *p
	}
	return Simulation{
		MessageCount:     deref(c.Messages.MessageCount),
		MessageLengthMin: deref(c.Messages.MessageLengthMin),
		MessageLengthMax: deref(c.Messages.MessageLengthMax),
		ProducerCount:    deref(c.Producer.ProducerCount),
		BatchSize:        deref(c.Producer.BatchSize),
		MaxQueuedBatches: deref(c.Broker.MaxQueuedBatches),
		SenderCount:      deref(c.Sender.SenderCount),
		SendTimeMean:     derefDuration(c.Sender.SendTimeMean),
		SendTimeStdDev:   derefDuration(c.Sender.SendTimeStdDev),
		SendFailureRate:  derefF(c.Sender.SendFailureRate),
		SendRatePerSec:   derefF(c.Sender.RatePerSec),
		PrintFrequency:   derefDuration(c.Monitor.PrintFrequency),
		MonitorSchedule:  strings.TrimSpace(c.Monitor.Schedule),
	}
}

// LogConfig maps the logging section to the logx service config.
func (c *Config) LogConfig() logx.Config {
	console := true
	if c.Logging.Console != nil {
		console = *c.Logging.Console
	}
	return logx.Config{
		Level:   c.Logging.Level,
		Console: console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
	}
}
