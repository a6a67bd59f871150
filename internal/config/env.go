package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every override variable, e.g. MSGSIM_SENDER_COUNT.
const EnvPrefix = "MSGSIM_"

// envOverrides holds the variables that may override file values. Fields
// are pointers so only variables that are actually set take effect.
type envOverrides struct {
	MessageCount     *int `env:"MESSAGE_COUNT"`
	MessageLength    *int `env:"MESSAGE_LENGTH"`
	MessageLengthMin *int `env:"MESSAGE_LENGTH_MIN"`
	MessageLengthMax *int `env:"MESSAGE_LENGTH_MAX"`

	ProducerCount    *int `env:"PRODUCER_COUNT"`
	BatchSize        *int `env:"BATCH_SIZE"`
	MaxQueuedBatches *int `env:"MAX_QUEUED_BATCHES"`

	SenderCount     *int     `env:"SENDER_COUNT"`
	SendTimeMean    *string  `env:"SEND_TIME_MEAN"`
	SendTimeStdDev  *string  `env:"SEND_TIME_STDDEV"`
	SendFailureRate *float64 `env:"SEND_FAILURE_RATE"`
	SendRatePerSec  *float64 `env:"SEND_RATE_PER_SEC"`

	PrintFrequency  *string `env:"PRINT_FREQUENCY"`
	MonitorSchedule *string `env:"MONITOR_SCHEDULE"`

	LogLevel       *string `env:"LOG_LEVEL"`
	LogConsole     *bool   `env:"LOG_CONSOLE"`
	LogFileEnabled *bool   `env:"LOG_FILE_ENABLED"`
	LogFilePath    *string `env:"LOG_FILE_PATH"`

	StorageDriver *string `env:"STORAGE_DRIVER"`
	StoragePath   *string `env:"STORAGE_PATH"`

	MetricsAddr  *string `env:"METRICS_ADDR"`
	MetricsPprof *bool   `env:"METRICS_PPROF"`
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Missing files are ignored; existing variables are kept.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with MSGSIM_* variables. A nil environ reads the
// process environment.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	var o envOverrides
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return fmt.Errorf("%w: env overrides: %v", ErrInvalid, err)
	}

	m := &cfg.Messages
	override(&m.MessageCount, o.MessageCount)
	if o.MessageLength != nil {
		m.MessageLength = o.MessageLength
		m.MessageLengthMin = o.MessageLength
		m.MessageLengthMax = o.MessageLength
	}
	override(&m.MessageLengthMin, o.MessageLengthMin)
	override(&m.MessageLengthMax, o.MessageLengthMax)

	override(&cfg.Producer.ProducerCount, o.ProducerCount)
	override(&cfg.Producer.BatchSize, o.BatchSize)
	override(&cfg.Broker.MaxQueuedBatches, o.MaxQueuedBatches)

	s := &cfg.Sender
	override(&s.SenderCount, o.SenderCount)
	override(&s.SendTimeMean, o.SendTimeMean)
	override(&s.SendTimeStdDev, o.SendTimeStdDev)
	override(&s.SendFailureRate, o.SendFailureRate)
	override(&s.RatePerSec, o.SendRatePerSec)

	override(&cfg.Monitor.PrintFrequency, o.PrintFrequency)
	if o.MonitorSchedule != nil {
		cfg.Monitor.Schedule = *o.MonitorSchedule
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	override(&cfg.Logging.Console, o.LogConsole)
	if o.LogFileEnabled != nil {
		cfg.Logging.File.Enabled = *o.LogFileEnabled
	}
	if o.LogFilePath != nil {
		cfg.Logging.File.Path = *o.LogFilePath
	}

	if o.StorageDriver != nil || o.StoragePath != nil {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{}
		}
		if o.StorageDriver != nil {
			cfg.Storage.Driver = *o.StorageDriver
		}
		if o.StoragePath != nil {
			cfg.Storage.Path = *o.StoragePath
		}
	}
	if o.MetricsAddr != nil {
		cfg.Metrics.Addr = *o.MetricsAddr
	}
	if o.MetricsPprof != nil {
		cfg.Metrics.Pprof = *o.MetricsPprof
	}
	return nil
}

func override[T any](dst **T, v *T) {
	if v != nil {
		*dst = v
	}
}
