package config

// Config is the on-disk configuration (JSON or YAML).
//
// Numeric simulation fields are pointers so an explicit zero can be told
// apart from an omitted field: omitted fields get defaults, explicit
// degenerate values are rejected by Validate.
//
// All durations are Go duration strings (e.g. "100ms", "1s", "2m").
type Config struct {
	Messages MessagesConfig `json:"messages"`
	Producer ProducerConfig `json:"producer"`
	Broker   BrokerConfig   `json:"broker"`
	Sender   SenderConfig   `json:"sender"`
	Monitor  MonitorConfig  `json:"monitor"`

	Logging LoggingConfig  `json:"logging"`
	Storage *StorageConfig `json:"storage,omitempty"`
	Metrics MetricsConfig  `json:"metrics,omitempty"`
}

// MessagesConfig controls message generation.
//
// MessageLength is a shorthand for a fixed body length; it sets both bounds
// unless they are given explicitly.
type MessagesConfig struct {
	MessageCount     *int `json:"message_count,omitempty"`
	MessageLength    *int `json:"message_length,omitempty"`
	MessageLengthMin *int `json:"message_length_min,omitempty"`
	MessageLengthMax *int `json:"message_length_max,omitempty"`
}

type ProducerConfig struct {
	ProducerCount *int `json:"producer_count,omitempty"`
	BatchSize     *int `json:"batch_size,omitempty"`
}

type BrokerConfig struct {
	MaxQueuedBatches *int `json:"max_queued_batches,omitempty"`
}

// SenderConfig controls the simulated delivery model.
//
// RatePerSec caps total sends per second across all senders; 0 disables it.
type SenderConfig struct {
	SenderCount     *int     `json:"sender_count,omitempty"`
	SendTimeMean    *string  `json:"send_time_mean,omitempty"`
	SendTimeStdDev  *string  `json:"send_time_stddev,omitempty"`
	SendFailureRate *float64 `json:"send_failure_rate,omitempty"`
	RatePerSec      *float64 `json:"rate_per_sec,omitempty"`
}

// MonitorConfig controls periodic reporting.
//
// Schedule, if set, is a cron expression (seconds optional, "@every 5s"
// allowed) and takes precedence over PrintFrequency.
type MonitorConfig struct {
	PrintFrequency *string `json:"print_frequency,omitempty"`
	Schedule       string  `json:"schedule,omitempty"`
}

// LoggingConfig is the only section applied live when the file changes.
type LoggingConfig struct {
	Level   string      `json:"level"`
	Console *bool       `json:"console,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the optional run-history store.
//
// Example:
//
//	storage: { driver: file, path: ./msgsim_runs }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// MetricsConfig controls the optional Prometheus listener.
// Prefer binding to localhost (e.g. "127.0.0.1:9108").
type MetricsConfig struct {
	Addr string `json:"addr,omitempty"`
	Path string `json:"path,omitempty"` // default: "/metrics"

	// Pprof also serves /debug/pprof/ on the metrics listener.
	Pprof bool `json:"pprof,omitempty"`
}
