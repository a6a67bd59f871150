package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const yamlDoc = `
messages:
  message_count: 500
  message_length_min: 10
  message_length_max: 20
producer:
  producer_count: 4
  batch_size: 25
broker:
  max_queued_batches: 8
sender:
  sender_count: 32
  send_time_mean: 5ms
  send_time_stddev: 1ms
  send_failure_rate: 0.1
monitor:
  print_frequency: 500ms
logging:
  level: debug
`

const jsonDoc = `{
  "messages": {"message_count": 500, "message_length_min": 10, "message_length_max": 20},
  "producer": {"producer_count": 4, "batch_size": 25},
  "broker": {"max_queued_batches": 8},
  "sender": {"sender_count": 32, "send_time_mean": "5ms", "send_time_stddev": "1ms", "send_failure_rate": 0.1},
  "monitor": {"print_frequency": "500ms"},
  "logging": {"level": "debug"}
}`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func load(t *testing.T, path string, environ map[string]string) (*Config, error) {
	t.Helper()
	m := NewManager(path)
	if environ == nil {
		environ = map[string]string{}
	}
	m.SetEnviron(environ)
	return m.Load()
}

func TestYAMLAndJSONParseEqually(t *testing.T) {
	t.Parallel()
	y, err := load(t, writeFile(t, "c.yaml", yamlDoc), nil)
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	j, err := load(t, writeFile(t, "c.json", jsonDoc), nil)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if !reflect.DeepEqual(y, j) {
		t.Fatalf("yaml and json differ:\n%+v\n%+v", y.Simulation(), j.Simulation())
	}

	got := y.Simulation()
	want := Simulation{
		MessageCount:     500,
		MessageLengthMin: 10,
		MessageLengthMax: 20,
		ProducerCount:    4,
		BatchSize:        25,
		MaxQueuedBatches: 8,
		SenderCount:      32,
		SendTimeMean:     5 * time.Millisecond,
		SendTimeStdDev:   time.Millisecond,
		SendFailureRate:  0.1,
		PrintFrequency:   500 * time.Millisecond,
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := load(t, "", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := cfg.Simulation()
	if got.MessageCount != 1000 || got.MessageLengthMin != 100 || got.MessageLengthMax != 100 ||
		got.ProducerCount != 1 || got.BatchSize != 1 || got.SenderCount != 1000 ||
		got.SendTimeMean != time.Second || got.SendTimeStdDev != 100*time.Millisecond ||
		got.SendFailureRate != 0.05 || got.PrintFrequency != 2*time.Second || got.MaxQueuedBatches != 1000 {
		t.Fatalf("unexpected defaults: %+v", got)
	}
	if lc := cfg.LogConfig(); lc.Level != "info" || !lc.Console {
		t.Fatalf("logging defaults = %+v", lc)
	}
}

func TestMessageLengthShorthand(t *testing.T) {
	t.Parallel()
	cfg, err := load(t, writeFile(t, "c.yaml", "messages: {message_length: 42}\n"), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s := cfg.Simulation(); s.MessageLengthMin != 42 || s.MessageLengthMax != 42 {
		t.Fatalf("got [%d,%d], want [42,42]", s.MessageLengthMin, s.MessageLengthMax)
	}
}

func TestValidationRejectsDegenerateValues(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		doc   string
		field string
	}{
		{"zero batch size", "producer: {batch_size: 0}", "producer.batch_size"},
		{"negative producers", "producer: {producer_count: -1}", "producer.producer_count"},
		{"zero senders", "sender: {sender_count: 0}", "sender.sender_count"},
		{"zero messages", "messages: {message_count: 0}", "messages.message_count"},
		{"zero capacity", "broker: {max_queued_batches: 0}", "broker.max_queued_batches"},
		{"failure rate above one", "sender: {send_failure_rate: 1.5}", "sender.send_failure_rate"},
		{"negative failure rate", "sender: {send_failure_rate: -0.1}", "sender.send_failure_rate"},
		{"negative stddev", "sender: {send_time_stddev: -1s}", "sender.send_time_stddev"},
		{"bad mean", "sender: {send_time_mean: soon}", "sender.send_time_mean"},
		{"zero print frequency", "monitor: {print_frequency: 0s}", "monitor.print_frequency"},
		{"bad schedule", "monitor: {schedule: 'not a cron'}", "monitor.schedule"},
		{"min above max", "messages: {message_length_min: 50, message_length_max: 10}", "message_length_min (50) > message_length_max (10)"},
		{"bad level", "logging: {level: loud}", "logging.level"},
		{"bad storage driver", "storage: {driver: mongo}", "storage.driver"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := load(t, writeFile(t, "c.yaml", tc.doc+"\n"), nil)
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %T, want *ValidationError", err)
			}
			if !strings.Contains(ve.Error(), tc.field) {
				t.Fatalf("error %q does not mention %q", ve.Error(), tc.field)
			}
		})
	}
}

func TestValidationReportsEveryProblem(t *testing.T) {
	t.Parallel()
	_, err := load(t, writeFile(t, "c.yaml", "producer: {batch_size: 0, producer_count: 0}\nsender: {sender_count: 0}\n"), nil)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if len(ve.Problems) != 3 {
		t.Fatalf("got %d problems, want 3: %v", len(ve.Problems), ve.Problems)
	}
}

func TestStrictDecoding(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"unknown field.yaml": "producer: {batch_size: 1, batch_sise: 2}\n",
		"trailing.json":      `{"producer": {"batch_size": 1}} {"x": 1}`,
		"bad.yaml":           "producer: [\n",
	}
	for name, doc := range cases {
		name, doc := name, doc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := load(t, writeFile(t, name, doc), nil); !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		"MSGSIM_SENDER_COUNT":      "7",
		"MSGSIM_SEND_TIME_MEAN":    "2ms",
		"MSGSIM_SEND_FAILURE_RATE": "0",
		"MSGSIM_LOG_LEVEL":         "warn",
		"MSGSIM_STORAGE_DRIVER":    "file",
		"UNRELATED_BATCH_SIZE":     "99",
	}
	cfg, err := load(t, writeFile(t, "c.yaml", yamlDoc), env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Simulation()
	if s.SenderCount != 7 || s.SendTimeMean != 2*time.Millisecond || s.SendFailureRate != 0 {
		t.Fatalf("env overrides not applied: %+v", s)
	}
	if s.BatchSize != 25 {
		t.Fatalf("batch size = %d, want file value 25", s.BatchSize)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("level = %q, want warn", cfg.Logging.Level)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" || cfg.Storage.Path != DefaultStoragePath {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestEnvOverrideMustParse(t *testing.T) {
	t.Parallel()
	_, err := load(t, "", map[string]string{"MSGSIM_SENDER_COUNT": "many"})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	a := Default()
	b := Default()
	b.Logging.Level = "debug"
	n := 5
	b.Sender.SenderCount = &n

	changed, attrs := SummarizeChange(a, b)
	if want := []string{"logging", "sender"}; !reflect.DeepEqual(changed, want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	if len(attrs) == 0 {
		t.Fatal("expected logging attrs")
	}
	if got := RestartRequired(changed); !reflect.DeepEqual(got, []string{"sender"}) {
		t.Fatalf("RestartRequired = %v, want [sender]", got)
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "c.yaml", "logging: {level: info}\n")
	m := NewManager(path)
	m.SetEnviron(map[string]string{})
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(4 * watchDebounce)
	defer tick.Stop()
	for {
		// Rewrite until the watcher is up and picks the change.
		if err := os.WriteFile(path, []byte("logging: {level: debug}\n"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		select {
		case cfg := <-ch:
			if cfg.Logging.Level != "debug" {
				t.Fatalf("level = %q, want debug", cfg.Logging.Level)
			}
			if m.Get() != cfg {
				t.Fatal("published config was not committed")
			}
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("no config published")
		}
	}
}
