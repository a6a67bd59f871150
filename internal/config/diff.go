package config

import (
	"encoding/json"
	"sort"

	logx "msgsim/pkg/logx"
)

// LiveSection is the only section applied without a restart.
const LiveSection = "logging"

// SummarizeChange returns the top-level sections that differ between two
// configs, plus log attrs describing the new logging section.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	sections := map[string][2]any{
		"messages": {oldCfg.Messages, newCfg.Messages},
		"producer": {oldCfg.Producer, newCfg.Producer},
		"broker":   {oldCfg.Broker, newCfg.Broker},
		"sender":   {oldCfg.Sender, newCfg.Sender},
		"monitor":  {oldCfg.Monitor, newCfg.Monitor},
		"logging":  {oldCfg.Logging, newCfg.Logging},
		"storage":  {oldCfg.Storage, newCfg.Storage},
		"metrics":  {oldCfg.Metrics, newCfg.Metrics},
	}

	changed := make([]string, 0, len(sections))
	for name, pair := range sections {
		// Compare by encoding so pointer fields compare by value.
		a, _ := json.Marshal(pair[0])
		b, _ := json.Marshal(pair[1])
		if string(a) != string(b) {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)

	var attrs []logx.Field
	for _, s := range changed {
		if s == LiveSection {
			lc := newCfg.LogConfig()
			attrs = append(attrs,
				logx.String("logging.level", lc.Level),
				logx.Bool("logging.console", lc.Console),
				logx.Bool("logging.file_enabled", lc.File.Enabled),
			)
		}
	}
	return changed, attrs
}

// RestartRequired filters changed sections down to those ignored until
// the next run.
func RestartRequired(changed []string) []string {
	out := make([]string, 0, len(changed))
	for _, s := range changed {
		if s != LiveSection {
			out = append(out, s)
		}
	}
	return out
}
