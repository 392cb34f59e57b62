package config

import "reflect"

// ConfigDiff describes what changed between two configs. Log settings can be
// applied to a running process; everything else needs a restart and is only
// reported so the operator can be told.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	LogFormatChanged bool
	NewLogFormat     LogFormat

	// RestartRequired names the config sections whose changes will not take
	// effect until the process restarts: "server", "llm", "store",
	// "clustering", "schedule".
	RestartRequired []string
}

// Changed reports whether the diff contains any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.LogFormatChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}
	if old.LogFormat != new.LogFormat {
		d.LogFormatChanged = true
		d.NewLogFormat = new.LogFormat
	}

	if old.Server != new.Server {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	// LLMConfig holds a slice and a pointer, so it is not comparable with ==.
	if !reflect.DeepEqual(old.LLM, new.LLM) {
		d.RestartRequired = append(d.RestartRequired, "llm")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if old.Clustering != new.Clustering {
		d.RestartRequired = append(d.RestartRequired, "clustering")
	}
	if old.Schedule != new.Schedule {
		d.RestartRequired = append(d.RestartRequired, "schedule")
	}

	return d
}
