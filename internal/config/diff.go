package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields relevant to hot-reload decisions are tracked.
type ConfigDiff struct {
	// LogLevelChanged is true when server.log_level changed; the new level
	// can be applied live.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ThresholdsChanged is true when any pipeline confidence threshold
	// changed. Thresholds only affect future runs, so they can be applied
	// live as well.
	ThresholdsChanged bool
	NewPipeline       PipelineConfig

	// RestartRequired is true when a change cannot be applied to a running
	// server (chunk geometry, providers, store DSN, listen address).
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Pipeline.AdmissionConfidenceThreshold != new.Pipeline.AdmissionConfidenceThreshold ||
		old.Pipeline.AutoTierThreshold != new.Pipeline.AutoTierThreshold ||
		old.Pipeline.SuggestTierThreshold != new.Pipeline.SuggestTierThreshold {
		d.ThresholdsChanged = true
		d.NewPipeline = new.Pipeline
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Pipeline.ChunkDurationSec != new.Pipeline.ChunkDurationSec ||
		old.Pipeline.OverlapSec != new.Pipeline.OverlapSec ||
		old.Pipeline.SampleRate != new.Pipeline.SampleRate ||
		old.Pipeline.TargetLanguage != new.Pipeline.TargetLanguage ||
		differentASR(old.ASR, new.ASR) ||
		differentCorrector(old.Corrector, new.Corrector) ||
		old.Store != new.Store {
		d.RestartRequired = true
	}

	return d
}

// differentASR compares the comparable fields of two provider entries.
// Options maps are intentionally ignored; providers read them only at
// construction time.
func differentASR(a, b ProviderEntry) bool {
	return a.Name != b.Name || a.ServerURL != b.ServerURL ||
		a.ModelPath != b.ModelPath || a.Model != b.Model
}

// differentCorrector compares corrector configs including the fallback chain.
func differentCorrector(a, b CorrectorConfig) bool {
	return a.Provider != b.Provider || a.Model != b.Model ||
		a.APIKey != b.APIKey || a.BaseURL != b.BaseURL ||
		a.TimeoutSec != b.TimeoutSec || a.Temperature != b.Temperature ||
		a.MaxDriftRatio != b.MaxDriftRatio ||
		!slices.Equal(a.Fallbacks, b.Fallbacks)
}
