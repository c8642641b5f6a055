package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"asr":       {"seamless", "whisper-native"},
	"corrector": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Chunk geometry. A chunk must be strictly longer than the overlap or the
	// split cannot advance.
	p := cfg.Pipeline
	if p.ChunkDurationSec <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.chunk_duration_sec %.2f must be > 0", p.ChunkDurationSec))
	}
	if p.OverlapSec < 0 {
		errs = append(errs, fmt.Errorf("pipeline.overlap_sec %.2f must be >= 0", p.OverlapSec))
	}
	if p.ChunkDurationSec > 0 && p.OverlapSec >= 0 && p.ChunkDurationSec <= p.OverlapSec {
		errs = append(errs, fmt.Errorf("pipeline.chunk_duration_sec %.2f must exceed overlap_sec %.2f", p.ChunkDurationSec, p.OverlapSec))
	}

	// Thresholds must be probabilities and ordered so every confidence value
	// maps to exactly one tier.
	for _, th := range []struct {
		name string
		v    float64
	}{
		{"pipeline.admission_confidence_threshold", p.AdmissionConfidenceThreshold},
		{"pipeline.auto_tier_threshold", p.AutoTierThreshold},
		{"pipeline.suggest_tier_threshold", p.SuggestTierThreshold},
	} {
		if th.v < 0 || th.v > 1 {
			errs = append(errs, fmt.Errorf("%s %.2f is out of range [0, 1]", th.name, th.v))
		}
	}
	if p.SuggestTierThreshold >= p.AutoTierThreshold {
		errs = append(errs, fmt.Errorf("pipeline.suggest_tier_threshold %.2f must be below auto_tier_threshold %.2f", p.SuggestTierThreshold, p.AutoTierThreshold))
	}

	if p.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.sample_rate %d must be > 0", p.SampleRate))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("asr", cfg.ASR.Name)
	validateProviderName("corrector", cfg.Corrector.Provider)

	// ASR provider shape.
	switch cfg.ASR.Name {
	case "seamless":
		if cfg.ASR.ServerURL == "" {
			errs = append(errs, errors.New("asr.server_url is required when asr.name is seamless"))
		}
	case "whisper-native":
		if cfg.ASR.ModelPath == "" {
			errs = append(errs, errors.New("asr.model_path is required when asr.name is whisper-native"))
		}
	}

	// Corrector availability warnings.
	if cfg.Corrector.Provider == "" {
		slog.Warn("corrector.provider is empty; transcripts will pass through uncorrected")
	} else if cfg.Corrector.Model == "" {
		errs = append(errs, errors.New("corrector.model is required when corrector.provider is set"))
	}
	if cfg.Corrector.TimeoutSec < 0 {
		errs = append(errs, fmt.Errorf("corrector.timeout_sec %.2f must be >= 0", cfg.Corrector.TimeoutSec))
	}
	if cfg.Corrector.MaxDriftRatio < 0 || cfg.Corrector.MaxDriftRatio > 1 {
		errs = append(errs, fmt.Errorf("corrector.max_drift_ratio %.2f is out of range [0, 1]", cfg.Corrector.MaxDriftRatio))
	}
	for i, fb := range cfg.Corrector.Fallbacks {
		if cfg.Corrector.Provider == "" {
			errs = append(errs, errors.New("corrector.fallbacks requires a primary corrector.provider"))
			break
		}
		if fb.Provider == "" || fb.Model == "" {
			errs = append(errs, fmt.Errorf("corrector.fallbacks[%d] needs both provider and model", i))
			continue
		}
		validateProviderName("corrector", fb.Provider)
	}

	// Store availability.
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; runs will not be persisted")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
