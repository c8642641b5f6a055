// Command tahrir is the entry point for the Tahrir transcription service.
//
// With -audio it transcribes one WAV file and prints the result as JSON.
// Without it, it serves the HTTP API until interrupted.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/sawtlabs/tahrir/internal/config"
	"github.com/sawtlabs/tahrir/internal/correct"
	"github.com/sawtlabs/tahrir/internal/health"
	"github.com/sawtlabs/tahrir/internal/observe"
	"github.com/sawtlabs/tahrir/internal/pipeline"
	"github.com/sawtlabs/tahrir/internal/resilience"
	"github.com/sawtlabs/tahrir/internal/server"
	"github.com/sawtlabs/tahrir/internal/store"
	"github.com/sawtlabs/tahrir/internal/transcribe"
	"github.com/sawtlabs/tahrir/pkg/audio"
	"github.com/sawtlabs/tahrir/pkg/provider/asr"
	"github.com/sawtlabs/tahrir/pkg/provider/asr/seamless"
	"github.com/sawtlabs/tahrir/pkg/provider/asr/whisper"
	"github.com/sawtlabs/tahrir/pkg/provider/llm"
	"github.com/sawtlabs/tahrir/pkg/provider/llm/anyllm"
	"github.com/sawtlabs/tahrir/pkg/provider/llm/openai"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	audioPath := flag.String("audio", "", "transcribe this WAV file and exit instead of serving")
	listenAddr := flag.String("listen", "", "override server.listen_addr from the config")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "tahrir: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "tahrir: %v\n", err)
		}
		return 1
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("tahrir starting",
		"version", version,
		"config", *configPath,
		"asr", cfg.ASR.Name,
		"corrector", cfg.Corrector.Provider,
	)

	// ── Observability ─────────────────────────────────────────────────────────
	shutdownObserve, err := observe.InitProvider(observe.ProviderConfig{
		ServiceName:    "tahrir",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise observability", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownObserve(ctx); err != nil {
			slog.Warn("observability shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	model, err := reg.CreateASR(cfg.ASR)
	if err != nil {
		slog.Error("failed to create speech model", "name", cfg.ASR.Name, "err", err)
		return 1
	}

	corrector, err := buildCorrector(cfg, reg)
	if err != nil {
		slog.Error("failed to create corrector", "err", err)
		return 1
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	router := correct.NewRouter(cfg.Pipeline.AutoTierThreshold, cfg.Pipeline.SuggestTierThreshold)
	service := correct.NewService(corrector, router,
		correct.WithTimeout(secondsToDuration(cfg.Corrector.TimeoutSec)),
		correct.WithMaxDriftRatio(cfg.Corrector.MaxDriftRatio),
		correct.WithTemperature(cfg.Corrector.Temperature),
	)
	engine := transcribe.NewEngine(model, cfg.Pipeline.SampleRate, cfg.Pipeline.TargetLanguage)
	pipe := pipeline.New(pipeline.Config{
		ChunkDuration:      secondsToDuration(cfg.Pipeline.ChunkDurationSec),
		Overlap:            secondsToDuration(cfg.Pipeline.OverlapSec),
		AdmissionThreshold: cfg.Pipeline.AdmissionConfidenceThreshold,
		SampleRate:         cfg.Pipeline.SampleRate,
	}, engine, service)

	// ── Batch mode ────────────────────────────────────────────────────────────
	if *audioPath != "" {
		return runBatch(pipe, *audioPath)
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Store (optional) ──────────────────────────────────────────────────────
	var serverOpts []server.Option
	if dsn := cfg.Store.PostgresDSN; dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			slog.Error("failed to create postgres pool", "err", err)
			return 1
		}
		defer pool.Close()

		runs := store.NewPostgresStore(pool)
		if err := runs.Migrate(ctx); err != nil {
			slog.Error("failed to migrate run tables", "err", err)
			return 1
		}
		serverOpts = append(serverOpts,
			server.WithStore(runs),
			server.WithHealthCheckers(health.Checker{
				Name:  "database",
				Check: pool.Ping,
			}),
		)
		slog.Info("run persistence enabled")
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level updated", "level", d.NewLogLevel)
		}
		if d.ThresholdsChanged {
			router.SetThresholds(d.NewPipeline.AutoTierThreshold, d.NewPipeline.SuggestTierThreshold)
			pipe.SetAdmissionThreshold(d.NewPipeline.AdmissionConfidenceThreshold)
			slog.Info("confidence thresholds updated",
				"auto", d.NewPipeline.AutoTierThreshold,
				"suggest", d.NewPipeline.SuggestTierThreshold,
				"admission", d.NewPipeline.AdmissionConfidenceThreshold)
		}
		if d.RestartRequired {
			slog.Warn("config change requires a restart to take effect")
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.New(pipe, serverOpts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.Server.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		slog.Error("server error", "err", err)
		return 1
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// runBatch transcribes one WAV file and prints the output JSON to stdout.
func runBatch(pipe *pipeline.Pipeline, path string) int {
	samples, channels, rate, err := audio.DecodeWAVFile(path)
	if err != nil {
		slog.Error("failed to decode audio", "path", path, "err", err)
		return 1
	}

	out, err := pipe.Process(context.Background(), samples, channels, rate)
	if err != nil {
		slog.Error("transcription failed", "path", path, "err", err)
		return 1
	}

	review := 0
	for _, seg := range out.Segments {
		if seg.NeedsReview {
			review++
		}
	}
	slog.Info("transcription complete",
		"chunks", out.Metadata.ChunkCount,
		"segments", len(out.Segments),
		"needs_review", review,
		"seconds", out.Metadata.ProcessingSeconds,
	)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		slog.Error("failed to encode output", "err", err)
		return 1
	}
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildCorrector creates the primary correction backend plus any configured
// fallbacks wrapped in a circuit-breaker failover group. Returns nil when no
// corrector is configured; the service then passes raw transcripts through.
func buildCorrector(cfg *config.Config, reg *config.Registry) (llm.Provider, error) {
	if cfg.Corrector.Provider == "" {
		slog.Warn("no corrector configured, raw transcripts pass through uncorrected")
		return nil, nil
	}

	primary, err := reg.CreateCorrector(cfg.Corrector)
	if err != nil {
		return nil, fmt.Errorf("corrector %q: %w", cfg.Corrector.Provider, err)
	}
	slog.Info("corrector ready", "provider", cfg.Corrector.Provider, "model", cfg.Corrector.Model)

	if len(cfg.Corrector.Fallbacks) == 0 {
		return primary, nil
	}

	group := resilience.NewLLMFallback(primary, cfg.Corrector.Provider, resilience.FallbackConfig{})
	for _, fb := range cfg.Corrector.Fallbacks {
		backend, err := reg.CreateCorrector(config.CorrectorConfig{
			Provider:   fb.Provider,
			Model:      fb.Model,
			APIKey:     fb.APIKey,
			BaseURL:    fb.BaseURL,
			TimeoutSec: cfg.Corrector.TimeoutSec,
		})
		if err != nil {
			return nil, fmt.Errorf("corrector fallback %q: %w", fb.Provider, err)
		}
		group.AddFallback(fb.Provider, backend)
		slog.Info("corrector fallback registered", "provider", fb.Provider, "model", fb.Model)
	}
	return group, nil
}

// anyllmProviders are the corrector backends served through the any-llm
// multiplexer. ollama is registered separately because it takes a base URL
// instead of an API key.
var anyllmProviders = []string{
	"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires the built-in ASR and corrector factories
// into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── ASR ───────────────────────────────────────────────────────────────────

	reg.RegisterASR("seamless", func(entry config.ProviderEntry) (asr.SpeechModel, error) {
		var opts []seamless.Option
		if entry.Model != "" {
			opts = append(opts, seamless.WithModel(entry.Model))
		}
		return seamless.New(entry.ServerURL, opts...)
	})

	reg.RegisterASR("whisper-native", func(entry config.ProviderEntry) (asr.SpeechModel, error) {
		return whisper.New(entry.ModelPath)
	})

	// ── Correctors ────────────────────────────────────────────────────────────

	// openai goes through the dedicated client so base URL, organization,
	// and timeout overrides all work.
	reg.RegisterCorrector("openai", func(cfg config.CorrectorConfig) (llm.Provider, error) {
		var opts []openai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.TimeoutSec > 0 {
			opts = append(opts, openai.WithTimeout(secondsToDuration(cfg.TimeoutSec)))
		}
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return openai.New(apiKey, cfg.Model, opts...)
	})

	reg.RegisterCorrector("ollama", func(cfg config.CorrectorConfig) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if cfg.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
		}
		return anyllm.NewOllama(cfg.Model, opts...)
	})

	for _, name := range anyllmProviders {
		reg.RegisterCorrector(name, func(cfg config.CorrectorConfig) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if cfg.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
			}
			if cfg.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
			}
			return anyllm.New(name, cfg.Model, opts...)
		})
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the default logger with a mutable level so config reloads
// can adjust verbosity without restarting.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// secondsToDuration converts a fractional seconds config value to a Duration.
func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
