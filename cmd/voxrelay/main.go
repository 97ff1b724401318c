// Command voxrelay is the main entry point for the VoxRelay transcription
// and translation relay server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/voxrelay/voxrelay/internal/config"
	"github.com/voxrelay/voxrelay/internal/health"
	"github.com/voxrelay/voxrelay/internal/observe"
	"github.com/voxrelay/voxrelay/internal/relay"
	"github.com/voxrelay/voxrelay/internal/resilience"
	"github.com/voxrelay/voxrelay/internal/server"
	"github.com/voxrelay/voxrelay/pkg/audio"
	"github.com/voxrelay/voxrelay/pkg/provider/asr"
	"github.com/voxrelay/voxrelay/pkg/provider/asr/deepgram"
	"github.com/voxrelay/voxrelay/pkg/provider/translate"
	"github.com/voxrelay/voxrelay/pkg/provider/translate/anyllm"
	oaitranslate "github.com/voxrelay/voxrelay/pkg/provider/translate/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxrelay: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxrelay: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxrelay starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voxrelay",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	recognizer, err := reg.CreateASR(cfg.Providers.ASR)
	if err != nil {
		slog.Error("failed to create recognizer provider", "name", cfg.Providers.ASR.Name, "err", err)
		return 1
	}
	slog.Info("provider created", "kind", "asr", "name", cfg.Providers.ASR.Name)

	translator, err := buildTranslator(cfg, reg)
	if err != nil {
		slog.Error("failed to create translator", "err", err)
		return 1
	}
	if translator != nil {
		slog.Info("provider created",
			"kind", "translator",
			"name", cfg.Providers.Translator.Name,
			"target_language", cfg.Providers.Translator.TargetLanguage,
			"fallbacks", len(cfg.Providers.Translator.Fallbacks),
		)
	}

	// ── Relay core ────────────────────────────────────────────────────────────
	bus := relay.NewBroadcaster(metrics)

	sessions, err := relay.NewRegistry(relay.RegistryConfig{
		Provider:    recognizer,
		Translator:  translator,
		Broadcaster: bus,
		Session:     sessionConfig(cfg),
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		slog.Error("failed to create session registry", "err", err)
		return 1
	}

	// ── HTTP / WebSocket surface ──────────────────────────────────────────────
	srvCfg := server.Config{
		ListenAddr:      cfg.Server.ListenAddr,
		StaticDir:       cfg.Server.StaticDir,
		SubscriberQueue: cfg.Session.SubscriberQueue,
		DumpDir:         cfg.Audio.DumpDir,
	}
	if cfg.Server.TLS != nil {
		srvCfg.CertFile = cfg.Server.TLS.CertFile
		srvCfg.KeyFile = cfg.Server.TLS.KeyFile
	}

	srv, err := server.New(srvCfg, sessions, bus,
		server.WithLogger(logger),
		server.WithMetrics(metrics),
		server.WithHealthCheckers(
			health.Checker{Name: "asr", Check: func(context.Context) error {
				if recognizer == nil {
					return errors.New("no recognizer configured")
				}
				return nil
			}},
			health.Checker{Name: "sessions", Check: func(context.Context) error {
				// Sessions are transient; readiness only requires the
				// registry to accept new ones.
				_ = sessions.Len()
				return nil
			}},
		),
	)
	if err != nil {
		slog.Error("failed to create server", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmProviders are the translator backends routed through any-llm-go.
// "ollama", "llamacpp", and "llamafile" are local servers addressed via
// base_url; the rest authenticate with an API key.
var anyllmProviders = []string{
	"openai", "anthropic", "gemini",
	"deepseek", "mistral", "groq",
	"ollama", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── ASR ───────────────────────────────────────────────────────────────────

	reg.RegisterASR("deepgram", func(entry config.ProviderEntry) (asr.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, deepgram.WithLanguage(entry.Language))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── Translators ───────────────────────────────────────────────────────────

	for _, providerName := range anyllmProviders {
		reg.RegisterTranslator(providerName, func(entry config.TranslatorEntry) (translate.Translator, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(entry.Name, entry.Model, entry.TargetLanguage, opts...)
		})
	}

	// openai-direct bypasses any-llm-go and talks to the OpenAI API with the
	// official client.
	reg.RegisterTranslator("openai-direct", func(entry config.TranslatorEntry) (translate.Translator, error) {
		var opts []oaitranslate.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaitranslate.WithBaseURL(entry.BaseURL))
		}
		return oaitranslate.New(entry.APIKey, entry.Model, entry.TargetLanguage, opts...)
	})

	for _, name := range anyllmProviders {
		slog.Debug("registered provider", "kind", "translator", "name", name)
	}
}

// buildTranslator instantiates the configured translator chain: the primary
// backend plus optional fallbacks, wrapped in retry and per-backend circuit
// breakers. Returns nil when no translator is configured.
func buildTranslator(cfg *config.Config, reg *config.Registry) (translate.Translator, error) {
	tc := cfg.Providers.Translator
	if tc.Name == "" {
		return nil, nil
	}

	primary, err := reg.CreateTranslator(tc)
	if err != nil {
		return nil, fmt.Errorf("create translator %q: %w", tc.Name, err)
	}

	group := resilience.NewTranslatorFallback(primary, tc.Name, tc.Attempts,
		resilience.Backoff{}, resilience.FallbackConfig{})
	for _, fb := range tc.Fallbacks {
		entry := config.TranslatorEntry{
			ProviderEntry:  fb,
			TargetLanguage: tc.TargetLanguage,
		}
		t, err := reg.CreateTranslator(entry)
		if err != nil {
			return nil, fmt.Errorf("create fallback translator %q: %w", fb.Name, err)
		}
		group.AddFallback(fb.Name, t)
	}
	return group, nil
}

// sessionConfig translates the YAML session block into relay tuning.
func sessionConfig(cfg *config.Config) relay.SessionConfig {
	format := audio.DefaultFormat
	if cfg.Audio.SampleRate > 0 {
		format.SampleRate = cfg.Audio.SampleRate
	}
	if cfg.Audio.Channels > 0 {
		format.Channels = cfg.Audio.Channels
	}

	sc := relay.SessionConfig{
		Format:                 format,
		MaxBufferBytes:         cfg.Audio.MaxBufferBytes,
		Language:               cfg.Providers.ASR.Language,
		Diarize:                true,
		IdleTimeout:            cfg.Session.IdleTimeout.Std(),
		DrainGrace:             cfg.Session.DrainGrace.Std(),
		MaxPendingTranslations: cfg.Session.PendingTranslations,
		RecognizerRetries:      cfg.Session.RecognizerRetries,
		RetryBase:              cfg.Session.RetryBase.Std(),
		RetryMax:               cfg.Session.RetryMax.Std(),
		ReplayFrames:           cfg.Session.ReplayFrames,
	}
	if cfg.Audio.FrameMS > 0 {
		sc.FrameDuration = time.Duration(cfg.Audio.FrameMS) * time.Millisecond
	}
	return sc
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
