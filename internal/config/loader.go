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
	"asr":        {"deepgram"},
	"translator": {"openai", "openai-direct", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
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
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 0 || cfg.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is out of range [0, 2]", cfg.Audio.Channels))
	}
	if cfg.Audio.FrameMS < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_ms %d must not be negative", cfg.Audio.FrameMS))
	}
	if cfg.Audio.MaxBufferBytes < 0 {
		errs = append(errs, fmt.Errorf("audio.max_buffer_bytes %d must not be negative", cfg.Audio.MaxBufferBytes))
	}

	// Session
	if cfg.Session.PendingTranslations < 0 {
		errs = append(errs, fmt.Errorf("session.pending_translations %d must not be negative", cfg.Session.PendingTranslations))
	}
	if cfg.Session.RecognizerRetries < 0 {
		errs = append(errs, fmt.Errorf("session.recognizer_retries %d must not be negative", cfg.Session.RecognizerRetries))
	}
	if cfg.Session.ReplayFrames < 0 {
		errs = append(errs, fmt.Errorf("session.replay_frames %d must not be negative", cfg.Session.ReplayFrames))
	}

	// Providers
	if cfg.Providers.ASR.Name == "" {
		errs = append(errs, errors.New("providers.asr.name is required"))
	}
	validateProviderName("asr", cfg.Providers.ASR.Name)

	if cfg.Providers.Translator.Name != "" {
		validateProviderName("translator", cfg.Providers.Translator.Name)
		if cfg.Providers.Translator.TargetLanguage == "" {
			errs = append(errs, errors.New("providers.translator.target_language is required when a translator is configured"))
		}
		for i, fb := range cfg.Providers.Translator.Fallbacks {
			validateProviderName("translator", fb.Name)
			if fb.Name == "" {
				errs = append(errs, fmt.Errorf("providers.translator.fallbacks[%d].name is required", i))
			}
		}
	} else if len(cfg.Providers.Translator.Fallbacks) > 0 {
		errs = append(errs, errors.New("providers.translator.fallbacks set without a primary translator"))
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
