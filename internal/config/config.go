// Package config provides the configuration schema, loader, and provider
// registry for the VoxRelay server.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the VoxRelay server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration wraps time.Duration so YAML configs can use strings like "2m" or
// "500ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for VoxRelay.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Session   SessionConfig   `yaml:"session"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig holds network and logging settings for the VoxRelay server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// StaticDir, when set, serves a directory of static files (the demo
	// client page) next to the WebSocket endpoint.
	StaticDir string `yaml:"static_dir"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// AudioConfig describes the inbound audio encoding and framing.
type AudioConfig struct {
	// SampleRate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// Channels. Default: 1 (mono).
	Channels int `yaml:"channels"`

	// FrameMS is the fixed frame duration in milliseconds. Default: 100.
	FrameMS int `yaml:"frame_ms"`

	// MaxBufferBytes bounds the per-session assembler buffer. Default: 1 MiB.
	MaxBufferBytes int `yaml:"max_buffer_bytes"`

	// DumpDir, when set, writes every received audio chunk into a
	// per-connection subdirectory for debugging.
	DumpDir string `yaml:"dump_dir"`
}

// SessionConfig holds per-session lifecycle tuning.
type SessionConfig struct {
	// IdleTimeout tears a session down when no audio arrives. Default: 2m.
	IdleTimeout Duration `yaml:"idle_timeout"`

	// DrainGrace bounds the wait for in-flight translations on stop.
	// Default: 10s.
	DrainGrace Duration `yaml:"drain_grace"`

	// PendingTranslations bounds outstanding translation entries. Default: 32.
	PendingTranslations int `yaml:"pending_translations"`

	// RecognizerRetries is the restart budget after a terminal recognizer
	// failure. Default: 4.
	RecognizerRetries int `yaml:"recognizer_retries"`

	// RetryBase and RetryMax shape the restart backoff. Defaults: 500ms, 8s.
	RetryBase Duration `yaml:"retry_base"`
	RetryMax  Duration `yaml:"retry_max"`

	// ReplayFrames is how many recent frames are replayed into a restarted
	// recognizer stream. Default: 50.
	ReplayFrames int `yaml:"replay_frames"`

	// SubscriberQueue bounds each subscriber's outbound queue. Default: 64.
	SubscriberQueue int `yaml:"subscriber_queue"`
}

// ProvidersConfig selects the recognizer and translator backends. Each entry
// names a factory registered in the [Registry].
type ProvidersConfig struct {
	ASR        ProviderEntry   `yaml:"asr"`
	Translator TranslatorEntry `yaml:"translator"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "deepgram", "groq").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "nova-3").
	Model string `yaml:"model"`

	// Language is a provider-specific language hint (recognition language
	// for ASR providers).
	Language string `yaml:"language"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// TranslatorEntry extends ProviderEntry with translation-specific settings.
type TranslatorEntry struct {
	ProviderEntry `yaml:",inline"`

	// TargetLanguage is the human-readable language translations are
	// rendered into (e.g., "German"). Required when a translator is
	// configured.
	TargetLanguage string `yaml:"target_language"`

	// Attempts is the per-utterance retry budget across the translator
	// group. Default: 3.
	Attempts int `yaml:"attempts"`

	// Fallbacks lists additional backends tried in order when the primary
	// fails or its circuit breaker is open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}
