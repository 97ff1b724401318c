// Package anyllm provides an LLM-backed translator built on
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and more.
//
// Usage:
//
//	t, err := anyllm.New("groq", "llama-3.3-70b-versatile", "German", anyllmlib.WithAPIKey("gsk_..."))
//	t, err := anyllm.NewGroq("llama-3.3-70b-versatile", "German")
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/voxrelay/voxrelay/pkg/provider/translate"
)

// Translator implements translate.Translator by wrapping
// github.com/mozilla-ai/any-llm-go.
type Translator struct {
	backend      anyllmlib.Provider
	providerName string
	model        string
	target       string
}

// New creates a Translator backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama", "deepseek",
// "mistral", "groq", "llamacpp", "llamafile".
//
// model is the specific model to use (e.g., "llama-3.3-70b-versatile").
// targetLanguage is the human-readable language name translations are
// rendered into (e.g., "German", "Simplified Chinese").
//
// opts are any-llm-go configuration options (e.g., anyllmlib.WithAPIKey,
// anyllmlib.WithBaseURL). If no API key option is provided, the backend falls
// back to the relevant environment variable (e.g., GROQ_API_KEY).
func New(providerName, model, targetLanguage string, opts ...anyllmlib.Option) (*Translator, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}
	if targetLanguage == "" {
		return nil, fmt.Errorf("anyllm: targetLanguage must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Translator{
		backend:      backend,
		providerName: strings.ToLower(providerName),
		model:        model,
		target:       targetLanguage,
	}, nil
}

// NewGroq creates a Translator backed by Groq.
// Without options, it reads the GROQ_API_KEY environment variable.
func NewGroq(model, targetLanguage string, opts ...anyllmlib.Option) (*Translator, error) {
	return New("groq", model, targetLanguage, opts...)
}

// NewOpenAI creates a Translator backed by OpenAI.
// Without options, it reads the OPENAI_API_KEY environment variable.
func NewOpenAI(model, targetLanguage string, opts ...anyllmlib.Option) (*Translator, error) {
	return New("openai", model, targetLanguage, opts...)
}

// NewOllama creates a Translator backed by Ollama (local inference).
// Without options, it connects to http://localhost:11434.
func NewOllama(model, targetLanguage string, opts ...anyllmlib.Option) (*Translator, error) {
	return New("ollama", model, targetLanguage, opts...)
}

// createBackend creates the underlying any-llm-go provider for the given provider name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// Translate implements translate.Translator. It sends a single-turn
// completion request and extracts the tagged translation from the reply.
func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	params := anyllmlib.CompletionParams{
		Model: t.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleUser, Content: translate.Prompt(text, t.target)},
		},
	}

	resp, err := t.backend.Completion(ctx, params)
	if err != nil {
		return "", &translate.ProviderError{Provider: t.providerName, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &translate.ProviderError{
			Provider: t.providerName,
			Err:      fmt.Errorf("empty choices in response"),
		}
	}

	return translate.ExtractTagged(resp.Choices[0].Message.ContentString()), nil
}

// Ensure Translator implements translate.Translator at compile time.
var _ translate.Translator = (*Translator)(nil)
