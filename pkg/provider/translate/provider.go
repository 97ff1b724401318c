// Package translate defines the Translator interface for text translation
// backends.
//
// Translation in the relay is an enhancement, not a dependency of core
// transcription: a failing translator never takes a session down. Failures
// surface as *ProviderError so callers can log and move on.
package translate

import (
	"context"
	"fmt"
)

// Translator is the abstraction over any translation backend.
//
// Implementations must be safe for concurrent use; a single Translator is
// shared by all sessions.
type Translator interface {
	// Translate returns text rendered into the translator's configured target
	// language. It fails with *ProviderError on quota, timeout, or network
	// issues.
	Translate(ctx context.Context, text string) (string, error)
}

// ProviderError describes a failed translation call. It wraps the underlying
// transport or API error.
type ProviderError struct {
	// Provider is the backend name (e.g., "groq", "openai").
	Provider string

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("translate: provider %s: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error { return e.Err }
