// Package mock provides a test double for the translate.Translator interface.
//
// Use Translator to return canned translations and inspect which texts were
// submitted:
//
//	tr := &mock.Translator{Results: map[string]string{"hello": "hallo"}}
//	out, _ := tr.Translate(ctx, "hello")
package mock

import (
	"context"
	"sync"

	"github.com/voxrelay/voxrelay/pkg/provider/translate"
)

// Translator is a mock implementation of translate.Translator.
type Translator struct {
	mu sync.Mutex

	// Results maps input text to the translation to return. Inputs not in
	// the map are returned with the Prefix applied.
	Results map[string]string

	// Prefix is prepended to inputs missing from Results. Defaults to
	// "xlated:" so tests can tell originals and translations apart.
	Prefix string

	// Err, if non-nil, is returned by every Translate call.
	Err error

	// TranslateFunc, if non-nil, replaces the default behavior entirely.
	TranslateFunc func(ctx context.Context, text string) (string, error)

	// Calls records every text passed to Translate.
	Calls []string

	// Gate, if non-nil, is received from before each Translate call returns.
	// Tests use it to hold translations in flight.
	Gate chan struct{}
}

// Translate records the call and returns the configured translation.
func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	t.mu.Lock()
	t.Calls = append(t.Calls, text)
	fn := t.TranslateFunc
	gate := t.Gate
	err := t.Err
	result, ok := t.Results[text]
	prefix := t.Prefix
	t.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if ok {
		return result, nil
	}
	if prefix == "" {
		prefix = "xlated:"
	}
	return prefix + text, nil
}

// CallCount returns the number of Translate calls. Thread-safe.
func (t *Translator) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}

// CallAt returns the i-th recorded input text. Thread-safe.
func (t *Translator) CallAt(i int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Calls[i]
}

// Ensure Translator implements translate.Translator at compile time.
var _ translate.Translator = (*Translator)(nil)
