package resilience

import (
	"context"

	"github.com/voxrelay/voxrelay/pkg/provider/translate"
)

// TranslatorFallback implements [translate.Translator] with bounded retries
// and automatic failover across multiple translation backends. Each backend
// has its own circuit breaker; when the primary fails or its breaker is open,
// the next healthy fallback is tried.
type TranslatorFallback struct {
	group    *FallbackGroup[translate.Translator]
	attempts int
	backoff  Backoff
}

// Compile-time interface assertion.
var _ translate.Translator = (*TranslatorFallback)(nil)

// NewTranslatorFallback creates a [TranslatorFallback] with primary as the
// preferred backend. attempts is the total number of tries across the group
// per utterance; <= 0 selects 3.
func NewTranslatorFallback(primary translate.Translator, primaryName string, attempts int, backoff Backoff, cfg FallbackConfig) *TranslatorFallback {
	if attempts <= 0 {
		attempts = 3
	}
	return &TranslatorFallback{
		group:    NewFallbackGroup(primary, primaryName, cfg),
		attempts: attempts,
		backoff:  backoff,
	}
}

// AddFallback registers an additional translation backend as a fallback.
func (f *TranslatorFallback) AddFallback(name string, t translate.Translator) {
	f.group.AddFallback(name, t)
}

// Translate sends the text to the first healthy backend, retrying the whole
// group with backoff until attempts are exhausted.
func (f *TranslatorFallback) Translate(ctx context.Context, text string) (string, error) {
	var out string
	err := Retry(ctx, f.attempts, f.backoff, func(ctx context.Context) error {
		res, err := ExecuteWithResult(f.group, func(t translate.Translator) (string, error) {
			return t.Translate(ctx, text)
		})
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}
