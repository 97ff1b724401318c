package translate

import (
	"errors"
	"strings"
	"testing"
)

func TestPrompt_ContainsTextAndLanguage(t *testing.T) {
	p := Prompt("good morning", "German")

	if !strings.Contains(p, "German") {
		t.Errorf("prompt %q missing target language", p)
	}
	if !strings.Contains(p, "<START>\ngood morning\n<END>") {
		t.Errorf("prompt %q missing tagged source text", p)
	}
}

func TestExtractTagged(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
	}{
		"tagged":            {"<START>Guten Morgen<END>", "Guten Morgen"},
		"tagged with chat":  {"Sure! Here it is: <START> Guten Morgen <END> Hope that helps.", "Guten Morgen"},
		"missing tags":      {"  Guten Morgen  ", "Guten Morgen"},
		"end before start":  {"<END>nope<START>", "<END>nope<START>"},
		"only start tag":    {"<START>Guten Morgen", "<START>Guten Morgen"},
		"empty between":     {"<START><END>", ""},
		"multiline payload": {"<START>\nGuten\nMorgen\n<END>", "Guten\nMorgen"},
	}

	for name, tc := range cases {
		if got := ExtractTagged(tc.in); got != tc.want {
			t.Errorf("%s: ExtractTagged(%q) = %q, want %q", name, tc.in, got, tc.want)
		}
	}
}

func TestProviderError_Unwrap(t *testing.T) {
	inner := errors.New("rate limited")
	err := &ProviderError{Provider: "groq", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is should match the wrapped error")
	}
	if !strings.Contains(err.Error(), "groq") {
		t.Errorf("Error() = %q, should name the provider", err.Error())
	}

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Error("errors.As should match *ProviderError")
	}
}
