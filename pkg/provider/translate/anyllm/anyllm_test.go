package anyllm

import (
	"strings"
	"testing"
)

// ── New validation ────────────────────────────────────────────────────────────

func TestNew_RequiresProviderName(t *testing.T) {
	if _, err := New("", "some-model", "German"); err == nil {
		t.Error("expected error for empty provider name")
	}
}

func TestNew_RequiresModel(t *testing.T) {
	if _, err := New("groq", "", "German"); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestNew_RequiresTargetLanguage(t *testing.T) {
	if _, err := New("groq", "some-model", ""); err == nil {
		t.Error("expected error for empty target language")
	}
}

func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("not-a-provider", "some-model", "German")
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
	if !strings.Contains(err.Error(), "unsupported provider") {
		t.Errorf("error = %v, want mention of unsupported provider", err)
	}
}

func TestNew_ProviderNameIsCaseInsensitive(t *testing.T) {
	tr, err := New("Ollama", "llama3", "German")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tr.providerName != "ollama" {
		t.Errorf("providerName = %q, want lower-cased %q", tr.providerName, "ollama")
	}
}

func TestNewOllama_DefaultsWork(t *testing.T) {
	tr, err := NewOllama("llama3", "French")
	if err != nil {
		t.Fatalf("NewOllama: %v", err)
	}
	if tr.model != "llama3" || tr.target != "French" {
		t.Errorf("translator = %+v", tr)
	}
}
