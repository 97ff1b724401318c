package deepgram

import (
	"strings"
	"testing"

	"github.com/voxrelay/voxrelay/pkg/audio"
	"github.com/voxrelay/voxrelay/pkg/provider/asr"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	u, err := p.buildURL(asr.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	for _, want := range []string{
		"model=nova-3",
		"language=en",
		"interim_results=true",
		"encoding=linear16",
		"sample_rate=16000",
	} {
		if !strings.Contains(u, want) {
			t.Errorf("URL %q missing %q", u, want)
		}
	}
	if strings.Contains(u, "diarize") {
		t.Errorf("URL %q should not request diarization by default", u)
	}
}

func TestBuildURL_DiarizeAndOverrides(t *testing.T) {
	p, err := New("key", WithModel("base"), WithLanguage("de"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	u, err := p.buildURL(asr.StreamConfig{
		Format:  audio.Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16},
		Diarize: true,
	})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	for _, want := range []string{"model=base", "language=de", "sample_rate=8000", "diarize=true"} {
		if !strings.Contains(u, want) {
			t.Errorf("URL %q missing %q", u, want)
		}
	}
}

func TestParseResponse_Final(t *testing.T) {
	msg := []byte(`{
		"type": "Results",
		"is_final": true,
		"channel": {"alternatives": [{
			"transcript": "hello there",
			"confidence": 0.98,
			"words": [{"word": "hello", "speaker": 1}, {"word": "there", "speaker": 1}]
		}]}
	}`)

	ev, ok := parseResponse(msg)
	if !ok {
		t.Fatal("expected event")
	}
	if ev.Kind != asr.KindFinal {
		t.Errorf("Kind = %v, want final", ev.Kind)
	}
	if ev.Text != "hello there" {
		t.Errorf("Text = %q", ev.Text)
	}
	if ev.SpeakerLabel != "1" {
		t.Errorf("SpeakerLabel = %q, want %q", ev.SpeakerLabel, "1")
	}
	if ev.Confidence != 0.98 {
		t.Errorf("Confidence = %v, want 0.98", ev.Confidence)
	}
}

func TestParseResponse_InterimWithoutSpeaker(t *testing.T) {
	msg := []byte(`{
		"type": "Results",
		"is_final": false,
		"channel": {"alternatives": [{"transcript": "hel", "confidence": 0.4, "words": []}]}
	}`)

	ev, ok := parseResponse(msg)
	if !ok {
		t.Fatal("expected event")
	}
	if ev.Kind != asr.KindInterim {
		t.Errorf("Kind = %v, want interim", ev.Kind)
	}
	if ev.SpeakerLabel != "" {
		t.Errorf("SpeakerLabel = %q, want empty", ev.SpeakerLabel)
	}
}

func TestParseResponse_Ignored(t *testing.T) {
	cases := map[string]string{
		"metadata":   `{"type": "Metadata"}`,
		"empty text": `{"type": "Results", "channel": {"alternatives": [{"transcript": ""}]}}`,
		"no alts":    `{"type": "Results", "channel": {"alternatives": []}}`,
		"bad json":   `{nope`,
	}
	for name, msg := range cases {
		if _, ok := parseResponse([]byte(msg)); ok {
			t.Errorf("%s: expected message to be ignored", name)
		}
	}
}
