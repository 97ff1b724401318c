package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxrelay/voxrelay/pkg/provider/asr"
	asrmock "github.com/voxrelay/voxrelay/pkg/provider/asr/mock"
	trmock "github.com/voxrelay/voxrelay/pkg/provider/translate/mock"
)

// fastConfig keeps session timing snappy for tests.
func fastConfig() SessionConfig {
	return SessionConfig{
		RetryBase:  time.Millisecond,
		RetryMax:   5 * time.Millisecond,
		DrainGrace: 500 * time.Millisecond,
	}
}

// collect reads n messages from sub, failing the test on timeout.
func collect(t *testing.T, sub *Subscription, n int) []OutboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out := make([]OutboundMessage, 0, n)
	for len(out) < n {
		msg, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("Next after %d messages: %v", len(out), err)
		}
		out = append(out, msg)
	}
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func indexOf(msgs []OutboundMessage, typ MessageType, result string) int {
	for i, m := range msgs {
		if m.Type == typ && m.Result == result {
			return i
		}
	}
	return -1
}

func TestSession_RecognizedThenTranslatedInOrder(t *testing.T) {
	st := asrmock.NewStream()
	p := &asrmock.Provider{Stream: st}
	bus := NewBroadcaster(nil)
	sub := bus.Subscribe("c1", 64)
	tr := &trmock.Translator{}

	s := NewSession("c1", p, bus, fastConfig(), WithTranslator(tr))
	go s.Run(context.Background())
	defer func() { s.Close(); <-s.Done() }()

	st.EventsCh <- asr.Event{Kind: asr.KindFinal, Text: "one"}
	st.EventsCh <- asr.Event{Kind: asr.KindFinal, Text: "two"}

	msgs := collect(t, sub, 4)

	rec1 := indexOf(msgs, TypeRecognized, "one")
	rec2 := indexOf(msgs, TypeRecognized, "two")
	tr1 := indexOf(msgs, TypeTranslated, "xlated:one")
	tr2 := indexOf(msgs, TypeTranslated, "xlated:two")
	for name, idx := range map[string]int{
		"recognized one": rec1, "recognized two": rec2,
		"translated one": tr1, "translated two": tr2,
	} {
		if idx < 0 {
			t.Fatalf("missing message %q in %+v", name, msgs)
		}
	}

	// recognized precedes its translation, utterances keep assignment order.
	if rec1 > tr1 {
		t.Error("translated one arrived before recognized one")
	}
	if rec2 > tr2 {
		t.Error("translated two arrived before recognized two")
	}
	if rec1 > rec2 {
		t.Error("recognized messages out of utterance order")
	}
	if tr1 > tr2 {
		t.Error("translated messages out of utterance order")
	}

	// Happy path: sequence strictly increasing, no gaps.
	for i, m := range msgs {
		if m.Sequence != uint64(i+1) {
			t.Errorf("message %d has sequence %d, want %d", i, m.Sequence, i+1)
		}
	}
}

func TestSession_InterimsOnlyNeverTranslate(t *testing.T) {
	st := asrmock.NewStream()
	p := &asrmock.Provider{Stream: st}
	bus := NewBroadcaster(nil)
	sub := bus.Subscribe("c1", 64)
	tr := &trmock.Translator{}

	s := NewSession("c1", p, bus, fastConfig(), WithTranslator(tr))
	go s.Run(context.Background())

	for _, text := range []string{"h", "he", "hel", "hell", "hello"} {
		st.EventsCh <- asr.Event{Kind: asr.KindInterim, Text: text}
	}

	// Wait until at least one interim came through, then close.
	msg := collect(t, sub, 1)[0]
	if msg.Type != TypeRecognizing {
		t.Fatalf("got %v, want recognizing", msg.Type)
	}

	s.Close()
	<-s.Done()

	if tr.CallCount() != 0 {
		t.Errorf("translator called %d times for interim-only session", tr.CallCount())
	}
	// Drain the rest; nothing may be a translated message.
	ctx := context.Background()
	for {
		m, err := sub.Next(ctx)
		if errors.Is(err, ErrSubscriptionClosed) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if m.Type == TypeTranslated {
			t.Errorf("unexpected translated message: %+v", m)
		}
	}
}

func TestSession_MalformedFirstChunkIsFatal(t *testing.T) {
	st := asrmock.NewStream()
	p := &asrmock.Provider{Stream: st}
	bus := NewBroadcaster(nil)
	sub := bus.Subscribe("c1", 64)

	s := NewSession("c1", p, bus, fastConfig())
	go s.Run(context.Background())

	if err := s.IngestAudio([]byte("definitely not a wav header")); err != nil {
		t.Fatalf("IngestAudio: %v", err)
	}

	<-s.Done()
	if !errors.Is(s.Err(), ErrMalformedAudio) {
		t.Fatalf("Err = %v, want ErrMalformedAudio", s.Err())
	}
	if s.State() != StateClosed {
		t.Errorf("State = %v, want closed", s.State())
	}
	if st.SendAudioCount() != 0 {
		t.Errorf("recognizer received %d frames from a malformed stream", st.SendAudioCount())
	}
	// No message was ever published.
	if _, err := sub.Next(context.Background()); !errors.Is(err, ErrSubscriptionClosed) {
		t.Fatalf("Next = %v, want ErrSubscriptionClosed", err)
	}
}

func TestSession_SpeakersGetStableDisplayIDs(t *testing.T) {
	st := asrmock.NewStream()
	p := &asrmock.Provider{Stream: st}
	bus := NewBroadcaster(nil)
	sub := bus.Subscribe("c1", 64)

	s := NewSession("c1", p, bus, fastConfig())
	go s.Run(context.Background())
	defer func() { s.Close(); <-s.Done() }()

	st.EventsCh <- asr.Event{Kind: asr.KindFinal, Text: "hi there", SpeakerLabel: "0"}
	st.EventsCh <- asr.Event{Kind: asr.KindFinal, Text: "oh hello", SpeakerLabel: "1"}
	st.EventsCh <- asr.Event{Kind: asr.KindFinal, Text: "how are you", SpeakerLabel: "0"}

	msgs := collect(t, sub, 3)
	want := []string{"Guest-1", "Guest-2", "Guest-1"}
	for i, m := range msgs {
		if m.Speaker != want[i] {
			t.Errorf("message %d speaker = %q, want %q", i, m.Speaker, want[i])
		}
	}
}

func TestSession_TranslatorFailureIsPerUtterance(t *testing.T) {
	st := asrmock.NewStream()
	p := &asrmock.Provider{Stream: st}
	bus := NewBroadcaster(nil)
	sub := bus.Subscribe("c1", 64)
	tr := &trmock.Translator{Err: errors.New("quota exceeded")}

	s := NewSession("c1", p, bus, fastConfig(), WithTranslator(tr))
	go s.Run(context.Background())

	st.EventsCh <- asr.Event{Kind: asr.KindFinal, Text: "one"}
	st.EventsCh <- asr.Event{Kind: asr.KindFinal, Text: "two"}

	msgs := collect(t, sub, 2)
	for _, m := range msgs {
		if m.Type != TypeRecognized {
			t.Errorf("got %v message, want only recognized", m.Type)
		}
	}
	waitFor(t, "translator attempts", func() bool { return tr.CallCount() == 2 })

	// Session survives translation failures.
	select {
	case <-s.Done():
		t.Fatal("session terminated on translation failure")
	default:
	}

	s.Close()
	<-s.Done()
	if s.Err() != nil {
		t.Errorf("Err = %v, want nil", s.Err())
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	st := asrmock.NewStream()
	p := &asrmock.Provider{Stream: st}
	bus := NewBroadcaster(nil)

	s := NewSession("c1", p, bus, fastConfig())
	go s.Run(context.Background())

	waitFor(t, "session active", func() bool { return s.State() == StateActive })

	s.Close()
	<-s.Done()
	s.Close() // no-op
	s.Close() // still a no-op

	if s.Err() != nil {
		t.Errorf("Err = %v, want nil", s.Err())
	}
	if err := s.IngestAudio([]byte("x")); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("IngestAudio after close = %v, want ErrSessionClosed", err)
	}
}

func TestSession_RecognizerRestartReplaysRecentFrames(t *testing.T) {
	st1 := asrmock.NewStream()
	st2 := asrmock.NewStream()
	p := &asrmock.Provider{Streams: []asr.StreamHandle{st1, st2}}
	bus := NewBroadcaster(nil)
	sub := bus.Subscribe("c1", 64)

	s := NewSession("c1", p, bus, fastConfig())
	go s.Run(context.Background())
	defer func() { s.Close(); <-s.Done() }()

	frameBytes := s.assembler.FrameBytes()
	if err := s.IngestAudio(wavChunk(pcm(2*frameBytes, 0x7F))); err != nil {
		t.Fatalf("IngestAudio: %v", err)
	}
	waitFor(t, "frames on first stream", func() bool { return st1.SendAudioCount() == 2 })

	// Terminal stream failure: the session restarts and replays the ring.
	st1.CloseEvents(errors.New("connection reset"))

	waitFor(t, "second StartStream", func() bool { return p.StartCount() == 2 })
	waitFor(t, "replayed frames", func() bool { return st2.SendAudioCount() == 2 })

	// The restarted stream keeps feeding the pipeline.
	st2.EventsCh <- asr.Event{Kind: asr.KindFinal, Text: "back online"}
	msg := collect(t, sub, 1)[0]
	if msg.Type != TypeRecognized || msg.Result != "back online" {
		t.Errorf("got %+v", msg)
	}
}

func TestSession_RecognizerRetriesExhausted(t *testing.T) {
	p := &asrmock.Provider{StartStreamErr: errors.New("upstream down")}
	bus := NewBroadcaster(nil)

	cfg := fastConfig()
	cfg.RecognizerRetries = 2
	s := NewSession("c1", p, bus, cfg)
	go s.Run(context.Background())

	<-s.Done()
	if !errors.Is(s.Err(), ErrRecognizerUnavailable) {
		t.Fatalf("Err = %v, want ErrRecognizerUnavailable", s.Err())
	}
	if got := p.StartCount(); got != 3 {
		t.Errorf("StartStream called %d times, want 3 (1 + 2 retries)", got)
	}
}

func TestSession_PendingTranslationsEvictOldest(t *testing.T) {
	st := asrmock.NewStream()
	p := &asrmock.Provider{Stream: st}
	bus := NewBroadcaster(nil)
	sub := bus.Subscribe("c1", 64)

	gate := make(chan struct{})
	tr := &trmock.Translator{Gate: gate}

	cfg := fastConfig()
	cfg.MaxPendingTranslations = 2
	s := NewSession("c1", p, bus, cfg, WithTranslator(tr))
	go s.Run(context.Background())
	defer func() { s.Close(); <-s.Done() }()

	// The first final goes in-flight and blocks on the gate; the rest pile up
	// behind the pending bound.
	for _, text := range []string{"one", "two", "three", "four"} {
		st.EventsCh <- asr.Event{Kind: asr.KindFinal, Text: text}
	}
	msgs := collect(t, sub, 4) // the four recognized messages
	for _, m := range msgs {
		if m.Type != TypeRecognized {
			t.Fatalf("expected only recognized before gate opens, got %v", m.Type)
		}
	}
	waitFor(t, "first translation in flight", func() bool { return tr.CallCount() == 1 })

	close(gate)

	// "one" was evicted while in flight (result discarded), "two" was evicted
	// before dispatch; only the newest two utterances get translations.
	got := collect(t, sub, 2)
	want := map[string]bool{"xlated:three": true, "xlated:four": true}
	for _, m := range got {
		if m.Type != TypeTranslated || !want[m.Result] {
			t.Errorf("unexpected message %+v", m)
		}
		delete(want, m.Result)
	}
	if len(want) != 0 {
		t.Errorf("missing translations: %v", want)
	}
}

func TestSession_IdleTimeoutClosesCleanly(t *testing.T) {
	st := asrmock.NewStream()
	p := &asrmock.Provider{Stream: st}
	bus := NewBroadcaster(nil)

	cfg := fastConfig()
	cfg.IdleTimeout = 50 * time.Millisecond
	s := NewSession("c1", p, bus, cfg)
	go s.Run(context.Background())

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("idle session did not close")
	}
	if s.Err() != nil {
		t.Errorf("Err = %v, want nil", s.Err())
	}
	if st.CloseCount() == 0 {
		t.Error("recognizer stream was not closed")
	}
}
