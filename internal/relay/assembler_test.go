package relay

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/voxrelay/voxrelay/pkg/audio"
)

// wavChunk frames payload as one WAV block the way the browser client does.
func wavChunk(payload []byte) []byte {
	return append(audio.AppendWAVHeader(nil, audio.DefaultFormat, len(payload)), payload...)
}

func pcm(n int, fill byte) []byte {
	return bytes.Repeat([]byte{fill}, n)
}

func TestAssembler_FirstChunkMustBeWAV(t *testing.T) {
	a := NewAssembler(audio.DefaultFormat, 0, 0)

	_, err := a.Ingest(pcm(3200, 0x01))
	if !errors.Is(err, ErrMalformedAudio) {
		t.Fatalf("err = %v, want ErrMalformedAudio", err)
	}
}

func TestAssembler_FirstChunkFormatMismatch(t *testing.T) {
	a := NewAssembler(audio.DefaultFormat, 0, 0)

	other := audio.Format{SampleRate: 44100, Channels: 2, BitsPerSample: 16}
	chunk := append(audio.AppendWAVHeader(nil, other, 1600), pcm(1600, 0)...)

	_, err := a.Ingest(chunk)
	if !errors.Is(err, ErrMalformedAudio) {
		t.Fatalf("err = %v, want ErrMalformedAudio", err)
	}
}

func TestAssembler_EmitsFixedFrames(t *testing.T) {
	a := NewAssembler(audio.DefaultFormat, 100*time.Millisecond, 0)
	want := audio.DefaultFormat.BytesPerDuration(100 * time.Millisecond) // 3200

	frames, err := a.Ingest(wavChunk(pcm(want+want/2, 0xAB)))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if len(frames[0].Data) != want {
		t.Errorf("frame size = %d, want %d", len(frames[0].Data), want)
	}
	if frames[0].Samples != want/2 {
		t.Errorf("Samples = %d, want %d", frames[0].Samples, want/2)
	}
	if a.Buffered() != want/2 {
		t.Errorf("Buffered = %d, want %d", a.Buffered(), want/2)
	}

	// The remainder completes into a second frame with bare PCM.
	frames, err = a.Ingest(pcm(want/2, 0xAB))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if a.Buffered() != 0 {
		t.Errorf("Buffered = %d, want 0", a.Buffered())
	}
}

func TestAssembler_PreservesByteOrder(t *testing.T) {
	a := NewAssembler(audio.DefaultFormat, 100*time.Millisecond, 0)
	frameBytes := a.FrameBytes()

	first := make([]byte, frameBytes/2)
	second := make([]byte, frameBytes/2)
	for i := range first {
		first[i] = byte(i)
		second[i] = byte(i + 1)
	}

	if _, err := a.Ingest(wavChunk(first)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	frames, err := a.Ingest(second)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if !bytes.Equal(frames[0].Data[:frameBytes/2], first) {
		t.Error("first half reordered")
	}
	if !bytes.Equal(frames[0].Data[frameBytes/2:], second) {
		t.Error("second half reordered")
	}
}

func TestAssembler_StripsSubsequentWAVHeaders(t *testing.T) {
	a := NewAssembler(audio.DefaultFormat, 100*time.Millisecond, 0)
	frameBytes := a.FrameBytes()

	if _, err := a.Ingest(wavChunk(pcm(frameBytes, 0x01))); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	frames, err := a.Ingest(wavChunk(pcm(frameBytes, 0x02)))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	for _, b := range frames[0].Data {
		if b != 0x02 {
			t.Fatal("WAV header bytes leaked into the frame payload")
		}
	}
}

func TestAssembler_Overflow(t *testing.T) {
	a := NewAssembler(audio.DefaultFormat, 100*time.Millisecond, 4096)

	if _, err := a.Ingest(wavChunk(pcm(100, 0))); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	_, err := a.Ingest(pcm(64*1024, 0))
	if !errors.Is(err, ErrFrameOverflow) {
		t.Fatalf("err = %v, want ErrFrameOverflow", err)
	}
}
