package relay

import (
	"fmt"
	"time"

	"github.com/voxrelay/voxrelay/pkg/audio"
)

const (
	// DefaultFrameDuration is the fixed duration of emitted frames.
	DefaultFrameDuration = 100 * time.Millisecond

	// DefaultMaxBufferBytes bounds the assembler's internal buffer.
	DefaultMaxBufferBytes = 1 << 20 // 1 MiB
)

// Assembler normalises raw inbound byte chunks into fixed-duration audio
// frames. The first chunk must carry a WAV header matching the negotiated
// format; later chunks may be bare PCM or further WAV blocks (the browser
// client sends one WAV block per message — headers are validated and
// stripped). Bytes are never dropped or reordered.
//
// Not safe for concurrent use; it is owned by the session's event loop.
type Assembler struct {
	format     audio.Format
	frameBytes int
	maxBuffer  int
	buf        []byte
	started    bool
}

// NewAssembler creates an assembler for the given negotiated format. A zero
// frameDuration or maxBufferBytes selects the package default.
func NewAssembler(format audio.Format, frameDuration time.Duration, maxBufferBytes int) *Assembler {
	if frameDuration <= 0 {
		frameDuration = DefaultFrameDuration
	}
	if maxBufferBytes <= 0 {
		maxBufferBytes = DefaultMaxBufferBytes
	}
	return &Assembler{
		format:     format,
		frameBytes: format.BytesPerDuration(frameDuration),
		maxBuffer:  maxBufferBytes,
	}
}

// Ingest consumes one raw chunk and returns zero or more complete frames in
// strict arrival order. It fails with ErrMalformedAudio when the chunk's
// declared encoding does not match the negotiated one, and with
// ErrFrameOverflow when the internal buffer exceeds its ceiling.
func (a *Assembler) Ingest(raw []byte) ([]audio.Frame, error) {
	payload := raw

	if !a.started {
		format, data, err := audio.ParseWAVBlock(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: first chunk: %v", ErrMalformedAudio, err)
		}
		if !format.Equal(a.format) {
			return nil, fmt.Errorf("%w: got %d Hz/%d ch/%d bit, want %d Hz/%d ch/%d bit",
				ErrMalformedAudio,
				format.SampleRate, format.Channels, format.BitsPerSample,
				a.format.SampleRate, a.format.Channels, a.format.BitsPerSample)
		}
		a.started = true
		payload = data
	} else if audio.IsWAVBlock(raw) {
		format, data, err := audio.ParseWAVBlock(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedAudio, err)
		}
		if !format.Equal(a.format) {
			return nil, fmt.Errorf("%w: encoding changed mid-stream", ErrMalformedAudio)
		}
		payload = data
	}

	if len(a.buf)+len(payload) > a.maxBuffer+a.frameBytes {
		return nil, fmt.Errorf("%w: %d bytes buffered, ceiling %d",
			ErrFrameOverflow, len(a.buf)+len(payload), a.maxBuffer)
	}
	a.buf = append(a.buf, payload...)

	var frames []audio.Frame
	for len(a.buf) >= a.frameBytes {
		data := make([]byte, a.frameBytes)
		copy(data, a.buf)
		a.buf = append(a.buf[:0], a.buf[a.frameBytes:]...)
		frames = append(frames, audio.Frame{
			Data:     data,
			Samples:  a.frameBytes / a.format.SampleWidth(),
			Encoding: a.format,
		})
	}
	return frames, nil
}

// Buffered returns the number of bytes currently held back waiting for a
// full frame.
func (a *Assembler) Buffered() int {
	return len(a.buf)
}

// FrameBytes returns the size in bytes of one emitted frame.
func (a *Assembler) FrameBytes() int {
	return a.frameBytes
}
