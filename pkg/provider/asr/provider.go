// Package asr defines the Provider interface for streaming speech
// recognition backends.
//
// An ASR provider wraps a continuous-recognition service (e.g., Deepgram)
// and exposes a uniform streaming interface. The central abstraction is
// StreamHandle: once opened, a stream accepts PCM audio frames and emits an
// ordered sequence of recognition events — low-latency interims for
// responsiveness and authoritative finals that drive translation and the
// client-facing transcript.
//
// Implementations must be safe for concurrent use. A stream is not
// restartable once it has terminally closed; callers open a fresh stream to
// recover.
package asr

import (
	"context"

	"github.com/voxrelay/voxrelay/pkg/audio"
)

// StreamConfig describes the audio format and recognition hints for a new
// recognition stream.
type StreamConfig struct {
	// Format is the PCM encoding of the frames that will be fed to the stream.
	Format audio.Format

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect, if supported.
	Language string

	// Diarize requests per-speaker labels on recognition events. Providers
	// that cannot diarize emit events with an empty SpeakerLabel.
	Diarize bool
}

// StreamHandle represents an open recognition stream. It is an interface so
// that test code can provide mock implementations without a live provider
// connection.
//
// Callers must call Close when the stream is no longer needed. All methods
// must be safe for concurrent use.
type StreamHandle interface {
	// SendAudio delivers one audio frame to the provider for recognition.
	// Frames must match the Format agreed in StreamConfig and are processed
	// in arrival order. Calling SendAudio after Close returns an error.
	SendAudio(frame audio.Frame) error

	// Events returns a read-only channel emitting recognition events in the
	// order the provider produced them. The channel is closed when the stream
	// ends — cleanly after Close, or terminally on provider failure.
	Events() <-chan Event

	// Err reports the terminal error that closed the Events channel, or nil
	// for a clean shutdown. Only meaningful after Events has been closed.
	Err() error

	// Close terminates the stream, flushes pending audio, and releases all
	// associated resources. Calling Close more than once is safe.
	Close() error
}

// Provider is the abstraction over any streaming recognition backend.
//
// Implementations must be safe for concurrent use; multiple streams may be
// open simultaneously (one per relay session).
type Provider interface {
	// StartStream opens a new continuous-recognition stream with the given
	// configuration. The returned StreamHandle is ready to accept audio
	// immediately. The caller owns the handle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (StreamHandle, error)
}
