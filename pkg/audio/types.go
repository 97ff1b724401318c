// Package audio defines the audio frame type and WAV block parsing used by
// the relay pipeline. Frames are the atomic unit of audio transport: inbound
// client chunks are normalised into fixed-duration frames before they are
// handed to the speech recognizer.
package audio

import "time"

// Format describes the PCM encoding negotiated for a stream.
type Format struct {
	// SampleRate in Hz (e.g., 16000 for STT input).
	SampleRate int

	// Channels: 1 for mono (required by the recognizer).
	Channels int

	// BitsPerSample is the sample width in bits (16 for the relay's PCM).
	BitsPerSample int
}

// DefaultFormat is the encoding the relay negotiates with browser clients:
// 16 kHz, 16-bit, mono PCM.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}

// SampleWidth returns the size in bytes of one sample across all channels.
func (f Format) SampleWidth() int {
	return f.BitsPerSample / 8 * f.Channels
}

// BytesPerDuration returns how many PCM bytes cover d at this format.
func (f Format) BytesPerDuration(d time.Duration) int {
	samples := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	return samples * f.SampleWidth()
}

// Equal reports whether two formats describe the same encoding.
func (f Format) Equal(other Format) bool {
	return f.SampleRate == other.SampleRate &&
		f.Channels == other.Channels &&
		f.BitsPerSample == other.BitsPerSample
}

// Frame represents a single fixed-duration chunk of PCM audio ready for
// recognizer consumption. Frames are immutable once emitted by the assembler.
type Frame struct {
	// Data is the raw PCM payload. Its length is always a multiple of the
	// format's sample width.
	Data []byte

	// Samples is the number of audio samples in Data.
	Samples int

	// Encoding tags the frame with the stream's negotiated format.
	Encoding Format
}
