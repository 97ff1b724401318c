package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Errors returned by ParseWAVBlock for malformed or mismatched headers.
var (
	// ErrNotWAV indicates the block does not start with a RIFF/WAVE preamble.
	ErrNotWAV = errors.New("audio: not a RIFF/WAVE block")

	// ErrTruncatedHeader indicates the block ends before the header is complete.
	ErrTruncatedHeader = errors.New("audio: truncated WAV header")

	// ErrUnsupportedEncoding indicates the fmt chunk declares a non-PCM codec.
	ErrUnsupportedEncoding = errors.New("audio: unsupported WAV encoding (want PCM)")
)

// IsWAVBlock reports whether b begins with a RIFF/WAVE preamble. Browser
// clients send one WAV block per WebSocket message; bare PCM chunks do not
// carry the preamble.
func IsWAVBlock(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}

// ParseWAVBlock validates the RIFF/WAVE header in b and returns the declared
// Format together with the PCM payload of the data chunk. The declared data
// size is not trusted beyond the bounds of b — streaming encoders routinely
// write placeholder sizes.
func ParseWAVBlock(b []byte) (Format, []byte, error) {
	if !IsWAVBlock(b) {
		return Format{}, nil, ErrNotWAV
	}

	var (
		format    Format
		sawFormat bool
	)

	// Walk the chunk list after the 12-byte RIFF preamble.
	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8

		switch id {
		case "fmt ":
			if body+16 > len(b) {
				return Format{}, nil, ErrTruncatedHeader
			}
			audioFormat := binary.LittleEndian.Uint16(b[body : body+2])
			if audioFormat != 1 { // PCM
				return Format{}, nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedEncoding, audioFormat)
			}
			format = Format{
				Channels:      int(binary.LittleEndian.Uint16(b[body+2 : body+4])),
				SampleRate:    int(binary.LittleEndian.Uint32(b[body+4 : body+8])),
				BitsPerSample: int(binary.LittleEndian.Uint16(b[body+14 : body+16])),
			}
			sawFormat = true

		case "data":
			if !sawFormat {
				return Format{}, nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrTruncatedHeader)
			}
			end := body + size
			if size <= 0 || end > len(b) {
				end = len(b)
			}
			return format, b[body:end], nil
		}

		// Chunks are word-aligned.
		off = body + size + (size & 1)
	}

	return Format{}, nil, ErrTruncatedHeader
}

// AppendWAVHeader appends a canonical 44-byte PCM WAV header for payloadLen
// bytes of audio in format f. Used by the debug audio dump so that captured
// chunks play back directly.
func AppendWAVHeader(dst []byte, f Format, payloadLen int) []byte {
	byteRate := f.SampleRate * f.SampleWidth()

	dst = append(dst, "RIFF"...)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(36+payloadLen))
	dst = append(dst, "WAVE"...)
	dst = append(dst, "fmt "...)
	dst = binary.LittleEndian.AppendUint32(dst, 16)
	dst = binary.LittleEndian.AppendUint16(dst, 1) // PCM
	dst = binary.LittleEndian.AppendUint16(dst, uint16(f.Channels))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(f.SampleRate))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(byteRate))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(f.SampleWidth()))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(f.BitsPerSample))
	dst = append(dst, "data"...)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(payloadLen))
	return dst
}
