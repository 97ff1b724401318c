package asr

// EventKind distinguishes interim from final recognition events. It is a
// closed set: a switch over EventKind with both cases handles every event.
type EventKind int

const (
	// KindInterim is an in-progress hypothesis for the current utterance. A
	// later interim for the same utterance supersedes it entirely.
	KindInterim EventKind = iota

	// KindFinal is an authoritative result: the provider has committed to
	// this text for the utterance and will not revise it.
	KindFinal
)

// String returns the human-readable name of the kind.
func (k EventKind) String() string {
	switch k {
	case KindInterim:
		return "interim"
	case KindFinal:
		return "final"
	default:
		return "unknown"
	}
}

// Event is a single recognition result emitted by a StreamHandle.
type Event struct {
	// Kind tags the event as interim or final.
	Kind EventKind

	// Text is the recognised speech content.
	Text string

	// SpeakerLabel is the provider-native speaker identifier when diarization
	// is active (e.g., "0", "1"). Empty when the provider has not attributed
	// the event to a speaker. Stable display names are assigned downstream.
	SpeakerLabel string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if
	// the provider does not report confidence.
	Confidence float64
}
