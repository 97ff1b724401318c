package relay

import "strconv"

// SpeakerTracker maps recognition-engine speaker labels to stable display
// identifiers within one session. The first occurrence of a label allocates
// the next id in the "Guest-N" sequence; subsequent occurrences return the
// same id. Session-scoped, no I/O, not safe for concurrent use — it is owned
// by the session's event loop.
type SpeakerTracker struct {
	byLabel map[string]string
	next    int
}

// NewSpeakerTracker returns an empty tracker.
func NewSpeakerTracker() *SpeakerTracker {
	return &SpeakerTracker{byLabel: make(map[string]string)}
}

// Resolve returns the stable display id for an engine label, allocating one
// on first sight. An empty label resolves to the empty string: the engine has
// not attributed the text to anyone yet.
func (t *SpeakerTracker) Resolve(engineLabel string) string {
	if engineLabel == "" {
		return ""
	}
	if id, ok := t.byLabel[engineLabel]; ok {
		return id
	}
	t.next++
	id := "Guest-" + strconv.Itoa(t.next)
	t.byLabel[engineLabel] = id
	return id
}

// Count returns how many distinct speakers have been seen.
func (t *SpeakerTracker) Count() int {
	return len(t.byLabel)
}
