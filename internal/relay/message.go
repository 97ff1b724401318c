package relay

// MessageType is the closed set of outbound message types. Clients must
// ignore types they do not recognise.
type MessageType string

const (
	// TypeRecognizing carries an in-progress (interim) recognition result.
	TypeRecognizing MessageType = "recognizing"

	// TypeRecognized carries a finalized utterance.
	TypeRecognized MessageType = "recognized"

	// TypeTranslated carries the translation of a finalized utterance.
	TypeTranslated MessageType = "translated"
)

// OutboundMessage is one entry in a session's ordered output stream.
//
// Sequence is the session's monotonically increasing output counter; within
// one session it is strictly increasing, so clients can detect gaps or
// reordering. Speaker is omitted when no speaker label is known yet (interim
// results may arrive before diarization settles).
type OutboundMessage struct {
	Type     MessageType `json:"type"`
	Speaker  string      `json:"speaker,omitempty"`
	Result   string      `json:"result"`
	Sequence uint64      `json:"sequence"`
}
