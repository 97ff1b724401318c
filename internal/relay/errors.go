package relay

import "errors"

// Error taxonomy for the relay core. Audio and recognizer errors are
// session-fatal; translation failures are isolated per utterance and handled
// inside the session loop (see Session).
var (
	// ErrMalformedAudio indicates an inbound chunk whose declared encoding
	// does not match the session's negotiated encoding.
	ErrMalformedAudio = errors.New("relay: malformed audio")

	// ErrFrameOverflow indicates the assembler's internal buffer exceeded its
	// ceiling without producing a frame.
	ErrFrameOverflow = errors.New("relay: frame buffer overflow")

	// ErrRecognizerUnavailable indicates a terminal upstream recognizer
	// failure after restart retries were exhausted.
	ErrRecognizerUnavailable = errors.New("relay: recognizer unavailable")

	// ErrSessionAlreadyActive indicates a duplicate create for a connection
	// id that already has a live session.
	ErrSessionAlreadyActive = errors.New("relay: session already active")

	// ErrSessionClosed is returned when audio is offered to a session that
	// has stopped or terminated.
	ErrSessionClosed = errors.New("relay: session closed")

	// ErrSubscriptionClosed is returned by Subscription.Next once the
	// subscription has been closed and its queue drained.
	ErrSubscriptionClosed = errors.New("relay: subscription closed")
)
