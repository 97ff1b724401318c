// Package relay implements the session/streaming-orchestration core: framing
// inbound audio, driving the speech recognizer, tagging speakers, dispatching
// translations, and fanning ordered output messages out to subscribers.
//
// Each session runs a single event loop goroutine that owns all session
// state. Audio ingestion, recognition events, and translation results are
// funneled into that loop as messages, so ordering guarantees hold without
// any intra-session locking. Different sessions share nothing but the
// Registry and the Broadcaster.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxrelay/voxrelay/internal/observe"
	"github.com/voxrelay/voxrelay/internal/resilience"
	"github.com/voxrelay/voxrelay/pkg/audio"
	"github.com/voxrelay/voxrelay/pkg/provider/asr"
	"github.com/voxrelay/voxrelay/pkg/provider/translate"
)

// SessionState is a session's lifecycle phase.
type SessionState int32

const (
	// StateConnecting covers construction until the recognizer stream is up.
	StateConnecting SessionState = iota

	// StateActive is the normal streaming state.
	StateActive

	// StateDraining means stop was requested and in-flight translations are
	// finishing up to the grace deadline.
	StateDraining

	// StateClosed is terminal; all resources are released.
	StateClosed
)

// String returns the human-readable name of the state.
func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionConfig holds tuning knobs for a Session. Zero-value fields are
// replaced with defaults.
type SessionConfig struct {
	// Format is the negotiated audio encoding. Zero selects
	// audio.DefaultFormat.
	Format audio.Format

	// FrameDuration is the fixed duration of frames fed to the recognizer.
	// Default: 100ms.
	FrameDuration time.Duration

	// MaxBufferBytes bounds the assembler buffer. Default: 1 MiB.
	MaxBufferBytes int

	// Language is the recognition language hint passed to the provider.
	Language string

	// Diarize requests speaker labels from the recognizer.
	Diarize bool

	// IdleTimeout tears the session down when no audio arrives for this
	// long. Default: 2m.
	IdleTimeout time.Duration

	// DrainGrace bounds how long a stopping session waits for in-flight
	// translations. Default: 10s.
	DrainGrace time.Duration

	// MaxPendingTranslations bounds outstanding translation entries; the
	// oldest is evicted under pressure. Default: 32.
	MaxPendingTranslations int

	// RecognizerRetries is the number of restart attempts after a terminal
	// recognizer stream error. Default: 4.
	RecognizerRetries int

	// RetryBase and RetryMax shape the restart backoff. Defaults: 500ms, 8s.
	RetryBase time.Duration
	RetryMax  time.Duration

	// ReplayFrames is how many recent frames are kept for replay into a
	// restarted recognizer stream. Default: 50 (5s at 100ms frames).
	ReplayFrames int
}

func (c *SessionConfig) applyDefaults() {
	if c.Format.SampleRate == 0 {
		c.Format = audio.DefaultFormat
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = DefaultFrameDuration
	}
	if c.MaxBufferBytes <= 0 {
		c.MaxBufferBytes = DefaultMaxBufferBytes
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.DrainGrace <= 0 {
		c.DrainGrace = 10 * time.Second
	}
	if c.MaxPendingTranslations <= 0 {
		c.MaxPendingTranslations = 32
	}
	if c.RecognizerRetries <= 0 {
		c.RecognizerRetries = 4
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 8 * time.Second
	}
	if c.ReplayFrames <= 0 {
		c.ReplayFrames = 50
	}
}

// errSessionStopped signals inside the loop that stop was requested while a
// blocking step (e.g., recognizer restart backoff) was in progress.
var errSessionStopped = errors.New("relay: session stopped")

// translationJob is one utterance handed to the translation worker.
type translationJob struct {
	utteranceID uint64
	speaker     string
	text        string
}

// translationResult is the worker's reply for one job.
type translationResult struct {
	utteranceID uint64
	speaker     string
	text        string
	err         error
}

// Session owns one client's full pipeline: frame ingestion, recognizer
// lifecycle, speaker state, translation dispatch, and output ordering.
//
// All exported methods are safe for concurrent use; everything below the
// "loop-owned state" marker is touched only by the Run goroutine.
type Session struct {
	id         string
	cfg        SessionConfig
	provider   asr.Provider
	translator translate.Translator
	bus        *Broadcaster
	logger     *slog.Logger
	metrics    *observe.Metrics

	audioCh  chan []byte
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	state atomic.Int32

	errMu sync.Mutex
	err   error

	// onClose is invoked exactly once after the session has fully released
	// its resources. Set by the Registry.
	onClose func()

	// --- loop-owned state ---

	assembler *Assembler
	speakers  *SpeakerTracker
	stream    asr.StreamHandle
	sequence  uint64
	utterance uint64

	pending      map[uint64]struct{}
	pendingOrder []uint64
	queue        []translationJob
	jobs         chan translationJob
	results      chan translationResult
	replay       *replayRing
	started      time.Time
}

// SessionOption configures optional Session collaborators.
type SessionOption func(*Session)

// WithTranslator enables translation of finalized utterances.
func WithTranslator(t translate.Translator) SessionOption {
	return func(s *Session) { s.translator = t }
}

// WithSessionLogger sets the logger. Default: slog.Default().
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithSessionMetrics sets the metrics sink. nil is tolerated.
func WithSessionMetrics(m *observe.Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// NewSession constructs a session in the Connecting state. Call Run to start
// its event loop.
func NewSession(id string, provider asr.Provider, bus *Broadcaster, cfg SessionConfig, opts ...SessionOption) *Session {
	cfg.applyDefaults()
	s := &Session{
		id:       id,
		cfg:      cfg,
		provider: provider,
		bus:      bus,
		logger:   slog.Default(),

		audioCh: make(chan []byte, 64),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),

		assembler: NewAssembler(cfg.Format, cfg.FrameDuration, cfg.MaxBufferBytes),
		speakers:  NewSpeakerTracker(),
		pending:   make(map[uint64]struct{}),
		jobs:      make(chan translationJob),
		results:   make(chan translationResult, cfg.MaxPendingTranslations),
		replay:    newReplayRing(cfg.ReplayFrames),
		started:   time.Now(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ID returns the connection identity this session serves.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(st SessionState) {
	s.state.Store(int32(st))
}

// Done is closed when the session has fully terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the terminal error that failed the session, or nil for a clean
// close.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Session) fail(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

// Close requests teardown. Idempotent: closing an already-closed session is
// a no-op.
func (s *Session) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// IngestAudio offers one raw inbound chunk to the session. It blocks only on
// the session's own bounded intake buffer and returns ErrSessionClosed once
// teardown has begun.
func (s *Session) IngestAudio(raw []byte) error {
	select {
	case <-s.stopCh:
		return ErrSessionClosed
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.audioCh <- raw:
		return nil
	case <-s.stopCh:
		return ErrSessionClosed
	case <-s.done:
		return ErrSessionClosed
	}
}

// Run executes the session event loop until teardown. It returns the
// session's terminal error, or nil for a clean close (client stop or idle
// timeout). Run must be called exactly once.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.release(ctx)

	s.metrics.AddActiveSessions(ctx, 1)

	if err := s.connectStream(ctx); err != nil {
		if errors.Is(err, errSessionStopped) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.fail(err)
		return err
	}
	s.setState(StateActive)
	s.logger.Info("session started",
		"session_id", s.id,
		"sample_rate", s.cfg.Format.SampleRate,
		"frame_bytes", s.assembler.FrameBytes(),
		"translation", s.translator != nil)

	if s.translator != nil {
		go s.translationWorker(ctx)
	}

	idle := time.NewTimer(s.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		// A queued translation job is offered to the worker as one more
		// select arm; a nil channel disables the arm when the queue is empty.
		var dispatchCh chan translationJob
		var nextJob translationJob
		if len(s.queue) > 0 {
			dispatchCh = s.jobs
			nextJob = s.queue[0]
		}

		select {
		case raw := <-s.audioCh:
			if err := s.handleAudio(ctx, raw); err != nil {
				if errors.Is(err, errSessionStopped) {
					s.drain(ctx)
					return nil
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.fail(err)
				return err
			}
			resetTimer(idle, s.cfg.IdleTimeout)

		case ev, ok := <-s.stream.Events():
			if !ok {
				if err := s.restartStream(ctx); err != nil {
					if errors.Is(err, errSessionStopped) {
						s.drain(ctx)
						return nil
					}
					if ctx.Err() != nil {
						return ctx.Err()
					}
					s.fail(err)
					return err
				}
				continue
			}
			s.handleEvent(ctx, ev)

		case res := <-s.results:
			s.handleTranslation(ctx, res)

		case dispatchCh <- nextJob:
			s.queue = s.queue[1:]

		case <-idle.C:
			s.logger.Info("session idle, closing", "session_id", s.id)
			s.drain(ctx)
			return nil

		case <-s.stopCh:
			s.drain(ctx)
			return nil

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// streamConfig builds the recognizer stream configuration.
func (s *Session) streamConfig() asr.StreamConfig {
	return asr.StreamConfig{
		Format:   s.cfg.Format,
		Language: s.cfg.Language,
		Diarize:  s.cfg.Diarize,
	}
}

// connectStream starts a recognizer stream with bounded backoff. The first
// attempt is immediate; each retry waits per the configured backoff.
func (s *Session) connectStream(ctx context.Context) error {
	backoff := resilience.Backoff{Base: s.cfg.RetryBase, Max: s.cfg.RetryMax}
	var lastErr error
	for attempt := 0; attempt <= s.cfg.RecognizerRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(backoff.Delay(attempt - 1))
			select {
			case <-t.C:
			case <-s.stopCh:
				t.Stop()
				return errSessionStopped
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			}
		}
		stream, err := s.provider.StartStream(ctx, s.streamConfig())
		if err != nil {
			lastErr = err
			s.logger.Warn("recognizer stream start failed",
				"session_id", s.id, "attempt", attempt+1, "error", err)
			continue
		}
		s.stream = stream
		return nil
	}
	return fmt.Errorf("%w: %v", ErrRecognizerUnavailable, lastErr)
}

// restartStream replaces a terminally failed recognizer stream and replays
// the recent frame ring into the new one.
func (s *Session) restartStream(ctx context.Context) error {
	cause := s.stream.Err()
	_ = s.stream.Close()
	if cause == nil {
		// The engine closed the stream without an error (e.g., server-side
		// utterance limit); treat it like any other terminal stop.
		cause = errors.New("recognizer stream ended")
	}
	s.logger.Warn("recognizer stream lost, restarting",
		"session_id", s.id, "error", cause)
	s.metrics.RecordProviderError(ctx, "asr", "stream")

	if err := s.connectStream(ctx); err != nil {
		return err
	}
	s.metrics.RecordRecognizerRestart(ctx)

	replayed := 0
	for _, f := range s.replay.snapshot() {
		if err := s.stream.SendAudio(f); err != nil {
			break
		}
		replayed++
	}
	s.logger.Info("recognizer stream restarted",
		"session_id", s.id, "replayed_frames", replayed)
	return nil
}

// handleAudio frames one raw chunk and forwards the frames to the
// recognizer. A send failure triggers a stream restart.
func (s *Session) handleAudio(ctx context.Context, raw []byte) error {
	frames, err := s.assembler.Ingest(raw)
	if err != nil {
		return err
	}
	for _, f := range frames {
		s.replay.push(f)
		if err := s.stream.SendAudio(f); err != nil {
			// The restarted stream gets this frame via the replay ring.
			if rerr := s.restartStream(ctx); rerr != nil {
				return rerr
			}
		}
	}
	if len(frames) > 0 {
		s.metrics.RecordFrames(ctx, len(frames))
	}
	return nil
}

// handleEvent tags one recognition event with its speaker and publishes the
// matching outbound message. Finals additionally allocate the next utterance
// id and enqueue a translation job.
func (s *Session) handleEvent(ctx context.Context, ev asr.Event) {
	speaker := s.speakers.Resolve(ev.SpeakerLabel)

	switch ev.Kind {
	case asr.KindInterim:
		s.metrics.RecordRecognitionEvent(ctx, "interim")
		s.publish(ctx, OutboundMessage{
			Type:    TypeRecognizing,
			Speaker: speaker,
			Result:  ev.Text,
		})

	case asr.KindFinal:
		s.metrics.RecordRecognitionEvent(ctx, "final")
		s.utterance++
		id := s.utterance
		s.publish(ctx, OutboundMessage{
			Type:    TypeRecognized,
			Speaker: speaker,
			Result:  ev.Text,
		})
		if s.translator == nil {
			return
		}
		s.enqueueTranslation(ctx, translationJob{
			utteranceID: id,
			speaker:     speaker,
			text:        ev.Text,
		})
	}
}

// enqueueTranslation registers a pending entry and queues the job for the
// worker, evicting the oldest outstanding entry when the bound is exceeded.
func (s *Session) enqueueTranslation(ctx context.Context, job translationJob) {
	s.pending[job.utteranceID] = struct{}{}
	s.pendingOrder = append(s.pendingOrder, job.utteranceID)
	s.queue = append(s.queue, job)

	if len(s.pending) > s.cfg.MaxPendingTranslations {
		oldest := s.pendingOrder[0]
		s.pendingOrder = s.pendingOrder[1:]
		delete(s.pending, oldest)
		// If the evicted entry is still queued it is the queue head; an
		// in-flight entry simply has its eventual result discarded.
		if len(s.queue) > 0 && s.queue[0].utteranceID == oldest {
			s.queue = s.queue[1:]
		}
		s.metrics.RecordDroppedMessage(ctx, "evicted")
		s.logger.Debug("pending translation evicted",
			"session_id", s.id, "utterance_id", oldest)
	}
}

// translationWorker drains the job queue one utterance at a time, preserving
// FIFO order so translated messages appear in utterance order.
func (s *Session) translationWorker(ctx context.Context) {
	for {
		select {
		case job := <-s.jobs:
			start := time.Now()
			text, err := s.translator.Translate(ctx, job.text)
			s.metrics.RecordTranslation(ctx, time.Since(start).Seconds())
			res := translationResult{
				utteranceID: job.utteranceID,
				speaker:     job.speaker,
				text:        text,
				err:         err,
			}
			select {
			case s.results <- res:
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// handleTranslation resolves one worker result against the pending table.
// Late or evicted results are discarded; failures keep the utterance's
// recognized output and never fail the session.
func (s *Session) handleTranslation(ctx context.Context, res translationResult) {
	if _, ok := s.pending[res.utteranceID]; !ok {
		s.metrics.RecordDroppedMessage(ctx, "evicted")
		return
	}
	delete(s.pending, res.utteranceID)
	for i, id := range s.pendingOrder {
		if id == res.utteranceID {
			s.pendingOrder = append(s.pendingOrder[:i], s.pendingOrder[i+1:]...)
			break
		}
	}

	if res.err != nil {
		provider := "translator"
		var pe *translate.ProviderError
		if errors.As(res.err, &pe) {
			provider = pe.Provider
		}
		s.metrics.RecordProviderError(ctx, provider, "translate")
		s.logger.Warn("translation failed",
			"session_id", s.id, "utterance_id", res.utteranceID, "error", res.err)
		return
	}

	s.publish(ctx, OutboundMessage{
		Type:    TypeTranslated,
		Speaker: res.speaker,
		Result:  res.text,
	})
}

// publish stamps the next sequence number and hands the message to the
// broadcaster. Never blocks.
func (s *Session) publish(ctx context.Context, msg OutboundMessage) {
	s.sequence++
	msg.Sequence = s.sequence
	s.bus.Publish(ctx, s.id, msg)
}

// drain stops feeding the recognizer and waits up to the grace deadline for
// in-flight translations; anything still pending afterwards is abandoned.
func (s *Session) drain(ctx context.Context) {
	s.setState(StateDraining)
	if s.stream != nil {
		_ = s.stream.Close()
	}
	if s.translator == nil || len(s.pending) == 0 {
		return
	}

	deadline := time.NewTimer(s.cfg.DrainGrace)
	defer deadline.Stop()

	for len(s.pending) > 0 {
		var dispatchCh chan translationJob
		var nextJob translationJob
		if len(s.queue) > 0 {
			dispatchCh = s.jobs
			nextJob = s.queue[0]
		}
		select {
		case res := <-s.results:
			s.handleTranslation(ctx, res)
		case dispatchCh <- nextJob:
			s.queue = s.queue[1:]
		case <-deadline.C:
			s.logger.Info("drain grace elapsed, abandoning translations",
				"session_id", s.id, "abandoned", len(s.pending))
			return
		case <-ctx.Done():
			return
		}
	}
}

// release tears down all owned resources exactly once at loop exit.
func (s *Session) release(ctx context.Context) {
	s.setState(StateClosed)
	if s.stream != nil {
		_ = s.stream.Close()
	}
	s.bus.CloseSession(s.id)
	s.metrics.AddActiveSessions(ctx, -1)
	s.metrics.RecordSessionDuration(ctx, time.Since(s.started).Seconds())
	if s.onClose != nil {
		s.onClose()
	}
	s.logger.Info("session closed",
		"session_id", s.id,
		"utterances", s.utterance,
		"messages", s.sequence,
		"error", s.Err())
}

// resetTimer restarts t for d, draining a pending fire first.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// replayRing keeps the most recent frames for replay into a restarted
// recognizer stream.
type replayRing struct {
	buf  []audio.Frame
	head int
	size int
}

func newReplayRing(capacity int) *replayRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &replayRing{buf: make([]audio.Frame, capacity)}
}

func (r *replayRing) push(f audio.Frame) {
	r.buf[(r.head+r.size)%len(r.buf)] = f
	if r.size < len(r.buf) {
		r.size++
	} else {
		r.head = (r.head + 1) % len(r.buf)
	}
}

// snapshot returns the retained frames in arrival order.
func (r *replayRing) snapshot() []audio.Frame {
	out := make([]audio.Frame, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}
