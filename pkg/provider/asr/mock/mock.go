// Package mock provides test doubles for the asr package interfaces.
//
// Use Provider to verify that the caller starts streams with the expected
// StreamConfig. Use Stream to feed controlled recognition events and inspect
// which audio frames were delivered.
//
// Example:
//
//	st := mock.NewStream()
//	p := &mock.Provider{Stream: st}
//	handle, _ := p.StartStream(ctx, cfg)
//	st.EventsCh <- asr.Event{Kind: asr.KindFinal, Text: "hello"}
package mock

import (
	"context"
	"sync"

	"github.com/voxrelay/voxrelay/pkg/audio"
	"github.com/voxrelay/voxrelay/pkg/provider/asr"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg asr.StreamConfig
}

// Provider is a mock implementation of asr.Provider.
type Provider struct {
	mu sync.Mutex

	// Stream is the StreamHandle returned by StartStream. If nil, StartStream
	// returns a fresh default Stream.
	Stream asr.StreamHandle

	// Streams, when non-empty, is consumed one handle per StartStream call
	// (useful for recognizer-restart tests). Takes precedence over Stream.
	Streams []asr.StreamHandle

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall
}

// StartStream records the call and returns the configured handle.
func (p *Provider) StartStream(ctx context.Context, cfg asr.StreamConfig) (asr.StreamHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if len(p.Streams) > 0 {
		st := p.Streams[0]
		p.Streams = p.Streams[1:]
		return st, nil
	}
	if p.Stream != nil {
		return p.Stream, nil
	}
	return NewStream(), nil
}

// StartCount returns the number of StartStream calls. Thread-safe.
func (p *Provider) StartCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

// Ensure Provider implements asr.Provider at compile time.
var _ asr.Provider = (*Provider)(nil)

// Stream is a mock implementation of asr.StreamHandle. Tests send events on
// EventsCh and close it (directly or via CloseEvents) when done.
type Stream struct {
	mu sync.Mutex

	// EventsCh is the channel returned by Events(). The test owns this
	// channel and is responsible for sending to and closing it.
	EventsCh chan asr.Event

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// TerminalErr is returned by Err after EventsCh has been closed.
	TerminalErr error

	// SendAudioCalls records a copy of every frame passed to SendAudio.
	SendAudioCalls []audio.Frame

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	closeOnce sync.Once
}

// NewStream returns a Stream with a buffered events channel.
func NewStream() *Stream {
	return &Stream{EventsCh: make(chan asr.Event, 16)}
}

// SendAudio records the call and returns SendAudioErr.
func (s *Stream) SendAudio(frame audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := frame
	cp.Data = make([]byte, len(frame.Data))
	copy(cp.Data, frame.Data)
	s.SendAudioCalls = append(s.SendAudioCalls, cp)
	return s.SendAudioErr
}

// Events returns EventsCh.
func (s *Stream) Events() <-chan asr.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.EventsCh
}

// Err returns TerminalErr.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TerminalErr
}

// Close records the call. It never closes EventsCh — the test owns it.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return nil
}

// CloseEvents closes EventsCh exactly once, optionally recording a terminal
// error first. Safe to call multiple times.
func (s *Stream) CloseEvents(terminal error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.TerminalErr = terminal
		ch := s.EventsCh
		s.mu.Unlock()
		close(ch)
	})
}

// SendAudioCount returns the number of SendAudio calls. Thread-safe.
func (s *Stream) SendAudioCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SendAudioCalls)
}

// CloseCount returns the number of Close calls. Thread-safe.
func (s *Stream) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}

// Ensure Stream implements asr.StreamHandle at compile time.
var _ asr.StreamHandle = (*Stream)(nil)
