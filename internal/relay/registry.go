package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxrelay/voxrelay/internal/observe"
	"github.com/voxrelay/voxrelay/pkg/provider/asr"
	"github.com/voxrelay/voxrelay/pkg/provider/translate"
)

// DefaultSweepInterval is how often the registry scans for terminated
// sessions that have not yet been removed.
const DefaultSweepInterval = 30 * time.Second

// RegistryConfig wires the collaborators shared by all sessions.
type RegistryConfig struct {
	// Provider is the recognizer capability. Required.
	Provider asr.Provider

	// Translator enables translation for all sessions. Optional.
	Translator translate.Translator

	// Broadcaster fans session output out to subscribers. Required.
	Broadcaster *Broadcaster

	// Session is the per-session tuning applied to every created session.
	Session SessionConfig

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics may be nil.
	Metrics *observe.Metrics

	// SweepInterval defaults to DefaultSweepInterval.
	SweepInterval time.Duration
}

// Registry is the process-wide table of active sessions, keyed by connection
// identity. It guarantees at most one live session per connection id and owns
// the sweep goroutine that clears out terminated entries.
type Registry struct {
	cfg RegistryConfig

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// NewRegistry creates a registry and starts its sweep goroutine.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Provider == nil {
		return nil, errors.New("relay: registry requires an ASR provider")
	}
	if cfg.Broadcaster == nil {
		return nil, errors.New("relay: registry requires a broadcaster")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	r := &Registry{
		cfg:       cfg,
		sessions:  make(map[string]*Session),
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go r.sweep()
	return r, nil
}

// Create registers and starts a new session for the connection id. A live
// session under the same id fails with ErrSessionAlreadyActive; the existing
// session is untouched. ctx bounds the session's lifetime (server shutdown).
func (r *Registry) Create(ctx context.Context, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.New("relay: registry is shut down")
	}
	if existing, ok := r.sessions[id]; ok {
		select {
		case <-existing.Done():
			// Terminated but not yet swept; replace it.
			delete(r.sessions, id)
		default:
			return nil, fmt.Errorf("%w: %s", ErrSessionAlreadyActive, id)
		}
	}

	opts := []SessionOption{
		WithSessionLogger(r.cfg.Logger),
		WithSessionMetrics(r.cfg.Metrics),
	}
	if r.cfg.Translator != nil {
		opts = append(opts, WithTranslator(r.cfg.Translator))
	}
	s := NewSession(id, r.cfg.Provider, r.cfg.Broadcaster, r.cfg.Session, opts...)
	s.onClose = func() { r.remove(id, s) }
	r.sessions[id] = s

	go func() {
		err := s.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.cfg.Logger.Error("session terminated",
				"session_id", id, "error", err)
		}
	}()

	return s, nil
}

// Get returns the live session for a connection id, if any.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Remove requests teardown of the session for a connection id. The entry is
// deleted once the session has fully released its resources.
func (r *Registry) Remove(id string) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		s.Close()
	}
}

// remove deletes the exact session instance; a newer session registered under
// the same id is left alone.
func (r *Registry) remove(id string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[id]; ok && cur == s {
		delete(r.sessions, id)
	}
}

// sweep periodically clears entries whose session has terminated. Sessions
// normally deregister themselves; the sweep covers any that could not.
func (r *Registry) sweep() {
	defer close(r.sweepDone)
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.mu.Lock()
			for id, s := range r.sessions {
				select {
				case <-s.Done():
					delete(r.sessions, id)
					r.cfg.Logger.Debug("swept terminated session", "session_id", id)
				default:
				}
			}
			r.mu.Unlock()
		case <-r.sweepStop:
			return
		}
	}
}

// Teardown drains all sessions and stops the registry. It blocks until every
// session has released its resources or ctx expires.
func (r *Registry) Teardown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	close(r.sweepStop)
	<-r.sweepDone

	for _, s := range sessions {
		s.Close()
	}
	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return fmt.Errorf("relay: teardown interrupted: %w", ctx.Err())
		}
	}
	r.cfg.Logger.Info("registry torn down", "sessions", len(sessions))
	return nil
}
