package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/voxrelay/voxrelay/internal/relay"
)

// maxChunkBytes bounds a single inbound WebSocket message. The browser client
// sends one WAV block per message, well under this.
const maxChunkBytes = 1 << 20

// errSessionEnded signals the connection loops that the relay session
// terminated first.
var errSessionEnded = errors.New("server: session ended")

// handleWS upgrades the connection, creates a relay session keyed by a fresh
// connection id, and pumps audio in and messages out until either side ends.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "err", err)
		return
	}
	conn.SetReadLimit(maxChunkBytes)

	connID := uuid.NewString()
	log := s.logger.With("conn_id", connID)

	sess, err := s.registry.Create(s.baseCtx, connID)
	if err != nil {
		log.Error("session create failed", "err", err)
		conn.Close(websocket.StatusInternalError, "session unavailable")
		return
	}

	queue := s.cfg.SubscriberQueue
	if queue <= 0 {
		queue = relay.DefaultSubscriberQueue
	}
	sub := s.bus.Subscribe(connID, queue)
	s.metrics.AddActiveSubscribers(r.Context(), 1)

	log.Info("client connected", "remote", r.RemoteAddr)

	var dump *chunkDumper
	if s.cfg.DumpDir != "" {
		dump, err = newChunkDumper(s.cfg.DumpDir, connID)
		if err != nil {
			log.Warn("audio dump disabled", "err", err)
		}
	}

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error { return s.readLoop(ctx, conn, sess, dump) })
	g.Go(func() error { return s.writeLoop(ctx, conn, sub) })
	g.Go(func() error {
		// A dead session must unblock the read loop: close the connection
		// with the mapped status so the client learns why.
		select {
		case <-sess.Done():
			status, reason := closeStatus(sess.Err())
			conn.Close(status, reason)
			return errSessionEnded
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	err = g.Wait()

	sess.Close()
	s.bus.Unsubscribe(sub)
	s.metrics.AddActiveSubscribers(context.Background(), -1)
	if dump != nil {
		dump.close()
	}

	<-sess.Done()
	status, reason := closeStatus(sess.Err())
	conn.Close(status, reason)

	log.Info("client disconnected",
		"session_err", sess.Err(),
		"loop_err", err,
		"lagging", sub.Lagging(),
		"dropped", sub.Dropped(),
	)
}

// readLoop feeds binary chunks from the client into the session until the
// connection or the session ends.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, sess *relay.Session, dump *chunkDumper) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageBinary {
			// Text frames from the client carry nothing the relay needs.
			continue
		}
		if dump != nil {
			dump.write(data)
		}
		if err := sess.IngestAudio(data); err != nil {
			return err
		}
	}
}

// writeLoop forwards session output to the client in publish order. It ends
// when the subscription is closed (session teardown) or the connection dies.
func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, sub *relay.Subscription) error {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, relay.ErrSubscriptionClosed) {
				return nil
			}
			return err
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return err
		}
	}
}

// closeStatus maps a session's terminal error onto a WebSocket close frame.
func closeStatus(err error) (websocket.StatusCode, string) {
	switch {
	case err == nil:
		return websocket.StatusNormalClosure, ""
	case errors.Is(err, relay.ErrMalformedAudio):
		return websocket.StatusUnsupportedData, "malformed audio"
	case errors.Is(err, relay.ErrFrameOverflow):
		return websocket.StatusPolicyViolation, "audio buffer overflow"
	case errors.Is(err, relay.ErrRecognizerUnavailable):
		return websocket.StatusInternalError, "recognizer unavailable"
	default:
		return websocket.StatusInternalError, "session failed"
	}
}
