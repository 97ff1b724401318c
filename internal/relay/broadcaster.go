package relay

import (
	"context"
	"sync"

	"github.com/voxrelay/voxrelay/internal/observe"
)

// DefaultSubscriberQueue is the per-subscriber outbound queue bound.
const DefaultSubscriberQueue = 64

// Broadcaster fans a session's ordered output events out to all subscribers
// of that session. Delivery is best-effort per subscriber: each subscriber
// has a bounded queue, a queued interim for the same speaker is replaced in
// place, and on overflow the oldest queued message is dropped and the
// subscriber marked lagging. Publish never blocks on a slow subscriber.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[string][]*Subscription
	metrics *observe.Metrics
}

// NewBroadcaster creates an empty broadcaster. metrics may be nil.
func NewBroadcaster(metrics *observe.Metrics) *Broadcaster {
	return &Broadcaster{
		subs:    make(map[string][]*Subscription),
		metrics: metrics,
	}
}

// Subscribe registers a new subscriber for the given session and returns its
// subscription. queueSize <= 0 selects DefaultSubscriberQueue.
func (b *Broadcaster) Subscribe(sessionID string, queueSize int) *Subscription {
	if queueSize <= 0 {
		queueSize = DefaultSubscriberQueue
	}
	sub := &Subscription{
		sessionID: sessionID,
		max:       queueSize,
		ready:     make(chan struct{}, 1),
	}
	b.mu.Lock()
	b.subs[sessionID] = append(b.subs[sessionID], sub)
	b.mu.Unlock()
	b.metrics.AddActiveSubscribers(context.Background(), 1)
	return sub
}

// Unsubscribe removes and closes a subscription. Safe to call after
// CloseSession; removing an unknown subscription is a no-op.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	list := b.subs[sub.sessionID]
	removed := false
	for i, s := range list {
		if s == sub {
			b.subs[sub.sessionID] = append(list[:i], list[i+1:]...)
			removed = true
			break
		}
	}
	if len(b.subs[sub.sessionID]) == 0 {
		delete(b.subs, sub.sessionID)
	}
	b.mu.Unlock()
	if removed {
		sub.close()
		b.metrics.AddActiveSubscribers(context.Background(), -1)
	}
}

// Publish delivers msg to every current subscriber of the session. It never
// blocks: each subscriber either accepts the message into its queue or sheds
// its oldest entry.
func (b *Broadcaster) Publish(ctx context.Context, sessionID string, msg OutboundMessage) {
	b.mu.RLock()
	list := make([]*Subscription, len(b.subs[sessionID]))
	copy(list, b.subs[sessionID])
	b.mu.RUnlock()

	for _, sub := range list {
		sub.push(ctx, msg, b.metrics)
	}
}

// CloseSession closes and removes every subscription of the session.
func (b *Broadcaster) CloseSession(sessionID string) {
	b.mu.Lock()
	list := b.subs[sessionID]
	delete(b.subs, sessionID)
	b.mu.Unlock()

	for _, sub := range list {
		sub.close()
		b.metrics.AddActiveSubscribers(context.Background(), -1)
	}
}

// SubscriberCount returns the number of current subscribers for a session.
func (b *Broadcaster) SubscriberCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}

// Subscription is one subscriber's bounded outbound queue. Producers enqueue
// through the Broadcaster; the owning connection drains it with Next.
type Subscription struct {
	sessionID string

	mu      sync.Mutex
	queue   []OutboundMessage
	max     int
	closed  bool
	lagging bool
	dropped uint64

	// ready carries a wake-up token for a blocked Next. Capacity 1: repeated
	// pushes collapse into one token.
	ready chan struct{}
}

// SessionID returns the session this subscription listens to.
func (s *Subscription) SessionID() string { return s.sessionID }

// push enqueues msg, coalescing queued interims per speaker and shedding the
// oldest entry on overflow.
func (s *Subscription) push(ctx context.Context, msg OutboundMessage, metrics *observe.Metrics) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if msg.Type == TypeRecognizing {
		for i := range s.queue {
			if s.queue[i].Type == TypeRecognizing && s.queue[i].Speaker == msg.Speaker {
				// Only the latest interim matters; replace in place.
				s.queue[i] = msg
				s.mu.Unlock()
				s.wake()
				return
			}
		}
	}

	shed := false
	if len(s.queue) >= s.max {
		copy(s.queue, s.queue[1:])
		s.queue = s.queue[:len(s.queue)-1]
		s.lagging = true
		s.dropped++
		shed = true
	}
	s.queue = append(s.queue, msg)
	s.mu.Unlock()
	if shed {
		metrics.RecordDroppedMessage(ctx, "lagging")
	}
	s.wake()
}

// wake hands a token to a blocked Next, if any.
func (s *Subscription) wake() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Next blocks until a message is available, the subscription is closed and
// drained (ErrSubscriptionClosed), or ctx is done.
func (s *Subscription) Next(ctx context.Context) (OutboundMessage, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			msg := s.queue[0]
			copy(s.queue, s.queue[1:])
			s.queue = s.queue[:len(s.queue)-1]
			s.mu.Unlock()
			return msg, nil
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return OutboundMessage{}, ErrSubscriptionClosed
		}
		select {
		case <-s.ready:
		case <-ctx.Done():
			return OutboundMessage{}, ctx.Err()
		}
	}
}

// Lagging reports whether this subscriber has ever shed a message.
func (s *Subscription) Lagging() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lagging
}

// Dropped returns the number of messages shed so far.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// close marks the subscription closed. Queued messages remain readable until
// drained; then Next returns ErrSubscriptionClosed. Idempotent.
func (s *Subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
}
