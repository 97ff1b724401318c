package relay

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBroadcaster_PublishAndNext(t *testing.T) {
	b := NewBroadcaster(nil)
	sub := b.Subscribe("s1", 8)
	defer b.Unsubscribe(sub)

	b.Publish(context.Background(), "s1", OutboundMessage{Type: TypeRecognized, Result: "hello", Sequence: 1})

	msg, err := sub.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if msg.Result != "hello" || msg.Type != TypeRecognized {
		t.Errorf("got %+v", msg)
	}
}

func TestBroadcaster_IsolatesSessions(t *testing.T) {
	b := NewBroadcaster(nil)
	sub1 := b.Subscribe("s1", 8)
	sub2 := b.Subscribe("s2", 8)
	defer b.Unsubscribe(sub1)
	defer b.Unsubscribe(sub2)

	b.Publish(context.Background(), "s1", OutboundMessage{Result: "only-s1"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := sub2.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("s2 subscriber should not receive s1 traffic, err = %v", err)
	}
}

func TestSubscription_CoalescesInterimsPerSpeaker(t *testing.T) {
	b := NewBroadcaster(nil)
	sub := b.Subscribe("s1", 8)
	defer b.Unsubscribe(sub)

	ctx := context.Background()
	b.Publish(ctx, "s1", OutboundMessage{Type: TypeRecognizing, Speaker: "Guest-1", Result: "he", Sequence: 1})
	b.Publish(ctx, "s1", OutboundMessage{Type: TypeRecognizing, Speaker: "Guest-2", Result: "so", Sequence: 2})
	b.Publish(ctx, "s1", OutboundMessage{Type: TypeRecognizing, Speaker: "Guest-1", Result: "hello", Sequence: 3})

	first, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first.Speaker != "Guest-1" || first.Result != "hello" {
		t.Errorf("Guest-1 interim not coalesced: %+v", first)
	}
	second, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if second.Speaker != "Guest-2" || second.Result != "so" {
		t.Errorf("Guest-2 interim disturbed: %+v", second)
	}
}

func TestSubscription_OverflowDropsOldestAndMarksLagging(t *testing.T) {
	b := NewBroadcaster(nil)
	sub := b.Subscribe("s1", 2)
	fast := b.Subscribe("s1", 8)
	defer b.Unsubscribe(sub)
	defer b.Unsubscribe(fast)

	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		b.Publish(ctx, "s1", OutboundMessage{Type: TypeRecognized, Sequence: uint64(i)})
	}

	if !sub.Lagging() {
		t.Error("saturated subscriber should be marked lagging")
	}
	if sub.Dropped() != 2 {
		t.Errorf("Dropped = %d, want 2", sub.Dropped())
	}

	// Only the oldest entries were shed; the newest survive.
	msg, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if msg.Sequence != 3 {
		t.Errorf("first surviving sequence = %d, want 3", msg.Sequence)
	}

	// The healthy subscriber saw everything.
	for i := 1; i <= 4; i++ {
		msg, err := fast.Next(ctx)
		if err != nil {
			t.Fatalf("fast Next: %v", err)
		}
		if msg.Sequence != uint64(i) {
			t.Errorf("fast sequence = %d, want %d", msg.Sequence, i)
		}
	}
	if fast.Lagging() {
		t.Error("healthy subscriber marked lagging")
	}
}

func TestBroadcaster_CloseSessionDrainsThenCloses(t *testing.T) {
	b := NewBroadcaster(nil)
	sub := b.Subscribe("s1", 8)

	ctx := context.Background()
	b.Publish(ctx, "s1", OutboundMessage{Result: "last", Sequence: 1})
	b.CloseSession("s1")

	msg, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if msg.Result != "last" {
		t.Errorf("queued message lost on close: %+v", msg)
	}

	if _, err := sub.Next(ctx); !errors.Is(err, ErrSubscriptionClosed) {
		t.Fatalf("err = %v, want ErrSubscriptionClosed", err)
	}
	if b.SubscriberCount("s1") != 0 {
		t.Errorf("SubscriberCount = %d, want 0", b.SubscriberCount("s1"))
	}
}

func TestBroadcaster_UnsubscribeTwice(t *testing.T) {
	b := NewBroadcaster(nil)
	sub := b.Subscribe("s1", 8)

	b.Unsubscribe(sub)
	b.Unsubscribe(sub) // no-op

	if b.SubscriberCount("s1") != 0 {
		t.Errorf("SubscriberCount = %d, want 0", b.SubscriberCount("s1"))
	}
}
