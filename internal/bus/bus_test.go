package bus

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestInboundFIFOPerProducer(t *testing.T) {
	b := New()
	recv, ok := b.TakeInboundReceiver()
	if !ok {
		t.Fatal("TakeInboundReceiver refused first caller")
	}

	ctx := context.Background()
	const n = 100
	for i := 0; i < n; i++ {
		msg := InboundMessage{Channel: "cli", ChatID: "1", Content: fmt.Sprintf("m%d", i), Timestamp: time.Now()}
		if err := b.PublishInbound(ctx, msg); err != nil {
			t.Fatalf("PublishInbound(%d): %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		got := <-recv
		if want := fmt.Sprintf("m%d", i); got.Content != want {
			t.Fatalf("message %d = %q, want %q (FIFO violated)", i, got.Content, want)
		}
	}
}

func TestTakeInboundReceiverExactlyOnce(t *testing.T) {
	b := New()
	if _, ok := b.TakeInboundReceiver(); !ok {
		t.Fatal("first take should succeed")
	}
	if _, ok := b.TakeInboundReceiver(); ok {
		t.Fatal("second take should be refused")
	}
}

func TestPublishInboundBackpressureRespectsContext(t *testing.T) {
	b := New()
	ctx := context.Background()
	for i := 0; i < Capacity; i++ {
		if err := b.PublishInbound(ctx, InboundMessage{Content: "fill"}); err != nil {
			t.Fatalf("fill publish %d: %v", i, err)
		}
	}

	cancelled, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := b.PublishInbound(cancelled, InboundMessage{Content: "overflow"})
	if err == nil {
		t.Fatal("publish into a full queue with an expiring context should fail")
	}
}

func TestOutboundBroadcastReachesEverySubscriber(t *testing.T) {
	b := New()
	a := b.SubscribeOutbound("a")
	c := b.SubscribeOutbound("c")

	b.PublishOutbound(Chat("cli", "1", "fanout"))

	for name, ch := range map[string]<-chan OutboundMessage{"a": a, "c": c} {
		select {
		case msg := <-ch:
			if msg.Content != "fanout" {
				t.Errorf("subscriber %s got %q", name, msg.Content)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s never received the broadcast", name)
		}
	}
}

func TestSlowSubscriberLosesOldest(t *testing.T) {
	b := New()
	slow := b.SubscribeOutbound("slow")

	const extra = 40
	for i := 0; i < Capacity+extra; i++ {
		b.PublishOutbound(Chat("cli", "1", fmt.Sprintf("m%d", i)))
	}

	first := <-slow
	if want := fmt.Sprintf("m%d", extra); first.Content != want {
		t.Fatalf("first message after overflow = %q, want %q (oldest should be dropped)", first.Content, want)
	}

	count := 1
	for {
		select {
		case <-slow:
			count++
		default:
			if count != Capacity {
				t.Fatalf("buffered %d messages, want exactly %d", count, Capacity)
			}
			return
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch := b.SubscribeOutbound("tmp")
	b.UnsubscribeOutbound("tmp")
	if _, open := <-ch; open {
		t.Fatal("channel should be closed after unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	b.PublishOutbound(Chat("cli", "1", "after"))
}

func TestSystemErrorDetection(t *testing.T) {
	msg := InboundMessage{
		Channel:  SystemChannel,
		ChatID:   SystemChannel,
		Metadata: map[string]string{"error_kind": "unrecoverable"},
	}
	if !msg.IsUnrecoverableSystemError() {
		t.Error("system error message not detected")
	}
	if (InboundMessage{Channel: "cli", ChatID: "1"}).IsUnrecoverableSystemError() {
		t.Error("ordinary message misdetected as system error")
	}
}

func TestSessionKey(t *testing.T) {
	msg := InboundMessage{Channel: "telegram", ChatID: "99"}
	if got := msg.SessionKey(); got != "telegram:99" {
		t.Errorf("SessionKey = %q", got)
	}
}
