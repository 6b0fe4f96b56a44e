package bus

import (
	"context"
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("webhook.", 10)
	defer unsub()

	b.Emit(KindWebhookIngested, 3)

	select {
	case evt := <-ch:
		if evt.Kind != KindWebhookIngested {
			t.Errorf("got kind %q, want %s", evt.Kind, KindWebhookIngested)
		}
		if evt.Timestamp.IsZero() {
			t.Error("Emit should stamp the event")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	b.Emit(KindWebhookRejected, nil)
	b.Emit(KindSessionState, nil)

	select {
	case evt := <-ch:
		if evt.Kind != KindSessionState {
			t.Errorf("got kind %q, want %s", evt.Kind, KindSessionState)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 10)
	unsub()
	unsub()

	b.Emit(KindSessionState, nil)

	if _, ok := <-ch; ok {
		t.Error("received event after unsubscribe")
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("webhook.", 1)
	defer unsub()

	b.Publish(Event{Kind: "webhook.one"})
	b.Publish(Event{Kind: "webhook.two"})

	evt := <-ch
	if evt.Kind != "webhook.one" {
		t.Errorf("got %q, want webhook.one", evt.Kind)
	}
}

func TestNilBusEmit(t *testing.T) {
	var b *Bus
	b.Emit(KindWebhookIngested, nil)
}

func TestCounter(t *testing.T) {
	b := New()
	c := NewCounter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		c.Run(ctx, b)
		close(done)
	}()

	// Wait for Run to subscribe.
	deadline := time.Now().Add(time.Second)
	for {
		b.mu.RLock()
		n := len(b.subs)
		b.mu.RUnlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("counter did not subscribe")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.Emit(KindWebhookIngested, nil)
	b.Emit(KindWebhookIngested, nil)
	b.Emit(KindWebhookRejected, nil)

	deadline = time.Now().Add(time.Second)
	for c.Get(KindWebhookIngested) != 2 || c.Get(KindWebhookRejected) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("counts = %v", c.Snapshot())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	<-done
}
