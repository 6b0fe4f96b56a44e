package notify

import (
	"context"
	"testing"
	"time"

	"github.com/matheus3301/wpprelay/internal/changefeed"
	"github.com/matheus3301/wpprelay/internal/model"
)

func change(conv, id string, status model.Status) changefeed.Change {
	return changefeed.Change{
		Op:      changefeed.OpInsert,
		Message: model.Message{ID: id, ConversationID: conv, Body: "hi", Status: status},
	}
}

func recv(t *testing.T, ch <-chan model.ChangeEvent) model.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	return model.ChangeEvent{}
}

func TestWatchFiltersByConversation(t *testing.T) {
	feed := changefeed.New()
	n := New(feed, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := n.Watch(ctx, "123")
	feed.Publish(change("456", "other", model.StatusReceived))
	feed.Publish(change("123", "mine", model.StatusReceived))

	ev := recv(t, ch)
	if ev.ConversationID != "123" || ev.Message.ID != "mine" {
		t.Errorf("got %+v, want conversation 123 message mine", ev)
	}

	select {
	case ev := <-ch:
		t.Errorf("unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatchSeesChangesPublishedRightAfterReturn(t *testing.T) {
	feed := changefeed.New()
	n := New(feed, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := n.Watch(ctx, "w1")
	if feed.Subscribers() != 1 {
		t.Fatalf("subscribers = %d, want 1 right after Watch", feed.Subscribers())
	}
	feed.Publish(change("w1", "m1", model.StatusReceived))
	recv(t, ch)
}

func TestWatchKeepsOrderAcrossMessages(t *testing.T) {
	feed := changefeed.New()
	n := New(feed, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := n.Watch(ctx, "w1")
	for _, id := range []string{"a", "b", "c", "d"} {
		feed.Publish(change("w1", id, model.StatusReceived))
	}
	for _, want := range []string{"a", "b", "c", "d"} {
		if got := recv(t, ch).Message.ID; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
}

func TestEnqueueCoalescesAdjacentSameMessage(t *testing.T) {
	n := New(changefeed.New(), nil)
	var pending []model.ChangeEvent
	pending = n.enqueue(pending, "w1", change("w1", "m1", model.StatusReceived))
	pending = n.enqueue(pending, "w1", change("w1", "m1", model.StatusDelivered))
	pending = n.enqueue(pending, "w1", change("w1", "m2", model.StatusReceived))
	pending = n.enqueue(pending, "w1", change("w1", "m1", model.StatusRead))

	want := []struct {
		id     string
		status model.Status
	}{
		{"m1", model.StatusDelivered},
		{"m2", model.StatusReceived},
		{"m1", model.StatusRead},
	}
	if len(pending) != len(want) {
		t.Fatalf("pending = %d events, want %d", len(pending), len(want))
	}
	for i, w := range want {
		if pending[i].Message.ID != w.id || pending[i].Message.Status != w.status {
			t.Errorf("pending[%d] = %s/%s, want %s/%s", i, pending[i].Message.ID, pending[i].Message.Status, w.id, w.status)
		}
	}
}

func TestCancelReleasesSubscription(t *testing.T) {
	feed := changefeed.New()
	n := New(feed, nil)
	ctx, cancel := context.WithCancel(context.Background())

	ch := n.Watch(ctx, "w1")
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}

	deadline := time.Now().Add(time.Second)
	for feed.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers = %d after cancel, want 0", feed.Subscribers())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
