package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type connEvent struct {
	conn uint32
	kind string
}

func receive[T any](t *testing.T, sub *Subscription[T]) T {
	t.Helper()
	select {
	case msg, ok := <-sub.Channel():
		if !ok {
			t.Fatal("subscription closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
	var zero T
	return zero
}

func expectClosed[T any](t *testing.T, sub *Subscription[T]) {
	t.Helper()
	select {
	case _, ok := <-sub.Channel():
		if ok {
			t.Fatal("unexpected message on ended subscription")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription channel was not closed")
	}
}

func TestPublish_FansOutToTopic(t *testing.T) {
	ps := NewPubSub[connEvent]()
	defer ps.Shutdown()

	var subs []*Subscription[connEvent]
	for i := 0; i < 3; i++ {
		sub, err := ps.Subscribe(context.Background(), TopicEvents)
		if err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
		subs = append(subs, sub)
	}
	other, _ := ps.Subscribe(context.Background(), "apx.other")

	want := connEvent{conn: 4, kind: "connected"}
	ps.Publish(TopicEvents, want)

	for i, sub := range subs {
		if got := receive(t, sub); got != want {
			t.Errorf("subscriber %d got %+v, want %+v", i, got, want)
		}
	}
	select {
	case msg := <-other.Channel():
		t.Errorf("other topic received %+v", msg)
	default:
	}
}

func TestPublish_PreservesOrder(t *testing.T) {
	ps := NewPubSub[connEvent]()
	defer ps.Shutdown()

	sub, _ := ps.Subscribe(context.Background(), TopicEvents)
	kinds := []string{"connected", "attached", "detached", "disconnected"}
	for _, k := range kinds {
		ps.Publish(TopicEvents, connEvent{kind: k})
	}
	for _, k := range kinds {
		if got := receive(t, sub).kind; got != k {
			t.Errorf("got %s, want %s", got, k)
		}
	}
}

func TestPublish_DropsOnFullSubscription(t *testing.T) {
	ps := NewPubSubWithBuffer[int](2)
	defer ps.Shutdown()

	sub, err := ps.Subscribe(context.Background(), TopicEvents)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		ps.Publish(TopicEvents, i)
	}
	if got := ps.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}
	if first := receive(t, sub); first != 0 {
		t.Errorf("first message = %d, want 0", first)
	}
	if sub.Topic() != TopicEvents {
		t.Errorf("Topic() = %s", sub.Topic())
	}
}

func TestPublish_Concurrent(t *testing.T) {
	const n = 100
	ps := NewPubSubWithBuffer[int](n)
	defer ps.Shutdown()

	sub, _ := ps.Subscribe(context.Background(), TopicEvents)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			ps.Publish(TopicEvents, v)
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for i := 0; i < n; i++ {
		seen[receive(t, sub)] = true
	}
	if len(seen) != n || ps.Dropped() != 0 {
		t.Errorf("received %d distinct, dropped %d", len(seen), ps.Dropped())
	}
}

func TestSubscription_Ends(t *testing.T) {
	tests := []struct {
		name string
		end  func(ps *PubSub[int], sub *Subscription[int], cancel context.CancelFunc)
	}{
		{"unsubscribe", func(_ *PubSub[int], sub *Subscription[int], _ context.CancelFunc) {
			sub.Unsubscribe()
			sub.Unsubscribe()
		}},
		{"context canceled", func(_ *PubSub[int], _ *Subscription[int], cancel context.CancelFunc) { cancel() }},
		{"shutdown", func(ps *PubSub[int], _ *Subscription[int], _ context.CancelFunc) { ps.Shutdown() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := NewPubSub[int]()
			defer ps.Shutdown()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sub, err := ps.Subscribe(ctx, TopicEvents)
			if err != nil {
				t.Fatal(err)
			}

			tt.end(ps, sub, cancel)
			expectClosed(t, sub)

			deadline := time.Now().Add(time.Second)
			for ps.Subscribers(TopicEvents) != 0 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			if got := ps.Subscribers(TopicEvents); got != 0 {
				t.Errorf("Subscribers() = %d after end", got)
			}
			ps.Publish(TopicEvents, 1)
		})
	}
}

func TestSubscribers(t *testing.T) {
	ps := NewPubSub[int]()
	defer ps.Shutdown()

	if got := ps.Subscribers(TopicEvents); got != 0 {
		t.Errorf("Subscribers() = %d, want 0", got)
	}
	a, _ := ps.Subscribe(context.Background(), TopicEvents)
	b, _ := ps.Subscribe(context.Background(), TopicEvents)
	if got := ps.Subscribers(TopicEvents); got != 2 {
		t.Errorf("Subscribers() = %d, want 2", got)
	}
	a.Unsubscribe()
	if got := ps.Subscribers(TopicEvents); got != 1 {
		t.Errorf("Subscribers() = %d, want 1", got)
	}
	b.Unsubscribe()
}

func TestSubscribeAfterShutdown(t *testing.T) {
	ps := NewPubSub[string]()
	ps.Shutdown()
	ps.Shutdown()

	if _, err := ps.Subscribe(context.Background(), TopicEvents); !errors.Is(err, ErrShutdown) {
		t.Errorf("Subscribe() error = %v, want ErrShutdown", err)
	}
}
