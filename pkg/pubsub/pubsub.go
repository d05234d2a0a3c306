// Package pubsub is the in-process topic bus the server uses to fan out
// connection events and routed port updates to recorders and taps.
package pubsub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// TopicEvents carries the server's connection and node events
const TopicEvents = "apx.events"

// DefaultBuffer is the channel capacity of a subscription
const DefaultBuffer = 256

// ErrShutdown is returned when subscribing to a bus that was shut down
var ErrShutdown = errors.New("pubsub: shut down")

// PubSub delivers messages of type T to the subscribers of a topic.
// Publishing never blocks: a message for a full subscription is dropped
// and counted.
type PubSub[T any] struct {
	subscribers map[string]map[*Subscription[T]]struct{}
	mu          sync.RWMutex
	shutdown    chan struct{}
	shutdownMu  sync.Mutex
	isShutdown  bool
	buffer      int
	dropped     atomic.Uint64
}

// Subscription receives the messages of one topic
type Subscription[T any] struct {
	topic   string
	channel chan T
	ps      *PubSub[T]
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewPubSub creates a bus whose subscriptions buffer DefaultBuffer messages
func NewPubSub[T any]() *PubSub[T] {
	return NewPubSubWithBuffer[T](DefaultBuffer)
}

// NewPubSubWithBuffer creates a bus with the given subscription capacity
func NewPubSubWithBuffer[T any](buffer int) *PubSub[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &PubSub[T]{
		subscribers: make(map[string]map[*Subscription[T]]struct{}),
		shutdown:    make(chan struct{}),
		buffer:      buffer,
	}
}

// Subscribe creates a subscription to topic that ends when ctx is done
func (ps *PubSub[T]) Subscribe(ctx context.Context, topic string) (*Subscription[T], error) {
	ps.shutdownMu.Lock()
	defer ps.shutdownMu.Unlock()
	if ps.isShutdown {
		return nil, ErrShutdown
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription[T]{
		topic:   topic,
		channel: make(chan T, ps.buffer),
		ps:      ps,
		cancel:  cancel,
	}

	ps.mu.Lock()
	if ps.subscribers[topic] == nil {
		ps.subscribers[topic] = make(map[*Subscription[T]]struct{})
	}
	ps.subscribers[topic][sub] = struct{}{}
	ps.mu.Unlock()

	go func() {
		select {
		case <-subCtx.Done():
			sub.Unsubscribe()
		case <-ps.shutdown:
			sub.close()
		}
	}()

	return sub, nil
}

// Publish sends message to every subscriber of topic
func (ps *PubSub[T]) Publish(topic string, message T) {
	ps.mu.RLock()
	topicSubs := ps.subscribers[topic]
	subs := make([]*Subscription[T], 0, len(topicSubs))
	for sub := range topicSubs {
		subs = append(subs, sub)
	}
	ps.mu.RUnlock()

	for _, sub := range subs {
		if !sub.deliver(message) {
			ps.dropped.Add(1)
		}
	}
}

// Dropped returns the number of messages dropped on full subscriptions
func (ps *PubSub[T]) Dropped() uint64 {
	return ps.dropped.Load()
}

// Subscribers returns the number of live subscriptions to topic
func (ps *PubSub[T]) Subscribers(topic string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subscribers[topic])
}

// Shutdown closes all subscriptions
func (ps *PubSub[T]) Shutdown() {
	ps.shutdownMu.Lock()
	if ps.isShutdown {
		ps.shutdownMu.Unlock()
		return
	}
	ps.isShutdown = true
	ps.shutdownMu.Unlock()

	close(ps.shutdown)

	ps.mu.Lock()
	for topic := range ps.subscribers {
		for sub := range ps.subscribers[topic] {
			sub.close()
		}
		delete(ps.subscribers, topic)
	}
	ps.mu.Unlock()
}

// Topic returns the subscribed topic
func (s *Subscription[T]) Topic() string {
	return s.topic
}

// Channel returns the subscription's message channel. It is closed when
// the subscription ends.
func (s *Subscription[T]) Channel() <-chan T {
	return s.channel
}

// Unsubscribe removes the subscription
func (s *Subscription[T]) Unsubscribe() {
	s.cancel()

	s.ps.mu.Lock()
	if s.ps.subscribers[s.topic] != nil {
		delete(s.ps.subscribers[s.topic], s)
		if len(s.ps.subscribers[s.topic]) == 0 {
			delete(s.ps.subscribers, s.topic)
		}
	}
	s.ps.mu.Unlock()

	s.close()
}

func (s *Subscription[T]) deliver(message T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.channel <- message:
		return true
	default:
		return false
	}
}

// close closes the channel once
func (s *Subscription[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.channel)
	}
}
