//go:build zmq
// +build zmq

package tap

import (
	"fmt"
	"sync"

	zmq "github.com/pebbe/zmq4"

	"github.com/dd0wney/cluso-apx/pkg/router"
)

// ZMQPublisher publishes on a bound ZeroMQ PUB socket
type ZMQPublisher struct {
	mu   sync.Mutex
	sock *zmq.Socket
}

// NewZMQPublisher binds endpoint, for example tcp://*:5002
func NewZMQPublisher(endpoint string) (*ZMQPublisher, error) {
	sock, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}
	if err := sock.Bind(endpoint); err != nil {
		sock.Close()
		return nil, fmt.Errorf("failed to bind %s: %w", endpoint, err)
	}
	return &ZMQPublisher{sock: sock}, nil
}

// Publish sends u as a single frame
func (p *ZMQPublisher) Publish(u router.PortUpdate) error {
	data, err := Encode(u)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err = p.sock.SendBytes(data, 0)
	return err
}

// Close closes the socket
func (p *ZMQPublisher) Close() error {
	return p.sock.Close()
}

// ZMQSubscriber receives from a ZeroMQ SUB socket
type ZMQSubscriber struct {
	sock *zmq.Socket
}

// NewZMQSubscriber connects to endpoint and subscribes to the topic
// prefixes. No topics subscribes to everything.
func NewZMQSubscriber(endpoint string, topics ...string) (*ZMQSubscriber, error) {
	sock, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create SUB socket: %w", err)
	}
	if err := sock.Connect(endpoint); err != nil {
		sock.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	if len(topics) == 0 {
		topics = []string{""}
	}
	for _, t := range topics {
		if err := sock.SetSubscribe(t); err != nil {
			sock.Close()
			return nil, fmt.Errorf("failed to subscribe to %q: %w", t, err)
		}
	}
	return &ZMQSubscriber{sock: sock}, nil
}

// Receive waits for the next message
func (s *ZMQSubscriber) Receive() (*Message, error) {
	data, err := s.sock.RecvBytes(0)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Close closes the socket
func (s *ZMQSubscriber) Close() error {
	return s.sock.Close()
}

var (
	_ Publisher  = (*ZMQPublisher)(nil)
	_ Subscriber = (*ZMQSubscriber)(nil)
)
