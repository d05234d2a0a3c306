package tap

import (
	"fmt"
	"sync"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pub"
	"go.nanomsg.org/mangos/v3/protocol/sub"

	// Register all transports
	_ "go.nanomsg.org/mangos/v3/transport/all"

	"github.com/dd0wney/cluso-apx/pkg/router"
)

// NNGPublisher publishes on a listening mangos PUB socket
type NNGPublisher struct {
	mu   sync.Mutex
	sock mangos.Socket
}

// NewNNGPublisher listens on url, for example tcp://127.0.0.1:5001
func NewNNGPublisher(url string) (*NNGPublisher, error) {
	sock, err := pub.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}
	if err := sock.Listen(url); err != nil {
		sock.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", url, err)
	}
	return &NNGPublisher{sock: sock}, nil
}

// Publish sends u
func (p *NNGPublisher) Publish(u router.PortUpdate) error {
	data, err := Encode(u)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sock.Send(data)
}

// Close closes the socket
func (p *NNGPublisher) Close() error {
	return p.sock.Close()
}

// NNGSubscriber receives from a mangos SUB socket
type NNGSubscriber struct {
	sock mangos.Socket
}

// NewNNGSubscriber dials url and subscribes to the topic prefixes. No
// topics subscribes to everything.
func NewNNGSubscriber(url string, topics ...string) (*NNGSubscriber, error) {
	sock, err := sub.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create SUB socket: %w", err)
	}
	if len(topics) == 0 {
		topics = []string{""}
	}
	for _, t := range topics {
		if err := sock.SetOption(mangos.OptionSubscribe, []byte(t)); err != nil {
			sock.Close()
			return nil, fmt.Errorf("failed to subscribe to %q: %w", t, err)
		}
	}
	if err := sock.Dial(url); err != nil {
		sock.Close()
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return &NNGSubscriber{sock: sock}, nil
}

// SetRecvDeadline bounds how long Receive waits
func (s *NNGSubscriber) SetRecvDeadline(d time.Duration) error {
	return s.sock.SetOption(mangos.OptionRecvDeadline, d)
}

// Receive waits for the next message
func (s *NNGSubscriber) Receive() (*Message, error) {
	data, err := s.sock.Recv()
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Close closes the socket
func (s *NNGSubscriber) Close() error {
	return s.sock.Close()
}

var (
	_ Publisher  = (*NNGPublisher)(nil)
	_ Subscriber = (*NNGSubscriber)(nil)
)
