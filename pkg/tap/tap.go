// Package tap publishes routed port values to external subscribers. Each
// message carries a "<node>/<port>" topic so subscribers can filter by
// node or by port.
package tap

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-apx/pkg/logging"
	"github.com/dd0wney/cluso-apx/pkg/metrics"
	"github.com/dd0wney/cluso-apx/pkg/router"
)

// ErrMalformed is returned for a message without a topic separator
var ErrMalformed = errors.New("tap: malformed message")

// Message is one published port value
type Message struct {
	Node      string    `json:"node"`
	Port      string    `json:"port"`
	Value     any       `json:"value"`
	Data      []byte    `json:"data"`
	Receivers int       `json:"receivers"`
	Time      time.Time `json:"time"`
}

// Topic returns "<node>/<port>"
func Topic(node, port string) string {
	return node + "/" + port
}

// Encode renders u as "<topic> <json>"
func Encode(u router.PortUpdate) ([]byte, error) {
	body, err := json.Marshal(Message{
		Node:      u.Node,
		Port:      u.Port,
		Value:     u.Value,
		Data:      u.Data,
		Receivers: u.Receivers,
		Time:      time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(u.Node)+len(u.Port)+2+len(body))
	out = append(out, Topic(u.Node, u.Port)...)
	out = append(out, ' ')
	return append(out, body...), nil
}

// Decode parses a message produced by Encode
func Decode(data []byte) (*Message, error) {
	i := bytes.IndexByte(data, ' ')
	if i < 0 {
		return nil, ErrMalformed
	}
	var m Message
	if err := json.Unmarshal(data[i+1:], &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &m, nil
}

// Publisher sends encoded port updates
type Publisher interface {
	Publish(u router.PortUpdate) error
	Close() error
}

// Subscriber receives port updates
type Subscriber interface {
	Receive() (*Message, error)
	Close() error
}

// Observer adapts a Publisher to router.Observer. Failures are logged and
// counted; they never block routing.
type Observer struct {
	Publisher Publisher
	Logger    logging.Logger
	Metrics   *metrics.Registry
}

// PortUpdated publishes u
func (o *Observer) PortUpdated(u router.PortUpdate) {
	status := "sent"
	if err := o.Publisher.Publish(u); err != nil {
		status = "error"
		if o.Logger != nil {
			o.Logger.Debug("tap publish failed", logging.NodeName(u.Node), logging.PortName(u.Port), logging.Error(err))
		}
	}
	if o.Metrics != nil {
		o.Metrics.RecordTapMessage(status)
	}
}
