// Package eventlog records server events: client connections and the
// nodes they attach. Recorders write a text log, a compressed binary log
// or stream the events to log clients over RMF.
package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-apx/pkg/logging"
	"github.com/dd0wney/cluso-apx/pkg/metrics"
	"github.com/dd0wney/cluso-apx/pkg/pubsub"
	"github.com/dd0wney/cluso-apx/pkg/router"
)

// EventType identifies what happened
type EventType uint8

const (
	ClientConnected EventType = iota + 1
	ClientDisconnected
	NodeAttached
	NodeDetached
	DefinitionError
)

var eventNames = map[EventType]string{
	ClientConnected:    "client_connected",
	ClientDisconnected: "client_disconnected",
	NodeAttached:       "node_attached",
	NodeDetached:       "node_detached",
	DefinitionError:    "definition_error",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", uint8(t))
}

// MarshalText implements encoding.TextMarshaler
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *EventType) UnmarshalText(text []byte) error {
	for k, name := range eventNames {
		if name == string(text) {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown event type %q", text)
}

// Event is one recorded server event
type Event struct {
	ID           uuid.UUID `json:"id"`
	Type         EventType `json:"type"`
	Time         time.Time `json:"time"`
	ConnectionID uint32    `json:"connection_id"`
	Node         string    `json:"node,omitempty"`
	Message      string    `json:"message,omitempty"`
}

// NewEvent creates an event stamped with a fresh id and the current time
func NewEvent(t EventType, connectionID uint32, node, message string) Event {
	return Event{
		ID:           uuid.New(),
		Type:         t,
		Time:         time.Now().UTC(),
		ConnectionID: connectionID,
		Node:         node,
		Message:      message,
	}
}

// Text renders the event as a text log line without the newline
func (e Event) Text() string {
	switch e.Type {
	case ClientConnected:
		return fmt.Sprintf("[%d] Client connected", e.ConnectionID)
	case ClientDisconnected:
		return fmt.Sprintf("[%d] Client disconnected", e.ConnectionID)
	case NodeAttached:
		return fmt.Sprintf("[%d] Node attached: %s", e.ConnectionID, e.Node)
	case NodeDetached:
		return fmt.Sprintf("[%d] Node detached: %s", e.ConnectionID, e.Node)
	case DefinitionError:
		return fmt.Sprintf("[%d] Definition error: %s: %s", e.ConnectionID, e.Node, e.Message)
	}
	return fmt.Sprintf("[%d] %s %s", e.ConnectionID, e.Type, e.Message)
}

// Recorder persists or forwards events
type Recorder interface {
	Name() string
	Record(e Event) error
	Close() error
}

// Emitter turns server callbacks into events on a bus
type Emitter struct {
	bus *pubsub.PubSub[Event]
}

// NewEmitter publishes events to bus under pubsub.TopicEvents
func NewEmitter(bus *pubsub.PubSub[Event]) *Emitter {
	return &Emitter{bus: bus}
}

// Emit publishes e
func (em *Emitter) Emit(e Event) {
	em.bus.Publish(pubsub.TopicEvents, e)
}

// ConnectionOpened emits ClientConnected
func (em *Emitter) ConnectionOpened(id uint32) {
	em.Emit(NewEvent(ClientConnected, id, "", ""))
}

// ConnectionClosed emits ClientDisconnected
func (em *Emitter) ConnectionClosed(id uint32) {
	em.Emit(NewEvent(ClientDisconnected, id, "", ""))
}

// NodeAttached emits NodeAttached
func (em *Emitter) NodeAttached(id uint32, info *router.NodeInfo) {
	em.Emit(NewEvent(NodeAttached, id, info.Name(), ""))
}

// NodeDetached emits NodeDetached
func (em *Emitter) NodeDetached(id uint32, info *router.NodeInfo) {
	em.Emit(NewEvent(NodeDetached, id, info.Name(), ""))
}

// DefinitionError emits DefinitionError
func (em *Emitter) DefinitionError(id uint32, name string, err error) {
	em.Emit(NewEvent(DefinitionError, id, name, err.Error()))
}

// Hub feeds events from a bus subscription to recorders
type Hub struct {
	recorders []Recorder
	logger    logging.Logger
	metrics   *metrics.Registry
}

// NewHub creates a hub for recorders
func NewHub(logger logging.Logger, registry *metrics.Registry, recorders ...Recorder) *Hub {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Hub{recorders: recorders, logger: logger.With(logging.Component("eventlog")), metrics: registry}
}

// Run records events from sub until the subscription ends or ctx is done
func (h *Hub) Run(ctx context.Context, sub *pubsub.Subscription[Event]) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.Channel():
			if !ok {
				return
			}
			h.Record(e)
		}
	}
}

// Record passes e to every recorder
func (h *Hub) Record(e Event) {
	for _, r := range h.recorders {
		if err := r.Record(e); err != nil {
			h.logger.Warn("failed to record event", logging.String("recorder", r.Name()), logging.Error(err))
			continue
		}
		if h.metrics != nil {
			h.metrics.RecordEvent(r.Name())
		}
	}
}

// Close closes every recorder
func (h *Hub) Close() error {
	var first error
	for _, r := range h.recorders {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
