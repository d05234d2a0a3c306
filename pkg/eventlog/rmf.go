package eventlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dd0wney/cluso-apx/pkg/filemanager"
	"github.com/dd0wney/cluso-apx/pkg/logging"
	"github.com/dd0wney/cluso-apx/pkg/nodedata"
	"github.com/dd0wney/cluso-apx/pkg/rmf"
)

// DefaultUpdateInterval is the minimum time between two event batches sent
// to one log client.
const DefaultUpdateInterval = time.Second

// maxPending bounds the events queued for a client that is slow to open
// the event file.
const maxPending = 1024

type rmfSession struct {
	fm      *filemanager.Manager
	file    *filemanager.File
	pending []Event
}

// RMFRecorder offers the event stream file apx_event.log on every server
// connection. Clients that open it receive batches of JSON lines.
type RMFRecorder struct {
	mu       sync.Mutex
	sessions map[*filemanager.Manager]*rmfSession
	interval time.Duration
	logger   logging.Logger

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewRMFRecorder creates a recorder flushing at most once per interval
func NewRMFRecorder(interval time.Duration, logger logging.Logger) *RMFRecorder {
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	r := &RMFRecorder{
		sessions: make(map[*filemanager.Manager]*rmfSession),
		interval: interval,
		logger:   logger.With(logging.Component("eventlog.rmf")),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

// EventFileInfo returns the announcement of the event stream file
func EventFileInfo() *rmf.FileInfo {
	info := rmf.NewFileInfo(filemanager.EventFileName, filemanager.EventFileAddress, filemanager.EventFileLen)
	info.FileType = rmf.FileTypeStream
	return info
}

// AttachConnection announces the event file on fm
func (r *RMFRecorder) AttachConnection(fm *filemanager.Manager) error {
	f := filemanager.NewLocalFile(nodedata.FileEvent, EventFileInfo(), nil)
	if err := fm.AttachLocalFile(f); err != nil {
		return err
	}
	r.mu.Lock()
	r.sessions[fm] = &rmfSession{fm: fm, file: f}
	r.mu.Unlock()
	return nil
}

// DetachConnection forgets fm
func (r *RMFRecorder) DetachConnection(fm *filemanager.Manager) {
	r.mu.Lock()
	delete(r.sessions, fm)
	r.mu.Unlock()
}

// Name implements Recorder
func (r *RMFRecorder) Name() string { return "rmf" }

// Record queues e for every connection
func (r *RMFRecorder) Record(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if len(s.pending) >= maxPending {
			s.pending = s.pending[1:]
		}
		s.pending = append(s.pending, e)
	}
	return nil
}

func (r *RMFRecorder) run() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			r.Flush()
			return
		case <-ticker.C:
			r.Flush()
		}
	}
}

// Flush sends the queued events to every connection that has the event
// file open.
func (r *RMFRecorder) Flush() {
	type batch struct {
		s      *rmfSession
		events []Event
	}
	var batches []batch
	r.mu.Lock()
	for _, s := range r.sessions {
		if len(s.pending) == 0 || !s.file.IsOpen() {
			continue
		}
		batches = append(batches, batch{s, s.pending})
		s.pending = nil
	}
	r.mu.Unlock()

	for _, b := range batches {
		data, err := EncodeEvents(b.events)
		if err != nil {
			r.logger.Warn("failed to encode events", logging.Error(err))
			continue
		}
		if err := b.s.fm.WriteLocalFile(b.s.file, 0, data); err != nil && !errors.Is(err, filemanager.ErrFileNotOpen) {
			r.logger.Warn("failed to send events", logging.ConnectionID(b.s.fm.ID()), logging.Error(err))
		}
	}
}

// Close stops the flush loop after a final flush
func (r *RMFRecorder) Close() error {
	r.once.Do(func() { close(r.stop) })
	<-r.done
	return nil
}

// EncodeEvents renders events as JSON lines
func EncodeEvents(events []Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeEvents parses JSON lines written by EncodeEvents
func DecodeEvents(data []byte) ([]Event, error) {
	var events []Event
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var e Event
		if err := dec.Decode(&e); err != nil {
			return events, err
		}
		events = append(events, e)
	}
	return events, nil
}
