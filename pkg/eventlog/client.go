package eventlog

import (
	"github.com/dd0wney/cluso-apx/pkg/filemanager"
	"github.com/dd0wney/cluso-apx/pkg/logging"
	"github.com/dd0wney/cluso-apx/pkg/nodedata"
)

// ClientRecorder runs on a log client. It opens the server's event file
// as soon as it is announced and hands every received event to a callback.
type ClientRecorder struct {
	filemanager.NopListener
	onEvent func(Event)
	logger  logging.Logger
}

// NewClientRecorder registers on fm and calls onEvent for each event
func NewClientRecorder(fm *filemanager.Manager, onEvent func(Event), logger logging.Logger) *ClientRecorder {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	r := &ClientRecorder{onEvent: onEvent, logger: logger}
	fm.RegisterEventListener(r)
	return r
}

// FileCreate opens the event file
func (r *ClientRecorder) FileCreate(fm *filemanager.Manager, f *filemanager.File) {
	if f.Kind != nodedata.FileEvent {
		return
	}
	if err := fm.OpenRemoteFile(f.Address()); err != nil {
		r.logger.Warn("failed to open event file", logging.Error(err))
	}
}

// FileWrite decodes received events
func (r *ClientRecorder) FileWrite(_ *filemanager.Manager, f *filemanager.File, _ uint32, data []byte) {
	if f.Kind != nodedata.FileEvent {
		return
	}
	events, err := DecodeEvents(data)
	if err != nil {
		r.logger.Warn("malformed event batch", logging.Error(err))
	}
	for _, e := range events {
		r.onEvent(e)
	}
}
