package filemanager

// EventListener observes a Manager. Methods run on the goroutine that
// triggered the event and must not block.
type EventListener interface {
	FileManagerStart(fm *Manager)
	FileManagerStop(fm *Manager)
	HeaderAccepted(fm *Manager)
	FileCreate(fm *Manager, f *File)
	FileRevoke(fm *Manager, f *File)
	FileOpen(fm *Manager, f *File)
	FileClose(fm *Manager, f *File)
	FileWrite(fm *Manager, f *File, offset uint32, data []byte)
	SendFileInfo(fm *Manager, f *File)
}

// NopListener implements EventListener with empty methods. Embed it to
// handle a subset of events.
type NopListener struct{}

func (NopListener) FileManagerStart(*Manager)                 {}
func (NopListener) FileManagerStop(*Manager)                  {}
func (NopListener) HeaderAccepted(*Manager)                   {}
func (NopListener) FileCreate(*Manager, *File)                {}
func (NopListener) FileRevoke(*Manager, *File)                {}
func (NopListener) FileOpen(*Manager, *File)                  {}
func (NopListener) FileClose(*Manager, *File)                 {}
func (NopListener) FileWrite(*Manager, *File, uint32, []byte) {}
func (NopListener) SendFileInfo(*Manager, *File)              {}

// Transmitter sends one unframed RMF message to the peer
type Transmitter interface {
	Send(msg []byte) error
}

// TransmitFunc adapts a function to Transmitter
type TransmitFunc func(msg []byte) error

// Send calls fn(msg)
func (fn TransmitFunc) Send(msg []byte) error {
	return fn(msg)
}
