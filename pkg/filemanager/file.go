package filemanager

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dd0wney/cluso-apx/pkg/nodedata"
	"github.com/dd0wney/cluso-apx/pkg/rmf"
)

var (
	// ErrNoHandler is returned when reading or writing a file without a handler
	ErrNoHandler = errors.New("filemanager: file has no handler")
	// ErrOverlap is returned when a file overlaps another file in the map
	ErrOverlap = errors.New("filemanager: file overlaps an existing file")
	// ErrDuplicateName is returned when a file name is already in the map
	ErrDuplicateName = errors.New("filemanager: duplicate file name")
	// ErrNoSpace is returned when no address is left in a file's area
	ErrNoSpace = errors.New("filemanager: no free address")
	// ErrFileNotFound is returned when no file matches an address or name
	ErrFileNotFound = errors.New("filemanager: file not found")
	// ErrFileNotOpen is returned when writing a file the peer has not opened
	ErrFileNotOpen = errors.New("filemanager: file not open")
	// ErrStopped is returned after Stop
	ErrStopped = errors.New("filemanager: stopped")
)

// FileHandler provides the content behind a file
type FileHandler interface {
	ReadFile(f *File, dst []byte, offset uint32) error
	WriteFile(f *File, src []byte, offset uint32) error
}

// File is one local or remote file known to a Manager
type File struct {
	Info     rmf.FileInfo
	Kind     nodedata.FileKind
	IsRemote bool

	open    atomic.Bool
	mu      sync.RWMutex
	handler FileHandler
}

// NewLocalFile creates a file this side owns and announces
func NewLocalFile(kind nodedata.FileKind, info *rmf.FileInfo, h FileHandler) *File {
	return &File{Info: *info, Kind: kind, handler: h}
}

// NewRemoteFile creates a file announced by the peer
func NewRemoteFile(kind nodedata.FileKind, info *rmf.FileInfo, h FileHandler) *File {
	return &File{Info: *info, Kind: kind, IsRemote: true, handler: h}
}

// Name returns the file name
func (f *File) Name() string { return f.Info.Name }

// Address returns the start address
func (f *File) Address() uint32 { return f.Info.Address }

// Length returns the file length in bytes
func (f *File) Length() uint32 { return f.Info.Length }

// IsOpen reports whether the file is open
func (f *File) IsOpen() bool { return f.open.Load() }

// Open marks the file open
func (f *File) Open() { f.open.Store(true) }

// Close marks the file closed
func (f *File) Close() { f.open.Store(false) }

// SetHandler replaces the file handler
func (f *File) SetHandler(h FileHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

// HasHandler reports whether a handler is set
func (f *File) HasHandler() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.handler != nil
}

// Read reads file content at offset through the handler
func (f *File) Read(dst []byte, offset uint32) error {
	f.mu.RLock()
	h := f.handler
	f.mu.RUnlock()
	if h == nil {
		return ErrNoHandler
	}
	return h.ReadFile(f, dst, offset)
}

// Write writes file content at offset through the handler
func (f *File) Write(src []byte, offset uint32) error {
	f.mu.RLock()
	h := f.handler
	f.mu.RUnlock()
	if h == nil {
		return ErrNoHandler
	}
	return h.WriteFile(f, src, offset)
}

// span is the address range a file occupies; empty files still take one
// byte so they keep a distinct address.
func (f *File) span() (uint32, uint32) {
	length := f.Info.Length
	if length == 0 {
		length = 1
	}
	return f.Info.Address, f.Info.Address + length
}

// NodeDataHandler serves node files from a NodeData
type NodeDataHandler struct {
	Data *nodedata.NodeData
}

// ReadFile copies the buffer behind the file's kind
func (h NodeDataHandler) ReadFile(f *File, dst []byte, offset uint32) error {
	switch f.Kind {
	case nodedata.FileDefinition:
		return h.Data.ReadDefinition(dst, int(offset))
	case nodedata.FileOutData:
		return h.Data.ReadOutPortData(dst, int(offset))
	case nodedata.FileInData:
		return h.Data.ReadInPortData(dst, int(offset))
	}
	return ErrNoHandler
}

// WriteFile writes the buffer behind the file's kind
func (h NodeDataHandler) WriteFile(f *File, src []byte, offset uint32) error {
	switch f.Kind {
	case nodedata.FileDefinition:
		return h.Data.WriteDefinition(src, int(offset))
	case nodedata.FileOutData:
		return h.Data.WriteOutPortData(src, int(offset))
	case nodedata.FileInData:
		return h.Data.WriteInPortData(src, int(offset))
	}
	return ErrNoHandler
}
