// Package nodedata holds the byte buffers behind an APX node: its definition
// text and the in and out port data, with dirty tracking and change
// notification.
package nodedata

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dd0wney/cluso-apx/pkg/apx"
	"github.com/dd0wney/cluso-apx/pkg/rmf"
)

// FileKind classifies the files a node is exchanged through
type FileKind uint8

const (
	FileUnknown    FileKind = 0
	FileOutData    FileKind = 1
	FileInData     FileKind = 2
	FileDefinition FileKind = 3
	FileUserData   FileKind = 4
	FileEvent      FileKind = 5
)

// File name extensions
const (
	DefinitionExt = ".apx"
	InDataExt     = ".in"
	OutDataExt    = ".out"
	maxExtLen     = 4
)

func (k FileKind) String() string {
	switch k {
	case FileOutData:
		return "out"
	case FileInData:
		return "in"
	case FileDefinition:
		return "definition"
	case FileUserData:
		return "user"
	case FileEvent:
		return "event"
	default:
		return "unknown"
	}
}

// KindOf splits a file name into node name and kind
func KindOf(fileName string) (string, FileKind) {
	for ext, kind := range map[string]FileKind{
		DefinitionExt: FileDefinition,
		InDataExt:     FileInData,
		OutDataExt:    FileOutData,
	} {
		if base, ok := strings.CutSuffix(fileName, ext); ok && base != "" {
			return base, kind
		}
	}
	return fileName, FileUnknown
}

// ChecksumType identifies the checksum over the definition
type ChecksumType uint8

const (
	ChecksumNone   ChecksumType = 0
	ChecksumSHA256 ChecksumType = 1
)

var (
	// ErrOutOfBounds is returned for reads and writes outside a buffer
	ErrOutOfBounds = errors.New("nodedata: access out of bounds")
	// ErrNoNode is returned for port operations before a node is attached
	ErrNoNode = errors.New("nodedata: no node attached")
	// ErrUnknownPort is returned when a port name is not declared by the node
	ErrUnknownPort = errors.New("nodedata: unknown port")
)

// Handler is notified after port data changes
type Handler interface {
	InPortDataWritten(nd *NodeData, offset, length int)
	OutPortDataWritten(nd *NodeData, offset, length int)
}

// NodeData owns the definition and port buffers of one node
type NodeData struct {
	name     string
	isRemote bool

	defMu      sync.Mutex
	definition []byte

	inMu    sync.Mutex
	inData  []byte
	inDirty []byte

	outMu    sync.Mutex
	outData  []byte
	outDirty []byte

	mu           sync.RWMutex
	node         *apx.Node
	handler      Handler
	checksumType ChecksumType
	checksum     [sha256.Size]byte
}

// New creates node data with an empty definition buffer of definitionLen
// bytes. Remote node data is filled in by its peer.
func New(name string, definitionLen int, remote bool) *NodeData {
	return &NodeData{
		name:       name,
		isRemote:   remote,
		definition: make([]byte, definitionLen),
	}
}

// FromNode creates local node data for node: the definition text, port
// buffers holding the init values and a SHA-256 checksum.
func FromNode(node *apx.Node) (*NodeData, error) {
	if err := node.Finalize(); err != nil {
		return nil, err
	}
	nd := New(node.Name, 0, false)
	nd.definition = []byte(node.Definition())
	if err := nd.SetNode(node); err != nil {
		return nil, err
	}
	nd.SetChecksum(ChecksumSHA256, nil)
	return nd, nil
}

// Name returns the node name
func (nd *NodeData) Name() string {
	nd.mu.RLock()
	defer nd.mu.RUnlock()
	if nd.node != nil {
		return nd.node.Name
	}
	return nd.name
}

// IsRemote reports whether the data is owned by the peer
func (nd *NodeData) IsRemote() bool {
	return nd.isRemote
}

// Node returns the attached node, or nil
func (nd *NodeData) Node() *apx.Node {
	nd.mu.RLock()
	defer nd.mu.RUnlock()
	return nd.node
}

// SetNode attaches a finalized node and sizes the port buffers from it,
// filling them with the ports' init values.
func (nd *NodeData) SetNode(node *apx.Node) error {
	if err := node.Finalize(); err != nil {
		return err
	}
	inInit, err := node.InPortInitData()
	if err != nil {
		return err
	}
	outInit, err := node.OutPortInitData()
	if err != nil {
		return err
	}

	nd.mu.Lock()
	nd.node = node
	nd.name = node.Name
	nd.mu.Unlock()

	nd.inMu.Lock()
	nd.inData = inInit
	nd.inDirty = make([]byte, len(inInit))
	nd.inMu.Unlock()

	nd.outMu.Lock()
	nd.outData = outInit
	nd.outDirty = make([]byte, len(outInit))
	nd.outMu.Unlock()
	return nil
}

// SetHandler sets the change handler; nil removes it
func (nd *NodeData) SetHandler(h Handler) {
	nd.mu.Lock()
	defer nd.mu.Unlock()
	nd.handler = h
}

func (nd *NodeData) currentHandler() Handler {
	nd.mu.RLock()
	defer nd.mu.RUnlock()
	return nd.handler
}

// SetChecksum sets the definition checksum. For ChecksumSHA256 a nil sum
// computes it from the current definition buffer.
func (nd *NodeData) SetChecksum(kind ChecksumType, sum []byte) error {
	var digest [sha256.Size]byte
	switch kind {
	case ChecksumNone:
	case ChecksumSHA256:
		if sum == nil {
			nd.defMu.Lock()
			digest = sha256.Sum256(nd.definition)
			nd.defMu.Unlock()
		} else if len(sum) != sha256.Size {
			return &apx.Error{Code: apx.InvalidArgumentError, Detail: fmt.Sprintf("checksum must be %d bytes", sha256.Size)}
		} else {
			copy(digest[:], sum)
		}
	default:
		return &apx.Error{Code: apx.InvalidArgumentError, Detail: fmt.Sprintf("unknown checksum type %d", kind)}
	}
	nd.mu.Lock()
	defer nd.mu.Unlock()
	nd.checksumType = kind
	nd.checksum = digest
	return nil
}

// Checksum returns the checksum type and value
func (nd *NodeData) Checksum() (ChecksumType, [sha256.Size]byte) {
	nd.mu.RLock()
	defer nd.mu.RUnlock()
	return nd.checksumType, nd.checksum
}

// DefinitionLen returns the size of the definition buffer
func (nd *NodeData) DefinitionLen() int {
	nd.defMu.Lock()
	defer nd.defMu.Unlock()
	return len(nd.definition)
}

// InPortDataLen returns the size of the in port buffer
func (nd *NodeData) InPortDataLen() int {
	nd.inMu.Lock()
	defer nd.inMu.Unlock()
	return len(nd.inData)
}

// OutPortDataLen returns the size of the out port buffer
func (nd *NodeData) OutPortDataLen() int {
	nd.outMu.Lock()
	defer nd.outMu.Unlock()
	return len(nd.outData)
}

func inBounds(size, offset, length int) bool {
	return offset >= 0 && length >= 0 && offset+length <= size
}

// ReadDefinition copies definition bytes at offset into dst
func (nd *NodeData) ReadDefinition(dst []byte, offset int) error {
	nd.defMu.Lock()
	defer nd.defMu.Unlock()
	if !inBounds(len(nd.definition), offset, len(dst)) {
		return ErrOutOfBounds
	}
	copy(dst, nd.definition[offset:])
	return nil
}

// WriteDefinition copies src into the definition buffer at offset
func (nd *NodeData) WriteDefinition(src []byte, offset int) error {
	nd.defMu.Lock()
	defer nd.defMu.Unlock()
	if !inBounds(len(nd.definition), offset, len(src)) {
		return ErrOutOfBounds
	}
	copy(nd.definition[offset:], src)
	return nil
}

// Definition returns a copy of the definition buffer
func (nd *NodeData) Definition() []byte {
	nd.defMu.Lock()
	defer nd.defMu.Unlock()
	return append([]byte(nil), nd.definition...)
}

// ReadInPortData copies in port bytes at offset into dst and clears their
// dirty flags.
func (nd *NodeData) ReadInPortData(dst []byte, offset int) error {
	nd.inMu.Lock()
	defer nd.inMu.Unlock()
	if !inBounds(len(nd.inData), offset, len(dst)) {
		return ErrOutOfBounds
	}
	copy(dst, nd.inData[offset:])
	clear(nd.inDirty[offset : offset+len(dst)])
	return nil
}

// WriteInPortData copies src into the in port buffer, marks it dirty and
// notifies the handler.
func (nd *NodeData) WriteInPortData(src []byte, offset int) error {
	nd.inMu.Lock()
	if !inBounds(len(nd.inData), offset, len(src)) {
		nd.inMu.Unlock()
		return ErrOutOfBounds
	}
	copy(nd.inData[offset:], src)
	markDirty(nd.inDirty[offset : offset+len(src)])
	nd.inMu.Unlock()

	if h := nd.currentHandler(); h != nil {
		h.InPortDataWritten(nd, offset, len(src))
	}
	return nil
}

// IsInPortDataDirty reports whether any byte in the range was written
// since it was last read.
func (nd *NodeData) IsInPortDataDirty(offset, length int) bool {
	nd.inMu.Lock()
	defer nd.inMu.Unlock()
	if !inBounds(len(nd.inDirty), offset, length) {
		return false
	}
	for _, d := range nd.inDirty[offset : offset+length] {
		if d != 0 {
			return true
		}
	}
	return false
}

// ReadOutPortData copies out port bytes at offset into dst and clears
// their dirty flags.
func (nd *NodeData) ReadOutPortData(dst []byte, offset int) error {
	nd.outMu.Lock()
	defer nd.outMu.Unlock()
	if !inBounds(len(nd.outData), offset, len(dst)) {
		return ErrOutOfBounds
	}
	copy(dst, nd.outData[offset:])
	clear(nd.outDirty[offset : offset+len(dst)])
	return nil
}

// WriteOutPortData copies src into the out port buffer, marks it dirty and
// notifies the handler.
func (nd *NodeData) WriteOutPortData(src []byte, offset int) error {
	nd.outMu.Lock()
	err := nd.WriteOutPortDataLocked(src, offset)
	nd.outMu.Unlock()
	if err != nil {
		return err
	}
	nd.OutPortDataNotify(offset, len(src))
	return nil
}

// LockOutPortData holds the out port buffer so several writes land together.
// Use WriteOutPortDataLocked while holding it, then UnlockOutPortData and
// OutPortDataNotify.
func (nd *NodeData) LockOutPortData() {
	nd.outMu.Lock()
}

// UnlockOutPortData releases the lock taken by LockOutPortData
func (nd *NodeData) UnlockOutPortData() {
	nd.outMu.Unlock()
}

// WriteOutPortDataLocked writes like WriteOutPortData without locking or
// notifying. The caller must hold LockOutPortData.
func (nd *NodeData) WriteOutPortDataLocked(src []byte, offset int) error {
	if !inBounds(len(nd.outData), offset, len(src)) {
		return ErrOutOfBounds
	}
	copy(nd.outData[offset:], src)
	markDirty(nd.outDirty[offset : offset+len(src)])
	return nil
}

// OutPortDataNotify tells the handler that out port bytes changed
func (nd *NodeData) OutPortDataNotify(offset, length int) {
	if h := nd.currentHandler(); h != nil {
		h.OutPortDataWritten(nd, offset, length)
	}
}

func markDirty(flags []byte) {
	for i := range flags {
		flags[i] = 1
	}
}

func (nd *NodeData) port(name string, kind apx.PortKind) (*apx.Port, error) {
	node := nd.Node()
	if node == nil {
		return nil, ErrNoNode
	}
	var p *apx.Port
	if kind == apx.KindProvide {
		p = node.FindProvidePort(name)
	} else {
		p = node.FindRequirePort(name)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrUnknownPort, kind, name)
	}
	return p, nil
}

// WriteProvidePort packs value into the named provide port
func (nd *NodeData) WriteProvidePort(name string, value any) error {
	p, err := nd.port(name, apx.KindProvide)
	if err != nil {
		return err
	}
	data, err := apx.Pack(p.Signature.Element, value)
	if err != nil {
		return err
	}
	return nd.WriteOutPortData(data, p.Offset)
}

// ReadProvidePort unpacks the current value of the named provide port
func (nd *NodeData) ReadProvidePort(name string) (any, error) {
	p, err := nd.port(name, apx.KindProvide)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, p.PackLen())
	if err := nd.ReadOutPortData(buf, p.Offset); err != nil {
		return nil, err
	}
	v, _, err := apx.Unpack(p.Signature.Element, buf)
	return v, err
}

// ReadRequirePort unpacks the current value of the named require port
func (nd *NodeData) ReadRequirePort(name string) (any, error) {
	p, err := nd.port(name, apx.KindRequire)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, p.PackLen())
	if err := nd.ReadInPortData(buf, p.Offset); err != nil {
		return nil, err
	}
	v, _, err := apx.Unpack(p.Signature.Element, buf)
	return v, err
}

// FileName returns the name of the node's file of the given kind
func (nd *NodeData) FileName(kind FileKind) (string, error) {
	var ext string
	switch kind {
	case FileDefinition:
		ext = DefinitionExt
	case FileInData:
		ext = InDataExt
	case FileOutData:
		ext = OutDataExt
	default:
		return "", &apx.Error{Code: apx.InvalidArgumentError, Detail: fmt.Sprintf("no node file of kind %s", kind)}
	}
	name := nd.Name()
	if len(name)+maxExtLen > rmf.MaxFileNameLen {
		return "", &apx.Error{Code: apx.LengthError, Detail: "node name too long for a file name"}
	}
	return name + ext, nil
}

// FileInfo returns the announcement for the node's file of the given kind.
// The address is left unassigned.
func (nd *NodeData) FileInfo(kind FileKind) (*rmf.FileInfo, error) {
	name, err := nd.FileName(kind)
	if err != nil {
		return nil, err
	}
	var length int
	switch kind {
	case FileDefinition:
		length = nd.DefinitionLen()
	case FileInData:
		length = nd.InPortDataLen()
	case FileOutData:
		length = nd.OutPortDataLen()
	}
	info := rmf.NewFileInfo(name, rmf.InvalidAddress, uint32(length))
	if kind == FileDefinition {
		if kind, sum := nd.Checksum(); kind == ChecksumSHA256 {
			info.DigestType = rmf.DigestSHA256
			info.Digest = sum
		}
	}
	return info, nil
}
