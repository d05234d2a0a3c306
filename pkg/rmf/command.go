package rmf

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// CmdType identifies a command message
type CmdType uint32

const (
	CmdAck           CmdType = 0
	CmdNack          CmdType = 1
	CmdEOT           CmdType = 2
	CmdFileInfo      CmdType = 3
	CmdRevokeFile    CmdType = 4
	CmdHeartbeatRqst CmdType = 5
	CmdHeartbeatRsp  CmdType = 6
	CmdPingRqst      CmdType = 7
	CmdPingRsp       CmdType = 8
	CmdFileOpen      CmdType = 10
	CmdFileClose     CmdType = 11
)

func (c CmdType) String() string {
	switch c {
	case CmdAck:
		return "ACK"
	case CmdNack:
		return "NACK"
	case CmdEOT:
		return "EOT"
	case CmdFileInfo:
		return "FILE_INFO"
	case CmdRevokeFile:
		return "REVOKE"
	case CmdHeartbeatRqst:
		return "HEARTBEAT_RQST"
	case CmdHeartbeatRsp:
		return "HEARTBEAT_RSP"
	case CmdPingRqst:
		return "PING_RQST"
	case CmdPingRsp:
		return "PING_RSP"
	case CmdFileOpen:
		return "FILE_OPEN"
	case CmdFileClose:
		return "FILE_CLOSE"
	default:
		return fmt.Sprintf("CMD(%d)", uint32(c))
	}
}

// FileType describes how a file's content changes
type FileType uint16

const (
	FileTypeFixed   FileType = 0
	FileTypeDynamic FileType = 1
	FileTypeStream  FileType = 2
)

// DigestType identifies the digest carried in FileInfo
type DigestType uint16

const (
	DigestNone   DigestType = 0
	DigestSHA1   DigestType = 1
	DigestSHA256 DigestType = 2
)

// FileInfo announces a file to the remote side
type FileInfo struct {
	Address    uint32
	Length     uint32
	FileType   FileType
	DigestType DigestType
	Digest     [DigestLen]byte
	Name       string
}

// NewFileInfo creates a fixed file without a digest
func NewFileInfo(name string, address, length uint32) *FileInfo {
	return &FileInfo{Name: name, Address: address, Length: length}
}

// Contains reports whether address falls inside the file
func (f *FileInfo) Contains(address uint32) bool {
	return address >= f.Address && uint64(address) < uint64(f.Address)+uint64(f.Length)
}

// Encode returns the FILE_INFO command payload
func (f *FileInfo) Encode() ([]byte, error) {
	if len(f.Name) > MaxFileNameLen {
		return nil, ErrNameTooLong
	}
	buf := make([]byte, FileInfoBaseLen, FileInfoBaseLen+len(f.Name)+1)
	binary.LittleEndian.PutUint32(buf[0:], uint32(CmdFileInfo))
	binary.LittleEndian.PutUint32(buf[4:], f.Address)
	binary.LittleEndian.PutUint32(buf[8:], f.Length)
	binary.LittleEndian.PutUint16(buf[12:], uint16(f.FileType))
	binary.LittleEndian.PutUint16(buf[14:], uint16(f.DigestType))
	copy(buf[16:], f.Digest[:])
	buf = append(buf, f.Name...)
	return append(buf, 0), nil
}

// DecodeFileInfo decodes a FILE_INFO command payload
func DecodeFileInfo(data []byte) (*FileInfo, error) {
	if len(data) < FileInfoBaseLen+1 {
		return nil, ErrShortBuffer
	}
	if CmdType(binary.LittleEndian.Uint32(data)) != CmdFileInfo {
		return nil, fmt.Errorf("%w: not a FILE_INFO command", ErrInvalidCommand)
	}
	f := &FileInfo{
		Address:    binary.LittleEndian.Uint32(data[4:]),
		Length:     binary.LittleEndian.Uint32(data[8:]),
		FileType:   FileType(binary.LittleEndian.Uint16(data[12:])),
		DigestType: DigestType(binary.LittleEndian.Uint16(data[14:])),
	}
	copy(f.Digest[:], data[16:FileInfoBaseLen])
	name := data[FileInfoBaseLen:]
	end := bytes.IndexByte(name, 0)
	if end < 0 {
		return nil, fmt.Errorf("%w: unterminated file name", ErrInvalidCommand)
	}
	if end > MaxFileNameLen {
		return nil, ErrNameTooLong
	}
	f.Name = string(name[:end])
	return f, nil
}

// EncodeCommand returns a command payload that carries no arguments
func EncodeCommand(cmd CmdType) []byte {
	buf := make([]byte, CmdTypeLen)
	binary.LittleEndian.PutUint32(buf, uint32(cmd))
	return buf
}

// EncodeAddressCommand returns a FILE_OPEN, FILE_CLOSE or REVOKE payload
func EncodeAddressCommand(cmd CmdType, address uint32) []byte {
	buf := make([]byte, AddressCmdLen)
	binary.LittleEndian.PutUint32(buf, uint32(cmd))
	binary.LittleEndian.PutUint32(buf[4:], address)
	return buf
}

// DecodeCommandType returns the command type at the start of a command payload
func DecodeCommandType(data []byte) (CmdType, error) {
	if len(data) < CmdTypeLen {
		return 0, ErrShortBuffer
	}
	return CmdType(binary.LittleEndian.Uint32(data)), nil
}

// DecodeAddressCommand decodes a FILE_OPEN, FILE_CLOSE or REVOKE payload
func DecodeAddressCommand(data []byte) (CmdType, uint32, error) {
	if len(data) < AddressCmdLen {
		return 0, 0, ErrShortBuffer
	}
	cmd := CmdType(binary.LittleEndian.Uint32(data))
	switch cmd {
	case CmdFileOpen, CmdFileClose, CmdRevokeFile:
	default:
		return 0, 0, fmt.Errorf("%w: %s takes no address", ErrInvalidCommand, cmd)
	}
	return cmd, binary.LittleEndian.Uint32(data[4:]), nil
}
