// Package rmf implements the remote file (RMF) protocol codec used between
// APX clients and servers: the greeting header, NumHeader32 message framing,
// address headers and the command messages exchanged in the command area.
package rmf

import (
	"errors"
)

// Protocol constants
const (
	GreetingStart        = "RMFP/1.0\n"
	NumHeaderFormatField = "NumHeader-Format"
	NumHeaderFormat32    = 32

	// CmdStartAddress is where the command area begins; messages addressed
	// at it carry commands rather than file data.
	CmdStartAddress uint32 = 0x3FFFFC00
	// CmdEndAddress is the last address of the command area
	CmdEndAddress uint32 = 0x3FFFFFFF
	// InvalidAddress marks a file that has not been assigned an address yet
	InvalidAddress uint32 = 0xFFFFFFFF

	MaxFileNameLen    = 255
	MaxAddress        = 0x3FFFFFFF
	MaxShortAddress   = 0x3FFF
	MaxNumHeader32    = 0x7FFFFFFF
	ShortAddressLen   = 2
	LongAddressLen    = 4
	CmdTypeLen        = 4
	AddressCmdLen     = 8
	FileInfoBaseLen   = 48
	DigestLen         = 32
	MaxGreetingLen    = 127
	DefaultMaxMessage = 1 << 20
)

var (
	// ErrInvalidGreeting is returned for a header that is not an RMF greeting
	ErrInvalidGreeting = errors.New("rmf: invalid greeting")
	// ErrUnsupportedNumHeader is returned when the greeting asks for a NumHeader format other than 32
	ErrUnsupportedNumHeader = errors.New("rmf: unsupported NumHeader format")
	// ErrShortBuffer is returned when a buffer ends before a complete field
	ErrShortBuffer = errors.New("rmf: short buffer")
	// ErrValueTooLarge is returned when a value does not fit its encoding
	ErrValueTooLarge = errors.New("rmf: value too large")
	// ErrMessageTooLarge is returned by Reader for messages above its limit
	ErrMessageTooLarge = errors.New("rmf: message too large")
	// ErrInvalidHeader is returned for a malformed address header
	ErrInvalidHeader = errors.New("rmf: invalid address header")
	// ErrInvalidCommand is returned for a malformed or unknown command
	ErrInvalidCommand = errors.New("rmf: invalid command")
	// ErrNameTooLong is returned for file names above MaxFileNameLen
	ErrNameTooLong = errors.New("rmf: file name too long")
)
