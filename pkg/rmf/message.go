package rmf

import "fmt"

// Message is one unframed RMF message: an address header and its payload
type Message struct {
	Address uint32
	More    bool
	Payload []byte
}

// IsCommand reports whether the message is addressed to the command area
func (m *Message) IsCommand() bool {
	return m.Address == CmdStartAddress
}

// Encode returns the address header followed by the payload
func (m *Message) Encode() ([]byte, error) {
	buf := make([]byte, 0, AddressHeaderLen(m.Address)+len(m.Payload))
	buf, err := AppendAddress(buf, m.Address, m.More)
	if err != nil {
		return nil, err
	}
	return append(buf, m.Payload...), nil
}

// ParseMessage splits an unframed message into address header and payload.
// The payload aliases data.
func ParseMessage(data []byte) (*Message, error) {
	address, more, n, err := DecodeAddress(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	return &Message{Address: address, More: more, Payload: data[n:]}, nil
}

// CommandMessage wraps a command payload in a message to the command area
func CommandMessage(payload []byte) []byte {
	buf := make([]byte, 0, LongAddressLen+len(payload))
	buf, _ = AppendAddress(buf, CmdStartAddress, false)
	return append(buf, payload...)
}

// AckMessage returns the unframed acknowledge message the server sends
// after accepting a greeting.
func AckMessage() []byte {
	return CommandMessage(EncodeCommand(CmdAck))
}

// IsAck reports whether msg is exactly the acknowledge message
func IsAck(msg []byte) bool {
	if len(msg) != LongAddressLen+CmdTypeLen {
		return false
	}
	m, err := ParseMessage(msg)
	if err != nil || !m.IsCommand() || m.More {
		return false
	}
	cmd, err := DecodeCommandType(m.Payload)
	return err == nil && cmd == CmdAck
}

// FileInfoMessage returns the FILE_INFO command message for info
func FileInfoMessage(info *FileInfo) ([]byte, error) {
	payload, err := info.Encode()
	if err != nil {
		return nil, err
	}
	return CommandMessage(payload), nil
}
