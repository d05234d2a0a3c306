package rmf

// NumHeaderLen returns the encoded size of v
func NumHeaderLen(v uint32) int {
	if v < 128 {
		return 1
	}
	return 4
}

// AppendNumHeader appends the NumHeader32 encoding of v to dst. Values
// below 128 take one byte; larger values take four bytes, big-endian with
// bit 31 set.
func AppendNumHeader(dst []byte, v uint32) ([]byte, error) {
	switch {
	case v < 128:
		return append(dst, byte(v)), nil
	case v <= MaxNumHeader32:
		return append(dst, byte(v>>24)|0x80, byte(v>>16), byte(v>>8), byte(v)), nil
	default:
		return dst, ErrValueTooLarge
	}
}

// DecodeNumHeader decodes a NumHeader32 value from the start of data and
// returns it with the number of bytes consumed.
func DecodeNumHeader(data []byte) (uint32, int, error) {
	if len(data) == 0 {
		return 0, 0, ErrShortBuffer
	}
	if data[0]&0x80 == 0 {
		return uint32(data[0]), 1, nil
	}
	if len(data) < 4 {
		return 0, 0, ErrShortBuffer
	}
	v := uint32(data[0]&0x7F)<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
	return v, 4, nil
}
