package rmf

// AddressHeaderLen returns the encoded size of an address header
func AddressHeaderLen(address uint32) int {
	if address <= MaxShortAddress {
		return ShortAddressLen
	}
	return LongAddressLen
}

// AppendAddress appends an address header to dst. Addresses up to 0x3FFF
// take two bytes with bit 14 as the more flag. Larger addresses take four
// bytes with bit 31 set and bit 30 as the more flag.
func AppendAddress(dst []byte, address uint32, more bool) ([]byte, error) {
	if address > MaxAddress {
		return dst, ErrValueTooLarge
	}
	if address <= MaxShortAddress {
		b0 := byte(address >> 8)
		if more {
			b0 |= 0x40
		}
		return append(dst, b0, byte(address)), nil
	}
	b0 := byte(address>>24) | 0x80
	if more {
		b0 |= 0x40
	}
	return append(dst, b0, byte(address>>16), byte(address>>8), byte(address)), nil
}

// DecodeAddress decodes an address header from the start of data
func DecodeAddress(data []byte) (address uint32, more bool, n int, err error) {
	if len(data) < ShortAddressLen {
		return 0, false, 0, ErrShortBuffer
	}
	more = data[0]&0x40 != 0
	if data[0]&0x80 == 0 {
		return uint32(data[0]&0x3F)<<8 | uint32(data[1]), more, ShortAddressLen, nil
	}
	if len(data) < LongAddressLen {
		return 0, false, 0, ErrShortBuffer
	}
	address = uint32(data[0]&0x3F)<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
	return address, more, LongAddressLen, nil
}
