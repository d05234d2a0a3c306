package apx

import (
	"encoding/binary"
	"math"
)

// Values exchanged with Pack and Unpack use these Go types:
//
//	integers          int64 (uint64 for U)
//	strings (a[n])    string
//	arrays, records   []any, in declaration order
//
// Pack also accepts the other built-in integer types.

// Pack encodes v according to elem using little-endian byte order
func Pack(elem *DataElement, v any) ([]byte, error) {
	buf := make([]byte, elem.PackLen())
	if _, err := PackInto(buf, elem, v); err != nil {
		return nil, err
	}
	return buf, nil
}

// PackInto encodes v into dst and returns the number of bytes written
func PackInto(dst []byte, elem *DataElement, v any) (int, error) {
	e := elem.Resolved()
	if e == nil {
		return 0, errorf(InvalidTypeRefError, "unresolved type reference %s", elem)
	}
	if len(dst) < e.PackLen() {
		return 0, errorf(LengthError, "buffer of %d bytes is too small for %d", len(dst), e.PackLen())
	}
	if e.IsArray() {
		items, ok := v.([]any)
		if !ok {
			return 0, errorf(DvTypeError, "expected list for %s, got %T", e, v)
		}
		if len(items) != e.ArrayLen {
			return 0, errorf(LengthError, "expected %d items for %s, got %d", e.ArrayLen, e, len(items))
		}
		scalar := *e
		scalar.ArrayLen = 0
		n := 0
		for _, item := range items {
			w, err := packSingle(dst[n:], &scalar, item)
			if err != nil {
				return 0, err
			}
			n += w
		}
		return n, nil
	}
	return packSingle(dst, e, v)
}

func packSingle(dst []byte, e *DataElement, v any) (int, error) {
	switch e.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return 0, errorf(DvTypeError, "expected string for %s, got %T", e, v)
		}
		if len(s) > e.ArrayLen {
			return 0, errorf(LengthError, "string of %d bytes exceeds %s", len(s), e)
		}
		copy(dst, s)
		clear(dst[len(s):e.ArrayLen])
		return e.ArrayLen, nil
	case TypeRecord:
		items, ok := v.([]any)
		if !ok {
			return 0, errorf(DvTypeError, "expected list for record %s, got %T", e, v)
		}
		if len(items) != len(e.Fields) {
			return 0, errorf(LengthError, "record %s has %d fields, got %d values", e, len(e.Fields), len(items))
		}
		n := 0
		for i, f := range e.Fields {
			w, err := PackInto(dst[n:], f, items[i])
			if err != nil {
				return 0, err
			}
			n += w
		}
		return n, nil
	}
	if !e.Type.IsInteger() {
		return 0, errorf(ElementTypeError, "cannot pack element %s", e)
	}
	bits, err := integerBits(e.Type, v)
	if err != nil {
		return 0, err
	}
	switch e.Type.Size() {
	case 1:
		dst[0] = byte(bits)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(bits))
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(bits))
	case 8:
		binary.LittleEndian.PutUint64(dst, bits)
	}
	return e.Type.Size(), nil
}

// integerBits range checks v against t and returns its two's complement bits
func integerBits(t TypeCode, v any) (uint64, error) {
	var (
		i   int64
		u   uint64
		big bool // value does not fit int64 and is held in u
	)
	switch x := v.(type) {
	case int:
		i = int64(x)
	case int8:
		i = int64(x)
	case int16:
		i = int64(x)
	case int32:
		i = int64(x)
	case int64:
		i = x
	case uint:
		u, big = uint64(x), uint64(x) > math.MaxInt64
		i = int64(x)
	case uint8:
		i = int64(x)
	case uint16:
		i = int64(x)
	case uint32:
		i = int64(x)
	case uint64:
		u, big = x, x > math.MaxInt64
		i = int64(x)
	default:
		return 0, errorf(DvTypeError, "expected integer, got %T", v)
	}
	if big {
		if t != TypeUint64 {
			return 0, errorf(ValueError, "value %d out of range", u)
		}
		return u, nil
	}
	var lo, hi int64
	switch t {
	case TypeUint8:
		lo, hi = 0, math.MaxUint8
	case TypeUint16:
		lo, hi = 0, math.MaxUint16
	case TypeUint32:
		lo, hi = 0, math.MaxUint32
	case TypeUint64:
		lo, hi = 0, math.MaxInt64
	case TypeSint8:
		lo, hi = math.MinInt8, math.MaxInt8
	case TypeSint16:
		lo, hi = math.MinInt16, math.MaxInt16
	case TypeSint32:
		lo, hi = math.MinInt32, math.MaxInt32
	case TypeSint64:
		lo, hi = math.MinInt64, math.MaxInt64
	}
	if i < lo || i > hi {
		return 0, errorf(ValueError, "value %d out of range [%d, %d]", i, lo, hi)
	}
	return uint64(i), nil
}

// Unpack decodes a value of elem from data. It returns the value and the
// number of bytes consumed.
func Unpack(elem *DataElement, data []byte) (any, int, error) {
	e := elem.Resolved()
	if e == nil {
		return nil, 0, errorf(InvalidTypeRefError, "unresolved type reference %s", elem)
	}
	if len(data) < e.PackLen() {
		return nil, 0, errorf(LengthError, "need %d bytes for %s, have %d", e.PackLen(), e, len(data))
	}
	if e.IsArray() {
		scalar := *e
		scalar.ArrayLen = 0
		items := make([]any, 0, e.ArrayLen)
		n := 0
		for i := 0; i < e.ArrayLen; i++ {
			v, r, err := unpackSingle(&scalar, data[n:])
			if err != nil {
				return nil, 0, err
			}
			items = append(items, v)
			n += r
		}
		return items, n, nil
	}
	return unpackSingle(e, data)
}

func unpackSingle(e *DataElement, data []byte) (any, int, error) {
	switch e.Type {
	case TypeString:
		raw := data[:e.ArrayLen]
		end := len(raw)
		for i, c := range raw {
			if c == 0 {
				end = i
				break
			}
		}
		return string(raw[:end]), e.ArrayLen, nil
	case TypeRecord:
		items := make([]any, 0, len(e.Fields))
		n := 0
		for _, f := range e.Fields {
			v, r, err := Unpack(f, data[n:])
			if err != nil {
				return nil, 0, err
			}
			items = append(items, v)
			n += r
		}
		return items, n, nil
	case TypeUint8:
		return int64(data[0]), 1, nil
	case TypeUint16:
		return int64(binary.LittleEndian.Uint16(data)), 2, nil
	case TypeUint32:
		return int64(binary.LittleEndian.Uint32(data)), 4, nil
	case TypeUint64:
		return binary.LittleEndian.Uint64(data), 8, nil
	case TypeSint8:
		return int64(int8(data[0])), 1, nil
	case TypeSint16:
		return int64(int16(binary.LittleEndian.Uint16(data))), 2, nil
	case TypeSint32:
		return int64(int32(binary.LittleEndian.Uint32(data))), 4, nil
	case TypeSint64:
		return int64(binary.LittleEndian.Uint64(data)), 8, nil
	}
	return nil, 0, errorf(ElementTypeError, "cannot unpack element %s", e)
}
