package rmf

import (
	"fmt"
	"strconv"
	"strings"
)

// Header holds the fields of a parsed greeting
type Header struct {
	NumHeaderFormat int
	Fields          map[string]string
}

// Greeting returns the greeting a client sends after connecting
func Greeting() []byte {
	return []byte(fmt.Sprintf("%s%s:%d\n\n", GreetingStart, NumHeaderFormatField, NumHeaderFormat32))
}

// ParseGreeting validates a greeting message. The first line must be the
// protocol line, then follow "Key:Value" lines up to an empty line.
func ParseGreeting(data []byte) (*Header, error) {
	text := string(data)
	if !strings.HasPrefix(text, GreetingStart) {
		return nil, ErrInvalidGreeting
	}
	h := &Header{NumHeaderFormat: NumHeaderFormat32, Fields: make(map[string]string)}
	rest := text[len(GreetingStart):]
	for {
		line, tail, found := strings.Cut(rest, "\n")
		if !found {
			// header must be terminated by an empty line
			return nil, fmt.Errorf("%w: missing end of header", ErrInvalidGreeting)
		}
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: malformed line %q", ErrInvalidGreeting, line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		h.Fields[key] = value
		if key == NumHeaderFormatField {
			n, err := strconv.Atoi(value)
			if err != nil || n != NumHeaderFormat32 {
				return nil, fmt.Errorf("%w: %s", ErrUnsupportedNumHeader, value)
			}
			h.NumHeaderFormat = n
		}
		rest = tail
	}
	return h, nil
}
