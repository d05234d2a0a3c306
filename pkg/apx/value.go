package apx

import (
	"strconv"
	"strings"
)

// ParseValue parses an init value literal: a decimal or 0x-prefixed integer,
// a double quoted string or a brace enclosed list of values.
func ParseValue(text string) (any, error) {
	p := &valueParser{s: text}
	v, err := p.parse()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.s) {
		return nil, errorf(ParseError, "unexpected %q after value in %q", p.s[p.pos:], text)
	}
	return v, nil
}

// FormatValue renders v in the literal syntax accepted by ParseValue
func FormatValue(v any) string {
	var b strings.Builder
	formatValue(&b, v)
	return b.String()
}

func formatValue(b *strings.Builder, v any) {
	switch x := v.(type) {
	case []any:
		b.WriteByte('{')
		for i, item := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			formatValue(b, item)
		}
		b.WriteByte('}')
	case string:
		b.WriteString(strconv.Quote(x))
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case uint64:
		b.WriteString(strconv.FormatUint(x, 10))
	case int:
		b.WriteString(strconv.Itoa(x))
	default:
		b.WriteString("?")
	}
}

type valueParser struct {
	s   string
	pos int
}

func (p *valueParser) skipSpace() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t') {
		p.pos++
	}
}

func (p *valueParser) parse() (any, error) {
	p.skipSpace()
	if p.pos >= len(p.s) {
		return nil, errorf(ParseError, "missing value in %q", p.s)
	}
	switch c := p.s[p.pos]; {
	case c == '{':
		return p.parseList()
	case c == '"':
		return p.parseString()
	case c == '-' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	default:
		return nil, errorf(ParseError, "unexpected %q in value %q", c, p.s)
	}
}

func (p *valueParser) parseList() (any, error) {
	p.pos++
	items := []any{}
	p.skipSpace()
	if p.pos < len(p.s) && p.s[p.pos] == '}' {
		p.pos++
		return items, nil
	}
	for {
		v, err := p.parse()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		p.skipSpace()
		if p.pos >= len(p.s) {
			return nil, errorf(UnmatchedBraceError, "missing '}' in value %q", p.s)
		}
		switch p.s[p.pos] {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return items, nil
		default:
			return nil, errorf(ParseError, "unexpected %q in list %q", p.s[p.pos], p.s)
		}
	}
}

func (p *valueParser) parseString() (any, error) {
	var b strings.Builder
	for i := p.pos + 1; i < len(p.s); i++ {
		c := p.s[i]
		switch {
		case c == '\\' && i+1 < len(p.s):
			i++
			b.WriteByte(p.s[i])
		case c == '"':
			p.pos = i + 1
			return b.String(), nil
		default:
			b.WriteByte(c)
		}
	}
	return nil, errorf(UnmatchedStringError, "unterminated string in %q", p.s)
}

func (p *valueParser) parseNumber() (any, error) {
	start := p.pos
	if p.s[p.pos] == '-' {
		p.pos++
	}
	base, digit := 10, isDecimalDigit
	if rest := p.s[p.pos:]; strings.HasPrefix(rest, "0x") || strings.HasPrefix(rest, "0X") {
		p.pos += 2
		base, digit = 16, isHexDigit
	}
	digits := p.pos
	for p.pos < len(p.s) && digit(p.s[p.pos]) {
		p.pos++
	}
	lit := p.s[start:p.pos]
	if p.pos == digits {
		return nil, errorf(ParseError, "invalid number %q", lit)
	}

	neg := p.s[start] == '-'
	mag, err := strconv.ParseUint(p.s[digits:p.pos], base, 64)
	switch {
	case err != nil:
		return nil, errorf(ParseError, "invalid number %q", lit)
	case neg && mag > 1<<63:
		return nil, errorf(ParseError, "number %q out of range", lit)
	case neg:
		return -int64(mag), nil
	case mag > 1<<63-1:
		return mag, nil
	}
	return int64(mag), nil
}

func isDecimalDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDecimalDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
