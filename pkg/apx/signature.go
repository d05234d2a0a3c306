package apx

import (
	"math"
	"strconv"
	"strings"
)

// TypeCode identifies the kind of a data element
type TypeCode uint8

const (
	TypeNone TypeCode = iota
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeSint8
	TypeSint16
	TypeSint32
	TypeSint64
	TypeString
	TypeRecord
	TypeRefID
	TypeRefName
)

var typeLetters = map[byte]TypeCode{
	'C': TypeUint8,
	'S': TypeUint16,
	'L': TypeUint32,
	'U': TypeUint64,
	'c': TypeSint8,
	's': TypeSint16,
	'l': TypeSint32,
	'u': TypeSint64,
	'a': TypeString,
}

// Letter returns the signature character of a base type, or 0
func (t TypeCode) Letter() byte {
	for letter, code := range typeLetters {
		if code == t {
			return letter
		}
	}
	return 0
}

// Size returns the packed size in bytes of a single value of the type.
// Records and references have no fixed size and return 0.
func (t TypeCode) Size() int {
	switch t {
	case TypeUint8, TypeSint8, TypeString:
		return 1
	case TypeUint16, TypeSint16:
		return 2
	case TypeUint32, TypeSint32:
		return 4
	case TypeUint64, TypeSint64:
		return 8
	default:
		return 0
	}
}

// IsSigned reports whether the type is a signed integer
func (t TypeCode) IsSigned() bool {
	return t >= TypeSint8 && t <= TypeSint64
}

// IsInteger reports whether the type is a signed or unsigned integer
func (t TypeCode) IsInteger() bool {
	return t >= TypeUint8 && t <= TypeSint64
}

// IsReference reports whether the type is an unresolved type reference
func (t TypeCode) IsReference() bool {
	return t == TypeRefID || t == TypeRefName
}

// DataElement is one node of a parsed data signature. Records carry their
// fields in declaration order; references carry the referenced type once the
// owning node is finalized.
type DataElement struct {
	Name      string
	Type      TypeCode
	ArrayLen  int
	HasLimits bool
	Min       int64
	Max       int64
	Fields    []*DataElement
	RefID     int
	RefName   string
	Ref       *DataType
}

// IsArray reports whether the element is an array. Strings are never
// reported as arrays even though they carry a length.
func (e *DataElement) IsArray() bool {
	return e.ArrayLen > 0 && e.Type != TypeString
}

// Resolved follows type references until it reaches a concrete element.
// It returns nil for a reference that has not been resolved.
func (e *DataElement) Resolved() *DataElement {
	cur := e
	for depth := 0; cur != nil && cur.Type.IsReference(); depth++ {
		if cur.Ref == nil || cur.Ref.Signature == nil || depth > maxReferenceDepth {
			return nil
		}
		cur = cur.Ref.Signature.Element
	}
	return cur
}

// PackLen returns the number of bytes the element occupies when packed.
// Unresolved references have length 0.
func (e *DataElement) PackLen() int {
	if e == nil {
		return 0
	}
	var n int
	switch e.Type {
	case TypeRecord:
		for _, f := range e.Fields {
			n += f.PackLen()
		}
	case TypeRefID, TypeRefName:
		r := e.Resolved()
		if r == nil {
			return 0
		}
		return r.PackLen()
	default:
		n = e.Type.Size()
	}
	if e.ArrayLen > 0 {
		n *= e.ArrayLen
	}
	return n
}

// String renders the element back to signature text
func (e *DataElement) String() string {
	var b strings.Builder
	e.appendSignature(&b, false)
	return b.String()
}

// Derived renders the element with every type reference replaced by the
// referenced signature.
func (e *DataElement) Derived() string {
	var b strings.Builder
	e.appendSignature(&b, true)
	return b.String()
}

func (e *DataElement) appendSignature(b *strings.Builder, derived bool) {
	switch e.Type {
	case TypeRecord:
		b.WriteByte('{')
		for _, f := range e.Fields {
			b.WriteByte('"')
			b.WriteString(f.Name)
			b.WriteByte('"')
			f.appendSignature(b, derived)
		}
		b.WriteByte('}')
	case TypeRefID, TypeRefName:
		if derived {
			if r := e.Resolved(); r != nil {
				r.appendSignature(b, derived)
				return
			}
		}
		b.WriteString("T[")
		if e.Type == TypeRefID {
			b.WriteString(strconv.Itoa(e.RefID))
		} else {
			b.WriteByte('"')
			b.WriteString(e.RefName)
			b.WriteByte('"')
		}
		b.WriteByte(']')
		return
	default:
		b.WriteByte(e.Type.Letter())
	}
	if e.ArrayLen > 0 {
		b.WriteByte('[')
		b.WriteString(strconv.Itoa(e.ArrayLen))
		b.WriteByte(']')
	}
	if e.HasLimits {
		b.WriteByte('(')
		b.WriteString(strconv.FormatInt(e.Min, 10))
		b.WriteByte(',')
		b.WriteString(strconv.FormatInt(e.Max, 10))
		b.WriteByte(')')
	}
}

// Signature is a parsed data signature. Element is nil for the empty
// signature.
type Signature struct {
	Text    string
	Element *DataElement
}

// ParseSignature parses data signature text such as "C(0,7)", "S[4]" or
// `{"Id"C"Value"S}`.
func ParseSignature(dsg string) (*Signature, error) {
	sig := &Signature{Text: dsg}
	if dsg == "" {
		return sig, nil
	}
	p := &signatureParser{s: dsg}
	elem, err := p.parseElement("")
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.s) {
		return nil, errorf(DataSignatureError, "unexpected %q at offset %d in %q", p.s[p.pos], p.pos, dsg)
	}
	sig.Element = elem
	return sig, nil
}

// PackLen returns the packed length of the signature
func (s *Signature) PackLen() int {
	if s == nil {
		return 0
	}
	return s.Element.PackLen()
}

// Derived returns the signature text with references expanded
func (s *Signature) Derived() string {
	if s == nil || s.Element == nil {
		return ""
	}
	return s.Element.Derived()
}

// Resolved returns the concrete element behind the signature
func (s *Signature) Resolved() *DataElement {
	if s == nil || s.Element == nil {
		return nil
	}
	return s.Element.Resolved()
}

const maxReferenceDepth = 64

type signatureParser struct {
	s   string
	pos int
}

func (p *signatureParser) parseElement(name string) (*DataElement, error) {
	if p.pos >= len(p.s) {
		return nil, errorf(DataSignatureError, "unexpected end of signature %q", p.s)
	}
	c := p.s[p.pos]
	switch c {
	case '{':
		return p.parseRecord(name)
	case 'T':
		return p.parseTypeRef(name)
	}
	code, ok := typeLetters[c]
	if !ok {
		return nil, errorf(ElementTypeError, "unknown type code %q in %q", c, p.s)
	}
	p.pos++
	elem := &DataElement{Name: name, Type: code}
	if err := p.parseArray(elem); err != nil {
		return nil, err
	}
	if code == TypeString && elem.ArrayLen == 0 {
		return nil, errorf(DataSignatureError, "string element requires a length in %q", p.s)
	}
	if err := p.parseLimits(elem); err != nil {
		return nil, err
	}
	return elem, nil
}

func (p *signatureParser) parseArray(elem *DataElement) error {
	if p.pos >= len(p.s) || p.s[p.pos] != '[' {
		return nil
	}
	end := strings.IndexByte(p.s[p.pos:], ']')
	if end < 0 {
		return errorf(UnmatchedBracketError, "missing ']' in %q", p.s)
	}
	digits := p.s[p.pos+1 : p.pos+end]
	if !isDigits(digits) {
		return errorf(ExpectedBracketError, "invalid array length %q in %q", digits, p.s)
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return errorf(LengthError, "invalid array length %q in %q", digits, p.s)
	}
	elem.ArrayLen = n
	p.pos += end + 1
	return nil
}

func (p *signatureParser) parseLimits(elem *DataElement) error {
	if p.pos >= len(p.s) || p.s[p.pos] != '(' {
		return nil
	}
	end := strings.IndexByte(p.s[p.pos:], ')')
	if end < 0 {
		return errorf(ParseError, "missing ')' in %q", p.s)
	}
	body := p.s[p.pos+1 : p.pos+end]
	lo, hi, ok := strings.Cut(body, ",")
	if !ok {
		return errorf(ParseError, "invalid limits %q in %q", body, p.s)
	}
	minVal, err := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
	if err != nil {
		return errorf(ParseError, "invalid lower limit %q in %q", lo, p.s)
	}
	maxVal, err := strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
	if err != nil {
		if u, uerr := strconv.ParseUint(strings.TrimSpace(hi), 10, 64); uerr == nil && u > math.MaxInt64 {
			return errorf(UnsupportedError, "upper limit %q does not fit a signed 64-bit value", hi)
		}
		return errorf(ParseError, "invalid upper limit %q in %q", hi, p.s)
	}
	if minVal > maxVal {
		return errorf(ValueError, "lower limit %d exceeds upper limit %d", minVal, maxVal)
	}
	elem.HasLimits = true
	elem.Min = minVal
	elem.Max = maxVal
	p.pos += end + 1
	return nil
}

func (p *signatureParser) parseRecord(name string) (*DataElement, error) {
	end := matchingBrace(p.s, p.pos)
	if end < 0 {
		return nil, errorf(UnmatchedBraceError, "missing '}' in %q", p.s)
	}
	inner := &signatureParser{s: p.s[p.pos+1 : end]}
	elem := &DataElement{Name: name, Type: TypeRecord}
	for inner.pos < len(inner.s) {
		if inner.s[inner.pos] != '"' {
			return nil, errorf(DataSignatureError, "expected field name at %q", inner.s[inner.pos:])
		}
		closeQuote := strings.IndexByte(inner.s[inner.pos+1:], '"')
		if closeQuote < 0 {
			return nil, errorf(UnmatchedStringError, "unterminated field name in %q", p.s)
		}
		fieldName := inner.s[inner.pos+1 : inner.pos+1+closeQuote]
		inner.pos += closeQuote + 2
		field, err := inner.parseElement(fieldName)
		if err != nil {
			return nil, err
		}
		elem.Fields = append(elem.Fields, field)
	}
	if len(elem.Fields) == 0 {
		return nil, errorf(DataSignatureError, "empty record in %q", p.s)
	}
	p.pos = end + 1
	if err := p.parseArray(elem); err != nil {
		return nil, err
	}
	return elem, nil
}

func (p *signatureParser) parseTypeRef(name string) (*DataElement, error) {
	p.pos++
	if p.pos >= len(p.s) || p.s[p.pos] != '[' {
		return nil, errorf(ExpectedBracketError, "expected '[' after T in %q", p.s)
	}
	end := strings.IndexByte(p.s[p.pos:], ']')
	if end < 0 {
		return nil, errorf(UnmatchedBracketError, "missing ']' in %q", p.s)
	}
	body := p.s[p.pos+1 : p.pos+end]
	p.pos += end + 1
	elem := &DataElement{Name: name}
	if strings.HasPrefix(body, `"`) {
		if len(body) < 2 || !strings.HasSuffix(body, `"`) {
			return nil, errorf(UnmatchedStringError, "unterminated type name in %q", p.s)
		}
		refName := body[1 : len(body)-1]
		if refName == "" {
			return nil, errorf(InvalidTypeRefError, "empty type name in %q", p.s)
		}
		elem.Type = TypeRefName
		elem.RefName = refName
		return elem, nil
	}
	if !isDigits(body) {
		return nil, errorf(InvalidTypeRefError, "invalid type reference %q", body)
	}
	id, err := strconv.Atoi(body)
	if err != nil {
		return nil, errorf(InvalidTypeRefError, "invalid type reference %q", body)
	}
	elem.Type = TypeRefID
	elem.RefID = id
	return elem, nil
}

// matchingBrace returns the index of the '}' closing the '{' at start,
// skipping quoted names, or -1.
func matchingBrace(s string, start int) int {
	depth := 0
	inQuote := false
	for i := start; i < len(s); i++ {
		switch c := s[i]; {
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
