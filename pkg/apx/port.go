package apx

import "strings"

// PortKind distinguishes require (input) ports from provide (output) ports
type PortKind uint8

const (
	KindRequire PortKind = 0
	KindProvide PortKind = 1
)

// String returns "require" or "provide"
func (k PortKind) String() string {
	if k == KindProvide {
		return "provide"
	}
	return "require"
}

// DataType is a named type declared with a T line
type DataType struct {
	Name       string
	Signature  *Signature
	Attributes *TypeAttributes
	LineNumber int
}

// NewDataType parses the signature and attributes of a type declaration
func NewDataType(name, dsg, attr string) (*DataType, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	sig, err := ParseSignature(dsg)
	if err != nil {
		return nil, err
	}
	attributes, err := ParseTypeAttributes(attr)
	if err != nil {
		return nil, err
	}
	return &DataType{Name: name, Signature: sig, Attributes: attributes}, nil
}

// String renders the declaration as a T line
func (t *DataType) String() string {
	return declaration('T', t.Name, t.Signature.Text, t.Attributes.Raw)
}

// Port is a provide or require port declaration. Index is the position among
// ports of the same kind and Offset is the byte offset of the port in the
// node's in or out buffer; both are set when the port joins a node.
type Port struct {
	Name       string
	Kind       PortKind
	Signature  *Signature
	Attributes *PortAttributes
	LineNumber int
	Index      int
	Offset     int
}

// NewProvidePort creates an output port
func NewProvidePort(name, dsg, attr string) (*Port, error) {
	return newPort(KindProvide, name, dsg, attr)
}

// NewRequirePort creates an input port
func NewRequirePort(name, dsg, attr string) (*Port, error) {
	return newPort(KindRequire, name, dsg, attr)
}

// MustProvidePort is like NewProvidePort but panics on error
func MustProvidePort(name, dsg, attr string) *Port {
	p, err := NewProvidePort(name, dsg, attr)
	if err != nil {
		panic(err)
	}
	return p
}

// MustRequirePort is like NewRequirePort but panics on error
func MustRequirePort(name, dsg, attr string) *Port {
	p, err := NewRequirePort(name, dsg, attr)
	if err != nil {
		panic(err)
	}
	return p
}

func newPort(kind PortKind, name, dsg, attr string) (*Port, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	sig, err := ParseSignature(dsg)
	if err != nil {
		return nil, err
	}
	attributes, err := ParsePortAttributes(attr)
	if err != nil {
		return nil, err
	}
	return &Port{Name: name, Kind: kind, Signature: sig, Attributes: attributes, Index: -1}, nil
}

// PackLen returns the number of bytes the port occupies in port data
func (p *Port) PackLen() int {
	return p.Signature.PackLen()
}

// Element returns the concrete (reference free) element of the port
func (p *Port) Element() *DataElement {
	return p.Signature.Resolved()
}

// PortSignature returns `"Name"<dsg>` with type references expanded. Two
// ports connect when their port signatures are equal.
func (p *Port) PortSignature() string {
	return `"` + p.Name + `"` + p.Signature.Derived()
}

// String renders the declaration as a P or R line
func (p *Port) String() string {
	kind := byte('R')
	if p.Kind == KindProvide {
		kind = 'P'
	}
	return declaration(kind, p.Name, p.Signature.Text, p.Attributes.Raw)
}

func declaration(kind byte, name, dsg, attr string) string {
	var b strings.Builder
	b.WriteByte(kind)
	b.WriteByte('"')
	b.WriteString(name)
	b.WriteByte('"')
	b.WriteString(dsg)
	if attr != "" {
		b.WriteByte(':')
		b.WriteString(attr)
	}
	return b.String()
}

func checkName(name string) error {
	if name == "" {
		return errorf(InvalidArgumentError, "empty name")
	}
	if len(name) > MaxNameLen {
		return errorf(LengthError, "name %q exceeds %d characters", truncate(name, errorStrMax), MaxNameLen)
	}
	if strings.ContainsAny(name, "\"\n") {
		return errorf(InvalidArgumentError, "name %q contains a quote or newline", name)
	}
	return nil
}
