package apx

import (
	"io"
	"strings"
)

const (
	// MaxNameLen is the longest node, type or port name accepted
	MaxNameLen = 256
	// MaxPortSignatureLen is the longest derived port signature accepted
	MaxPortSignatureLen = 1024
	// MaxDefinitionSize is the largest definition text accepted
	MaxDefinitionSize = 0x4000000
	// Version is the definition language version written by Definition
	Version = "APX/1.2"
)

// Node is a named set of data types and ports
type Node struct {
	Name         string
	DataTypes    []*DataType
	ProvidePorts []*Port
	RequirePorts []*Port

	finalized bool
	typeMap   map[string]*DataType
}

// NewNode creates an empty node
func NewNode(name string) *Node {
	return &Node{Name: name}
}

// Append adds a *DataType or a *Port to the node. Port names must be unique
// among ports of the same kind.
func (n *Node) Append(item any) error {
	switch x := item.(type) {
	case *DataType:
		if x == nil {
			return errorf(InvalidArgumentError, "nil data type")
		}
		if n.FindDataType(x.Name) != nil {
			return errorf(InvalidArgumentError, "duplicate data type %q", x.Name)
		}
		n.DataTypes = append(n.DataTypes, x)
	case *Port:
		if x == nil {
			return errorf(InvalidArgumentError, "nil port")
		}
		ports := &n.RequirePorts
		if x.Kind == KindProvide {
			ports = &n.ProvidePorts
		}
		for _, existing := range *ports {
			if existing.Name == x.Name {
				return errorf(InvalidArgumentError, "duplicate %s port %q", x.Kind, x.Name)
			}
		}
		x.Index = len(*ports)
		*ports = append(*ports, x)
	default:
		return errorf(InvalidArgumentError, "cannot append %T to node", item)
	}
	n.finalized = false
	return nil
}

// AddDataType parses and appends a data type
func (n *Node) AddDataType(name, dsg, attr string) (*DataType, error) {
	t, err := NewDataType(name, dsg, attr)
	if err != nil {
		return nil, err
	}
	return t, n.Append(t)
}

// AddProvidePort parses and appends a provide port
func (n *Node) AddProvidePort(name, dsg, attr string) (*Port, error) {
	p, err := NewProvidePort(name, dsg, attr)
	if err != nil {
		return nil, err
	}
	return p, n.Append(p)
}

// AddRequirePort parses and appends a require port
func (n *Node) AddRequirePort(name, dsg, attr string) (*Port, error) {
	p, err := NewRequirePort(name, dsg, attr)
	if err != nil {
		return nil, err
	}
	return p, n.Append(p)
}

// FindDataType returns the data type with the given name, or nil
func (n *Node) FindDataType(name string) *DataType {
	if n.typeMap != nil && n.finalized {
		return n.typeMap[name]
	}
	for _, t := range n.DataTypes {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// FindProvidePort returns the provide port with the given name, or nil
func (n *Node) FindProvidePort(name string) *Port {
	return findPort(n.ProvidePorts, name)
}

// FindRequirePort returns the require port with the given name, or nil
func (n *Node) FindRequirePort(name string) *Port {
	return findPort(n.RequirePorts, name)
}

func findPort(ports []*Port, name string) *Port {
	for _, p := range ports {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// IsFinalized reports whether Finalize has completed since the last Append
func (n *Node) IsFinalized() bool {
	return n.finalized
}

// Finalize resolves the type references of provide ports, then require
// ports, and computes port offsets. Types are resolved through the ports
// that use them, so a bad type no port refers to is not an error. It is safe
// to call more than once. Errors carry the line number of the offending port
// when the node was parsed from text.
func (n *Node) Finalize() error {
	if n.finalized {
		return nil
	}
	n.typeMap = make(map[string]*DataType, len(n.DataTypes))
	for _, t := range n.DataTypes {
		n.typeMap[t.Name] = t
	}
	for _, ports := range [][]*Port{n.ProvidePorts, n.RequirePorts} {
		offset := 0
		for _, p := range ports {
			if err := n.resolve(p.Signature.Element, 0); err != nil {
				return atLine(err, p.LineNumber)
			}
			if len(p.PortSignature()) > MaxPortSignatureLen {
				return atLine(errorf(LengthError, "port signature of %q exceeds %d characters", p.Name, MaxPortSignatureLen), p.LineNumber)
			}
			p.Offset = offset
			offset += p.PackLen()
		}
	}
	n.finalized = true
	return nil
}

func (n *Node) resolve(e *DataElement, depth int) error {
	if e == nil {
		return nil
	}
	if depth > maxReferenceDepth {
		return errorf(InvalidTypeRefError, "type references nest deeper than %d levels", maxReferenceDepth)
	}
	switch e.Type {
	case TypeRecord:
		for _, f := range e.Fields {
			if err := n.resolve(f, depth); err != nil {
				return err
			}
		}
	case TypeRefID:
		if e.RefID < 0 || e.RefID >= len(n.DataTypes) {
			return errorf(InvalidTypeRefError, "type index %d is out of range", e.RefID)
		}
		e.Ref = n.DataTypes[e.RefID]
		return n.resolve(e.Ref.Signature.Element, depth+1)
	case TypeRefName:
		t, ok := n.typeMap[e.RefName]
		if !ok {
			return errorf(InvalidTypeRefError, "unknown type %q", e.RefName)
		}
		e.Ref = t
		return n.resolve(t.Signature.Element, depth+1)
	}
	return nil
}

// InPortDataLen returns the summed pack length of all require ports
func (n *Node) InPortDataLen() int {
	return portsLen(n.RequirePorts)
}

// OutPortDataLen returns the summed pack length of all provide ports
func (n *Node) OutPortDataLen() int {
	return portsLen(n.ProvidePorts)
}

func portsLen(ports []*Port) int {
	total := 0
	for _, p := range ports {
		total += p.PackLen()
	}
	return total
}

// PortInitData returns the packed init value of a port, or zeros when the
// port has no init value.
func (n *Node) PortInitData(p *Port) ([]byte, error) {
	if err := n.Finalize(); err != nil {
		return nil, err
	}
	packLen := p.PackLen()
	if packLen == 0 {
		return nil, atLine(errorf(ValueError, "port %q has zero length", p.Name), p.LineNumber)
	}
	buf := make([]byte, packLen)
	if !p.Attributes.HasInitValue() {
		return buf, nil
	}
	if _, err := PackInto(buf, p.Signature.Element, p.Attributes.InitValue); err != nil {
		return nil, atLine(err, p.LineNumber)
	}
	return buf, nil
}

// InPortInitData returns the initial contents of the in-port buffer
func (n *Node) InPortInitData() ([]byte, error) {
	return n.initData(n.RequirePorts)
}

// OutPortInitData returns the initial contents of the out-port buffer
func (n *Node) OutPortInitData() ([]byte, error) {
	return n.initData(n.ProvidePorts)
}

func (n *Node) initData(ports []*Port) ([]byte, error) {
	buf := make([]byte, 0, portsLen(ports))
	for _, p := range ports {
		data, err := n.PortInitData(p)
		if err != nil {
			return nil, err
		}
		buf = append(buf, data...)
	}
	return buf, nil
}

// Definition renders the node as APX definition text
func (n *Node) Definition() string {
	var b strings.Builder
	n.WriteDefinition(&b)
	return b.String()
}

// WriteDefinition writes the APX definition text of the node to w
func (n *Node) WriteDefinition(w io.Writer) (int64, error) {
	var b strings.Builder
	b.WriteString(Version)
	b.WriteByte('\n')
	b.WriteString(`N"` + n.Name + `"` + "\n")
	for _, t := range n.DataTypes {
		b.WriteString(t.String())
		b.WriteByte('\n')
	}
	for _, p := range n.ProvidePorts {
		b.WriteString(p.String())
		b.WriteByte('\n')
	}
	for _, p := range n.RequirePorts {
		b.WriteString(p.String())
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	written, err := io.WriteString(w, b.String())
	return int64(written), err
}
