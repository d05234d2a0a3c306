package codegen

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dd0wney/cluso-apx/pkg/apx"
)

var cTypeNames = map[apx.TypeCode]string{
	apx.TypeUint8:  "uint8",
	apx.TypeUint16: "uint16",
	apx.TypeUint32: "uint32",
	apx.TypeUint64: "uint64",
	apx.TypeSint8:  "sint8",
	apx.TypeSint16: "sint16",
	apx.TypeSint32: "sint32",
	apx.TypeSint64: "sint64",
	apx.TypeString: "uint8",
}

var nonIdentChars = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// typeNamer chooses C type names for elements. Named data types keep their
// declared name; inline records on ports get a generated name.
type typeNamer struct {
	node   *apx.Node
	inline map[*apx.DataElement]string
}

func newTypeNamer(node *apx.Node) *typeNamer {
	n := &typeNamer{node: node, inline: make(map[*apx.DataElement]string)}
	for _, ports := range [][]*apx.Port{node.ProvidePorts, node.RequirePorts} {
		for _, p := range ports {
			if e := p.Signature.Element; e != nil && e.Type == apx.TypeRecord {
				n.inline[e] = fmt.Sprintf("ApxNode_%s_%s_T", node.Name, p.Name)
			}
		}
	}
	return n
}

// elementType returns the C type of one item of e: arrays yield their item
// type and records their struct name.
func (n *typeNamer) elementType(e *apx.DataElement) string {
	if e.Type.IsReference() && e.Ref != nil {
		r := e.Resolved()
		if r.ArrayLen == 0 {
			return e.Ref.Name
		}
		if r.Type == apx.TypeRecord {
			return e.Ref.Name + "_Elem"
		}
		return cTypeNames[r.Type]
	}
	if e.Type == apx.TypeRecord {
		if name, ok := n.inline[e]; ok {
			return name
		}
	}
	return cTypeNames[e.Type]
}

// fieldDecl renders a struct member declaration for e
func (n *typeNamer) fieldDecl(b *strings.Builder, e *apx.DataElement, name string, indent int) {
	pad := strings.Repeat("   ", indent)
	switch {
	case e.Type.IsReference():
		fmt.Fprintf(b, "%s%s %s;\n", pad, e.Ref.Name, name)
	case e.Type == apx.TypeRecord:
		fmt.Fprintf(b, "%sstruct\n%s{\n", pad, pad)
		for _, f := range e.Fields {
			n.fieldDecl(b, f, f.Name, indent+1)
		}
		fmt.Fprintf(b, "%s} %s%s;\n", pad, name, arraySuffix(e))
	default:
		fmt.Fprintf(b, "%s%s %s%s;\n", pad, cTypeNames[e.Type], name, arraySuffix(e))
	}
}

func arraySuffix(e *apx.DataElement) string {
	if e.ArrayLen > 0 {
		return fmt.Sprintf("[%d]", e.ArrayLen)
	}
	return ""
}

// typedefs renders typedefs for named data types in dependency order,
// followed by the inline port records.
func (n *typeNamer) typedefs() string {
	var b strings.Builder
	done := make(map[*apx.DataType]bool)
	var visit func(t *apx.DataType)
	visit = func(t *apx.DataType) {
		if done[t] {
			return
		}
		done[t] = true
		forEachReference(t.Signature.Element, visit)
		n.typedef(&b, t.Signature.Element, t.Name)
	}
	used := make(map[*apx.DataType]bool)
	var mark func(*apx.DataType)
	mark = func(t *apx.DataType) {
		if !used[t] {
			used[t] = true
			forEachReference(t.Signature.Element, mark)
		}
	}
	ports := [][]*apx.Port{n.node.ProvidePorts, n.node.RequirePorts}
	for _, list := range ports {
		for _, p := range list {
			forEachReference(p.Signature.Element, mark)
		}
	}
	// declaration order, limited to the types ports reach
	for _, t := range n.node.DataTypes {
		if used[t] {
			visit(t)
		}
	}
	for _, list := range ports {
		for _, p := range list {
			if name, ok := n.inline[p.Signature.Element]; ok {
				record := *p.Signature.Element
				record.ArrayLen = 0
				n.typedef(&b, &record, name)
			}
		}
	}
	return b.String()
}

func (n *typeNamer) typedef(b *strings.Builder, e *apx.DataElement, name string) {
	switch {
	case e == nil:
		return
	case e.Type.IsReference():
		fmt.Fprintf(b, "typedef %s %s;\n\n", e.Ref.Name, name)
	case e.Type == apx.TypeRecord:
		b.WriteString("typedef struct\n{\n")
		for _, f := range e.Fields {
			n.fieldDecl(b, f, f.Name, 1)
		}
		if e.ArrayLen > 0 {
			fmt.Fprintf(b, "} %s_Elem;\n", name)
			fmt.Fprintf(b, "typedef %s_Elem %s[%d];\n\n", name, name, e.ArrayLen)
		} else {
			fmt.Fprintf(b, "} %s;\n\n", name)
		}
	default:
		fmt.Fprintf(b, "typedef %s %s%s;\n\n", cTypeNames[e.Type], name, arraySuffix(e))
	}
}

func forEachReference(e *apx.DataElement, fn func(*apx.DataType)) {
	if e == nil {
		return
	}
	if e.Type.IsReference() && e.Ref != nil {
		fn(e.Ref)
		return
	}
	for _, f := range e.Fields {
		forEachReference(f, fn)
	}
}

// valueTableDefines renders one define per value table entry
func valueTableDefines(node *apx.Node) string {
	var b strings.Builder
	for _, t := range node.DataTypes {
		if t.Attributes == nil || len(t.Attributes.ValueTable) == 0 {
			continue
		}
		for i, v := range t.Attributes.ValueTable {
			ident := nonIdentChars.ReplaceAllString(v, "_")
			fmt.Fprintf(&b, "#ifndef %s_%s\n#define %s_%s ((%s)%du)\n#endif\n", t.Name, ident, t.Name, ident, t.Name, i)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
