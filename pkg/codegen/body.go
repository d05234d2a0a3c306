package codegen

import (
	"fmt"
	"strings"

	"github.com/dd0wney/cluso-apx/pkg/apx"
)

// offset is a C byte offset expression: an optional dynamic part (loop
// indices) plus a constant.
type offset struct {
	dyn string
	k   int
}

func (o offset) add(n int) offset {
	return offset{dyn: o.dyn, k: o.k + n}
}

func (o offset) String() string {
	switch {
	case o.dyn == "":
		return fmt.Sprintf("%d", o.k)
	case o.k == 0:
		return o.dyn
	default:
		return fmt.Sprintf("%s + %d", o.dyn, o.k)
	}
}

// bodyWriter emits the statements of one read or write function
type bodyWriter struct {
	b        strings.Builder
	indent   int
	depth    int
	maxDepth int
}

func (w *bodyWriter) line(format string, args ...any) {
	w.b.WriteString(strings.Repeat("   ", w.indent))
	fmt.Fprintf(&w.b, format, args...)
	w.b.WriteByte('\n')
}

// loop opens a for loop over n items and returns its index variable
func (w *bodyWriter) loop(n int) string {
	v := fmt.Sprintf("i%d", w.depth)
	w.depth++
	if w.depth > w.maxDepth {
		w.maxDepth = w.depth
	}
	w.line("for (%s = 0u; %s < %du; %s++)", v, v, n, v)
	w.line("{")
	w.indent++
	return v
}

func (w *bodyWriter) endLoop() {
	w.indent--
	w.line("}")
	w.depth--
}

// declarations returns the loop variable declarations the body needs
func (w *bodyWriter) declarations() string {
	var b strings.Builder
	for i := 0; i < w.maxDepth; i++ {
		fmt.Fprintf(&b, "   uint32 i%d;\n", i)
	}
	return b.String()
}

// pack emits statements copying the C value expr into buf at off
func (w *bodyWriter) pack(buf string, elem *apx.DataElement, off offset, expr string) {
	e := elem.Resolved()
	switch {
	case e.Type == apx.TypeString || (e.IsArray() && e.Type.Size() == 1 && e.Type.IsInteger()):
		w.line("memcpy(&%s[%s], &%s[0], %du);", buf, off, expr, e.PackLen())
	case e.IsArray():
		item := *e
		item.ArrayLen = 0
		v := w.loop(e.ArrayLen)
		w.pack(buf, &item, offset{dyn: fmt.Sprintf("%s + (%s * %du)", off, v, item.PackLen())}, fmt.Sprintf("%s[%s]", expr, v))
		w.endLoop()
	case e.Type == apx.TypeRecord:
		k := 0
		for _, f := range e.Fields {
			w.pack(buf, f, off.add(k), expr+"."+f.Name)
			k += f.PackLen()
		}
	case e.Type.Size() == 8:
		w.line("packLE64(&%s[%s], (uint64) %s);", buf, off, expr)
	default:
		w.line("packLE(&%s[%s], (uint32) %s, (uint8) %du);", buf, off, expr, e.Type.Size())
	}
}

// unpack emits statements copying buf at off into the C lvalue expr
func (w *bodyWriter) unpack(buf string, elem *apx.DataElement, off offset, expr string) {
	e := elem.Resolved()
	switch {
	case e.Type == apx.TypeString || (e.IsArray() && e.Type.Size() == 1 && e.Type.IsInteger()):
		w.line("memcpy(&%s[0], &%s[%s], %du);", expr, buf, off, e.PackLen())
	case e.IsArray():
		item := *e
		item.ArrayLen = 0
		v := w.loop(e.ArrayLen)
		w.unpack(buf, &item, offset{dyn: fmt.Sprintf("%s + (%s * %du)", off, v, item.PackLen())}, fmt.Sprintf("%s[%s]", expr, v))
		w.endLoop()
	case e.Type == apx.TypeRecord:
		k := 0
		for _, f := range e.Fields {
			w.unpack(buf, f, off.add(k), expr+"."+f.Name)
			k += f.PackLen()
		}
	case e.Type.Size() == 8:
		w.line("%s = (%s) unpackLE64(&%s[%s]);", expr, cTypeNames[e.Type], buf, off)
	default:
		w.line("%s = (%s) unpackLE(&%s[%s], (uint8) %du);", expr, cTypeNames[e.Type], buf, off, e.Type.Size())
	}
}

// portFunction holds what the templates need to render one accessor
type portFunction struct {
	Name   string
	Param  string
	Decls  string
	Body   string
	Offset int
	Length int
}

// portParam returns the C parameter declaration and the root expression of
// the value inside the function body.
func portParam(names *typeNamer, p *apx.Port, write bool) (param, root string) {
	sig := p.Signature.Element
	e := p.Element()
	constPrefix := ""
	if write {
		constPrefix = "const "
	}
	switch {
	case sig.Type.IsReference() && e.ArrayLen > 0:
		return constPrefix + sig.Ref.Name + " val", "val"
	case e.Type == apx.TypeString:
		return constPrefix + "uint8 *val", "val"
	case e.IsArray():
		return constPrefix + names.elementType(sig) + " *val", "val"
	case e.Type == apx.TypeRecord:
		return constPrefix + names.elementType(sig) + " *val", "(*val)"
	case write:
		return names.elementType(sig) + " val", "val"
	default:
		return names.elementType(sig) + " *val", "(*val)"
	}
}

func writeFunction(names *typeNamer, node *apx.Node, p *apx.Port) portFunction {
	param, root := portParam(names, p, true)
	w := &bodyWriter{indent: 1}
	w.line("apx_nodeData_lockOutPortData(&m_nodeData);")
	w.pack("m_outPortdata", p.Signature.Element, offset{k: p.Offset}, root)
	w.line("apx_nodeData_unlockOutPortData(&m_nodeData);")
	w.line("apx_nodeData_outPortDataNotify(&m_nodeData, %du, %du);", p.Offset, p.PackLen())
	return portFunction{
		Name:   fmt.Sprintf("ApxNode_Write_%s_%s", node.Name, p.Name),
		Param:  param,
		Decls:  w.declarations(),
		Body:   w.b.String(),
		Offset: p.Offset,
		Length: p.PackLen(),
	}
}

func readFunction(names *typeNamer, node *apx.Node, p *apx.Port) portFunction {
	param, root := portParam(names, p, false)
	w := &bodyWriter{indent: 1}
	w.line("apx_nodeData_lockInPortData(&m_nodeData);")
	w.unpack("m_inPortdata", p.Signature.Element, offset{k: p.Offset}, root)
	w.line("apx_nodeData_unlockInPortData(&m_nodeData);")
	return portFunction{
		Name:   fmt.Sprintf("ApxNode_Read_%s_%s", node.Name, p.Name),
		Param:  param,
		Decls:  w.declarations(),
		Body:   w.b.String(),
		Offset: p.Offset,
		Length: p.PackLen(),
	}
}
