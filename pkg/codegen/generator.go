// Package codegen generates C client code for APX nodes. For a node named N
// it writes ApxNode_N.h and ApxNode_N.c, which embed the node definition and
// its port buffers and expose typed read and write functions per port.
package codegen

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/dd0wney/cluso-apx/pkg/apx"
	"github.com/dd0wney/cluso-apx/pkg/logging"
	"github.com/dd0wney/cluso-apx/pkg/metrics"
	"github.com/dd0wney/cluso-apx/pkg/validation"
)

// DefaultIncludes are referenced by generated headers when no includes are given
var DefaultIncludes = []string{"Std_Types.h"}

var (
	headerTmpl = template.Must(template.New("header").Parse(headerTemplate))
	sourceTmpl = template.Must(template.New("source").Parse(sourceTemplate))
)

type options struct {
	includes []string
	logger   logging.Logger
	metrics  *metrics.Registry
}

// Option configures a NodeGenerator or a single Generate call
type Option func(*options)

// WithIncludes sets the header files #included by the generated header
func WithIncludes(includes ...string) Option {
	return func(o *options) {
		o.includes = includes
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics registry generated files are counted in
func WithMetrics(registry *metrics.Registry) Option {
	return func(o *options) {
		o.metrics = registry
	}
}

// NodeGenerator writes C source for APX nodes
type NodeGenerator struct {
	defaults []Option
}

// NewNodeGenerator creates a generator. The options become defaults for
// every Generate call.
func NewNodeGenerator(opts ...Option) *NodeGenerator {
	return &NodeGenerator{defaults: opts}
}

// Result lists the files Generate produced
type Result struct {
	HeaderPath string
	SourcePath string
	// Written holds paths whose content changed; Unchanged holds paths
	// that already had the generated content and were left alone.
	Written   []string
	Unchanged []string
}

// Generate renders the node and writes ApxNode_<Name>.h and .c into dir,
// creating dir when needed.
func (g *NodeGenerator) Generate(dir string, node *apx.Node, opts ...Option) (*Result, error) {
	o := options{includes: DefaultIncludes, logger: logging.NewNopLogger()}
	for _, opt := range append(g.defaults, opts...) {
		opt(&o)
	}

	header, source, err := render(node, o.includes)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	base := "ApxNode_" + node.Name
	res := &Result{
		HeaderPath: filepath.Join(dir, base+".h"),
		SourcePath: filepath.Join(dir, base+".c"),
	}
	for _, f := range []struct {
		path    string
		content []byte
	}{
		{res.HeaderPath, header},
		{res.SourcePath, source},
	} {
		changed, err := writeIfChanged(f.path, f.content)
		if err != nil {
			return nil, err
		}
		status := "unchanged"
		if changed {
			status = "written"
			res.Written = append(res.Written, f.path)
		} else {
			res.Unchanged = append(res.Unchanged, f.path)
		}
		if o.metrics != nil {
			o.metrics.RecordCodegenFile(status)
		}
		o.logger.Debug("generated file", logging.Path(f.path), logging.String("status", status))
	}
	o.logger.Info("generated node code",
		logging.NodeName(node.Name),
		logging.Count(len(node.ProvidePorts)+len(node.RequirePorts)),
		logging.Path(dir))
	return res, nil
}

func writeIfChanged(path string, content []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, content) {
		return false, nil
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}

// Render returns the header and source text for node without writing files
func Render(node *apx.Node, includes ...string) (header, source string, err error) {
	if includes == nil {
		includes = DefaultIncludes
	}
	h, s, err := render(node, includes)
	return string(h), string(s), err
}

type templateData struct {
	Name              string
	Guard             string
	HeaderName        string
	Includes          []string
	Typedefs          string
	ValueTables       string
	Reads             []portFunction
	Writes            []portFunction
	DefinitionLen     int
	DefinitionLiteral string
	InLen             int
	OutLen            int
	InInit            string
	OutInit           string
	InArgs            string
	OutArgs           string
}

func render(node *apx.Node, includes []string) ([]byte, []byte, error) {
	if err := node.Finalize(); err != nil {
		return nil, nil, err
	}
	if err := checkNames(node); err != nil {
		return nil, nil, err
	}
	inInit, err := node.InPortInitData()
	if err != nil {
		return nil, nil, err
	}
	outInit, err := node.OutPortInitData()
	if err != nil {
		return nil, nil, err
	}

	names := newTypeNamer(node)
	definition := node.Definition()
	data := templateData{
		Name:              node.Name,
		Guard:             "APXNODE_" + strings.ToUpper(node.Name) + "_H",
		HeaderName:        "ApxNode_" + node.Name + ".h",
		Includes:          includes,
		Typedefs:          names.typedefs(),
		ValueTables:       valueTableDefines(node),
		DefinitionLen:     len(definition),
		DefinitionLiteral: cStringLiteral(definition),
		InLen:             len(inInit),
		OutLen:            len(outInit),
		InInit:            cByteList(inInit),
		OutInit:           cByteList(outInit),
		InArgs:            bufferArgs("in", len(inInit)),
		OutArgs:           bufferArgs("out", len(outInit)),
	}
	for _, p := range node.RequirePorts {
		data.Reads = append(data.Reads, readFunction(names, node, p))
	}
	for _, p := range node.ProvidePorts {
		data.Writes = append(data.Writes, writeFunction(names, node, p))
	}

	var header, source bytes.Buffer
	if err := headerTmpl.Execute(&header, data); err != nil {
		return nil, nil, fmt.Errorf("failed to render header: %w", err)
	}
	if err := sourceTmpl.Execute(&source, data); err != nil {
		return nil, nil, fmt.Errorf("failed to render source: %w", err)
	}
	return header.Bytes(), source.Bytes(), nil
}

// checkNames requires C identifiers for every name that appears in
// generated code: the node, its ports, the types the ports reach and their
// record fields.
func checkNames(node *apx.Node) error {
	if err := validation.ValidateIdentifier(node.Name); err != nil {
		return &apx.Error{Code: apx.InvalidArgumentError, Detail: "node name", Cause: err}
	}
	seen := make(map[*apx.DataType]bool)
	for _, ports := range [][]*apx.Port{node.ProvidePorts, node.RequirePorts} {
		for _, p := range ports {
			if err := validation.ValidateIdentifier(p.Name); err != nil {
				return &apx.Error{Code: apx.InvalidArgumentError, Line: p.LineNumber, Detail: "port name", Cause: err}
			}
			if err := checkElementNames(p.Signature.Element, seen); err != nil {
				return &apx.Error{Code: apx.InvalidArgumentError, Line: p.LineNumber, Detail: "port " + p.Name, Cause: err}
			}
		}
	}
	return nil
}

func checkElementNames(e *apx.DataElement, seen map[*apx.DataType]bool) error {
	if e == nil {
		return nil
	}
	if e.Type.IsReference() {
		t := e.Ref
		if t == nil || seen[t] {
			return nil
		}
		seen[t] = true
		if err := validation.ValidateIdentifier(t.Name); err != nil {
			return fmt.Errorf("type name: %w", err)
		}
		return checkElementNames(t.Signature.Element, seen)
	}
	for _, f := range e.Fields {
		if err := validation.ValidateIdentifier(f.Name); err != nil {
			return fmt.Errorf("record field: %w", err)
		}
		if err := checkElementNames(f, seen); err != nil {
			return err
		}
	}
	return nil
}

func bufferArgs(prefix string, n int) string {
	if n == 0 {
		return "(uint8_t*) 0, (uint8_t*) 0, 0u"
	}
	upper := strings.ToUpper(prefix)
	return fmt.Sprintf("&m_%sPortdata[0], &m_%sPortDirtyFlags[0], APX_%s_PORT_DATA_LEN", prefix, prefix, upper)
}

// cByteList formats data as comma separated hex bytes, 8 per line
func cByteList(data []byte) string {
	var b strings.Builder
	for i, c := range data {
		switch {
		case i == 0:
			b.WriteString("   ")
		case i%8 == 0:
			b.WriteString(",\n   ")
		default:
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "0x%02X", c)
	}
	return b.String()
}

// cStringLiteral renders text as concatenated C string literals, one per
// line. Bytes outside printable ASCII become octal escapes.
func cStringLiteral(text string) string {
	var b strings.Builder
	first := true
	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		if !first {
			b.WriteByte('\n')
		}
		first = false
		b.WriteByte('"')
		for i := 0; i < len(line); i++ {
			switch c := line[i]; {
			case c == '"' || c == '\\':
				b.WriteByte('\\')
				b.WriteByte(c)
			case c == '\n':
				b.WriteString(`\n`)
			case c == '\r':
				b.WriteString(`\r`)
			case c == '\t':
				b.WriteString(`\t`)
			case c < 0x20 || c > 0x7E:
				fmt.Fprintf(&b, "\\%03o", c)
			default:
				b.WriteByte(c)
			}
		}
		b.WriteByte('"')
	}
	return b.String()
}
