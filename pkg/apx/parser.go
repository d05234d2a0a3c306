package apx

import (
	"bufio"
	"io"
	"strings"

	"golang.org/x/exp/mmap"
)

var supportedVersions = map[string]bool{
	"APX/1.0": true,
	"APX/1.1": true,
	"APX/1.2": true,
}

// Parser reads APX definition text. A Parser is not safe for concurrent use.
type Parser struct {
	nodes     []*Node
	current   *Node
	line      int
	lastCode  ErrorCode
	lastLine  int
	hasHeader bool
}

// NewParser creates a parser
func NewParser() *Parser {
	return &Parser{}
}

// LastError returns the code and line of the error from the most recent
// parse, or NoError and 0.
func (p *Parser) LastError() (ErrorCode, int) {
	return p.lastCode, p.lastLine
}

func (p *Parser) reset() {
	p.nodes = nil
	p.current = nil
	p.line = 0
	p.lastCode = NoError
	p.lastLine = 0
	p.hasHeader = false
}

// Parse reads definition text and returns every node it declares, each
// finalized.
func (p *Parser) Parse(r io.Reader) ([]*Node, error) {
	p.reset()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxDefinitionSize)
	for scanner.Scan() {
		p.line++
		if err := p.parseLine(strings.TrimRight(scanner.Text(), "\r")); err != nil {
			return nil, p.fail(err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, p.fail(&Error{Code: LengthError, Line: p.line + 1, Cause: err})
	}
	if !p.hasHeader {
		return nil, p.fail(&Error{Code: ParseError, Line: 1, Detail: "missing APX header"})
	}
	if err := p.endNode(); err != nil {
		return nil, p.fail(err)
	}
	return p.nodes, nil
}

// ParseString parses definition text held in a string
func (p *Parser) ParseString(text string) ([]*Node, error) {
	return p.Parse(strings.NewReader(text))
}

// ParseFile memory maps the file at path and parses it. It returns the last
// node declared in the file.
func (p *Parser) ParseFile(path string) (*Node, error) {
	p.reset()
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if r.Len() > MaxDefinitionSize {
		return nil, p.fail(errorf(LengthError, "%s is %d bytes, limit is %d", path, r.Len(), MaxDefinitionSize))
	}
	nodes, err := p.Parse(io.NewSectionReader(r, 0, int64(r.Len())))
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, p.fail(errorf(ParseError, "%s declares no node", path))
	}
	return nodes[len(nodes)-1], nil
}

func (p *Parser) fail(err error) error {
	p.lastCode, _ = CodeOf(err)
	p.lastLine = LineOf(err)
	return err
}

func (p *Parser) parseLine(line string) error {
	if !p.hasHeader {
		if !supportedVersions[strings.TrimSpace(line)] {
			return &Error{Code: ParseError, Line: p.line, Detail: "expected APX header, got " + truncate(line, errorStrMax)}
		}
		p.hasHeader = true
		return nil
	}
	if strings.TrimSpace(line) == "" {
		return p.endNode()
	}
	kind, rest := line[0], line[1:]
	name, dsg, attr, err := splitDeclaration(rest)
	if err != nil {
		return atLine(err, p.line)
	}
	if kind == 'N' {
		if dsg != "" || attr != "" {
			return &Error{Code: ParseError, Line: p.line, Detail: "unexpected text after node name"}
		}
		if err := p.endNode(); err != nil {
			return err
		}
		if err := checkName(name); err != nil {
			return atLine(err, p.line)
		}
		p.current = NewNode(name)
		return nil
	}
	if p.current == nil {
		return &Error{Code: ParseError, Line: p.line, Detail: "declaration outside of a node"}
	}
	switch kind {
	case 'T':
		t, err := NewDataType(name, dsg, attr)
		if err != nil {
			return atLine(err, p.line)
		}
		t.LineNumber = p.line
		return atLine(p.current.Append(t), p.line)
	case 'P', 'R':
		var port *Port
		if kind == 'P' {
			port, err = NewProvidePort(name, dsg, attr)
		} else {
			port, err = NewRequirePort(name, dsg, attr)
		}
		if err != nil {
			return atLine(err, p.line)
		}
		port.LineNumber = p.line
		return atLine(p.current.Append(port), p.line)
	}
	return &Error{Code: ParseError, Line: p.line, Detail: "unknown declaration " + truncate(line, errorStrMax)}
}

func (p *Parser) endNode() error {
	if p.current == nil {
		return nil
	}
	node := p.current
	p.current = nil
	if err := node.Finalize(); err != nil {
		return err
	}
	p.nodes = append(p.nodes, node)
	return nil
}

// splitDeclaration splits `"name"dsg:attr` into its parts. The attribute
// separator is the first ':' outside quotes and braces.
func splitDeclaration(s string) (name, dsg, attr string, err error) {
	if !strings.HasPrefix(s, `"`) {
		return "", "", "", errorf(ParseError, "expected quoted name in %q", truncate(s, errorStrMax))
	}
	end := strings.IndexByte(s[1:], '"')
	if end < 0 {
		return "", "", "", errorf(UnmatchedStringError, "unterminated name in %q", truncate(s, errorStrMax))
	}
	name = s[1 : end+1]
	rest := s[end+2:]
	depth := 0
	inQuote := false
	for i := 0; i < len(rest); i++ {
		switch c := rest[i]; {
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '{':
			depth++
		case c == '}':
			depth--
		case c == ':' && depth == 0:
			return name, rest[:i], rest[i+1:], nil
		}
	}
	return name, rest, "", nil
}

// ParseNode parses definition text and returns its last node
func ParseNode(text string) (*Node, error) {
	nodes, err := NewParser().ParseString(text)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, errorf(ParseError, "definition declares no node")
	}
	return nodes[len(nodes)-1], nil
}

// ParseFile parses the definition file at path and returns its last node
func ParseFile(path string) (*Node, error) {
	return NewParser().ParseFile(path)
}
