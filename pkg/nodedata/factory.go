package nodedata

import (
	"bytes"
	"sync"

	"github.com/dd0wney/cluso-apx/pkg/apx"
)

// Factory builds node data from definition text. One parser is shared by
// all callers.
type Factory struct {
	mu     sync.Mutex
	parser *apx.Parser
}

// NewFactory creates a factory
func NewFactory() *Factory {
	return &Factory{parser: apx.NewParser()}
}

// FromDefinition parses definition and returns local node data that keeps
// the definition bytes as given.
func (f *Factory) FromDefinition(definition []byte) (*NodeData, error) {
	nd := New("", len(definition), false)
	copy(nd.definition, definition)
	if err := f.ParseDefinition(nd); err != nil {
		return nil, err
	}
	return nd, nil
}

// ParseDefinition parses the definition buffer of nd and attaches the
// resulting node, sizing its port buffers.
func (f *Factory) ParseDefinition(nd *NodeData) error {
	node, err := f.parse(nd.Definition())
	if err != nil {
		return err
	}
	if err := nd.SetNode(node); err != nil {
		return err
	}
	return nd.SetChecksum(ChecksumSHA256, nil)
}

func (f *Factory) parse(definition []byte) (*apx.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	nodes, err := f.parser.Parse(bytes.NewReader(definition))
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, &apx.Error{Code: apx.ParseError, Detail: "definition declares no node"}
	}
	return nodes[0], nil
}
