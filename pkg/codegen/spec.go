package codegen

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-apx/pkg/apx"
	"github.com/dd0wney/cluso-apx/pkg/validation"
)

// NodeSpec describes a node in YAML, as an alternative to APX definition
// text:
//
//	name: TestNode1
//	includes: [Std_Types.h]
//	provide:
//	  - {name: TestSignal1, signature: S}
//	require:
//	  - {name: TestSignal2, signature: "C(0,7)", attributes: "=7"}
type NodeSpec struct {
	Name     string        `yaml:"name" validate:"required,cident"`
	Includes []string      `yaml:"includes,omitempty"`
	Types    []ElementSpec `yaml:"types,omitempty" validate:"dive"`
	Provide  []ElementSpec `yaml:"provide,omitempty" validate:"dive"`
	Require  []ElementSpec `yaml:"require,omitempty" validate:"dive"`
}

// ElementSpec is one type or port of a NodeSpec
type ElementSpec struct {
	Name       string `yaml:"name" validate:"required,cident"`
	Signature  string `yaml:"signature" validate:"required,dsg"`
	Attributes string `yaml:"attributes,omitempty"`
}

// LoadNodeSpec reads and validates a YAML node description
func LoadNodeSpec(path string) (*NodeSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read node spec: %w", err)
	}
	return ParseNodeSpec(data)
}

// ParseNodeSpec decodes and validates a YAML node description
func ParseNodeSpec(data []byte) (*NodeSpec, error) {
	var spec NodeSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse node spec: %w", err)
	}
	if err := validation.ValidateStruct(&spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Node builds and finalizes the node s describes
func (s *NodeSpec) Node() (*apx.Node, error) {
	node := apx.NewNode(s.Name)
	for _, t := range s.Types {
		if _, err := node.AddDataType(t.Name, t.Signature, t.Attributes); err != nil {
			return nil, fmt.Errorf("type %s: %w", t.Name, err)
		}
	}
	for _, p := range s.Provide {
		if _, err := node.AddProvidePort(p.Name, p.Signature, p.Attributes); err != nil {
			return nil, fmt.Errorf("provide port %s: %w", p.Name, err)
		}
	}
	for _, p := range s.Require {
		if _, err := node.AddRequirePort(p.Name, p.Signature, p.Attributes); err != nil {
			return nil, fmt.Errorf("require port %s: %w", p.Name, err)
		}
	}
	if err := node.Finalize(); err != nil {
		return nil, err
	}
	return node, nil
}
