package apx

import (
	"strconv"
	"strings"
)

// errorStrMax bounds the length of an attribute error line, prefix included
const errorStrMax = 128

// PortAttributes holds the parsed attribute list of a port declaration
type PortAttributes struct {
	Raw         string
	InitValue   any
	IsParameter bool
	IsDynamic   bool
	QueueLen    int
}

// HasInitValue reports whether an init value was given
func (a *PortAttributes) HasInitValue() bool {
	return a != nil && a.InitValue != nil
}

// TypeAttributes holds the parsed attribute list of a type declaration.
// Attributes other than value tables are kept verbatim in Other.
type TypeAttributes struct {
	Raw        string
	ValueTable []string
	Other      []string
}

// ParsePortAttributes parses text such as `=3`, `P,=0` or `Q[10]`
func ParsePortAttributes(text string) (*PortAttributes, error) {
	attr := &PortAttributes{Raw: text}
	if text == "" {
		return attr, nil
	}
	for _, item := range splitAttributes(text) {
		item = strings.TrimSpace(item)
		switch {
		case strings.HasPrefix(item, "="):
			v, err := ParseValue(item[1:])
			if err != nil {
				return nil, portAttributeError(text, err)
			}
			attr.InitValue = v
		case item == "P":
			attr.IsParameter = true
		case item == "D":
			attr.IsDynamic = true
		case strings.HasPrefix(item, "Q[") && strings.HasSuffix(item, "]"):
			n, err := strconv.Atoi(item[2 : len(item)-1])
			if err != nil || n <= 0 {
				return nil, portAttributeError(text, nil)
			}
			attr.QueueLen = n
		default:
			return nil, portAttributeError(text, nil)
		}
	}
	return attr, nil
}

func portAttributeError(text string, cause error) error {
	return &Error{
		Code:   ParseError,
		Detail: truncate("Failed to parse port attribute string: "+text, errorStrMax),
		Cause:  cause,
	}
}

// ParseTypeAttributes parses a type attribute list such as `VT("Off","On")`
func ParseTypeAttributes(text string) (*TypeAttributes, error) {
	attr := &TypeAttributes{Raw: text}
	if text == "" {
		return attr, nil
	}
	for _, item := range splitAttributes(text) {
		item = strings.TrimSpace(item)
		if !strings.HasPrefix(item, "VT(") {
			attr.Other = append(attr.Other, item)
			continue
		}
		if !strings.HasSuffix(item, ")") {
			return nil, &Error{Code: ParseError, Detail: truncate("Failed to parse type attribute string: "+text, errorStrMax)}
		}
		for _, entry := range splitAttributes(item[3 : len(item)-1]) {
			v, err := ParseValue(strings.TrimSpace(entry))
			if err != nil {
				return nil, err
			}
			s, ok := v.(string)
			if !ok {
				return nil, errorf(ParseError, "value table entries must be strings: %s", truncate(text, errorStrMax))
			}
			attr.ValueTable = append(attr.ValueTable, s)
		}
	}
	return attr, nil
}

// splitAttributes splits on commas that are not nested in quotes, braces,
// brackets or parentheses.
func splitAttributes(text string) []string {
	var (
		parts   []string
		depth   int
		inQuote bool
		start   int
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case inQuote:
			if c == '\\' {
				i++
			} else if c == '"' {
				inQuote = false
			}
		case c == '"':
			inQuote = true
		case c == '{' || c == '[' || c == '(':
			depth++
		case c == '}' || c == ']' || c == ')':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, text[start:i])
			start = i + 1
		}
	}
	return append(parts, text[start:])
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
