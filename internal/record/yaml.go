package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// YAMLNode returns a YAML mapping node holding r's entries in key order.
// It fails if a value cannot be represented in YAML.
func (r *Record) YAMLNode() (*yaml.Node, error) {
	node := &yaml.Node{
		Kind: yaml.MappingNode,
		Tag:  "!!map",
	}
	for k, v := range r.All() {
		vn, err := valueNode(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			vn,
		)
	}
	return node, nil
}

// MarshalYAML implements the yaml.v3 Marshaler interface.
func (r *Record) MarshalYAML() (any, error) {
	return r.YAMLNode()
}

func valueNode(v any) (*yaml.Node, error) {
	switch x := v.(type) {
	case *Record:
		return x.YAMLNode()
	case []any:
		node := &yaml.Node{
			Kind: yaml.SequenceNode,
			Tag:  "!!seq",
		}
		for i, e := range x {
			en, err := valueNode(e)
			if err != nil {
				return nil, fmt.Errorf("element #%d: %w", i, err)
			}
			node.Content = append(node.Content, en)
		}
		return node, nil
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: x}, nil
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(x)}, nil
	case json.Number:
		tag := "!!float"
		if _, err := x.Int64(); err == nil {
			tag = "!!int"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: x.String()}, nil
	}
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return nil, err
	}
	return &node, nil
}

// ParseYAML decodes a YAML stream. Each document must hold a mapping or a
// sequence of mappings; empty documents are skipped. Integers and floats
// become json.Number so that records read from YAML and JSON compare equal.
func ParseYAML(data []byte) ([]*Record, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var records []*Record
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode YAML document: %w", err)
		}
		if len(doc.Content) == 0 {
			continue
		}
		v, err := fromYAMLNode(doc.Content[0])
		if err != nil {
			return nil, fmt.Errorf("document starting at line %d: %w", doc.Line, err)
		}
		switch x := v.(type) {
		case *Record:
			records = append(records, x)
		case []any:
			for i, e := range x {
				r, ok := e.(*Record)
				if !ok {
					return nil, fmt.Errorf("element #%d: expected a mapping, got %s", i, typeName(e))
				}
				records = append(records, r)
			}
		default:
			return nil, fmt.Errorf("expected a mapping or sequence of mappings, got %s", typeName(v))
		}
	}
	return records, nil
}

func fromYAMLNode(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return fromYAMLNode(n.Alias)
	case yaml.MappingNode:
		r := New()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping keys must be scalars", k.Line)
			}
			v, err := fromYAMLNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			r.Set(k.Value, v)
		}
		return r, nil
	case yaml.SequenceNode:
		list := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := fromYAMLNode(c)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case yaml.ScalarNode:
		return yamlScalar(n)
	}
	return nil, fmt.Errorf("line %d: unsupported YAML node kind %d", n.Line, n.Kind)
}

func yamlScalar(n *yaml.Node) (any, error) {
	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return b, nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, err
		}
		return json.Number(strconv.FormatInt(i, 10)), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, err
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return n.Value, nil
		}
		return json.Number(strconv.FormatFloat(f, 'g', -1, 64)), nil
	}
	return n.Value, nil
}
