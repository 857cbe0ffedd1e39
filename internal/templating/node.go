// Package templating renders document templates stored as rich-text editor
// trees. A template is a JSON document of nested nodes; text nodes may carry
// {{ name }} placeholders and dedicated variable nodes name a value directly.
package templating

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Mark is an inline formatting annotation on a text node (bold, link...).
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Node is one node of an editor document.
type Node struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
	Content []*Node        `json:"content,omitempty"`
}

// Parse decodes a JSON document. An empty input yields an empty doc node.
func Parse(raw []byte) (*Node, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return &Node{Type: "doc"}, nil
	}
	var n Node
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	if n.Type == "" {
		n.Type = "doc"
	}
	n.compact()
	return &n, nil
}

// compact removes null children left by editors that serialize deleted
// nodes as null.
func (n *Node) compact() {
	kept := n.Content[:0]
	for _, c := range n.Content {
		if c == nil {
			continue
		}
		c.compact()
		kept = append(kept, c)
	}
	for i := len(kept); i < len(n.Content); i++ {
		n.Content[i] = nil
	}
	n.Content = kept
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{Type: n.Type, Text: n.Text, Attrs: cloneMap(n.Attrs)}
	if n.Marks != nil {
		c.Marks = make([]Mark, len(n.Marks))
		for i, m := range n.Marks {
			c.Marks[i] = Mark{Type: m.Type, Attrs: cloneMap(m.Attrs)}
		}
	}
	if n.Content != nil {
		c.Content = make([]*Node, 0, len(n.Content))
		for _, child := range n.Content {
			if child != nil {
				c.Content = append(c.Content, child.Clone())
			}
		}
	}
	return c
}

// Attr returns a string attribute, or "" when absent or not a string.
func (n *Node) Attr(key string) string {
	if v, ok := n.Attrs[key].(string); ok {
		return v
	}
	return ""
}

func (n *Node) isText() bool {
	return n.Type == "text"
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func sameMarks(a, b []Mark) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type {
			return false
		}
		if len(a[i].Attrs) != 0 || len(b[i].Attrs) != 0 {
			if !reflect.DeepEqual(a[i].Attrs, b[i].Attrs) {
				return false
			}
		}
	}
	return true
}
