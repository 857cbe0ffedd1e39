package templating

import (
	"errors"
	"regexp"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z0-9_]+)*)\s*\}\}`)

// Result is a rendered document.
type Result struct {
	Content *Node `json:"content"`
	// Missing lists the names that had no value, in first-seen order.
	Missing []string `json:"missing"`
}

// Render substitutes vars into a copy of doc. Names without a value are left
// in the text as {{name}} and reported in Result.Missing.
func Render(doc *Node, vars map[string]string) (*Result, error) {
	if doc == nil {
		return nil, errors.New("render: nil document")
	}
	r := &renderer{vars: vars, seen: make(map[string]bool)}
	out := doc.Clone()
	mergeText(out)
	r.walk(out)
	mergeText(out)
	if r.missing == nil {
		r.missing = []string{}
	}
	return &Result{Content: out, Missing: r.missing}, nil
}

type renderer struct {
	vars    map[string]string
	seen    map[string]bool
	missing []string
}

func (r *renderer) lookup(name string) (string, bool) {
	v, ok := r.vars[name]
	if !ok && !r.seen[name] {
		r.seen[name] = true
		r.missing = append(r.missing, name)
	}
	return v, ok
}

func (r *renderer) walk(n *Node) {
	if n.isText() {
		n.Text = r.substitute(n.Text)
		return
	}
	for i, child := range n.Content {
		if isVariableNode(child) {
			n.Content[i] = r.variableText(child)
			continue
		}
		r.walk(child)
	}
}

func (r *renderer) substitute(s string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := r.lookup(name); ok {
			return v
		}
		return m
	})
}

func (r *renderer) variableText(n *Node) *Node {
	name := variableName(n)
	text := "{{" + name + "}}"
	if name != "" {
		if v, ok := r.lookup(name); ok {
			text = v
		}
	}
	return &Node{Type: "text", Text: text, Marks: n.Marks}
}

func isVariableNode(n *Node) bool {
	return n.Type == "variable" || n.Type == "placeholder"
}

func variableName(n *Node) string {
	if name := n.Attr("name"); name != "" {
		return name
	}
	return n.Attr("id")
}

// mergeText joins adjacent text siblings that carry the same marks and drops
// text nodes left empty.
func mergeText(n *Node) {
	if len(n.Content) == 0 {
		return
	}
	merged := n.Content[:0]
	for _, child := range n.Content {
		if child.isText() {
			if child.Text == "" {
				continue
			}
			if k := len(merged); k > 0 && merged[k-1].isText() && sameMarks(merged[k-1].Marks, child.Marks) {
				merged[k-1].Text += child.Text
				continue
			}
		} else {
			mergeText(child)
		}
		merged = append(merged, child)
	}
	for i := len(merged); i < len(n.Content); i++ {
		n.Content[i] = nil
	}
	n.Content = merged
}

// Placeholders lists the variable names a document references, in order of
// first appearance.
func Placeholders(doc *Node) []string {
	names := []string{}
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	var visit func(n *Node)
	visit = func(n *Node) {
		switch {
		case n.isText():
			for _, m := range placeholderRe.FindAllStringSubmatch(n.Text, -1) {
				add(m[1])
			}
		case isVariableNode(n):
			add(variableName(n))
		}
		for _, c := range n.Content {
			visit(c)
		}
	}
	if doc != nil {
		c := doc.Clone()
		mergeText(c)
		visit(c)
	}
	return names
}
