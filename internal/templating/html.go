package templating

import (
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// htmlPolicy is the blog's UGC policy plus the editor's text alignment.
var htmlPolicy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowStyles("text-align").
		MatchingEnum("left", "right", "center", "justify").
		OnElements("p", "h1", "h2", "h3", "h4", "h5", "h6")
	return p
}()

// ToHTML renders a document as a sanitized HTML fragment. Unknown block
// types render their children only; links keep only safe URL schemes.
func ToHTML(doc *Node) string {
	var b strings.Builder
	if doc != nil {
		writeHTML(&b, doc)
	}
	return htmlPolicy.Sanitize(b.String())
}

func writeHTML(b *strings.Builder, n *Node) {
	if n == nil {
		return
	}
	switch n.Type {
	case "text":
		writeMarkedText(b, n)
		return
	case "hardBreak":
		b.WriteString("<br>")
		return
	case "horizontalRule":
		b.WriteString("<hr>")
		return
	}

	open, closing := blockTags(n)
	b.WriteString(open)
	for _, c := range n.Content {
		writeHTML(b, c)
	}
	b.WriteString(closing)
}

func blockTags(n *Node) (string, string) {
	align := ""
	if a := n.Attr("textAlign"); a != "" && a != "left" {
		align = fmt.Sprintf(` style="text-align: %s"`, html.EscapeString(a))
	}
	switch n.Type {
	case "paragraph":
		return "<p" + align + ">", "</p>"
	case "heading":
		level := headingLevel(n)
		return fmt.Sprintf("<h%d%s>", level, align), fmt.Sprintf("</h%d>", level)
	case "bulletList":
		return "<ul>", "</ul>"
	case "orderedList":
		return "<ol>", "</ol>"
	case "listItem":
		return "<li>", "</li>"
	case "blockquote":
		return "<blockquote>", "</blockquote>"
	case "codeBlock":
		return "<pre><code>", "</code></pre>"
	}
	return "", ""
}

func headingLevel(n *Node) int {
	level := 1
	switch v := n.Attrs["level"].(type) {
	case float64:
		level = int(v)
	case int:
		level = v
	}
	if level < 1 || level > 6 {
		level = 1
	}
	return level
}

func writeMarkedText(b *strings.Builder, n *Node) {
	var closers []string
	for _, m := range n.Marks {
		switch m.Type {
		case "bold", "strong":
			b.WriteString("<strong>")
			closers = append(closers, "</strong>")
		case "italic", "em":
			b.WriteString("<em>")
			closers = append(closers, "</em>")
		case "underline":
			b.WriteString("<u>")
			closers = append(closers, "</u>")
		case "strike":
			b.WriteString("<s>")
			closers = append(closers, "</s>")
		case "code":
			b.WriteString("<code>")
			closers = append(closers, "</code>")
		case "link":
			href, _ := m.Attrs["href"].(string)
			fmt.Fprintf(b, `<a href="%s">`, html.EscapeString(href))
			closers = append(closers, "</a>")
		}
	}
	b.WriteString(strings.ReplaceAll(html.EscapeString(n.Text), "\n", "<br>"))
	for i := len(closers) - 1; i >= 0; i-- {
		b.WriteString(closers[i])
	}
}

// ToText renders a document as plain text: one line per block, list items
// prefixed with "- " or their number, blank lines between paragraphs.
func ToText(doc *Node) string {
	if doc == nil {
		return ""
	}
	var blocks []string
	collectText(doc, &blocks, "")
	return strings.TrimSpace(strings.Join(blocks, "\n"))
}

func collectText(n *Node, blocks *[]string, prefix string) {
	if n == nil {
		return
	}
	switch n.Type {
	case "paragraph", "heading", "codeBlock":
		*blocks = append(*blocks, prefix+inlineText(n))
		if prefix == "" {
			*blocks = append(*blocks, "")
		}
		return
	case "horizontalRule":
		*blocks = append(*blocks, "---", "")
		return
	case "bulletList", "orderedList":
		for i, item := range n.Content {
			if item == nil {
				continue
			}
			marker := "- "
			if n.Type == "orderedList" {
				marker = fmt.Sprintf("%d. ", i+1)
			}
			for j, c := range item.Content {
				p := strings.Repeat(" ", len(prefix)+len(marker))
				if j == 0 {
					p = prefix + marker
				}
				collectText(c, blocks, p)
			}
		}
		if prefix == "" {
			*blocks = append(*blocks, "")
		}
		return
	case "text":
		*blocks = append(*blocks, prefix+n.Text)
		return
	}
	for _, c := range n.Content {
		collectText(c, blocks, prefix)
	}
}

func inlineText(n *Node) string {
	var b strings.Builder
	var walk func(*Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		switch {
		case n.isText():
			b.WriteString(n.Text)
		case n.Type == "hardBreak":
			b.WriteString("\n")
		}
		for _, c := range n.Content {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
