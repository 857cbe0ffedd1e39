package output

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

const (
	previewWidth    = 80
	minPreviewWidth = 40
)

// previewWidthFor resolves the wrap width of a post preview. A positive
// request wins; otherwise stdout's width, then $COLUMNS, then 80.
func previewWidthFor(requested int) int {
	width := requested
	if width <= 0 {
		width = previewWidth
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
			width = w
		} else if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n > 0 {
			width = n
		}
	}
	return max(width, minPreviewWidth)
}

// RenderPost renders a blog post for the terminal the way the site shows it:
// single newlines are kept as line breaks and the title heads the body when
// the Markdown has no heading of its own.
func RenderPost(title, body string, width int) (string, error) {
	body = strings.TrimSpace(body)
	if title != "" && !strings.HasPrefix(body, "#") {
		body = "# " + title + "\n\n" + body
	}
	if body == "" {
		return "", nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(previewWidthFor(width)),
		glamour.WithPreservedNewLines(),
	)
	if err != nil {
		return "", err
	}
	rendered, err := renderer.Render(body)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(rendered, "\n"), nil
}
