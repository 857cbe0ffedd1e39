// Package blog renders the office's public articles from Markdown.
package blog

import (
	"bytes"
	"fmt"
	stdhtml "html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ExcerptLength is the maximum excerpt size in runes, ellipsis included.
const ExcerptLength = 200

var (
	md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
	policy    = bluemonday.UGCPolicy()
	plainText = bluemonday.StrictPolicy()

	nonSlug   = regexp.MustCompile(`[^a-z0-9]+`)
	spaceRuns = regexp.MustCompile(`\s+`)
)

// Slugify turns a title into a URL slug: accents folded to ASCII, lowercase,
// words joined by hyphens.
func Slugify(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}
	slug := nonSlug.ReplaceAllString(strings.ToLower(folded), "-")
	return strings.Trim(slug, "-")
}

// Rendered is a post body converted for display.
type Rendered struct {
	HTML    string
	Excerpt string
}

// Render converts Markdown to sanitized HTML and derives a plain-text excerpt.
func Render(markdown string) (*Rendered, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	safe := policy.SanitizeBytes(buf.Bytes())
	return &Rendered{HTML: string(safe), Excerpt: excerpt(string(safe))}, nil
}

func excerpt(htmlText string) string {
	text := stdhtml.UnescapeString(plainText.Sanitize(htmlText))
	text = strings.TrimSpace(spaceRuns.ReplaceAllString(text, " "))
	r := []rune(text)
	if len(r) <= ExcerptLength {
		return text
	}
	cut := strings.TrimRightFunc(string(r[:ExcerptLength-1]), unicode.IsSpace)
	if i := strings.LastIndexByte(cut, ' '); i >= 0 && utf8.RuneCountInString(cut[:i]) > ExcerptLength/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
