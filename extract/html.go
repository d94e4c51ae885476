package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	multiSpaces   = regexp.MustCompile(`[ \t\f\r]+`)
	spaceNewlines = regexp.MustCompile(` *\n *`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// skipped elements never contribute text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Head:     true,
	atom.Svg:      true,
	atom.Template: true,
	atom.Iframe:   true,
}

// block elements end a line of text.
var block = map[atom.Atom]bool{
	atom.P:          true,
	atom.Div:        true,
	atom.Br:         true,
	atom.Hr:         true,
	atom.Li:         true,
	atom.Tr:         true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Article:    true,
	atom.Section:    true,
	atom.Header:     true,
	atom.Footer:     true,
	atom.Blockquote: true,
	atom.Pre:        true,
	atom.Table:      true,
	atom.Ul:         true,
	atom.Ol:         true,
}

// StripHTML returns the visible text of an HTML document.
// Entities are unescaped and whitespace is collapsed, block elements become line breaks.
func StripHTML(content string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(content))

	var sb strings.Builder
	depth := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return normalizeWhitespace(sb.String())
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			a := atom.Lookup(name)
			if skipped[a] {
				depth++
			}
			if block[a] {
				sb.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			a := atom.Lookup(name)
			if skipped[a] && depth > 0 {
				depth--
			}
			if block[a] {
				sb.WriteByte('\n')
			}
		case html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			if block[atom.Lookup(name)] {
				sb.WriteByte('\n')
			}
		case html.TextToken:
			if depth == 0 {
				// Text tokens are already unescaped by the tokenizer.
				sb.Write(tokenizer.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

func normalizeWhitespace(text string) string {
	text = multiSpaces.ReplaceAllString(text, " ")
	text = spaceNewlines.ReplaceAllString(text, "\n")
	text = multiNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Truncate cuts text after maxLength characters and appends a marker.
func Truncate(text string, maxLength int) string {
	if maxLength <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}
	return string(runes[:maxLength]) + TruncationMarker
}

// TruncationMarker is appended to truncated text.
const TruncationMarker = "... [content truncated]"
