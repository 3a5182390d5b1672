package converter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// SanitizeLevel selects how aggressively HTML is cleaned before it is resubmitted to the destination.
type SanitizeLevel int

const (
	SanitizeNone SanitizeLevel = iota
	SanitizeStrict
	SanitizePlain
)

func (l SanitizeLevel) String() string {
	switch l {
	case SanitizeStrict:
		return "strict"
	case SanitizePlain:
		return "plain"
	default:
		return "none"
	}
}

var (
	unsafeElements = regexp.MustCompile(`(?is)<(script|iframe|object|embed)\b[^>]*>.*?</(?:script|iframe|object|embed)>|<(?:script|iframe|object|embed)\b[^>]*/?>`)
	styleBlocks    = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
	htmlComments   = regexp.MustCompile(`(?s)<!--.*?-->`)
	eventHandlers  = regexp.MustCompile(`(?i)\s+on[a-z]+\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]+)`)
	scriptURLs     = regexp.MustCompile(`(?i)(href|src)\s*=\s*(["'])\s*(?:javascript|vbscript):[^"']*(["'])`)
)

// stripUnsafe removes active content from markup that is otherwise passed through.
func stripUnsafe(s string) string {
	s = unsafeElements.ReplaceAllString(s, "")
	s = eventHandlers.ReplaceAllString(s, "")
	return scriptURLs.ReplaceAllString(s, `$1=$2#$3`)
}

// Sanitize cleans content at the given level. SanitizeNone returns it untouched.
func Sanitize(s string, level SanitizeLevel) string {
	switch level {
	case SanitizeStrict:
		s = stripUnsafe(s)
		s = styleBlocks.ReplaceAllString(s, "")
		s = htmlComments.ReplaceAllString(s, "")
		s = StripTemplating(s)
		return normalizeRunes(s)
	case SanitizePlain:
		var b strings.Builder
		for _, p := range strings.Split(PlainText(s), "\n") {
			if p = strings.TrimSpace(p); p != "" {
				fmt.Fprintf(&b, "<p>%s</p>", EscapeHTML(normalizeRunes(p)))
			}
		}
		return b.String()
	default:
		return s
	}
}

// normalizeRunes drops control characters and encodes characters outside the basic plane as entities.
func normalizeRunes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t' || r == '\r':
			b.WriteRune(r)
		case unicode.IsControl(r) || r == unicode.ReplacementChar:
		case r > 0xFFFF:
			fmt.Fprintf(&b, "&#%d;", r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// blockElements end a line of plain text.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "tr": true, "li": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "table": true, "section": true, "header": true, "footer": true,
}

// PlainText returns the visible text of an HTML fragment, one line per block element.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(collapseBlankLines(b.String()))
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				skip++
			}
			if blockElements[tag] {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
			if blockElements[tag] {
				b.WriteByte('\n')
			}
		}
	}
}

var blankLines = regexp.MustCompile(`\n[ \t]*\n+`)

func collapseBlankLines(s string) string {
	return blankLines.ReplaceAllString(s, "\n")
}
