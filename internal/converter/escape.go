package converter

import "strings"

var (
	htmlEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#39;",
	)
	xmlEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
)

// EscapeHTML escapes the five HTML-significant characters of s.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// EscapeXML escapes s for SOAP payloads. Ampersands are handled first by the replacer's single pass.
func EscapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

// EscapeAMPscript makes s safe inside a double-quoted AMPscript string literal.
func EscapeAMPscript(s string) string {
	return strings.ReplaceAll(s, `"`, `""`)
}
