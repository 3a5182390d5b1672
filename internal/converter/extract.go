package converter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Extracted is one reusable fragment pulled out of a larger body of HTML.
type Extracted struct {
	ID      string
	Kind    string
	Pattern string
	HTML    string
}

// Extraction is the result of [ExtractModules]: the rewritten outer HTML and the fragments removed from it.
type Extraction struct {
	HTML    string
	Modules []Extracted
}

type extractPattern struct {
	name string
	kind string
	re   *regexp.Regexp
}

// extractPatterns are tried in order; earlier patterns claim their matches first.
var extractPatterns = []extractPattern{
	{"module-wrapper", "module", regexp.MustCompile(`(?is)<div[^>]*class="[^"]*(?:hs_cos_wrapper|hs-module|module)[^"]*"[^>]*>.*?</div>`)},
	{"image", "image", regexp.MustCompile(`(?is)<img\b[^>]*>`)},
	{"button", "button", regexp.MustCompile(`(?is)<a\b[^>]*class="[^"]*(?:btn|button|cta)[^"]*"[^>]*>.*?</a>`)},
	{"data-attribute", "module", regexp.MustCompile(`(?is)<(div|span)\b[^>]*data-(?:hs|hubspot)-[^>]*>.*?</(?:div|span)>`)},
	{"section", "section", regexp.MustCompile(`(?is)<section\b[^>]*>.*?</section>`)},
	{"json-script", "data", regexp.MustCompile(`(?is)<script\b[^>]*type="application/(?:ld\+)?json"[^>]*>.*?</script>`)},
	{"header", "header", regexp.MustCompile(`(?is)<header\b[^>]*>.*?</header>`)},
	{"footer", "footer", regexp.MustCompile(`(?is)<footer\b[^>]*>.*?</footer>`)},
}

var placeholderPattern = regexp.MustCompile(`<div data-module-id="module-(\d+)"></div>`)

// maxBlockSize is the size above which unmatched content is split on table boundaries.
const maxBlockSize = 100 * 1024

func placeholder(n int) string {
	return fmt.Sprintf(`<div data-module-id="module-%d"></div>`, n)
}

// ExtractModules pulls reusable fragments out of content, replacing each with a placeholder.
//
// When no pattern matches, content that is nothing but placeholders yields no modules, so
// running ExtractModules on its own output is a no-op. Otherwise the content is split by
// shape: JSON arrays and objects per element, oversized HTML on closing table tags, and
// anything else as a single module.
func ExtractModules(content string) Extraction {
	out := content
	var modules []Extracted
	next := nextPlaceholderIndex(content)

	for _, p := range extractPatterns {
		out = p.re.ReplaceAllStringFunc(out, func(match string) string {
			if placeholderPattern.MatchString(match) && strings.TrimSpace(placeholderPattern.ReplaceAllString(match, "")) == "" {
				return match
			}
			id := fmt.Sprintf("module-%d", next)
			modules = append(modules, Extracted{ID: id, Kind: p.kind, Pattern: p.name, HTML: match})
			ph := placeholder(next)
			next++
			return ph
		})
	}
	if len(modules) > 0 {
		return Extraction{HTML: out, Modules: modules}
	}

	if strings.TrimSpace(placeholderPattern.ReplaceAllString(content, "")) == "" {
		return Extraction{HTML: content}
	}

	var parts []string
	kind := "content"
	switch trimmed := strings.TrimSpace(content); {
	case strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{"):
		parts = splitJSON(trimmed)
		kind = "data"
	case len(content) > maxBlockSize:
		parts = splitTables(content)
	}
	if len(parts) == 0 {
		parts = []string{content}
	}

	var b strings.Builder
	for _, part := range parts {
		id := fmt.Sprintf("module-%d", next)
		modules = append(modules, Extracted{ID: id, Kind: kind, Pattern: "fallback", HTML: part})
		b.WriteString(placeholder(next))
		next++
	}
	return Extraction{HTML: b.String(), Modules: modules}
}

func nextPlaceholderIndex(content string) int {
	next := 1
	for _, m := range placeholderPattern.FindAllStringSubmatch(content, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= next {
			next = n + 1
		}
	}
	return next
}

// splitJSON splits a JSON array into its elements, or returns an object whole. Invalid JSON yields nil.
func splitJSON(s string) []string {
	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(s), &arr); err == nil {
		parts := make([]string, 0, len(arr))
		for _, el := range arr {
			parts = append(parts, string(el))
		}
		return parts
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err == nil {
		return []string{s}
	}
	return nil
}

func splitTables(s string) []string {
	var parts []string
	for _, chunk := range strings.SplitAfter(s, "</table>") {
		if strings.TrimSpace(chunk) != "" {
			parts = append(parts, chunk)
		}
	}
	return parts
}

// ContentBlockRef is the personalization string that renders a content block by id.
func ContentBlockRef(id int64) string {
	return fmt.Sprintf(`%%%%=ContentBlockbyId("%d")=%%%%`, id)
}

// SubstituteReferences swaps each placeholder for a content block reference, or for the
// extracted HTML itself when the fragment was never stored.
func SubstituteReferences(content string, refs map[string]int64, modules []Extracted) string {
	byID := make(map[string]string, len(modules))
	for _, m := range modules {
		byID[m.ID] = m.HTML
	}

	return placeholderPattern.ReplaceAllStringFunc(content, func(match string) string {
		id := "module-" + placeholderPattern.FindStringSubmatch(match)[1]
		if ref, ok := refs[id]; ok {
			return ContentBlockRef(ref)
		}
		if inline, ok := byID[id]; ok {
			return inline
		}
		return ""
	})
}
