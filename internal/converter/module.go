package converter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Kind is the detected shape of a content module.
type Kind int

const (
	KindUnknown Kind = iota
	KindImage
	KindButton
	KindDivider
	KindSpacer
	KindSocial
	KindFooter
	KindHeading
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindButton:
		return "button"
	case KindDivider:
		return "divider"
	case KindSpacer:
		return "spacer"
	case KindSocial:
		return "social"
	case KindFooter:
		return "footer"
	case KindHeading:
		return "heading"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Module is one decoded fragment of source content.
type Module struct {
	ID     string
	Kind   Kind
	Path   string
	Order  int
	Fields map[string]any
}

// detectionRule maps a predicate over (path, fields) to a kind. Rules are evaluated in order.
type detectionRule struct {
	kind  Kind
	match func(path string, fields map[string]any) bool
}

var detectionRules = []detectionRule{
	{KindImage, pathOrKeys("image", "img", "image_src")},
	{KindButton, pathOrKeys("button", "button_text", "button_link")},
	{KindDivider, pathOrKeys("divider")},
	{KindSpacer, pathOrKeys("spacer", "spacer_height")},
	{KindSocial, pathOrKeys("social", "social_links")},
	{KindFooter, pathOrKeys("footer")},
	{KindHeading, func(_ string, f map[string]any) bool { return isHeadingText(textValue(f)) }},
	{KindText, func(_ string, f map[string]any) bool { return textValue(f) != "" }},
}

func pathOrKeys(sub string, keys ...string) func(string, map[string]any) bool {
	return func(path string, fields map[string]any) bool {
		if strings.Contains(strings.ToLower(path), sub) {
			return true
		}
		for _, k := range keys {
			if _, ok := fields[k]; ok {
				return true
			}
		}
		return false
	}
}

// isHeadingText treats short ALL-CAPS text as a heading.
func isHeadingText(s string) bool {
	s = strings.TrimSpace(PlainText(s))
	if s == "" || len(s) > 60 || strings.Contains(s, "\n") {
		return false
	}
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return hasLetter
}

// textKeys are the field names that carry a module's body, most specific first.
var textKeys = []string{"html", "rich_text", "text", "content", "body", "value"}

func textValue(fields map[string]any) string {
	return str(fields, textKeys...)
}

// DecodeModule builds a [Module] from a raw widget map.
//
// Widget fields are frequently nested under "body"; those are flattened over the outer keys.
func DecodeModule(id string, raw map[string]any) Module {
	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "body" {
			if nested, ok := v.(map[string]any); ok {
				for nk, nv := range nested {
					fields[nk] = nv
				}
				continue
			}
		}
		fields[k] = v
	}

	m := Module{ID: id, Fields: fields, Path: str(fields, "path", "module_path", "type")}
	if order, ok := number(fields, "order"); ok {
		m.Order = int(order)
	}

	for _, rule := range detectionRules {
		if rule.match(m.Path, fields) {
			m.Kind = rule.kind
			return m
		}
	}
	m.Kind = KindUnknown
	return m
}

// DecodeWidgets decodes a HubSpot "widgets" map, ordered by each widget's order field then by key.
func DecodeWidgets(widgets map[string]any) []Module {
	modules := make([]Module, 0, len(widgets))
	for id, raw := range widgets {
		w, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		modules = append(modules, DecodeModule(id, w))
	}

	sort.SliceStable(modules, func(i, j int) bool {
		if modules[i].Order != modules[j].Order {
			return modules[i].Order < modules[j].Order
		}
		return modules[i].ID < modules[j].ID
	})
	return modules
}

// lookup resolves a dotted key ("img.src") inside nested maps.
func lookup(fields map[string]any, key string) (any, bool) {
	var cur any = fields
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// str returns the first non-empty string found under keys.
func str(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := lookup(fields, k)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if strings.TrimSpace(t) != "" {
				return t
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case int:
			return strconv.Itoa(t)
		case bool:
			return strconv.FormatBool(t)
		}
	}
	return ""
}

// number returns the first numeric value found under keys; numeric strings ("20px" included) count.
func number(fields map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := lookup(fields, k)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return t, true
		case int:
			return float64(t), true
		case string:
			if n, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(t), "px"), 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func (m Module) String() string {
	return fmt.Sprintf("%s(%s)", m.Kind, m.ID)
}
