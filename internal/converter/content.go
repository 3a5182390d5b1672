package converter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/desertthunder/hsmc/internal/shared"
)

// Content is the renderable portion of a source email or template.
type Content struct {
	HTML    string
	Widgets []Module
}

// Empty reports whether there is nothing to render.
func (c Content) Empty() bool {
	return strings.TrimSpace(c.HTML) == "" && len(c.Widgets) == 0
}

// DecodeContent accepts a raw HTML string, a JSON document, or a decoded source object and
// collects its HTML body and widget modules.
func DecodeContent(raw any) Content {
	switch v := raw.(type) {
	case nil:
		return Content{}
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "{") {
			var obj map[string]any
			if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
				return DecodeContent(obj)
			}
		}
		return Content{HTML: v}
	case []byte:
		return DecodeContent(string(v))
	case map[string]any:
		c := Content{HTML: str(v, "html", "source", "template_source", "body", "content.html", "content.body", "email_body", "templateSource")}
		for _, key := range []string{"widgets", "content.widgets", "flexAreas", "widgetContainers"} {
			if widgets, ok := lookup(v, key); ok {
				if w, ok := widgets.(map[string]any); ok {
					c.Widgets = append(c.Widgets, DecodeWidgets(w)...)
				}
			}
		}
		if c.Empty() {
			if m := DecodeModule(str(v, "id", "name"), v); m.Kind != KindUnknown {
				c.Widgets = []Module{m}
			}
		}
		return c
	default:
		return Content{}
	}
}

// moduleTag matches HubL module statements: {% module "hero" path="@hubspot/image" %}
var moduleTag = regexp.MustCompile(`\{%-?\s*(?:module|widget_block|dnd_module|custom_widget)\s+"?([\w-]+)"?([^%]*)-?%\}`)

var tagAttr = regexp.MustCompile(`([A-Za-z_][\w]*)\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s]+))`)

func parseTagAttrs(s string) map[string]any {
	out := map[string]any{}
	for _, m := range tagAttr.FindAllStringSubmatch(s, -1) {
		val := m[2]
		if val == "" {
			val = m[3]
		}
		if val == "" {
			val = m[4]
		}
		out[m[1]] = val
	}
	return out
}

// ToDestinationHTML converts source content into a complete destination email body.
//
// moduleContent carries per-module field values keyed by module name, overriding the
// attributes found on the module tag itself.
func ToDestinationHTML(c Content, moduleContent map[string]map[string]any) string {
	body := moduleTag.ReplaceAllStringFunc(c.HTML, func(match string) string {
		sub := moduleTag.FindStringSubmatch(match)
		fields := parseTagAttrs(sub[2])
		for k, v := range moduleContent[sub[1]] {
			fields[k] = v
		}
		return RenderModule(DecodeModule(sub[1], fields))
	})

	if len(c.Widgets) > 0 {
		var b strings.Builder
		for _, m := range c.Widgets {
			if override, ok := moduleContent[m.ID]; ok {
				merged := make(map[string]any, len(m.Fields)+len(override))
				for k, v := range m.Fields {
					merged[k] = v
				}
				for k, v := range override {
					merged[k] = v
				}
				m = DecodeModule(m.ID, merged)
			}
			b.WriteString(RenderModule(m))
		}
		body += b.String()
	}

	body = RewriteConditionals(body)
	body = RewriteTokens(body)
	body = StripTemplating(body)

	if strings.Contains(strings.ToLower(body), "<html") {
		return body
	}
	return wrapEmail(body)
}

func wrapEmail(body string) string {
	return `<!DOCTYPE html><html><head><meta charset="utf-8">` +
		`<meta name="viewport" content="width=device-width, initial-scale=1.0"></head>` +
		`<body style="margin:0;padding:0;background-color:#f4f4f4;">` +
		`<table role="presentation" width="100%" cellpadding="0" cellspacing="0" border="0"><tr><td align="center">` +
		`<table role="presentation" width="600" cellpadding="0" cellspacing="0" border="0" style="background-color:#ffffff;">` +
		`<tr><td style="padding:20px;font-family:Arial,sans-serif;font-size:14px;line-height:1.5;color:#333333;">` +
		body +
		`</td></tr></table></td></tr></table></body></html>`
}

// PlaceholderHTML is the body used when a source item's content cannot be fetched or rendered.
func PlaceholderHTML(name string) string {
	return wrapEmail(fmt.Sprintf(`<h1 style="margin:0 0 16px;">%s</h1><p>Content migrated from HubSpot. Edit this asset to restore its body.</p>`,
		EscapeHTML(name)))
}

// Convert decodes raw and renders it, failing with [shared.ErrConversion] when nothing is renderable.
func Convert(raw any, moduleContent map[string]map[string]any) (string, error) {
	c := DecodeContent(raw)
	if c.Empty() {
		return "", fmt.Errorf("%w: no html body or widgets", shared.ErrConversion)
	}
	return ToDestinationHTML(c, moduleContent), nil
}
