package converter

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var cssColor = regexp.MustCompile(`^(#[0-9A-Fa-f]{3,8}|[a-zA-Z]{3,20}|rgba?\([0-9.,\s%]+\))$`)

func colorOr(v, fallback string) string {
	v = strings.TrimSpace(v)
	if cssColor.MatchString(v) {
		return v
	}
	return fallback
}

var safeURL = regexp.MustCompile(`(?i)^\s*(javascript|vbscript|data):`)

// attrURL escapes a URL for an attribute and blanks out script schemes.
func attrURL(u string) string {
	if safeURL.MatchString(u) {
		return "#"
	}
	return EscapeHTML(strings.TrimSpace(u))
}

// renderers are keyed by kind; every renderer escapes what it interpolates.
var renderers = map[Kind]func(Module) string{
	KindImage:   renderImage,
	KindButton:  renderButton,
	KindDivider: renderDivider,
	KindSpacer:  renderSpacer,
	KindSocial:  renderSocial,
	KindFooter:  renderFooter,
	KindHeading: renderHeading,
	KindText:    renderText,
	KindUnknown: renderUnknown,
}

// RenderModule renders m as an email-safe HTML fragment.
func RenderModule(m Module) string {
	render, ok := renderers[m.Kind]
	if !ok {
		render = renderUnknown
	}
	return render(m)
}

func renderImage(m Module) string {
	f := m.Fields
	src := str(f, "src", "img.src", "image.src", "image_src", "url", "img")
	if src == "" {
		return "<!-- image without source -->"
	}
	alt := str(f, "alt", "img.alt", "image.alt", "alt_text")
	width := 600
	if w, ok := number(f, "width", "img.width", "image.width"); ok && w > 0 && w <= 600 {
		width = int(w)
	}

	img := fmt.Sprintf(`<img src="%s" alt="%s" width="%d" style="display:block;max-width:100%%;height:auto;border:0;">`,
		attrURL(src), EscapeHTML(alt), width)
	if link := str(f, "href", "link", "link.url", "img.link", "link_url"); link != "" {
		img = fmt.Sprintf(`<a href="%s" target="_blank">%s</a>`, attrURL(link), img)
	}

	align := "center"
	if a := strings.ToLower(str(f, "alignment", "align", "horizontal_alignment")); a == "left" || a == "right" {
		align = a
	}

	return fmt.Sprintf(`<table role="presentation" width="100%%" cellpadding="0" cellspacing="0" border="0"><tr><td align="%s">%s</td></tr></table>`, align, img)
}

func renderButton(m Module) string {
	f := m.Fields
	text := str(f, "text", "button_text", "label", "link_text", "button.text")
	if text == "" {
		text = "Learn more"
	}
	href := str(f, "href", "link", "url", "button_link", "destination", "button.url", "link.url")
	if href == "" {
		href = "#"
	}
	bg := colorOr(str(f, "background_color", "bg_color", "button_color", "style.background_color"), "#0073e6")
	fg := colorOr(str(f, "color", "text_color", "font_color", "style.color"), "#ffffff")

	return fmt.Sprintf(`<table role="presentation" cellpadding="0" cellspacing="0" border="0" align="center"><tr>`+
		`<td align="center" bgcolor="%s" style="border-radius:4px;">`+
		`<a href="%s" target="_blank" style="display:inline-block;padding:12px 24px;color:%s;text-decoration:none;font-weight:bold;">%s</a>`+
		`</td></tr></table>`, bg, attrURL(href), fg, EscapeHTML(text))
}

func renderDivider(m Module) string {
	color := colorOr(str(m.Fields, "color", "line_color", "color.color"), "#dddddd")
	height := 1
	if h, ok := number(m.Fields, "height", "line_width", "thickness"); ok && h > 0 && h <= 20 {
		height = int(h)
	}
	return fmt.Sprintf(`<hr style="border:0;border-top:%dpx solid %s;margin:16px 0;">`, height, color)
}

func renderSpacer(m Module) string {
	height := 20
	if h, ok := number(m.Fields, "height", "spacer_height", "size"); ok && h > 0 && h <= 400 {
		height = int(h)
	}
	return fmt.Sprintf(`<div style="height:%dpx;line-height:%dpx;font-size:1px;">&nbsp;</div>`, height, height)
}

// socialNetworks is the fixed list of networks recognized as top-level keys.
var socialNetworks = []string{"facebook", "twitter", "x", "linkedin", "instagram", "youtube", "pinterest", "tiktok"}

type socialLink struct{ network, url string }

func socialLinks(f map[string]any) []socialLink {
	var links []socialLink
	for _, key := range []string{"links", "social_links", "accounts"} {
		list, ok := f[key].([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			network := str(entry, "network", "type", "name", "service")
			url := str(entry, "url", "href", "link", "link.url")
			if url != "" {
				links = append(links, socialLink{network: network, url: url})
			}
		}
	}
	if len(links) > 0 {
		return links
	}

	for _, network := range socialNetworks {
		if url := str(f, network, network+"_url", network+".url"); url != "" {
			links = append(links, socialLink{network: network, url: url})
		}
	}
	return links
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func renderSocial(m Module) string {
	links := socialLinks(m.Fields)
	if len(links) == 0 {
		return "<!-- social module without links -->"
	}

	var b strings.Builder
	b.WriteString(`<table role="presentation" cellpadding="0" cellspacing="0" border="0" align="center"><tr>`)
	for _, l := range links {
		label := l.network
		if label == "" {
			label = "link"
		}
		fmt.Fprintf(&b, `<td style="padding:0 6px;"><a href="%s" target="_blank" style="text-decoration:none;">%s</a></td>`,
			attrURL(l.url), EscapeHTML(capitalize(label)))
	}
	b.WriteString(`</tr></table>`)
	return b.String()
}

func renderFooter(m Module) string {
	f := m.Fields
	company := EscapeHTML(str(f, "company_name", "company", "site_settings.company_name"))
	if company == "" {
		company = "%%Member_Busname%%"
	}
	address := EscapeHTML(str(f, "address", "company_address", "street_address", "company_street_address_1"))
	if address == "" {
		address = "%%Member_Addr%% %%Member_City%%, %%Member_State%% %%Member_PostalCode%%"
	}
	unsub := str(f, "unsubscribe_text", "unsubscribe_label")
	if unsub == "" {
		unsub = "Unsubscribe"
	}

	return fmt.Sprintf(`<table role="presentation" width="100%%" cellpadding="0" cellspacing="0" border="0"><tr>`+
		`<td align="center" style="padding:24px 16px;font-size:12px;color:#666666;">`+
		`<p style="margin:0 0 8px;">%s</p><p style="margin:0 0 8px;">%s</p>`+
		`<p style="margin:0;"><a href="%%%%unsub_center_url%%%%" style="color:#666666;">%s</a> | `+
		`<a href="%%%%profile_center_url%%%%" style="color:#666666;">Manage preferences</a></p>`+
		`</td></tr></table>`, company, address, EscapeHTML(unsub))
}

func renderHeading(m Module) string {
	text := strings.TrimSpace(PlainText(textValue(m.Fields)))
	return fmt.Sprintf(`<h2 style="margin:0 0 16px;font-size:24px;line-height:1.3;">%s</h2>`, EscapeHTML(text))
}

var markupHint = regexp.MustCompile(`<[a-zA-Z/!][^>]*>`)

func renderText(m Module) string {
	f := m.Fields
	if markup := str(f, "html", "rich_text"); markup != "" && markupHint.MatchString(markup) {
		return `<div class="text-block">` + stripUnsafe(markup) + `</div>`
	}

	text := textValue(f)
	var paras []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, `<p style="margin:0 0 12px;">`+strings.ReplaceAll(EscapeHTML(p), "\n", "<br>")+`</p>`)
		}
	}
	return `<div class="text-block">` + strings.Join(paras, "") + `</div>`
}

// ignoredUnknownKeys never carry displayable content.
var ignoredUnknownKeys = map[string]bool{
	"path": true, "type": true, "name": true, "order": true, "id": true, "css": true, "css_class": true,
	"label": true, "module_id": true, "schema_version": true, "smart_type": true, "parent_widget_container": true,
}

func renderUnknown(m Module) string {
	keys := make([]string, 0, len(m.Fields))
	for k := range m.Fields {
		if !ignoredUnknownKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, `<div class="migrated-module" data-source-path="%s">`, EscapeHTML(m.Path))
	for _, k := range keys {
		var v string
		switch t := m.Fields[k].(type) {
		case string:
			v = strings.TrimSpace(PlainText(t))
		case float64:
			v = strconv.FormatFloat(t, 'f', -1, 64)
		}
		if v != "" {
			fmt.Fprintf(&b, `<p style="margin:0 0 12px;">%s</p>`, EscapeHTML(v))
		}
	}
	b.WriteString(`</div>`)
	return b.String()
}
