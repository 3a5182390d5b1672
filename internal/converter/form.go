package converter

import (
	"fmt"
	"strings"
)

// FormOption is one choice of a select, radio or checkbox field.
type FormOption struct {
	Label string
	Value string
}

// FormField is a single input of a source form.
type FormField struct {
	Name        string
	Label       string
	Type        string
	Required    bool
	Placeholder string
	Options     []FormOption
}

// FormDefinition is a decoded source form.
type FormDefinition struct {
	ID         string
	Name       string
	SubmitText string
	ThankYou   string
	Fields     []FormField

	// GeneratedKey names a key column with no form input. Submissions fill it with GUID().
	GeneratedKey string
}

// DecodeForm reads a form object from either the v3 (fieldGroups) or v2 (formFieldGroups) API.
func DecodeForm(id, name string, props map[string]any) FormDefinition {
	f := FormDefinition{
		ID:         id,
		Name:       name,
		SubmitText: str(props, "submitText", "displayOptions.submitButtonText", "configuration.submitButtonText"),
		ThankYou:   str(props, "inlineMessage", "displayOptions.postSubmitAction.value", "thankYouMessageJson"),
	}
	if f.SubmitText == "" {
		f.SubmitText = "Submit"
	}

	groups, _ := props["fieldGroups"].([]any)
	if len(groups) == 0 {
		groups, _ = props["formFieldGroups"].([]any)
	}
	for _, g := range groups {
		group, ok := g.(map[string]any)
		if !ok {
			continue
		}
		fields, _ := group["fields"].([]any)
		for _, raw := range fields {
			field, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if ff, ok := decodeFormField(field); ok {
				f.Fields = append(f.Fields, ff)
			}
		}
	}
	return f
}

func decodeFormField(raw map[string]any) (FormField, bool) {
	name := str(raw, "name")
	if name == "" {
		return FormField{}, false
	}
	ff := FormField{
		Name:        name,
		Label:       str(raw, "label"),
		Type:        strings.ToLower(str(raw, "fieldType", "type")),
		Placeholder: str(raw, "placeholder"),
	}
	if ff.Label == "" {
		ff.Label = name
	}
	if ff.Type == "" {
		ff.Type = "text"
	}
	if req, ok := raw["required"].(bool); ok {
		ff.Required = req
	}
	if hidden, ok := raw["hidden"].(bool); ok && hidden {
		ff.Type = "hidden"
	}

	opts, _ := raw["options"].([]any)
	for _, o := range opts {
		opt, ok := o.(map[string]any)
		if !ok {
			continue
		}
		value := str(opt, "value")
		label := str(opt, "label")
		if label == "" {
			label = value
		}
		ff.Options = append(ff.Options, FormOption{Label: label, Value: value})
	}
	return ff, true
}

// ColumnName normalizes a source property name into a destination column name.
func ColumnName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	col := strings.Trim(b.String(), "_")
	if col == "" {
		return "Field"
	}
	if col[0] >= '0' && col[0] <= '9' {
		col = "F_" + col
	}
	if len(col) > 128 {
		col = col[:128]
	}
	return col
}

func inputType(t string) string {
	switch t {
	case "email", "number", "date", "hidden", "tel":
		return t
	case "phonenumber", "phone":
		return "tel"
	default:
		return "text"
	}
}

func renderFormField(b *strings.Builder, f FormField) {
	col := ColumnName(f.Name)
	required := ""
	if f.Required {
		required = " required"
	}
	label := EscapeHTML(f.Label)

	switch f.Type {
	case "hidden":
		fmt.Fprintf(b, `<input type="hidden" name="%s" value="">`, col)
		return
	case "textarea", "multi_line_text":
		fmt.Fprintf(b, `<p><label for="%s">%s</label><br><textarea id="%s" name="%s" placeholder="%s"%s></textarea></p>`,
			col, label, col, col, EscapeHTML(f.Placeholder), required)
	case "select", "dropdown":
		fmt.Fprintf(b, `<p><label for="%s">%s</label><br><select id="%s" name="%s"%s>`, col, label, col, col, required)
		for _, o := range f.Options {
			fmt.Fprintf(b, `<option value="%s">%s</option>`, EscapeHTML(o.Value), EscapeHTML(o.Label))
		}
		b.WriteString(`</select></p>`)
	case "radio", "checkbox", "booleancheckbox", "multiple_checkboxes", "single_checkbox":
		kind := "checkbox"
		if f.Type == "radio" {
			kind = "radio"
		}
		fmt.Fprintf(b, `<fieldset><legend>%s</legend>`, label)
		opts := f.Options
		if len(opts) == 0 {
			opts = []FormOption{{Label: f.Label, Value: "true"}}
		}
		for _, o := range opts {
			fmt.Fprintf(b, `<label><input type="%s" name="%s" value="%s"> %s</label><br>`,
				kind, col, EscapeHTML(o.Value), EscapeHTML(o.Label))
		}
		b.WriteString(`</fieldset>`)
	default:
		fmt.Fprintf(b, `<p><label for="%s">%s</label><br><input type="%s" id="%s" name="%s" placeholder="%s"%s></p>`,
			col, label, inputType(f.Type), col, col, EscapeHTML(f.Placeholder), required)
	}
}

// uniqueFields drops fields whose column name, compared case-insensitively, was already taken
// by an earlier field. The data extension holds one column per name.
func (form FormDefinition) uniqueFields() []FormField {
	seen := map[string]bool{}
	out := make([]FormField, 0, len(form.Fields))
	for _, f := range form.Fields {
		col := strings.ToLower(ColumnName(f.Name))
		if seen[col] {
			continue
		}
		seen[col] = true
		out = append(out, f)
	}
	return out
}

func (form FormDefinition) hasColumn(name string) bool {
	for _, f := range form.Fields {
		if strings.EqualFold(ColumnName(f.Name), name) {
			return true
		}
	}
	return false
}

// FormHTML renders a cloud page for form. On POST the page writes the submitted values
// into the data extension named deName.
func FormHTML(form FormDefinition, deName string) string {
	var capture strings.Builder
	capture.WriteString(`%%[` + "\n")
	capture.WriteString(`IF RequestParameter("submitted") == "true" THEN` + "\n")
	fmt.Fprintf(&capture, `  InsertData("%s"`, EscapeAMPscript(deName))
	fields := form.uniqueFields()
	for _, f := range fields {
		col := ColumnName(f.Name)
		fmt.Fprintf(&capture, `, "%s", RequestParameter("%s")`, col, col)
	}
	if form.GeneratedKey != "" && !form.hasColumn(form.GeneratedKey) {
		fmt.Fprintf(&capture, `, "%s", GUID()`, EscapeAMPscript(form.GeneratedKey))
	}
	capture.WriteString(`, "SubmittedAt", Now())` + "\n")
	capture.WriteString(`  SET @submitted = "true"` + "\n")
	capture.WriteString("ENDIF\n]%%")

	thanks := form.ThankYou
	if thanks == "" {
		thanks = "Thanks for submitting the form."
	}

	var b strings.Builder
	b.WriteString(capture.String())
	b.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>`)
	b.WriteString(EscapeHTML(form.Name))
	b.WriteString(`</title></head><body style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto;padding:20px;">`)
	fmt.Fprintf(&b, `<h1>%s</h1>`, EscapeHTML(form.Name))
	fmt.Fprintf(&b, `%%%%[ IF @submitted == "true" THEN ]%%%%<p>%s</p>%%%%[ ELSE ]%%%%`, EscapeHTML(PlainText(thanks)))
	b.WriteString(`<form method="post" action="%%=RequestParameter('PAGEURL')=%%">`)
	b.WriteString(`<input type="hidden" name="submitted" value="true">`)
	for _, f := range fields {
		renderFormField(&b, f)
	}
	fmt.Fprintf(&b, `<p><button type="submit">%s</button></p></form>`, EscapeHTML(form.SubmitText))
	b.WriteString(`%%[ ENDIF ]%%</body></html>`)
	return b.String()
}
