package converter

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/hsmc/internal/shared"
)

func TestDecodeModule(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want Kind
	}{
		{name: "image by path", raw: map[string]any{"path": "@hubspot/image", "src": "a.png"}, want: KindImage},
		{name: "image by key", raw: map[string]any{"img": map[string]any{"src": "a.png"}}, want: KindImage},
		{name: "image nested under body", raw: map[string]any{"body": map[string]any{"image_src": "a.png"}}, want: KindImage},
		{name: "button by key", raw: map[string]any{"button_text": "Go", "button_link": "https://x"}, want: KindButton},
		{name: "divider by path", raw: map[string]any{"path": "@hubspot/divider"}, want: KindDivider},
		{name: "spacer by key", raw: map[string]any{"spacer_height": 30}, want: KindSpacer},
		{name: "social by key", raw: map[string]any{"social_links": []any{}}, want: KindSocial},
		{name: "footer by path", raw: map[string]any{"path": "@hubspot/email_footer"}, want: KindFooter},
		{name: "short caps text is a heading", raw: map[string]any{"text": "SUMMER SALE"}, want: KindHeading},
		{name: "mixed case text", raw: map[string]any{"text": "Summer sale starts today"}, want: KindText},
		{name: "rich text", raw: map[string]any{"path": "@hubspot/rich_text", "html": "<p>Hi there</p>"}, want: KindText},
		{name: "nothing recognizable", raw: map[string]any{"custom": 1.0}, want: KindUnknown},
		{name: "path wins over heading text", raw: map[string]any{"path": "@hubspot/button", "text": "BUY NOW"}, want: KindButton},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeModule("m", tt.raw).Kind)
		})
	}
}

func TestIsHeadingText(t *testing.T) {
	assert.True(t, isHeadingText("SUMMER SALE"))
	assert.True(t, isHeadingText("<strong>20% OFF</strong>"))
	assert.False(t, isHeadingText("Summer"))
	assert.False(t, isHeadingText("123"))
	assert.False(t, isHeadingText(strings.Repeat("A", 61)))
}

func TestDecodeWidgetsOrder(t *testing.T) {
	modules := DecodeWidgets(map[string]any{
		"b": map[string]any{"order": 2, "text": "second"},
		"a": map[string]any{"order": 1, "text": "first"},
		"c": "not a widget",
	})

	require.Len(t, modules, 2)
	assert.Equal(t, "a", modules[0].ID)
	assert.Equal(t, "b", modules[1].ID)
}

func TestRenderModuleEscapesFieldValues(t *testing.T) {
	hostile := `Tom & "Jerry" <b>'s</b>`

	tests := []struct {
		name    string
		raw     map[string]any
		escaped bool
	}{
		{name: "image", raw: map[string]any{"path": "@hubspot/image", "src": "https://x/a.png", "alt": hostile}, escaped: true},
		{name: "button", raw: map[string]any{"button_text": hostile, "button_link": "https://x"}, escaped: true},
		{name: "text", raw: map[string]any{"text": hostile}, escaped: true},
		{name: "divider", raw: map[string]any{"path": "divider", "color": hostile}},
		{name: "spacer", raw: map[string]any{"spacer_height": hostile}},
		{name: "social", raw: map[string]any{"social_links": []any{map[string]any{"network": hostile, "url": "https://fb"}}}, escaped: true},
		{name: "footer", raw: map[string]any{"path": "@hubspot/email_footer", "company_name": hostile}, escaped: true},
		{name: "unknown", raw: map[string]any{"custom": hostile}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := RenderModule(DecodeModule("m", tt.raw))

			assert.NotContains(t, out, hostile)
			assert.NotContains(t, out, `"Jerry"`)
			assert.NotContains(t, out, "<b>'s")
			if tt.escaped {
				assert.Contains(t, out, EscapeHTML(hostile))
			}
		})
	}
}

func TestRenderButtonDefaults(t *testing.T) {
	out := RenderModule(DecodeModule("b", map[string]any{"button_text": "Go", "background_color": "red;x:url(evil)"}))

	assert.Contains(t, out, `bgcolor="#0073e6"`)
	assert.Contains(t, out, "color:#ffffff")
	assert.Contains(t, out, `href="#"`)
}

func TestRenderSocialCapitalizesMultibyteLabel(t *testing.T) {
	out := RenderModule(DecodeModule("s", map[string]any{"social_links": []any{
		map[string]any{"network": "ölfabrik", "url": "https://x/o"},
		map[string]any{"network": "facebook", "url": "https://x/f"},
	}}))

	assert.Contains(t, out, ">Ölfabrik</a>")
	assert.Contains(t, out, ">Facebook</a>")
	assert.True(t, utf8.ValidString(out))
}

func TestRenderImageRejectsScriptURL(t *testing.T) {
	out := RenderModule(DecodeModule("i", map[string]any{"path": "image", "src": "javascript:alert(1)"}))
	assert.NotContains(t, out, "javascript:")
}

func TestRenderFooterPersonalization(t *testing.T) {
	out := RenderModule(DecodeModule("f", map[string]any{"path": "footer"}))

	assert.Contains(t, out, "%%Member_Busname%%")
	assert.Contains(t, out, "%%unsub_center_url%%")
	assert.Contains(t, out, "%%profile_center_url%%")
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "&amp;lt; &lt;&gt; &quot;&#39;", EscapeHTML(`&lt; <> "'`))
	assert.Equal(t, "&amp;amp; &apos;", EscapeXML("&amp; '"))
	assert.Equal(t, `say ""hi""`, EscapeAMPscript(`say "hi"`))
}

func TestRewriteTokens(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "first name", input: "Hi {{ contact.firstname }}!", want: "Hi %%FirstName%%!"},
		{name: "snake case alias", input: "{{contact.first_name}}", want: "%%FirstName%%"},
		{name: "email", input: "{{ contact.email }}", want: "%%emailaddr%%"},
		{
			name:  "default filter",
			input: `{{ contact.firstname|default("there") }}`,
			want:  `%%=IIF(Empty(AttributeValue("FirstName")), "there", AttributeValue("FirstName"))=%%`,
		},
		{
			name:  "default filter with entity and quote",
			input: `{{ contact.company | default('Tom &amp; "Co"') }}`,
			want:  `%%=IIF(Empty(AttributeValue("Company")), "Tom & ""Co""", AttributeValue("Company"))=%%`,
		},
		{
			name:  "default filter with escaped quotes",
			input: `{{ contact.firstname|default(&quot;there&quot;) }} {{ contact.city|default(&#39;Paris&#39;) }}`,
			want: `%%=IIF(Empty(AttributeValue("FirstName")), "there", AttributeValue("FirstName"))=%% ` +
				`%%=IIF(Empty(AttributeValue("City")), "Paris", AttributeValue("City"))=%%`,
		},
		{name: "custom property", input: "{{ contact.favorite_color }}", want: `%%=AttributeValue("favorite_color")=%%`},
		{name: "unsubscribe", input: `<a href="{{ unsubscribe_link }}">x</a>`, want: `<a href="%%unsub_center_url%%">x</a>`},
		{name: "company name", input: "{{ site_settings.company_name }}", want: "%%Member_Busname%%"},
		{name: "view online", input: "{{view_as_page_url}}", want: "%%view_email_url%%"},
		{name: "unrecognized token is removed", input: "a{{ request.query }}b", want: "ab"},
		{name: "unrecognized with filter is removed", input: "a{{ content.name|upper }}b", want: "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RewriteTokens(tt.input)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "{{")
		})
	}
}

func TestRewriteConditionals(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "bare identifier",
			input: "{% if contact.firstname %}Hi{% endif %}",
			want:  `%%[ IF NOT Empty(AttributeValue("FirstName")) THEN ]%%Hi%%[ ENDIF ]%%`,
		},
		{
			name:  "comparison and boolean operator",
			input: `{% if contact.city == "Paris" and contact.state != 'TX' %}x{% endif %}`,
			want:  `%%[ IF AttributeValue("City") == "Paris" AND AttributeValue("State") != "TX" THEN ]%%x%%[ ENDIF ]%%`,
		},
		{
			name:  "elif and else",
			input: "{% if a %}1{% elif b %}2{% else %}3{% endif %}",
			want: `%%[ IF NOT Empty(AttributeValue("a")) THEN ]%%1` +
				`%%[ ELSEIF NOT Empty(AttributeValue("b")) THEN ]%%2%%[ ELSE ]%%3%%[ ENDIF ]%%`,
		},
		{
			name:  "unless",
			input: "{% unless contact.email %}none{% endunless %}",
			want:  `%%[ IF NOT (NOT Empty(AttributeValue("emailaddr"))) THEN ]%%none%%[ ENDIF ]%%`,
		},
		{
			name:  "whitespace control dashes",
			input: "{%- if x -%}y{%- endif -%}",
			want:  `%%[ IF NOT Empty(AttributeValue("x")) THEN ]%%y%%[ ENDIF ]%%`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RewriteConditionals(tt.input))
		})
	}
}

func TestRewriteConditionalsMalformed(t *testing.T) {
	out := RewriteConditionals("{% if contact.firstname %}Hi")
	assert.Equal(t, `%%[ IF NOT Empty(AttributeValue("FirstName")) THEN ]%%Hi`, out)
}

func TestExtractModules(t *testing.T) {
	t.Run("patterns claim matches in order", func(t *testing.T) {
		got := ExtractModules(`<p>intro</p><img src="a.png"><section><p>Hi</p></section>`)

		require.Len(t, got.Modules, 2)
		assert.Equal(t, "image", got.Modules[0].Kind)
		assert.Equal(t, "module-1", got.Modules[0].ID)
		assert.Equal(t, "section", got.Modules[1].Kind)
		assert.Equal(t, `<p>intro</p>`+placeholder(1)+placeholder(2), got.HTML)
	})

	t.Run("placeholders only is a fixed point", func(t *testing.T) {
		first := ExtractModules(`<img src="a.png"><section>x</section>`)
		require.Len(t, first.Modules, 2)

		second := ExtractModules(first.HTML)
		assert.Empty(t, second.Modules)
		assert.Equal(t, first.HTML, second.HTML)
	})

	t.Run("unmatched content becomes one module", func(t *testing.T) {
		got := ExtractModules("<p>Hello</p>")

		require.Len(t, got.Modules, 1)
		assert.Equal(t, "<p>Hello</p>", got.Modules[0].HTML)
		assert.Equal(t, placeholder(1), got.HTML)
	})

	t.Run("json arrays split per element", func(t *testing.T) {
		got := ExtractModules(`[{"a":1},{"b":2}]`)

		require.Len(t, got.Modules, 2)
		assert.Equal(t, `{"a":1}`, got.Modules[0].HTML)
		assert.Equal(t, "data", got.Modules[1].Kind)
	})

	t.Run("oversized content splits on tables", func(t *testing.T) {
		table := "<table><tr><td>row</td></tr></table>"
		n := maxBlockSize/len(table) + 10

		got := ExtractModules(strings.Repeat(table, n))
		assert.Len(t, got.Modules, n)
	})

	t.Run("new placeholders do not collide with existing ones", func(t *testing.T) {
		got := ExtractModules(placeholder(4) + `<img src="b.png">`)

		require.Len(t, got.Modules, 1)
		assert.Equal(t, "module-5", got.Modules[0].ID)
	})
}

func TestSubstituteReferences(t *testing.T) {
	ex := ExtractModules(`<img src="a.png"><section>kept inline</section>`)
	require.Len(t, ex.Modules, 2)

	out := SubstituteReferences(ex.HTML, map[string]int64{"module-1": 42}, ex.Modules)

	assert.Equal(t, `%%=ContentBlockbyId("42")=%%<section>kept inline</section>`, out)
}

func TestToDestinationHTML(t *testing.T) {
	t.Run("module tags tokens and wrapper", func(t *testing.T) {
		c := Content{HTML: `<p>Hi {{ contact.firstname }}</p>{% module "hero" path="@hubspot/image" src="https://x/a.png" alt="Hero" %}`}

		out := ToDestinationHTML(c, nil)

		assert.Contains(t, out, "%%FirstName%%")
		assert.Contains(t, out, `<img src="https://x/a.png" alt="Hero"`)
		assert.Contains(t, out, "<html>")
		assert.NotContains(t, out, "{{")
		assert.NotContains(t, out, "{%")
	})

	t.Run("module content overrides tag attributes", func(t *testing.T) {
		c := Content{HTML: `{% module "hero" path="@hubspot/image" src="https://x/a.png" alt="Hero" %}`}

		out := ToDestinationHTML(c, map[string]map[string]any{"hero": {"alt": "Override"}})

		assert.Contains(t, out, `alt="Override"`)
	})

	t.Run("widgets render in order", func(t *testing.T) {
		c := DecodeContent(map[string]any{"widgets": map[string]any{
			"w1": map[string]any{"order": 2, "body": map[string]any{"text": "second"}},
			"w2": map[string]any{"order": 1, "body": map[string]any{"html": "<p>first</p>"}},
		}})

		out := ToDestinationHTML(c, nil)

		assert.Less(t, strings.Index(out, "first"), strings.Index(out, "second"))
	})

	t.Run("plain text widget keeps default fallback", func(t *testing.T) {
		c := DecodeContent(map[string]any{"widgets": map[string]any{
			"w1": map[string]any{"body": map[string]any{"text": `Hi {{ contact.firstname|default("there") }}`}},
		}})

		out := ToDestinationHTML(c, nil)

		assert.Contains(t, out, `IIF(Empty(AttributeValue("FirstName")), "there", AttributeValue("FirstName"))`)
		assert.NotContains(t, out, "&quot;")
	})

	t.Run("full documents are not rewrapped", func(t *testing.T) {
		out := ToDestinationHTML(Content{HTML: "<html><body>x</body></html>"}, nil)
		assert.Equal(t, "<html><body>x</body></html>", out)
	})
}

func TestConvert(t *testing.T) {
	_, err := Convert(nil, nil)
	assert.ErrorIs(t, err, shared.ErrConversion)

	_, err = Convert(map[string]any{"name": "empty"}, nil)
	assert.ErrorIs(t, err, shared.ErrConversion)

	out, err := Convert(`{"html":"<p>{{ contact.lastname }}</p>"}`, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "%%LastName%%")
}

func TestSanitize(t *testing.T) {
	input := "<p onclick=\"x()\">Hi</p><script>alert(1)</script><style>p{}</style><!-- c -->{{ x }}\x01😀"

	t.Run("none", func(t *testing.T) {
		assert.Equal(t, input, Sanitize(input, SanitizeNone))
	})

	t.Run("strict", func(t *testing.T) {
		out := Sanitize(input, SanitizeStrict)

		assert.Equal(t, "<p>Hi</p>&#128512;", out)
	})

	t.Run("plain", func(t *testing.T) {
		out := Sanitize(`<div><b>A & B</b></div><p>C</p>`, SanitizePlain)
		assert.Equal(t, "<p>A &amp; B</p><p>C</p>", out)
	})
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "Hello World", PlainText(`<p>Hello <b>World</b></p><script>var x</script>`))
	assert.Equal(t, "no markup", PlainText("no markup"))
	assert.Equal(t, "a & b", PlainText("a &amp; b"))
}

func TestColumnName(t *testing.T) {
	assert.Equal(t, "first_name", ColumnName("first name"))
	assert.Equal(t, "F_1st", ColumnName("1st"))
	assert.Equal(t, "Field", ColumnName("!!"))
	assert.Equal(t, "email", ColumnName("email"))
}

func TestFormHTML(t *testing.T) {
	form := DecodeForm("f1", "Signup & Win", map[string]any{
		"fieldGroups": []any{
			map[string]any{"fields": []any{
				map[string]any{"name": "email", "label": "Email", "fieldType": "email", "required": true},
				map[string]any{"name": "first name", "label": "First <Name>", "fieldType": "single_line_text"},
				map[string]any{"name": "plan", "fieldType": "dropdown", "options": []any{
					map[string]any{"label": "Pro", "value": "pro"},
				}},
			}},
		},
	})
	require.Len(t, form.Fields, 3)
	assert.Equal(t, "Submit", form.SubmitText)

	out := FormHTML(form, "Signup DE")

	assert.Contains(t, out, `InsertData("Signup DE", "email", RequestParameter("email"), "first_name", RequestParameter("first_name"), "plan", RequestParameter("plan"), "SubmittedAt", Now())`)
	assert.Contains(t, out, `type="email" id="email" name="email" placeholder="" required`)
	assert.Contains(t, out, "First &lt;Name&gt;")
	assert.Contains(t, out, `<option value="pro">Pro</option>`)
	assert.Contains(t, out, "<h1>Signup &amp; Win</h1>")
}

func TestFormHTMLGeneratedKey(t *testing.T) {
	form := FormDefinition{
		Name:         "Feedback",
		SubmitText:   "Send",
		Fields:       []FormField{{Name: "comment", Label: "Comment", Type: "textarea"}},
		GeneratedKey: "SubscriberKey",
	}

	out := FormHTML(form, "Feedback DE")

	assert.Contains(t, out, `InsertData("Feedback DE", "comment", RequestParameter("comment"), "SubscriberKey", GUID(), "SubmittedAt", Now())`)
	assert.NotContains(t, out, `name="SubscriberKey"`)
}

func TestFormHTMLCollidingColumns(t *testing.T) {
	form := FormDefinition{
		Name:       "Signup",
		SubmitText: "Go",
		Fields: []FormField{
			{Name: "first-name", Label: "First name", Type: "text"},
			{Name: "first_name", Label: "Given name", Type: "text"},
			{Name: "Email", Label: "Email", Type: "email"},
			{Name: "email", Label: "Email again", Type: "email"},
		},
		GeneratedKey: "EMAIL",
	}

	out := FormHTML(form, "Signup DE")

	assert.Contains(t, out, `InsertData("Signup DE", "first_name", RequestParameter("first_name"), "Email", RequestParameter("Email"), "SubmittedAt", Now())`)
	assert.Equal(t, 1, strings.Count(out, `"first_name", RequestParameter`))
	assert.Equal(t, 1, strings.Count(out, `name="first_name"`))
	assert.NotContains(t, out, "Given name")
	assert.NotContains(t, out, "GUID()")
}

func TestDecodeFormLegacyGroups(t *testing.T) {
	form := DecodeForm("f2", "Legacy", map[string]any{
		"submitText": "Send",
		"formFieldGroups": []any{
			map[string]any{"fields": []any{map[string]any{"name": "email", "hidden": true}}},
		},
	})

	require.Len(t, form.Fields, 1)
	assert.Equal(t, "hidden", form.Fields[0].Type)
	assert.Equal(t, "Send", form.SubmitText)
}
