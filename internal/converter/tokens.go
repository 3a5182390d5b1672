package converter

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// tokenPattern matches a HubL personalization token with optional filters: {{ contact.firstname|default("x") }}
var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][\w.]*)\s*((?:\|[^}]*)?)\}\}`)

// Quotes may arrive entity-escaped when the token sat in text that was escaped before rewriting.
var defaultFilter = regexp.MustCompile(`\|\s*default\s*\(\s*(?:"([^"]*)"|'([^']*)'|&quot;(.*?)&quot;|&#39;(.*?)&#39;|&#34;(.*?)&#34;)\s*\)`)

// contactFields maps HubSpot contact properties to subscriber attributes.
var contactFields = map[string]string{
	"firstname":   "FirstName",
	"first_name":  "FirstName",
	"lastname":    "LastName",
	"last_name":   "LastName",
	"email":       "emailaddr",
	"company":     "Company",
	"phone":       "Phone",
	"mobilephone": "MobilePhone",
	"jobtitle":    "JobTitle",
	"city":        "City",
	"state":       "State",
	"country":     "Country",
	"zip":         "PostalCode",
	"website":     "Website",
}

// systemTokens are tokens with a fixed personalization string equivalent.
var systemTokens = map[string]string{
	"unsubscribe_link":                          "%%unsub_center_url%%",
	"unsubscribe_link_all":                      "%%unsub_center_url%%",
	"unsubscribe_anchor":                        `<a href="%%unsub_center_url%%">Unsubscribe</a>`,
	"subscription_settings":                     "%%profile_center_url%%",
	"view_as_page_url":                          "%%view_email_url%%",
	"view_as_page_section":                      `<a href="%%view_email_url%%">View in browser</a>`,
	"site_settings.company_name":                "%%Member_Busname%%",
	"site_settings.company_street_address_1":    "%%Member_Addr%%",
	"site_settings.company_city":                "%%Member_City%%",
	"site_settings.company_state":               "%%Member_State%%",
	"site_settings.company_zip":                 "%%Member_PostalCode%%",
	"site_settings.company_country":             "%%Member_Country%%",
	"site_settings.company_street_address_2":    "",
	"local_dt":                                  "%%xtshortdate%%",
	"year":                                      "%%xtyear%%",
}

// attributeName resolves a dotted token path to the subscriber attribute it reads.
func attributeName(path string) (string, bool) {
	lower := strings.ToLower(path)
	for _, prefix := range []string{"contact.", "personalization_token."} {
		if strings.HasPrefix(lower, prefix) {
			prop := lower[len(prefix):]
			if attr, ok := contactFields[prop]; ok {
				return attr, true
			}
			return path[len(prefix):], true
		}
	}
	if attr, ok := contactFields[lower]; ok {
		return attr, true
	}
	return "", false
}

// inlineAttribute returns the personalization string form of attr.
func inlineAttribute(attr string) string {
	if strings.IndexFunc(attr, func(r rune) bool {
		return !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	}) >= 0 {
		return fmt.Sprintf(`%%%%=AttributeValue("%s")=%%%%`, EscapeAMPscript(attr))
	}
	return "%%" + attr + "%%"
}

// RewriteToken converts one matched token. ok is false when the token has no equivalent.
func RewriteToken(path, filters string) (string, bool) {
	if out, ok := systemTokens[strings.ToLower(path)]; ok {
		return out, true
	}

	attr, ok := attributeName(path)
	if !ok {
		return "", false
	}

	if m := defaultFilter.FindStringSubmatch(filters); m != nil {
		var fallback string
		for _, g := range m[1:] {
			if g != "" {
				fallback = g
				break
			}
		}
		fallback = EscapeAMPscript(html.UnescapeString(fallback))
		quoted := EscapeAMPscript(attr)
		return fmt.Sprintf(`%%%%=IIF(Empty(AttributeValue("%s")), "%s", AttributeValue("%s"))=%%%%`, quoted, fallback, quoted), true
	}

	if strings.HasPrefix(strings.ToLower(path), "contact.") {
		if _, known := contactFields[strings.ToLower(path[len("contact."):])]; !known {
			return fmt.Sprintf(`%%%%=AttributeValue("%s")=%%%%`, EscapeAMPscript(attr)), true
		}
	}
	return inlineAttribute(attr), true
}

// RewriteTokens replaces every recognized {{ ... }} token; unrecognized ones are removed.
func RewriteTokens(s string) string {
	return tokenPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := tokenPattern.FindStringSubmatch(match)
		if out, ok := RewriteToken(sub[1], sub[2]); ok {
			return out
		}
		return ""
	})
}

var (
	ifTag     = regexp.MustCompile(`\{%-?\s*(if|elif|unless)\s+(.+?)\s*-?%\}`)
	elseTag   = regexp.MustCompile(`\{%-?\s*else\s*-?%\}`)
	endifTag  = regexp.MustCompile(`\{%-?\s*end(?:if|unless)\s*-?%\}`)
	condToken = regexp.MustCompile(`"[^"]*"|'[^']*'|==|!=|>=|<=|[<>]|[A-Za-z_][\w.]*|-?\d+(?:\.\d+)?|[()]`)
)

var conditionOperators = map[string]string{
	"and": "AND",
	"or":  "OR",
	"not": "NOT",
	"==":  "==",
	"!=":  "!=",
	">":   ">",
	"<":   "<",
	">=":  ">=",
	"<=":  "<=",
	"(":   "(",
	")":   ")",
	"is":  "==",
}

// RewriteCondition translates a HubL condition expression to an AMPscript one.
// Malformed expressions are translated token by token without validation.
func RewriteCondition(expr string) string {
	tokens := condToken.FindAllString(expr, -1)
	out := make([]string, 0, len(tokens))
	for i, tok := range tokens {
		lower := strings.ToLower(tok)
		switch {
		case conditionOperators[lower] != "":
			out = append(out, conditionOperators[lower])
		case lower == "true" || lower == "false":
			out = append(out, lower)
		case tok[0] == '"' || tok[0] == '\'':
			out = append(out, `"`+EscapeAMPscript(html.UnescapeString(tok[1:len(tok)-1]))+`"`)
		case tok[0] == '-' || tok[0] >= '0' && tok[0] <= '9':
			out = append(out, tok)
		default:
			attr, ok := attributeName(tok)
			if !ok {
				attr = tok
			}
			value := fmt.Sprintf(`AttributeValue("%s")`, EscapeAMPscript(attr))
			if isBareOperand(tokens, i) {
				out = append(out, "NOT Empty("+value+")")
			} else {
				out = append(out, value)
			}
		}
	}
	return strings.Join(out, " ")
}

// isBareOperand reports whether the identifier at i stands alone, as in "if contact.firstname".
func isBareOperand(tokens []string, i int) bool {
	comparison := func(tok string) bool {
		switch tok {
		case "==", "!=", ">", "<", ">=", "<=", "is":
			return true
		}
		return false
	}
	if i > 0 && comparison(strings.ToLower(tokens[i-1])) {
		return false
	}
	if i+1 < len(tokens) && comparison(strings.ToLower(tokens[i+1])) {
		return false
	}
	return true
}

// RewriteConditionals converts if/elif/else/endif blocks into AMPscript IF blocks.
func RewriteConditionals(s string) string {
	s = ifTag.ReplaceAllStringFunc(s, func(match string) string {
		sub := ifTag.FindStringSubmatch(match)
		cond := RewriteCondition(sub[2])
		switch sub[1] {
		case "elif":
			return "%%[ ELSEIF " + cond + " THEN ]%%"
		case "unless":
			return "%%[ IF NOT (" + cond + ") THEN ]%%"
		default:
			return "%%[ IF " + cond + " THEN ]%%"
		}
	})
	s = elseTag.ReplaceAllString(s, "%%[ ELSE ]%%")
	return endifTag.ReplaceAllString(s, "%%[ ENDIF ]%%")
}

var leftoverTemplating = regexp.MustCompile(`(?s)\{\{.*?\}\}|\{%.*?%\}|\{#.*?#\}`)

// StripTemplating removes any source templating syntax that survived conversion.
func StripTemplating(s string) string {
	return leftoverTemplating.ReplaceAllString(s, "")
}
