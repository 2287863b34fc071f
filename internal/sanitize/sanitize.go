// Package sanitize is the only path by which provider-supplied text becomes
// markup. Descriptions come from whoever can edit the club calendar, so
// they are untrusted.
package sanitize

import (
	"html"
	"html/template"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policyOnce  sync.Once
	descPolicy  *bluemonday.Policy
	strictOnce  sync.Once
	stripPolicy *bluemonday.Policy
)

// looksLikeHTML matches an opening or closing tag of a known element, so
// prose such as "x <y and z > w" stays text.
var looksLikeHTML = regexp.MustCompile(`(?i)</?(?:a|abbr|b|blockquote|body|br|button|code|div|em|embed|font|form|h[1-6]|head|hr|html|i|iframe|img|input|li|link|meta|object|ol|p|pre|s|script|span|strike|strong|style|sub|sup|svg|table|tbody|td|th|thead|title|tr|u|ul)(?:\s[^>]*)?/?>`)

// DescriptionPolicy allows links, paragraphs, line breaks, emphasis, lists
// and headings. No data attributes, no non-standard URL schemes.
func DescriptionPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.NewPolicy()
		p.AllowElements("p", "br", "em", "strong", "b", "i", "u", "ul", "ol", "li",
			"h1", "h2", "h3", "h4", "h5", "h6")
		p.AllowAttrs("href").OnElements("a")
		p.AllowURLSchemes("http", "https", "mailto")
		p.RequireParseableURLs(true)
		p.RequireNoFollowOnLinks(true)
		p.RequireNoReferrerOnLinks(true)
		p.AddTargetBlankToFullyQualifiedLinks(true)
		descPolicy = p
	})
	return descPolicy
}

// Description renders raw as safe HTML. Plain text is escaped first and its
// newlines become <br>.
func Description(raw string) template.HTML {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !looksLikeHTML.MatchString(raw) {
		raw = strings.ReplaceAll(html.EscapeString(raw), "\n", "<br>")
	}
	return template.HTML(DescriptionPolicy().Sanitize(raw))
}

// PlainText strips every tag and decodes entities, for contexts such as
// URL parameters where markup has no meaning. Text without markup is only
// trimmed.
func PlainText(raw string) string {
	strictOnce.Do(func() {
		stripPolicy = bluemonday.StrictPolicy()
	})
	if !looksLikeHTML.MatchString(raw) {
		return strings.TrimSpace(raw)
	}
	raw = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "</p>", "</p>\n").Replace(raw)
	return strings.TrimSpace(html.UnescapeString(stripPolicy.Sanitize(raw)))
}
