package ingest

import (
	"html"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// stripPolicy drops every tag; bluemonday policies are safe for concurrent use.
var stripPolicy = bluemonday.StrictPolicy()

// normalizeSpace collapses multiple spaces into one and trims the string.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanText strips markup, decodes entities, repairs UTF-8 and collapses whitespace.
func cleanText(s string) string {
	if s == "" {
		return ""
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	if strings.ContainsAny(s, "<&") {
		s = html.UnescapeString(stripPolicy.Sanitize(s))
	}
	s = strings.ReplaceAll(s, " ", " ")
	return normalizeSpace(s)
}

// HTMLToText returns the visible text of an HTML fragment.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return cleanText(html)
	}
	doc.Find("script, style, noscript").Remove()
	return cleanText(doc.Text())
}

// truncateText cuts a string to max runes, appending ellipsis if truncated.
func truncateText(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	if maxLen > 3 {
		return strings.TrimSpace(string(runes[:maxLen-3])) + "..."
	}
	return string(runes[:maxLen])
}

// CanonicalizeURL lowercases the host and drops fragments and tracking parameters.
func CanonicalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			if strings.HasPrefix(k, "utm_") {
				q.Del(k)
			}
		}
		for _, p := range []string{"fbclid", "gclid", "mc_cid", "mc_eid", "session"} {
			q.Del(p)
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// resolveURL resolves href against base. Non-web schemes resolve to "".
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return CanonicalizeURL(abs.String())
}

// isRootURL reports whether u has no meaningful path, i.e. it is a bare domain.
func isRootURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return true
	}
	p := strings.Trim(parsed.Path, "/")
	return p == "" && parsed.RawQuery == ""
}

func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// firstNonEmpty returns the first argument that is not blank.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
