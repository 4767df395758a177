// Package htmldoc extracts, rewrites, and wraps image references in
// submitted rich-text HTML fragments.
package htmldoc

import (
	stdhtml "html"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// cssURLPattern matches url(...) values inside the CSS properties the editor
// emits for images: background-image, background shorthand, list-style-image,
// and content.
var cssURLPattern = regexp.MustCompile(
	`(?i)(?:background-image|background|list-style-image|content)\s*:[^;{}]*?url\(\s*['"]?([^'")\s]+)['"]?\s*\)`,
)

// dataImagePattern matches inline base64 image payloads.
var dataImagePattern = regexp.MustCompile(`(?i)data:image/[^;,]+;base64,[A-Za-z0-9+/=\s]+`)

// lazyLoadAttrs are the attributes editors use for deferred image loading.
var lazyLoadAttrs = []string{"src", "data-src", "data-original"}

// ExtractRemoteURLs returns the de-duplicated set of remote image URLs
// referenced by the document, in order of first appearance. Data URIs are
// excluded; they are handled by ExtractDataImages. Malformed markup never
// fails: the tokenizer treats unparseable fragments as opaque text.
func ExtractRemoteURLs(doc string) []string {
	seen := make(map[string]struct{})
	var urls []string

	add := func(raw string) {
		u := normalizeURL(raw)
		if u == "" || strings.HasPrefix(u, "data:") {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	tok := html.NewTokenizer(strings.NewReader(doc))
	for {
		tt := tok.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			t := tok.Token()
			collectTagURLs(&t, add)
		case html.TextToken:
			// Covers <style> blocks; the tokenizer emits their CSS as text.
			collectCSSURLs(string(tok.Text()), add)
		}
	}

	return urls
}

// collectTagURLs pulls image URLs out of a single tag's attributes.
func collectTagURLs(t *html.Token, add func(string)) {
	isImg := t.Data == "img"
	for _, attr := range t.Attr {
		switch {
		case isImg && isLazyLoadAttr(attr.Key):
			add(attr.Val)
		case attr.Key == "data-background-image":
			add(attr.Val)
		case attr.Key == "style":
			collectCSSURLs(attr.Val, add)
		}
	}
}

func isLazyLoadAttr(key string) bool {
	for _, a := range lazyLoadAttrs {
		if key == a {
			return true
		}
	}
	return false
}

// collectCSSURLs scans a CSS fragment for url(...) image references.
func collectCSSURLs(css string, add func(string)) {
	for _, m := range cssURLPattern.FindAllStringSubmatch(css, -1) {
		add(m[1])
	}
}

// normalizeURL decodes HTML entities and strips wrapping quotes, handling
// values like url(&quot;...&quot;) that survive attribute decoding.
func normalizeURL(raw string) string {
	u := stdhtml.UnescapeString(raw)
	u = strings.TrimSpace(u)
	u = strings.Trim(u, `"'`)
	return u
}

// ExtractDataImages returns the inline base64 image payloads found in the
// document, in order of first appearance, de-duplicated.
func ExtractDataImages(doc string) []string {
	seen := make(map[string]struct{})
	var urls []string
	for _, m := range dataImagePattern.FindAllString(doc, -1) {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		urls = append(urls, m)
	}
	return urls
}

// IsDataImage reports whether the URL is an inline base64 image payload.
func IsDataImage(url string) bool {
	return strings.HasPrefix(url, "data:image")
}
