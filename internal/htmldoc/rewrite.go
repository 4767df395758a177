package htmldoc

import (
	"regexp"
	"strings"
)

// RewriteURLs replaces image URLs in the document according to the mapping.
// A non-empty mapping value substitutes the local path for every occurrence
// of the origin URL. An empty value removes the reference: the producing
// <img> element is stripped entirely and any remaining occurrences (CSS
// references) are blanked.
func RewriteURLs(doc string, mapping map[string]string) string {
	result := doc
	for origin, local := range mapping {
		if local == "" {
			result = removeReference(result, origin)
			continue
		}
		result = replaceAllForms(result, origin, local)
	}
	return result
}

// replaceAllForms substitutes both the raw URL and its entity-escaped form,
// since attribute values may carry &amp; for query separators.
func replaceAllForms(doc, origin, replacement string) string {
	doc = strings.ReplaceAll(doc, origin, replacement)
	if escaped := strings.ReplaceAll(origin, "&", "&amp;"); escaped != origin {
		doc = strings.ReplaceAll(doc, escaped, replacement)
	}
	return doc
}

// removeReference strips img elements referencing the URL, then blanks any
// leftover occurrences so no dead remote reference survives.
func removeReference(doc, origin string) string {
	pattern := regexp.MustCompile(`(?is)<img\b[^>]*` + regexp.QuoteMeta(origin) + `[^>]*/?>`)
	doc = pattern.ReplaceAllString(doc, "")
	if escaped := strings.ReplaceAll(origin, "&", "&amp;"); escaped != origin {
		escapedPattern := regexp.MustCompile(`(?is)<img\b[^>]*` + regexp.QuoteMeta(escaped) + `[^>]*/?>`)
		doc = escapedPattern.ReplaceAllString(doc, "")
	}
	return replaceAllForms(doc, origin, "")
}

// documentSkeleton is the offline viewing shell wrapped around exported
// fragments. Matches the editor product's export layout.
const documentSkeleton = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>离线内容</title>
    <style>
        body {
            max-width: 800px;
            margin: 0 auto;
            padding: 20px;
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
            line-height: 1.6;
        }
        img {
            max-width: 100%;
            height: auto;
        }
    </style>
</head>
<body>
`

// WrapDocument adds the base document structure around a processed fragment.
// Fragments that already carry a doctype are returned unchanged.
func WrapDocument(fragment string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(fragment)), "<!doctype") {
		return fragment
	}
	var b strings.Builder
	b.Grow(len(documentSkeleton) + len(fragment) + 16)
	b.WriteString(documentSkeleton)
	b.WriteString(fragment)
	b.WriteString("\n</body>\n</html>")
	return b.String()
}
