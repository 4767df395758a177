package htmldoc

import "strings"

// knownExtensions is the allow-list of image extensions accepted from URL paths.
var knownExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {},
	".webp": {}, ".svg": {}, ".bmp": {}, ".ico": {},
}

// contentTypeExtensions maps image media types to file extensions.
var contentTypeExtensions = []struct {
	mime string
	ext  string
}{
	{"image/jpeg", ".jpg"},
	{"image/png", ".png"},
	{"image/gif", ".gif"},
	{"image/webp", ".webp"},
	{"image/svg+xml", ".svg"},
	{"image/bmp", ".bmp"},
	{"image/x-icon", ".ico"},
}

// FileExtension infers an image file extension from the URL path, falling
// back to the Content-Type header, and finally to ".jpg". Filenames are never
// derived from untrusted URL text beyond this extension lookup.
func FileExtension(url, contentType string) string {
	path := url
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		path = path[i+1:]
	}
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		ext := strings.ToLower(path[i:])
		if _, ok := knownExtensions[ext]; ok {
			return ext
		}
	}

	for _, m := range contentTypeExtensions {
		if strings.Contains(contentType, m.mime) {
			return m.ext
		}
	}
	return ".jpg"
}
