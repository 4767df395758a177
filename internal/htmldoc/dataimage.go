package htmldoc

import (
	"encoding/base64"
	"errors"
	"regexp"
	"strings"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// DecodeDataImage decodes an inline base64 image payload into raw bytes and
// its media type (e.g. "image/png").
func DecodeDataImage(dataURL string) ([]byte, string, error) {
	header, payload, found := strings.Cut(dataURL, ",")
	if !found {
		return nil, "", errors.New("malformed data URL: missing payload separator")
	}

	mediaType := strings.TrimPrefix(header, "data:")
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}

	// Editors wrap long payloads; strip whitespace before decoding.
	payload = whitespacePattern.ReplaceAllString(payload, "")

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Tolerate payloads with missing padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, "", err
		}
	}
	return data, mediaType, nil
}
