package recorder

import "strings"

// DefaultMaxBodySize caps captured response bodies.
const DefaultMaxBodySize = 512 * 1024

var textMimeMarkers = []string{"json", "text", "xml", "javascript", "html", "css", "form-urlencoded"}

// IsTextMime reports whether a response of this type is worth keeping as text.
func IsTextMime(mime string) bool {
	if mime == "" {
		return false
	}
	for _, m := range textMimeMarkers {
		if strings.Contains(mime, m) {
			return true
		}
	}
	return false
}

// ShouldCaptureBody applies the capture rule: text-like and strictly under
// the size cap.
func ShouldCaptureBody(mime string, encodedLength float64, maxSize int) bool {
	return IsTextMime(mime) && encodedLength < float64(maxSize)
}
