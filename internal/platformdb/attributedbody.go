package platformdb

import "strings"

// marker bytes preceding a length-prefixed NSString payload inside a
// serialized NSAttributedString archive.
const (
	markerByte1 = 0x01
	markerByte2 = 0x2B
)

// extractAttributedBodyText implements the attributedBody blob-text
// heuristic directly from its own description: locate the literal
// "NSString" marker, then scan forward for a 0x01 0x2B length-prefix
// sequence, read the length (simple length if < 0x80, else treated as a
// low-7-bits length byte), and take that many bytes as UTF-8 text. If that
// path fails to yield non-empty text, fall back to scanning the run of
// printable ASCII bytes following "NSString". Leading control characters
// and a single leading digit/length-indicator byte preceding letters are
// stripped from whatever text is found. Returns "" if no usable text is
// found; callers must treat that as a silent drop, never an error.
func extractAttributedBodyText(blob []byte) string {
	idx := indexOf(blob, []byte("NSString"))
	if idx < 0 {
		return ""
	}

	if text := scanMarkerLengthPrefixed(blob, idx+len("NSString")); text != "" {
		return cleanExtractedText(text)
	}

	if text := scanPrintableRun(blob, idx+len("NSString")); text != "" {
		return cleanExtractedText(text)
	}

	return ""
}

// scanMarkerLengthPrefixed scans forward from start for the 0x01 0x2B
// marker followed by a length byte, then reads that many bytes as text.
func scanMarkerLengthPrefixed(blob []byte, start int) string {
	for i := start; i < len(blob)-2; i++ {
		if blob[i] != markerByte1 || blob[i+1] != markerByte2 {
			continue
		}
		lenPos := i + 2
		if lenPos >= len(blob) {
			return ""
		}
		length := int(blob[lenPos])
		if length >= 0x80 {
			length &= 0x7F
		}
		textStart := lenPos + 1
		textEnd := textStart + length
		if textStart >= len(blob) {
			return ""
		}
		if textEnd > len(blob) {
			textEnd = len(blob)
		}
		return string(blob[textStart:textEnd])
	}
	return ""
}

// scanPrintableRun falls back to the run of ASCII-printable bytes
// immediately following the NSString marker.
func scanPrintableRun(blob []byte, start int) string {
	i := start
	for i < len(blob) && !isPrintableASCII(blob[i]) {
		i++
	}
	j := i
	for j < len(blob) && isPrintableASCII(blob[j]) {
		j++
	}
	if j <= i {
		return ""
	}
	return string(blob[i:j])
}

func isPrintableASCII(b byte) bool {
	return b >= 0x20 && b < 0x7F
}

// cleanExtractedText strips leading control characters (U+0000-U+001F,
// U+007F-U+009F) and, if a single leading digit/length-indicator byte is
// immediately followed by a letter, strips that byte too.
func cleanExtractedText(s string) string {
	runes := []rune(s)
	start := 0
	for start < len(runes) && isControlRune(runes[start]) {
		start++
	}
	runes = runes[start:]

	if len(runes) >= 2 && isLengthIndicator(runes[0]) && isLetter(runes[1]) {
		runes = runes[1:]
	}

	return strings.TrimSpace(string(runes))
}

func isControlRune(r rune) bool {
	return (r >= 0x0000 && r <= 0x001F) || (r >= 0x007F && r <= 0x009F)
}

func isLengthIndicator(r rune) bool {
	return r >= '0' && r <= '9'
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func indexOf(haystack, needle []byte) int {
	n := len(needle)
	if n == 0 || n > len(haystack) {
		return -1
	}
	for i := 0; i <= len(haystack)-n; i++ {
		if string(haystack[i:i+n]) == string(needle) {
			return i
		}
	}
	return -1
}
