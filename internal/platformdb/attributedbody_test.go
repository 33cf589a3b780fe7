package platformdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func buildAttributedBody(text string) []byte {
	blob := []byte("bplist00streamtypedNSAttributedStringNSStringclassname")
	blob = append(blob, 'N', 'S', 'S', 't', 'r', 'i', 'n', 'g')
	blob = append(blob, 0x84, 0x84, markerByte1, markerByte2, byte(len(text)))
	blob = append(blob, []byte(text)...)
	blob = append(blob, 0x86, 0x86)
	return blob
}

func TestExtractAttributedBodyText_MarkerPath(t *testing.T) {
	blob := buildAttributedBody("hello world")
	assert.Equal(t, "hello world", extractAttributedBodyText(blob))
}

func TestExtractAttributedBodyText_NoNSStringReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", extractAttributedBodyText([]byte("no marker here at all")))
}

func TestExtractAttributedBodyText_FallbackPrintableRun(t *testing.T) {
	blob := []byte("NSString")
	blob = append(blob, 0x00, 0x00)
	blob = append(blob, []byte("plain fallback text")...)
	blob = append(blob, 0x00)
	assert.Equal(t, "plain fallback text", extractAttributedBodyText(blob))
}

func TestCleanExtractedText_StripsLeadingControlAndLengthByte(t *testing.T) {
	assert.Equal(t, "Hello", cleanExtractedText("5Hello"))
	assert.Equal(t, "hello", cleanExtractedText("\x01\x02hello"))
	assert.Equal(t, "+Hello", cleanExtractedText("+Hello"))
}

func TestIsImageAttachment(t *testing.T) {
	assert.True(t, isImageAttachment("image/heic", "IMG_0001.heic"))
	assert.True(t, isImageAttachment("", "IMG_0001.PNG"))
	assert.False(t, isImageAttachment("video/mp4", "clip.mp4"))
	assert.False(t, isImageAttachment("application/pdf", "doc.pdf"))
}
