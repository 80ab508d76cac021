package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		b    []byte
		want Format
	}{
		{"png", []byte("\x89PNG\r\n\x1a\nrest"), FormatPNG},
		{"jpeg", []byte("\xff\xd8\xff\xe0rest"), FormatJPEG},
		{"gif87a", []byte("GIF87arest"), FormatGIF},
		{"gif89a", []byte("GIF89arest"), FormatGIF},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), FormatWebP},
		{"bmp", []byte("BMrest"), FormatBMP},
		{"tiff little endian", []byte("II*\x00rest"), FormatTIFF},
		{"tiff big endian", []byte("MM\x00*rest"), FormatTIFF},
		{"riff but not webp", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), FormatUnknown},
		{"truncated riff", []byte("RIFF"), FormatUnknown},
		{"html error page", []byte("<html><body>403</body></html>"), FormatUnknown},
		{"empty", nil, FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.b))
		})
	}
}

func TestFormatMIME(t *testing.T) {
	assert.Equal(t, "image/png", FormatPNG.MIME())
	assert.Equal(t, "image/jpeg", FormatJPEG.MIME())
	assert.Equal(t, "application/octet-stream", FormatUnknown.MIME())
}
