package ingest

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func testImage(t *testing.T, w, h int) *image.RGBA {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 40), G: uint8(y * 40), B: 128, A: 255})
		}
	}
	return img
}

func encodeBMP(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, img))
	return buf.Bytes()
}

func encodeTIFF(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestTranscode_BMPToPNG(t *testing.T) {
	src := encodeBMP(t, testImage(t, 5, 3))
	require.Equal(t, FormatBMP, DetectFormat(src))

	out, format, err := Transcode(src, FormatBMP)

	require.NoError(t, err)
	assert.Equal(t, FormatPNG, format)
	assert.Equal(t, FormatPNG, DetectFormat(out), "output magic bytes must match the target format")

	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 5, 3), decoded.Bounds())
}

func TestTranscode_TIFFToPNG(t *testing.T) {
	src := encodeTIFF(t, testImage(t, 4, 4))
	require.Equal(t, FormatTIFF, DetectFormat(src))

	out, format, err := Transcode(src, FormatTIFF)

	require.NoError(t, err)
	assert.Equal(t, FormatPNG, format)
	assert.Equal(t, FormatPNG, DetectFormat(out))
}

func TestTranscode_CorruptBytes(t *testing.T) {
	// a valid webp magic prefix over garbage must not be forwarded
	garbage := []byte("RIFF\x10\x00\x00\x00WEBPVP8 garbage-not-a-frame")
	require.Equal(t, FormatWebP, DetectFormat(garbage))

	_, _, err := Transcode(garbage, FormatWebP)

	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestTranscode_UndecodableFormat(t *testing.T) {
	_, _, err := Transcode([]byte("whatever"), FormatUnknown)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, _, err = Transcode([]byte("\x89PNG\r\n\x1a\n"), FormatPNG)
	assert.ErrorIs(t, err, ErrUnsupportedFormat, "renderable formats are never transcoded")
}
