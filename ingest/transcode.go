package ingest

import (
	"bytes"
	"errors"
	"image"
	"image/png"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

var ErrUnsupportedFormat = errors.New("image format is not supported")

// renderable reports whether the downstream consumer can use the format
// directly, without transcoding.
func renderable(f Format) bool {
	switch f {
	case FormatPNG, FormatJPEG, FormatGIF:
		return true
	}
	return false
}

// Transcode converts bytes in an unsupported raster format to PNG. It fails
// with ErrUnsupportedFormat for formats it has no decoder for, or when the
// bytes do not actually decode as the detected format.
func Transcode(b []byte, f Format) ([]byte, Format, error) {
	var (
		img image.Image
		err error
	)
	switch f {
	case FormatWebP:
		img, err = webp.Decode(bytes.NewReader(b))
	case FormatBMP:
		img, err = bmp.Decode(bytes.NewReader(b))
	case FormatTIFF:
		img, err = tiff.Decode(bytes.NewReader(b))
	default:
		return nil, FormatUnknown, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, FormatUnknown, errors.Join(ErrUnsupportedFormat, err)
	}

	var buf bytes.Buffer
	if err = png.Encode(&buf, img); err != nil {
		return nil, FormatUnknown, errors.Join(ErrUnsupportedFormat, err)
	}
	return buf.Bytes(), FormatPNG, nil
}
