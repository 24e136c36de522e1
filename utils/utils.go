package utils

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrDecode = errors.New("could not decode image")

type DecodedImage struct {
	Image  image.Image
	Format string
	Width  int
	Height int
}

// DecodeImage decodes any registered raster format (JPEG, PNG, GIF, WebP, BMP, TIFF).
// JPEG EXIF orientation is applied, so sizes and boxes refer to the upright image.
func DecodeImage(data []byte) (result DecodedImage, err error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	size := img.Bounds().Size()
	if size.X <= 0 || size.Y <= 0 {
		return result, fmt.Errorf("%w: empty image", ErrDecode)
	}
	result.Image = img
	result.Format = format
	result.Width = size.X
	result.Height = size.Y
	return
}

// IsImageContentType reports whether a Content-Type header names an image media type
func IsImageContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	return strings.HasPrefix(strings.ToLower(mediaType), "image/")
}
