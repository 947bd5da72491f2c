package assembly

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageExtractor synthesizes one A4 page per image source.
type ImageExtractor struct{}

func (x *ImageExtractor) Extract(_ context.Context, doc *Document, src *Source) ([]PageHandle, error) {
	img, _, err := image.Decode(bytes.NewReader(src.Bytes()))
	if err != nil {
		return nil, unreadable(src, fmt.Errorf("decode: %w", err))
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, unreadable(src, fmt.Errorf("invalid dimensions %dx%d", b.Dx(), b.Dy()))
	}

	encoded, err := flattenPNG(img)
	if err != nil {
		return nil, unreadable(src, err)
	}
	name, err := doc.registerImage(encoded, "PNG")
	if err != nil {
		return nil, unreadable(src, err)
	}

	return []PageHandle{{
		Index: 0,
		Kind:  PageImage,
		Size:  A4,
		image: name,
		place: FitImage(b.Dx(), b.Dy()),
	}}, nil
}

// flattenPNG composites img onto white and encodes it as an opaque 8-bit PNG,
// the one PNG form every PDF writer embeds without a soft mask.
func flattenPNG(img image.Image) ([]byte, error) {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
