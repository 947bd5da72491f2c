package imagerender

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// ColorMode defines the color mode for rendering
type ColorMode string

const (
	ColorRGB  ColorMode = "rgb"
	ColorGray ColorMode = "gray"
)

// Options controls rasterization of a PDF.
type Options struct {
	DPI     float64
	Quality int
	Color   ColorMode
}

// DefaultOptions renders at 150 DPI, JPEG quality 85, RGB.
func DefaultOptions() Options {
	return Options{DPI: 150, Quality: 85, Color: ColorRGB}
}

// Page is one rendered page. WidthPt and HeightPt are the page's original
// size in PDF points; PixelWidth and PixelHeight describe the JPEG.
type Page struct {
	Index       int
	JPEG        []byte
	PixelWidth  int
	PixelHeight int
	WidthPt     float64
	HeightPt    float64
}

// Renderer rasterizes PDF bytes with MuPDF.
type Renderer struct {
	opts Options
}

// New creates a renderer. Zero option fields fall back to DefaultOptions.
func New(opts Options) *Renderer {
	def := DefaultOptions()
	if opts.DPI <= 0 {
		opts.DPI = def.DPI
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = def.Quality
	}
	if opts.Color == "" {
		opts.Color = def.Color
	}
	return &Renderer{opts: opts}
}

// PageCount opens the document in memory and reports its page count.
func (r *Renderer) PageCount(data []byte) (int, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

// RenderAll renders every page of an in-memory PDF to JPEG. It fails if the
// document cannot be opened, has no pages, or any page fails to render.
func (r *Renderer) RenderAll(data []byte) ([]Page, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if n <= 0 {
		return nil, fmt.Errorf("document has no pages")
	}

	pages := make([]Page, 0, n)
	for i := 0; i < n; i++ {
		p, err := r.renderPage(doc, i)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, nil
}

func (r *Renderer) renderPage(doc *fitz.Document, i int) (Page, error) {
	bound, err := doc.Bound(i)
	if err != nil {
		return Page{}, fmt.Errorf("failed to read bounds of page %d: %w", i+1, err)
	}

	// go-fitz uses 0-based indexing
	img, err := doc.ImageDPI(i, r.opts.DPI)
	if err != nil {
		return Page{}, fmt.Errorf("failed to render page %d: %w", i+1, err)
	}

	bounds := img.Bounds()
	var finalImg image.Image = img
	if r.opts.Color == ColorGray {
		grayImg := image.NewGray(bounds)
		draw.Draw(grayImg, bounds, img, image.Point{}, draw.Src)
		finalImg = grayImg
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, finalImg, &jpeg.Options{Quality: r.opts.Quality}); err != nil {
		return Page{}, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	log.Debug().
		Int("page", i+1).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Str("color", string(r.opts.Color)).
		Int("jpeg_size", buf.Len()).
		Msg("rasterized page")

	return Page{
		Index:       i,
		JPEG:        buf.Bytes(),
		PixelWidth:  bounds.Dx(),
		PixelHeight: bounds.Dy(),
		WidthPt:     float64(bound.Dx()),
		HeightPt:    float64(bound.Dy()),
	}, nil
}
