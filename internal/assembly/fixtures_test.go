package assembly

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/jung-kurt/gofpdf"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfassembler/internal/imagerender"
)

var corruptBytes = []byte("this is definitely not a pdf")

// pdfBytes builds a valid PDF with n pages.
func pdfBytes(t *testing.T, label string, n int) []byte {
	t.Helper()
	doc := gofpdf.New("P", "mm", "A4", "")
	for i := 1; i <= n; i++ {
		doc.AddPage()
		doc.SetFont("Helvetica", "", 16)
		doc.Cell(40, 10, fmt.Sprintf("%s page %d", label, i))
	}
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

// ownerLockedPDF builds an AES-256 encrypted PDF with n pages that opens
// without a user password but carries an owner password.
func ownerLockedPDF(t *testing.T, label string, n int) []byte {
	t.Helper()
	conf := model.NewAESConfiguration("", "owner", 256)
	var buf bytes.Buffer
	require.NoError(t, api.Encrypt(bytes.NewReader(pdfBytes(t, label, n)), &buf, conf))
	return buf.Bytes()
}

// pngBytes builds an opaque w×h PNG.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: 120, B: uint8(y * 255 / h), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

func newSource(t *testing.T, name, mime string, data []byte) *Source {
	t.Helper()
	src, err := NewSource(Intake{Data: data, MIMEType: mime, FileName: name, Size: int64(len(data))})
	require.NoError(t, err)
	return src
}

func validPDF(t *testing.T, name string, pages int) *Source {
	return newSource(t, name, "application/pdf", pdfBytes(t, name, pages))
}

func corruptPDF(t *testing.T, name string) *Source {
	return newSource(t, name, "application/pdf", corruptBytes)
}

func validImage(t *testing.T, name string) *Source {
	return newSource(t, name, "image/png", pngBytes(t, 40, 30))
}

// outputPageCount counts pages of serialized output with pdfcpu.
func outputPageCount(t *testing.T, out []byte) int {
	t.Helper()
	n, err := api.PageCount(bytes.NewReader(out), pdfcpuConfig())
	require.NoError(t, err)
	return n
}

// pageTexts returns the drawn text of every page with whitespace removed.
func pageTexts(t *testing.T, out []byte) []string {
	t.Helper()
	r, err := pdf.NewReader(bytes.NewReader(out), int64(len(out)))
	require.NoError(t, err)

	texts := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		s, err := p.GetPlainText(nil)
		require.NoError(t, err)
		texts = append(texts, squash(s))
	}
	return texts
}

func squash(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// fakeRasterizer renders every input as pages JPEG pages.
type fakeRasterizer struct {
	pages int
	err   error
	calls int
}

func (f *fakeRasterizer) RenderAll(data []byte) ([]imagerender.Page, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]imagerender.Page, 0, f.pages)
	for i := 0; i < f.pages; i++ {
		out = append(out, imagerender.Page{
			Index:       i,
			JPEG:        jpegBytesNoT(16, 16),
			PixelWidth:  16,
			PixelHeight: 16,
			WidthPt:     612,
			HeightPt:    792,
		})
	}
	return out, nil
}

func jpegBytesNoT(w, h int) []byte {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil)
	return buf.Bytes()
}

// fakeConverter returns a fixed PDF or error.
type fakeConverter struct {
	pdf []byte
	err error
}

func (f *fakeConverter) ConvertToPDF(_ context.Context, _ string, _ []byte) ([]byte, error) {
	return f.pdf, f.err
}

// gateExtractor blocks the first extraction until released.
type gateExtractor struct {
	next    PageExtractor
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate(next PageExtractor) *gateExtractor {
	return &gateExtractor{next: next, started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateExtractor) Extract(ctx context.Context, doc *Document, src *Source) ([]PageHandle, error) {
	g.once.Do(func() {
		close(g.started)
		<-g.release
	})
	return g.next.Extract(ctx, doc, src)
}

// poisonExtractor puts the output writer into an error state.
type poisonExtractor struct{}

func (poisonExtractor) Extract(_ context.Context, doc *Document, _ *Source) ([]PageHandle, error) {
	doc.pdf.SetError(errors.New("writer exploded"))
	return []PageHandle{{Kind: PagePlaceholder, Size: A4}}, nil
}
