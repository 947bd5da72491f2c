package imagerender

import (
	"bytes"
	"image/jpeg"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoPagePDF(t *testing.T) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetFont("Helvetica", "", 24)
	pdf.AddPage()
	pdf.Text(72, 72, "portrait")
	pdf.AddPageFormat("L", gofpdf.SizeType{Wd: 595.28, Ht: 841.89})
	pdf.Text(72, 72, "landscape")
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

// TestNew_Defaults tests option normalization
func TestNew_Defaults(t *testing.T) {
	r := New(Options{Quality: 500})
	assert.Equal(t, DefaultOptions(), r.opts)

	r = New(Options{DPI: 72, Quality: 50, Color: ColorGray})
	assert.Equal(t, Options{DPI: 72, Quality: 50, Color: ColorGray}, r.opts)
}

// TestRenderAll tests rasterization of every page
func TestRenderAll(t *testing.T) {
	data := twoPagePDF(t)
	r := New(Options{DPI: 72})

	n, err := r.PageCount(data)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pages, err := r.RenderAll(data)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.InDelta(t, 595, pages[0].WidthPt, 1)
	assert.InDelta(t, 842, pages[0].HeightPt, 1)
	assert.Greater(t, pages[1].WidthPt, pages[1].HeightPt)
	assert.Equal(t, 1, pages[1].Index)

	img, err := jpeg.Decode(bytes.NewReader(pages[0].JPEG))
	require.NoError(t, err)
	assert.Equal(t, pages[0].PixelWidth, img.Bounds().Dx())
	assert.InDelta(t, 595, pages[0].PixelWidth, 2)
}

// TestRenderAll_Invalid tests rejection of data MuPDF cannot open
func TestRenderAll_Invalid(t *testing.T) {
	r := New(DefaultOptions())
	_, err := r.RenderAll(bytes.Repeat([]byte{0x00, 0xff, 0x13, 0x37}, 64))
	assert.Error(t, err)
}
