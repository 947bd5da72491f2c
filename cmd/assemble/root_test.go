package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func pdfBytes(t *testing.T, pages int) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 14)
	for i := 0; i < pages; i++ {
		pdf.AddPage()
		pdf.Cell(40, 10, fmt.Sprintf("page %d", i+1))
	}
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 30, 20))
	for x := 0; x < 30; x++ {
		img.Set(x, 10, color.NRGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// TestRootCmd_Flags tests flag definitions
func TestRootCmd_Flags(t *testing.T) {
	t.Setenv("OUTPUT_NAME", "")
	cmd := newRootCmd()
	assert.Equal(t, "assemble [flags] file...", cmd.Use)

	flag := cmd.Flags().Lookup("output")
	require.NotNil(t, flag)
	assert.Equal(t, "o", flag.Shorthand)
	assert.Equal(t, "merged-document.pdf", flag.DefValue)

	for _, name := range []string{"optimize", "raster-dpi", "no-raster", "libreoffice", "no-convert", "quiet", "json"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}

// TestRootCmd_RequiresFiles tests argument validation
func TestRootCmd_RequiresFiles(t *testing.T) {
	_, err := execute(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg(s)")
}

// TestRootCmd_Assemble tests a run with one unreadable file
func TestRootCmd_Assemble(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.pdf", pdfBytes(t, 2))
	b := writeFile(t, dir, "broken.pdf", []byte("%PDF-1.7\nnot a real document"))
	c := writeFile(t, dir, "c.png", pngBytes(t))
	out := filepath.Join(dir, "nested", "bundle.pdf")

	stdout, err := execute(t, "--no-raster", "--no-convert", "--json", "-o", out, a, b, c)
	require.NoError(t, err)

	var rep report
	require.NoError(t, json.Unmarshal([]byte(stdout), &rep))
	assert.Equal(t, out, rep.Output)
	assert.Equal(t, 4, rep.Pages)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "broken.pdf", rep.Failures[0].DisplayName)
	require.Len(t, rep.Segments, 3)
	assert.Equal(t, 3, rep.Segments[1].FirstPage)
	assert.True(t, rep.Segments[1].Placeholder)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	n, err := api.PageCount(bytes.NewReader(data), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

// TestRootCmd_TextReport tests the human readable summary
func TestRootCmd_TextReport(t *testing.T) {
	dir := t.TempDir()
	b := writeFile(t, dir, "broken.pdf", []byte("%PDF-1.7\nnot a real document"))
	out := filepath.Join(dir, "out.pdf")

	stdout, err := execute(t, "--no-raster", "--no-convert", "-o", out, b)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Wrote "+out+" (1 pages")
	assert.Contains(t, stdout, "broken.pdf: Unable to read file. It may be encrypted or corrupted.")
}

// TestRootCmd_Rejects tests intake errors
func TestRootCmd_Rejects(t *testing.T) {
	dir := t.TempDir()
	txt := writeFile(t, dir, "notes.txt", []byte("just text"))
	out := filepath.Join(dir, "out.pdf")

	_, err := execute(t, "-q", "-o", out, txt)
	require.Error(t, err)
	assert.NoFileExists(t, out)

	_, err = execute(t, "-q", "-o", out, filepath.Join(dir, "missing.pdf"))
	require.Error(t, err)
}
