package assembly

import (
	"context"
	"fmt"

	"github.com/local/pdfassembler/internal/filetype"
	"github.com/local/pdfassembler/internal/imagerender"
)

// PageExtractor opens a source and returns its pages in order. Resources are
// registered with doc but nothing is appended; on error no handles are
// returned. Extraction never mutates the source.
type PageExtractor interface {
	Extract(ctx context.Context, doc *Document, src *Source) ([]PageHandle, error)
}

// Rasterizer renders every page of a PDF to an image.
type Rasterizer interface {
	RenderAll(data []byte) ([]imagerender.Page, error)
}

// Converter turns a spreadsheet into PDF bytes.
type Converter interface {
	ConvertToPDF(ctx context.Context, fileName string, data []byte) ([]byte, error)
}

// ExtractorOptions configures the default extractor set.
type ExtractorOptions struct {
	// Rasterizer renders PDFs the structural reader rejects. Nil disables
	// the raster fallback.
	Rasterizer Rasterizer

	// Converter handles spreadsheets. Nil makes every spreadsheet degrade
	// to a placeholder.
	Converter Converter
}

// Extractors dispatches extraction over the closed set of source kinds.
type Extractors struct {
	PDF         PageExtractor
	Image       PageExtractor
	Spreadsheet PageExtractor
}

// NewExtractors builds the default extractor set.
func NewExtractors(opts ExtractorOptions) Extractors {
	pdf := &PDFExtractor{Rasterizer: opts.Rasterizer}
	return Extractors{
		PDF:         pdf,
		Image:       &ImageExtractor{},
		Spreadsheet: &SpreadsheetExtractor{Converter: opts.Converter, PDF: pdf},
	}
}

// Extract implements PageExtractor. Every returned handle carries the source ID.
func (e Extractors) Extract(ctx context.Context, doc *Document, src *Source) ([]PageHandle, error) {
	var x PageExtractor
	switch src.Kind {
	case filetype.KindPDF:
		x = e.PDF
	case filetype.KindImage:
		x = e.Image
	case filetype.KindSpreadsheet:
		x = e.Spreadsheet
	}
	if x == nil {
		return nil, unreadable(src, fmt.Errorf("%w: %s", ErrUnsupportedKind, src.Kind))
	}

	pages, err := x.Extract(ctx, doc, src)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, unreadable(src, errNoPages)
	}
	for i := range pages {
		pages[i].SourceID = src.ID
	}
	return pages, nil
}
