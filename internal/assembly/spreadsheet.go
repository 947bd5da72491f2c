package assembly

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// SpreadsheetExtractor converts a workbook to PDF and imports the result.
type SpreadsheetExtractor struct {
	Converter Converter
	PDF       *PDFExtractor
}

func (x *SpreadsheetExtractor) Extract(ctx context.Context, doc *Document, src *Source) ([]PageHandle, error) {
	if x.Converter == nil {
		return nil, unreadable(src, ErrNoConverter)
	}

	pdf, err := x.Converter.ConvertToPDF(ctx, src.DisplayName, src.Bytes())
	if err != nil {
		return nil, unreadable(src, fmt.Errorf("convert: %w", err))
	}
	log.Debug().Str("source", src.DisplayName).Int("pdf_size", len(pdf)).Msg("spreadsheet converted")

	pdfx := x.PDF
	if pdfx == nil {
		pdfx = &PDFExtractor{}
	}
	converted := &Source{
		ID:          src.ID,
		DisplayName: src.DisplayName,
		ByteLength:  int64(len(pdf)),
		Kind:        src.Kind,
		MIMEType:    src.MIMEType,
		data:        pdf,
	}
	return pdfx.Extract(ctx, doc, converted)
}
