package assembly

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
)

func init() {
	// pdfcpu would otherwise create a config directory under the user's home
	api.DisableConfigDir()
}

// PDFExtractor imports the pages of a PDF source.
//
// Attempts, in order:
//  1. read with pdfcpu (empty user password), decrypt or normalize, import
//     the normalized pages
//  2. rasterize with the configured Rasterizer and place one image per page
//  3. import the raw bytes, ignoring any encryption dictionary
type PDFExtractor struct {
	Rasterizer Rasterizer
}

func pdfcpuConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	return conf
}

func (x *PDFExtractor) Extract(ctx context.Context, doc *Document, src *Source) ([]PageHandle, error) {
	data := src.Bytes()
	var errs []error

	normalized, count, err := normalizePDF(data)
	if err == nil {
		pages, err := doc.importPages(normalized, count)
		if err == nil {
			return pages, nil
		}
		errs = append(errs, fmt.Errorf("import normalized: %w", err))
	} else {
		errs = append(errs, fmt.Errorf("read: %w", err))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if x.Rasterizer != nil {
		pages, err := x.rasterize(doc, data)
		if err == nil {
			log.Warn().Str("source", src.DisplayName).Int("pages", len(pages)).Msg("pdf included as rendered images")
			return pages, nil
		}
		errs = append(errs, fmt.Errorf("rasterize: %w", err))
	}

	pages, err := doc.importPages(data, 0)
	if err == nil {
		log.Warn().Str("source", src.DisplayName).Int("pages", len(pages)).Msg("pdf imported ignoring encryption")
		return pages, nil
	}
	errs = append(errs, fmt.Errorf("import raw: %w", err))

	return nil, unreadable(src, errors.Join(errs...))
}

// normalizePDF rewrites a PDF into a plain, unencrypted form that the page
// importer understands. Encrypted documents are decrypted with the empty user
// password.
func normalizePDF(data []byte) ([]byte, int, error) {
	pctx, err := api.ReadContext(bytes.NewReader(data), pdfcpuConfig())
	if err != nil {
		return nil, 0, err
	}
	// the page count is only filled in by validation
	if err := pctx.EnsurePageCount(); err != nil {
		return nil, 0, err
	}
	count := pctx.PageCount
	if count <= 0 {
		return nil, 0, errNoPages
	}

	var buf bytes.Buffer
	if pctx.Encrypt != nil {
		err = api.Decrypt(bytes.NewReader(data), &buf, pdfcpuConfig())
	} else {
		err = api.Optimize(bytes.NewReader(data), &buf, pdfcpuConfig())
	}
	if err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), count, nil
}

func (x *PDFExtractor) rasterize(doc *Document, data []byte) ([]PageHandle, error) {
	rendered, err := x.Rasterizer.RenderAll(data)
	if err != nil {
		return nil, err
	}
	if len(rendered) == 0 {
		return nil, errNoPages
	}

	pages := make([]PageHandle, 0, len(rendered))
	for _, r := range rendered {
		size := Size{Width: r.WidthPt, Height: r.HeightPt}
		if size.Width <= 0 || size.Height <= 0 {
			size = A4
		}
		name, err := doc.registerImage(r.JPEG, "JPG")
		if err != nil {
			return nil, err
		}
		pages = append(pages, PageHandle{
			Index: r.Index,
			Kind:  PageImage,
			Size:  size,
			image: name,
			place: Rect{W: size.Width, H: size.Height},
		})
	}
	return pages, nil
}
