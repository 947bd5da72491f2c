package assembly

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
	"github.com/jung-kurt/gofpdf/contrib/gofpdi"
)

// PageKind tells how a page handle is drawn into the output document.
type PageKind int

const (
	PageImported PageKind = iota
	PageImage
	PagePlaceholder
)

func (k PageKind) String() string {
	switch k {
	case PageImported:
		return "imported"
	case PageImage:
		return "image"
	case PagePlaceholder:
		return "placeholder"
	}
	return "unknown"
}

// PageHandle is one page ready for inclusion in the output document: an
// imported PDF page, a synthesized image page or a placeholder.
type PageHandle struct {
	SourceID string
	Index    int
	Kind     PageKind
	Size     Size

	tpl   int
	image string
	place Rect
	note  placeholderNote
}

var errNoPages = errors.New("document has no pages")

// Document is the accumulating output document of one run. Page resources
// (templates, images) are registered during extraction; pages are only laid
// out when appended, so a failed extraction leaves no page behind.
type Document struct {
	pdf *gofpdf.Fpdf
	imp *gofpdi.Importer
	tr  func(string) string

	// gofpdi keys its reader cache by the address of the stream variable;
	// keeping every stream reachable keeps those keys unique for the run.
	streams []*io.ReadSeeker

	pages    []PageHandle
	images   int
	consumed bool
}

// NewDocument creates an empty output document measured in points.
func NewDocument() *Document {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: A4.Width, Ht: A4.Height},
	})
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	pdf.SetCreator("pdfassembler", true)

	return &Document{
		pdf: pdf,
		imp: gofpdi.NewImporter(),
		tr:  pdf.UnicodeTranslatorFromDescriptor(""),
	}
}

// PageCount returns the number of appended pages.
func (d *Document) PageCount() int { return len(d.pages) }

// Append lays out pages at the end of the document in the given order.
func (d *Document) Append(pages ...PageHandle) error {
	if d.consumed {
		return ErrDocumentConsumed
	}
	for _, p := range pages {
		d.pdf.AddPageFormat("P", gofpdf.SizeType{Wd: p.Size.Width, Ht: p.Size.Height})
		switch p.Kind {
		case PageImported:
			d.imp.UseImportedTemplate(d.pdf, p.tpl, 0, 0, p.Size.Width, p.Size.Height)
		case PageImage:
			d.pdf.ImageOptions(p.image, p.place.X, p.place.Y, p.place.W, p.place.H, false,
				gofpdf.ImageOptions{ReadDpi: false}, 0, "")
		case PagePlaceholder:
			d.drawPlaceholder(p.note)
		}
		if err := d.pdf.Error(); err != nil {
			return fmt.Errorf("append %s page: %w", p.Kind, err)
		}
		d.pages = append(d.pages, p)
	}
	return nil
}

// importPages imports every page of a PDF as a template. count may be zero,
// in which case the page table reported by the importer is used. Either all
// pages are imported or none are returned.
func (d *Document) importPages(data []byte, count int) (pages []PageHandle, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("import pages: %v", r)
		}
	}()

	var rs io.ReadSeeker = bytes.NewReader(data)
	d.streams = append(d.streams, &rs)

	first := d.imp.ImportPageFromStream(d.pdf, &rs, 1, "/MediaBox")
	sizes := d.imp.GetPageSizes()
	if count <= 0 {
		count = len(sizes)
	}
	if count <= 0 {
		return nil, errNoPages
	}

	pages = make([]PageHandle, 0, count)
	for n := 1; n <= count; n++ {
		tpl := first
		if n > 1 {
			tpl = d.imp.ImportPageFromStream(d.pdf, &rs, n, "/MediaBox")
		}
		pages = append(pages, PageHandle{
			Index: n - 1,
			Kind:  PageImported,
			Size:  mediaBox(sizes, n),
			tpl:   tpl,
		})
	}
	return pages, nil
}

// mediaBox returns the media box of page n in points, A4 when unknown.
func mediaBox(sizes map[int]map[string]map[string]float64, n int) Size {
	if boxes, ok := sizes[n]; ok {
		if mb, ok := boxes["/MediaBox"]; ok && mb["w"] > 0 && mb["h"] > 0 {
			return Size{Width: mb["w"], Height: mb["h"]}
		}
	}
	return A4
}

// registerImage registers an encoded PNG or JPEG and returns its name.
// A registration failure is reported and cleared so later pages still render.
func (d *Document) registerImage(data []byte, imageType string) (string, error) {
	d.images++
	name := fmt.Sprintf("img%d", d.images)
	d.pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: imageType}, bytes.NewReader(data))
	if err := d.pdf.Error(); err != nil {
		d.pdf.ClearError()
		return "", fmt.Errorf("register image: %w", err)
	}
	return name, nil
}
