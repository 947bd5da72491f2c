package assembly

const (
	placeholderTitle  = "This file could not be included"
	placeholderReason = "This file may be encrypted or corrupted."
	placeholderHint   = "Remove any password protection or re-save the file from its original application, then assemble again."
)

// FailureReason is the reason recorded for every source that degrades to a
// placeholder page.
const FailureReason = "Unable to read file. It may be encrypted or corrupted."

type placeholderNote struct {
	Name   string
	Reason string
	Hint   string
}

// Placeholder returns the single page substituted for a source that failed
// extraction. It is always A4 portrait.
func Placeholder(src *Source) PageHandle {
	return PageHandle{
		SourceID: src.ID,
		Index:    0,
		Kind:     PagePlaceholder,
		Size:     A4,
		note: placeholderNote{
			Name:   src.DisplayName,
			Reason: placeholderReason,
			Hint:   placeholderHint,
		},
	}
}

func (d *Document) drawPlaceholder(n placeholderNote) {
	pdf := d.pdf
	margin := mm(25)
	width := A4.Width - 2*margin

	pdf.SetDrawColor(200, 200, 200)
	pdf.SetLineWidth(1)
	pdf.Rect(mm(15), mm(15), A4.Width-mm(30), A4.Height-mm(30), "D")

	pdf.SetTextColor(60, 60, 60)
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetXY(margin, mm(90))
	pdf.MultiCell(width, 26, d.tr(placeholderTitle), "", "C", false)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetXY(margin, pdf.GetY()+18)
	pdf.MultiCell(width, 18, d.tr(n.Name), "", "C", false)

	pdf.SetTextColor(170, 40, 40)
	pdf.SetFont("Helvetica", "", 12)
	pdf.SetXY(margin, pdf.GetY()+14)
	pdf.MultiCell(width, 16, d.tr(n.Reason), "", "C", false)

	pdf.SetTextColor(100, 100, 100)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.SetXY(margin, pdf.GetY()+10)
	pdf.MultiCell(width, 14, d.tr(n.Hint), "", "C", false)
}
