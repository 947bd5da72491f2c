package assembly

const (
	// PointsPerMM converts millimetres to PDF points.
	PointsPerMM = 72.0 / 25.4

	A4WidthMM     = 210.0
	A4HeightMM    = 297.0
	ImageMarginMM = 10.0
)

// Size is a page size in PDF points.
type Size struct {
	Width  float64
	Height float64
}

// Rect is a placement rectangle in PDF points, origin at the top left.
type Rect struct {
	X, Y, W, H float64
}

// A4 is the target page for synthesized pages.
var A4 = Size{Width: A4WidthMM * PointsPerMM, Height: A4HeightMM * PointsPerMM}

func mm(v float64) float64 { return v * PointsPerMM }

// FitImage places an image of w×h pixels on an A4 portrait page inside
// 10 mm margins. The image is scaled to the available width first and, if
// that is too tall, to the available height; aspect ratio is preserved and
// the result is centered on both axes. The returned rectangle is in points.
func FitImage(w, h int) Rect {
	if w <= 0 || h <= 0 {
		return Rect{}
	}
	maxW := A4WidthMM - 2*ImageMarginMM
	maxH := A4HeightMM - 2*ImageMarginMM

	imgW := maxW
	imgH := float64(h) * maxW / float64(w)
	if imgH > maxH {
		imgH = maxH
		imgW = float64(w) * maxH / float64(h)
	}

	x := (A4WidthMM - imgW) / 2
	y := (A4HeightMM - imgH) / 2
	return Rect{X: mm(x), Y: mm(y), W: mm(imgW), H: mm(imgH)}
}
