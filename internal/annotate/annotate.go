// Package annotate draws recognition results and the system info overlay onto frames.
package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

var (
	Green  = color.RGBA{0, 255, 0, 255}
	Red    = color.RGBA{255, 0, 0, 255}
	Orange = color.RGBA{255, 165, 0, 255}
	White  = color.RGBA{255, 255, 255, 255}
)

const (
	boxLineWidth = 2
	labelHeight  = 45
	lineHeight   = 14
	textPadding  = 6
	infoTop      = 20
	infoSpacing  = 20
)

// FaceLabel describes one face to draw.
type FaceLabel struct {
	BBox       []float64 // full-resolution pixels
	Match      facematch.Match
	CheckedIn  bool
	CheckedOut bool
	Blinks     int
}

// Overlay is the system info drawn in the top-left corner.
type Overlay struct {
	Company         string
	EmployeesLoaded int
	CameraType      string
	CameraSource    string
	BlinkThreshold  int
	Time            time.Time
}

// Lines returns the overlay text, one entry per line.
func (o Overlay) Lines() []string {
	return []string{
		"Company: " + o.Company,
		fmt.Sprintf("Employees Loaded: %d", o.EmployeesLoaded),
		fmt.Sprintf("Camera: %s (%s)", o.CameraType, o.CameraSource),
		fmt.Sprintf("Blink Threshold: %d", o.BlinkThreshold),
		"Time: " + o.Time.Format(time.TimeOnly),
	}
}

// Status returns the status line of a face and its color.
func Status(f FaceLabel, blinkThreshold int) (string, color.RGBA) {
	switch {
	case !f.Match.Known():
		return constants.UnknownPersonLabel, White
	case f.CheckedOut:
		return "Checked Out", Orange
	case f.CheckedIn:
		return "Checked In", Green
	default:
		return fmt.Sprintf("Blinks: %d/%d", f.Blinks, blinkThreshold), Orange
	}
}

// Draw returns a copy of src with every face and the overlay drawn on it.
func Draw(src image.Image, faces []FaceLabel, overlay Overlay) *image.RGBA {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)

	for _, f := range faces {
		drawFace(dst, f, overlay.BlinkThreshold)
	}
	drawOverlay(dst, overlay)
	return dst
}

func drawFace(dst *image.RGBA, f FaceLabel, blinkThreshold int) {
	r := facematch.BBoxToRect(f.BBox, dst.Bounds())
	if r.Empty() {
		return
	}

	boxColor := Red
	if f.Match.Known() {
		boxColor = Green
	}
	drawRect(dst, r, boxLineWidth, boxColor)

	label := image.Rect(r.Min.X, r.Max.Y-labelHeight, r.Max.X, r.Max.Y).Intersect(dst.Bounds())
	draw.Draw(dst, label, image.NewUniform(boxColor), image.Point{}, draw.Src)

	x := r.Min.X + textPadding
	status, statusColor := Status(f, blinkThreshold)
	drawText(dst, x, r.Max.Y-2*lineHeight-textPadding, f.Match.Identity, White)
	if f.Match.Known() {
		drawText(dst, x, r.Max.Y-lineHeight-textPadding, fmt.Sprintf("Conf: %.2f", f.Match.Confidence), White)
	}
	drawText(dst, x, r.Max.Y-textPadding, status, statusColor)
}

func drawOverlay(dst *image.RGBA, o Overlay) {
	x := dst.Bounds().Min.X + 10
	y := dst.Bounds().Min.Y + infoTop
	for i, line := range o.Lines() {
		drawText(dst, x, y+i*infoSpacing, line, White)
	}
}

// drawRect draws an unfilled rectangle of the given line width inside r.
func drawRect(dst *image.RGBA, r image.Rectangle, width int, c color.RGBA) {
	for w := range width {
		drawHLine(dst, r.Min.X, r.Max.X-1, r.Min.Y+w, c)
		drawHLine(dst, r.Min.X, r.Max.X-1, r.Max.Y-1-w, c)
		drawVLine(dst, r.Min.Y, r.Max.Y-1, r.Min.X+w, c)
		drawVLine(dst, r.Min.Y, r.Max.Y-1, r.Max.X-1-w, c)
	}
}

func drawHLine(dst *image.RGBA, x1, x2, y int, c color.RGBA) {
	b := dst.Bounds()
	if y < b.Min.Y || y >= b.Max.Y {
		return
	}
	for x := max(x1, b.Min.X); x <= x2 && x < b.Max.X; x++ {
		dst.SetRGBA(x, y, c)
	}
}

func drawVLine(dst *image.RGBA, y1, y2, x int, c color.RGBA) {
	b := dst.Bounds()
	if x < b.Min.X || x >= b.Max.X {
		return
	}
	for y := max(y1, b.Min.Y); y <= y2 && y < b.Max.Y; y++ {
		dst.SetRGBA(x, y, c)
	}
}

// drawText draws s with its baseline at y.
func drawText(dst *image.RGBA, x, y int, s string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// EncodeJPEG encodes img for publishing.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return buf.Bytes(), nil
}
