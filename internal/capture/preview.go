package capture

import (
	"image"

	"gocv.io/x/gocv"
)

// Preview shows frames in a local window. Must be used from a single goroutine.
type Preview struct {
	window *gocv.Window
}

// NewPreview opens a window with the given title.
func NewPreview(title string) *Preview {
	return &Preview{window: gocv.NewWindow(title)}
}

// Show displays img and reports whether the operator pressed 'q'.
func (p *Preview) Show(img image.Image) bool {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return false
	}
	defer mat.Close()

	p.window.IMShow(mat)
	key := p.window.WaitKey(1)
	return key == 'q' || key == 'Q'
}

// Close destroys the window.
func (p *Preview) Close() error {
	return p.window.Close()
}
