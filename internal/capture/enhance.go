package capture

import (
	"image"

	"gocv.io/x/gocv"
)

const (
	claheClipLimit = 3.0
	claheTileSize  = 8
)

// Enhancer equalizes frame contrast with CLAHE on the lightness channel of the
// Lab color space, which helps the detector under uneven office lighting.
type Enhancer struct {
	clahe gocv.CLAHE
}

// NewEnhancer creates an enhancer. Close it when done.
func NewEnhancer() *Enhancer {
	return &Enhancer{
		clahe: gocv.NewCLAHEWithParams(claheClipLimit, image.Pt(claheTileSize, claheTileSize)),
	}
}

// Enhance returns the contrast-equalized frame, or the input when conversion fails.
func (e *Enhancer) Enhance(img image.Image) image.Image {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return img
	}
	defer src.Close()

	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(src, &lab, gocv.ColorBGRToLab)

	channels := gocv.Split(lab)
	defer func() {
		for _, ch := range channels {
			ch.Close()
		}
	}()
	if len(channels) != 3 {
		return img
	}

	equalized := gocv.NewMat()
	e.clahe.Apply(channels[0], &equalized)
	channels[0].Close()
	channels[0] = equalized

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge(channels, &merged)

	out := gocv.NewMat()
	defer out.Close()
	gocv.CvtColor(merged, &out, gocv.ColorLabToBGR)

	result, err := out.ToImage()
	if err != nil {
		return img
	}
	return result
}

// Close releases the CLAHE instance.
func (e *Enhancer) Close() error {
	return e.clahe.Close()
}
