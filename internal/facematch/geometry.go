package facematch

import (
	"image"
	"math"
)

// ScaleBBox multiplies every coordinate of an [x1, y1, x2, y2] box by factor.
// Used to map boxes found on the downscaled frame back to full resolution.
func ScaleBBox(bbox []float64, factor float64) []float64 {
	if len(bbox) != 4 {
		return bbox
	}
	return []float64{
		bbox[0] * factor,
		bbox[1] * factor,
		bbox[2] * factor,
		bbox[3] * factor,
	}
}

// BBoxToRect converts an [x1, y1, x2, y2] box to an integer rectangle clipped to bounds.
// Returns an empty rectangle for malformed input.
func BBoxToRect(bbox []float64, bounds image.Rectangle) image.Rectangle {
	if len(bbox) != 4 {
		return image.Rectangle{}
	}
	r := image.Rect(
		int(math.Round(bbox[0])),
		int(math.Round(bbox[1])),
		int(math.Round(bbox[2])),
		int(math.Round(bbox[3])),
	)
	return r.Intersect(bounds)
}

// Distance returns the Euclidean distance between two points.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}
