// Package facematch matches detected faces against the in-memory identity gallery.
package facematch

import "github.com/kozaktomas/face-attendance/internal/constants"

// Point is a 2D landmark coordinate in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Face is one face reported by the detector/encoder for a frame.
type Face struct {
	BBox      []float64 // [x1, y1, x2, y2] in pixels of the analysed image
	Embedding []float32
	Landmarks []Point // 68-point layout when available
	DetScore  float64
}

// GalleryEntry pairs a known identity with one reference embedding.
type GalleryEntry struct {
	Identity   string
	EmployeeID string
	Embedding  []float32
}

// Match is the outcome of a gallery lookup.
type Match struct {
	Identity   string
	EmployeeID string
	Distance   float64
	Confidence float64 // 1 - Distance, zero for unknown faces
}

// Known reports whether the face matched a gallery identity within tolerance.
func (m Match) Known() bool {
	return m.Identity != constants.UnknownIdentity
}

// Actionable reports whether the match is confident enough to drive liveness
// and attendance.
func (m Match) Actionable(threshold float64) bool {
	return m.Known() && m.Confidence > threshold
}

func unknownMatch() Match {
	return Match{Identity: constants.UnknownIdentity}
}
