// Package liveness confirms that a recognized face belongs to a live person by
// counting eye blinks from facial landmarks.
package liveness

import (
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// Eye landmark ranges of the 68-point layout.
const (
	leftEyeStart  = 36
	rightEyeStart = 42
	eyePoints     = 6
)

// EyeAspectRatio computes (|p2-p6| + |p3-p5|) / (2*|p1-p4|) for the six
// points of one eye. Returns 0 for a degenerate eye width.
func EyeAspectRatio(eye [6]facematch.Point) float64 {
	vertical := eye[1].Distance(eye[5]) + eye[2].Distance(eye[4])
	horizontal := eye[0].Distance(eye[3])
	if horizontal == 0 {
		return 0
	}
	return vertical / (2 * horizontal)
}

// FrameEAR averages the eye aspect ratio of both eyes. The second return value
// is false when the landmark set does not cover both eyes.
func FrameEAR(landmarks []facematch.Point) (float64, bool) {
	if len(landmarks) < constants.MinLandmarkPoints {
		return 0, false
	}

	var left, right [6]facematch.Point
	copy(left[:], landmarks[leftEyeStart:leftEyeStart+eyePoints])
	copy(right[:], landmarks[rightEyeStart:rightEyeStart+eyePoints])

	return (EyeAspectRatio(left) + EyeAspectRatio(right)) / 2, true
}
