package fingerprint

import "github.com/kozaktomas/face-attendance/internal/facematch"

// faceDetection is a single face in the /embed/face response
type faceDetection struct {
	FaceIndex int          `json:"face_index"`
	Dim       int          `json:"dim"`
	Embedding []float32    `json:"embedding"`
	BBox      []float64    `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64      `json:"det_score"`
	Landmarks [][2]float64 `json:"landmarks,omitempty"`
}

// faceResponse is the body returned by /embed/face
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// healthResponse is the body returned by /health
type healthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model,omitempty"`
}

func (d faceDetection) toFace() facematch.Face {
	face := facematch.Face{
		BBox:      d.BBox,
		Embedding: d.Embedding,
		DetScore:  d.DetScore,
	}
	if len(d.Landmarks) > 0 {
		face.Landmarks = make([]facematch.Point, len(d.Landmarks))
		for i, p := range d.Landmarks {
			face.Landmarks[i] = facematch.Point{X: p[0], Y: p[1]}
		}
	}
	return face
}

// area returns the pixel area of the detection's bounding box.
func (d faceDetection) area() float64 {
	if len(d.BBox) != 4 {
		return 0
	}
	return (d.BBox[2] - d.BBox[0]) * (d.BBox[3] - d.BBox[1])
}
