// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Identity constants
const (
	// UnknownIdentity is the label used for faces with no gallery match
	UnknownIdentity = "Unknown"

	// UnknownPersonLabel is the status text drawn under unknown faces
	UnknownPersonLabel = "Unknown Person"
)

// Face matching constants
const (
	// GalleryIndexThreshold is the gallery size from which lookups go through the HNSW index
	// instead of an exact scan
	GalleryIndexThreshold = 512

	// HNSWMaxNeighbors is the M parameter of the gallery HNSW graph
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the candidate list size used when searching the gallery graph
	HNSWEfSearch = 64

	// MinLandmarkPoints is the number of landmark points needed to locate both eyes
	// in the 68-point layout
	MinLandmarkPoints = 48
)

// Processing constants
const (
	// ProcessEveryNthFrame is the capture loop duty cycle
	ProcessEveryNthFrame = 2

	// ReferenceEncodeConcurrency bounds parallel reference image encoding at start
	ReferenceEncodeConcurrency = 4

	// JPEGQuality is the quality used when encoding published frames
	JPEGQuality = 85

	// ReadRetryDelay is the pause in milliseconds after a failed frame read
	ReadRetryDelay = 100
)
