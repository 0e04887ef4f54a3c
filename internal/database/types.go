package database

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EmployeeImage is a reference image of an employee used to build the gallery.
type EmployeeImage struct {
	EmployeeID string
	Name       string
	Company    string
	Image      []byte
}

// ImageHash returns the hex SHA-256 of the image bytes; embeddings are cached under it.
func (e *EmployeeImage) ImageHash() string {
	sum := sha256.Sum256(e.Image)
	return hex.EncodeToString(sum[:])
}

// StoredEmbedding is a cached reference embedding.
type StoredEmbedding struct {
	EmployeeID string
	ImageHash  string
	Model      string
	Embedding  []float32
	CreatedAt  time.Time
}

// CameraSettings are the per-company recognition settings.
type CameraSettings struct {
	Company           string `json:"company"`
	CameraType        string `json:"camera_type"`
	CameraSource      string `json:"camera_source"`
	BlinkThreshold    int    `json:"blinking_threshold"`
	ArrivalTime       string `json:"arrival_time,omitempty"`   // HH:MM
	DepartureTime     string `json:"departure_time,omitempty"` // HH:MM
	RecognitionActive bool   `json:"recognition_active"`
}

// StoredSession is a persisted admin session.
type StoredSession struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
}
