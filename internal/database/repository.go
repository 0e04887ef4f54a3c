package database

import (
	"context"
)

// EmployeeSource lists the reference images the gallery is built from.
type EmployeeSource interface {
	// ListIdentitiesWithImages returns every employee image of the configured company
	ListIdentitiesWithImages(ctx context.Context) ([]EmployeeImage, error)
}

// SettingsStore provides access to per-company camera settings
type SettingsStore interface {
	// GetCameraSettings returns the settings of company, or nil if none are stored
	GetCameraSettings(ctx context.Context, company string) (*CameraSettings, error)
	// SaveCameraSettings inserts or replaces the settings of a company
	SaveCameraSettings(ctx context.Context, settings *CameraSettings) error
}

// EmbeddingCache stores reference embeddings so the gallery is not re-encoded on every start
type EmbeddingCache interface {
	// GetEmbedding returns the cached embedding for an employee image, or nil if not cached
	GetEmbedding(ctx context.Context, employeeID, imageHash, model string) ([]float32, error)
	// SaveEmbedding inserts or replaces a cached embedding
	SaveEmbedding(ctx context.Context, emb StoredEmbedding) error
	// CountEmbeddings returns the number of cached embeddings
	CountEmbeddings(ctx context.Context) (int, error)
}

// SessionStore persists admin sessions so they survive restarts
type SessionStore interface {
	// Save inserts or replaces a session
	Save(ctx context.Context, s StoredSession) error
	// Get returns a session, or nil if it does not exist or has expired
	Get(ctx context.Context, id string) (*StoredSession, error)
	// Delete removes a session
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes expired sessions and returns how many were removed
	DeleteExpired(ctx context.Context) (int64, error)
}
