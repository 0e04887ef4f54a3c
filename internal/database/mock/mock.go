// Package mock provides mock implementations of storage interfaces for testing.
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// ErrInjected is returned by calls configured to fail a limited number of times
var ErrInjected = errors.New("injected failure")

// ErrNoRecord is returned by UpdateRecord when no row exists for the employee and day
var ErrNoRecord = errors.New("no attendance record to update")

// MockAttendanceStore is an in-memory implementation of attendance.Store and attendance.Lister
type MockAttendanceStore struct {
	mu      sync.Mutex
	records map[string]*attendance.Record

	// Error injection
	GetError    error
	CreateError error
	UpdateError error
	ListError   error
	// FailNextUpdates makes the next N UpdateRecord calls return ErrInjected
	FailNextUpdates int

	GetCalls    int
	CreateCalls int
	UpdateCalls int
}

// NewMockAttendanceStore creates a new mock attendance store
func NewMockAttendanceStore() *MockAttendanceStore {
	return &MockAttendanceStore{records: make(map[string]*attendance.Record)}
}

func recordKey(employeeID string, date time.Time) string {
	return employeeID + "|" + date.Format(time.DateOnly)
}

// AddRecord seeds a record
func (m *MockAttendanceStore) AddRecord(rec attendance.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordKey(rec.EmployeeID, rec.Date)] = rec.Clone()
}

// Record returns a copy of the stored record, or nil
func (m *MockAttendanceStore) Record(employeeID string, date time.Time) *attendance.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[recordKey(employeeID, date)]; ok {
		return rec.Clone()
	}
	return nil
}

// Calls returns the number of store calls so far
func (m *MockAttendanceStore) Calls() (get, create, update int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GetCalls, m.CreateCalls, m.UpdateCalls
}

// GetTodayRecord retrieves the record of an employee for a date
func (m *MockAttendanceStore) GetTodayRecord(ctx context.Context, employeeID string, date time.Time) (*attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++
	if m.GetError != nil {
		return nil, m.GetError
	}
	if rec, ok := m.records[recordKey(employeeID, date)]; ok {
		return rec.Clone(), nil
	}
	return nil, nil
}

// CreateRecord stores a record unless one exists for the same day
func (m *MockAttendanceStore) CreateRecord(ctx context.Context, rec *attendance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.CreateError != nil {
		return m.CreateError
	}
	key := recordKey(rec.EmployeeID, rec.Date)
	if _, ok := m.records[key]; !ok {
		m.records[key] = rec.Clone()
	}
	return nil
}

// UpdateRecord replaces an existing record
func (m *MockAttendanceStore) UpdateRecord(ctx context.Context, rec *attendance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	if m.UpdateError != nil {
		return m.UpdateError
	}
	if m.FailNextUpdates > 0 {
		m.FailNextUpdates--
		return ErrInjected
	}
	key := recordKey(rec.EmployeeID, rec.Date)
	if _, ok := m.records[key]; !ok {
		return ErrNoRecord
	}
	m.records[key] = rec.Clone()
	return nil
}

// ListRecords returns all records of a date
func (m *MockAttendanceStore) ListRecords(ctx context.Context, date time.Time) ([]attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListError != nil {
		return nil, m.ListError
	}
	day := date.Format(time.DateOnly)
	var out []attendance.Record
	for _, rec := range m.records {
		if rec.Date.Format(time.DateOnly) == day {
			out = append(out, *rec.Clone())
		}
	}
	return out, nil
}

// MockEmployeeSource is a mock implementation of database.EmployeeSource
type MockEmployeeSource struct {
	mu     sync.Mutex
	images []database.EmployeeImage

	ListError error
	Calls     int
}

// NewMockEmployeeSource creates a source returning the given images
func NewMockEmployeeSource(images ...database.EmployeeImage) *MockEmployeeSource {
	return &MockEmployeeSource{images: images}
}

// ListIdentitiesWithImages returns the configured images
func (m *MockEmployeeSource) ListIdentitiesWithImages(ctx context.Context) ([]database.EmployeeImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.ListError != nil {
		return nil, m.ListError
	}
	return append([]database.EmployeeImage(nil), m.images...), nil
}

// MockSettingsStore is a mock implementation of database.SettingsStore
type MockSettingsStore struct {
	mu       sync.Mutex
	settings map[string]database.CameraSettings

	GetError  error
	SaveError error
}

// NewMockSettingsStore creates an empty settings store
func NewMockSettingsStore() *MockSettingsStore {
	return &MockSettingsStore{settings: make(map[string]database.CameraSettings)}
}

// GetCameraSettings returns the stored settings of a company, or nil
func (m *MockSettingsStore) GetCameraSettings(ctx context.Context, company string) (*database.CameraSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetError != nil {
		return nil, m.GetError
	}
	s, ok := m.settings[company]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// SaveCameraSettings stores settings
func (m *MockSettingsStore) SaveCameraSettings(ctx context.Context, settings *database.CameraSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return m.SaveError
	}
	m.settings[settings.Company] = *settings
	return nil
}

// MockEmbeddingCache is a mock implementation of database.EmbeddingCache
type MockEmbeddingCache struct {
	mu         sync.Mutex
	embeddings map[string][]float32

	GetError  error
	SaveError error
	Saves     int
}

// NewMockEmbeddingCache creates an empty cache
func NewMockEmbeddingCache() *MockEmbeddingCache {
	return &MockEmbeddingCache{embeddings: make(map[string][]float32)}
}

func embeddingKey(employeeID, imageHash, model string) string {
	return employeeID + "|" + imageHash + "|" + model
}

// GetEmbedding returns a cached embedding, or nil
func (m *MockEmbeddingCache) GetEmbedding(ctx context.Context, employeeID, imageHash, model string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetError != nil {
		return nil, m.GetError
	}
	return m.embeddings[embeddingKey(employeeID, imageHash, model)], nil
}

// SaveEmbedding caches an embedding
func (m *MockEmbeddingCache) SaveEmbedding(ctx context.Context, emb database.StoredEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return m.SaveError
	}
	m.Saves++
	m.embeddings[embeddingKey(emb.EmployeeID, emb.ImageHash, emb.Model)] = append([]float32(nil), emb.Embedding...)
	return nil
}

// CountEmbeddings returns the number of cached embeddings
func (m *MockEmbeddingCache) CountEmbeddings(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.embeddings), nil
}

// MockSessionStore is an in-memory implementation of database.SessionStore
type MockSessionStore struct {
	mu       sync.Mutex
	sessions map[string]database.StoredSession
}

// NewMockSessionStore creates a new mock session store
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{sessions: make(map[string]database.StoredSession)}
}

// Save inserts or replaces a session
func (m *MockSessionStore) Save(ctx context.Context, s database.StoredSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

// Get returns a session, or nil if it does not exist or has expired
func (m *MockSessionStore) Get(ctx context.Context, id string) (*database.StoredSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || time.Now().After(s.ExpiresAt) {
		return nil, nil
	}
	return &s, nil
}

// Delete removes a session
func (m *MockSessionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// DeleteExpired removes expired sessions
func (m *MockSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now()
	for id, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions
func (m *MockSessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
