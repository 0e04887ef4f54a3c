package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
)

// Backend bundles the repositories of one storage implementation.
// Records, Settings, Embeddings and Sessions are optional and may be nil.
type Backend struct {
	Name       string
	Attendance attendance.Store
	Records    attendance.Lister
	Employees  EmployeeSource
	Settings   SettingsStore
	Embeddings EmbeddingCache
	Sessions   SessionStore
	Closer     func() error
}

// Close releases the backend's connections.
func (b *Backend) Close() error {
	if b.Closer == nil {
		return nil
	}
	return b.Closer()
}

// Opener creates a backend from configuration.
type Opener func(ctx context.Context, cfg *config.Config) (*Backend, error)

var (
	openers   = make(map[string]Opener)
	openersMu sync.RWMutex
)

// RegisterBackend registers a storage implementation under name.
// This is called by cmd to avoid import cycles between the backend packages and this one.
func RegisterBackend(name string, opener Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	openers[name] = opener
}

// Backends returns the registered backend names.
func Backends() []string {
	openersMu.RLock()
	defer openersMu.RUnlock()
	names := make([]string, 0, len(openers))
	for name := range openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens the backend selected by cfg.Database.Backend.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	openersMu.RLock()
	opener, ok := openers[cfg.Database.Backend]
	openersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown database backend %q (available: %v)", cfg.Database.Backend, Backends())
	}

	b, err := opener(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s backend: %w", cfg.Database.Backend, err)
	}
	if b.Attendance == nil || b.Employees == nil {
		_ = b.Close()
		return nil, errors.New("backend must provide attendance store and employee source")
	}
	b.Name = cfg.Database.Backend
	return b, nil
}
