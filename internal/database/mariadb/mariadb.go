// Package mariadb implements the attendance and employee stores on MariaDB.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// BackendName is the DATABASE_BACKEND value selecting this package.
const BackendName = "mariadb"

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool. Times are read and written in UTC.
func NewPool(cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	dsn, err := mysql.ParseDSN(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse MariaDB DSN: %w", err)
	}
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	dsn.MultiStatements = true

	db, err := sql.Open("mysql", dsn.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// Open connects to MariaDB, creates missing tables and returns the backend.
// MariaDB has no vector type, so the embedding cache and session store are left unset.
func Open(ctx context.Context, cfg *config.Config) (*database.Backend, error) {
	pool, err := NewPool(&cfg.Database)
	if err != nil {
		return nil, err
	}

	if err := pool.EnsureSchema(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}

	records := NewAttendanceRepository(pool, cfg.Recognition.Location())
	return &database.Backend{
		Name:       BackendName,
		Attendance: records,
		Records:    records,
		Employees:  NewEmployeeRepository(pool, cfg.Recognition.Company),
		Settings:   NewSettingsRepository(pool),
		Closer:     pool.Close,
	}, nil
}
