package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// SettingsRepository stores per-company camera settings
type SettingsRepository struct {
	pool *Pool
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(pool *Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// GetCameraSettings returns the settings of company, or nil if none are stored
func (r *SettingsRepository) GetCameraSettings(ctx context.Context, company string) (*database.CameraSettings, error) {
	query := `
		SELECT company, camera_type, camera_source, blinking_threshold, arrival_time, departure_time, recognition_active
		FROM camera_settings
		WHERE company = ?
	`

	var s database.CameraSettings
	err := r.pool.db.QueryRowContext(ctx, query, company).Scan(
		&s.Company, &s.CameraType, &s.CameraSource, &s.BlinkThreshold,
		&s.ArrivalTime, &s.DepartureTime, &s.RecognitionActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get camera settings: %w", err)
	}
	return &s, nil
}

// SaveCameraSettings inserts or replaces the settings of a company
func (r *SettingsRepository) SaveCameraSettings(ctx context.Context, s *database.CameraSettings) error {
	query := `
		INSERT INTO camera_settings
			(company, camera_type, camera_source, blinking_threshold, arrival_time, departure_time, recognition_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			camera_type = VALUES(camera_type),
			camera_source = VALUES(camera_source),
			blinking_threshold = VALUES(blinking_threshold),
			arrival_time = VALUES(arrival_time),
			departure_time = VALUES(departure_time),
			recognition_active = VALUES(recognition_active)
	`

	_, err := r.pool.db.ExecContext(ctx, query,
		s.Company, s.CameraType, s.CameraSource, s.BlinkThreshold,
		s.ArrivalTime, s.DepartureTime, s.RecognitionActive,
	)
	if err != nil {
		return fmt.Errorf("save camera settings: %w", err)
	}
	return nil
}
