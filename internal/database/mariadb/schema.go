package mariadb

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS employees (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	company VARCHAR(255) NOT NULL DEFAULT '',
	image MEDIUMBLOB,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	INDEX idx_employees_company (company)
);

CREATE TABLE IF NOT EXISTS attendance_records (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	employee_id BIGINT NOT NULL,
	name VARCHAR(255) NOT NULL,
	date DATE NOT NULL,
	arrival_time DATETIME NULL,
	departure_time DATETIME NULL,
	hours_worked DOUBLE NULL,
	status VARCHAR(16) NOT NULL DEFAULT 'absent',
	camera_used VARCHAR(64) NULL,
	company VARCHAR(255) NOT NULL DEFAULT '',
	UNIQUE KEY uq_attendance_employee_date (employee_id, date),
	INDEX idx_attendance_date (date)
);

CREATE TABLE IF NOT EXISTS camera_settings (
	company VARCHAR(255) PRIMARY KEY,
	camera_type VARCHAR(32) NOT NULL DEFAULT 'webcam',
	camera_source VARCHAR(512) NOT NULL DEFAULT '0',
	blinking_threshold INT NOT NULL DEFAULT 5,
	arrival_time VARCHAR(5) NOT NULL DEFAULT '',
	departure_time VARCHAR(5) NOT NULL DEFAULT '',
	recognition_active BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);
`

// EnsureSchema creates the tables if they do not exist.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
