package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

// AttendanceRepository provides MariaDB-backed daily attendance records.
type AttendanceRepository struct {
	pool *Pool
	loc  *time.Location
}

// NewAttendanceRepository creates a repository. Dates are interpreted in loc.
func NewAttendanceRepository(pool *Pool, loc *time.Location) *AttendanceRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &AttendanceRepository{pool: pool, loc: loc}
}

const recordColumns = `CAST(employee_id AS CHAR), name, date, arrival_time, departure_time, hours_worked, status,
	COALESCE(camera_used, ''), company`

type scanner interface {
	Scan(dest ...any) error
}

func (r *AttendanceRepository) scanRecord(s scanner) (*attendance.Record, error) {
	var (
		rec       attendance.Record
		date      time.Time
		arrival   sql.NullTime
		departure sql.NullTime
		hours     sql.NullFloat64
		status    string
	)
	if err := s.Scan(&rec.EmployeeID, &rec.Name, &date, &arrival, &departure, &hours, &status, &rec.CameraUsed, &rec.Company); err != nil {
		return nil, err
	}

	rec.Date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, r.loc)
	rec.Status = attendance.Status(status)
	if arrival.Valid {
		t := arrival.Time.In(r.loc)
		rec.ArrivalTime = &t
	}
	if departure.Valid {
		t := departure.Time.In(r.loc)
		rec.DepartureTime = &t
	}
	if hours.Valid {
		h := hours.Float64
		rec.HoursWorked = &h
	}
	return &rec, nil
}

func dateParam(d time.Time) string {
	return d.Format(time.DateOnly)
}

// utc converts an optional timestamp for a DATETIME column.
func utc(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// GetTodayRecord retrieves the record of an employee for a date, returns nil if not found
func (r *AttendanceRepository) GetTodayRecord(ctx context.Context, employeeID string, date time.Time) (*attendance.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE employee_id = ? AND date = ?`

	rec, err := r.scanRecord(r.pool.db.QueryRowContext(ctx, query, employeeID, dateParam(date)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance record: %w", err)
	}
	return rec, nil
}

// CreateRecord inserts a record. An existing record for the same day is kept.
func (r *AttendanceRepository) CreateRecord(ctx context.Context, rec *attendance.Record) error {
	query := `
		INSERT IGNORE INTO attendance_records
			(employee_id, name, date, arrival_time, departure_time, hours_worked, status, camera_used, company)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.pool.db.ExecContext(ctx, query,
		rec.EmployeeID, rec.Name, dateParam(rec.Date),
		utc(rec.ArrivalTime), utc(rec.DepartureTime), rec.HoursWorked,
		string(rec.Status), rec.CameraUsed, rec.Company,
	)
	if err != nil {
		return fmt.Errorf("create attendance record: %w", err)
	}
	return nil
}

// UpdateRecord writes the arrival, departure, hours and status of a record
func (r *AttendanceRepository) UpdateRecord(ctx context.Context, rec *attendance.Record) error {
	// RowsAffected is 0 when the row is unchanged, so check existence explicitly
	var exists int
	err := r.pool.db.QueryRowContext(ctx,
		`SELECT 1 FROM attendance_records WHERE employee_id = ? AND date = ?`,
		rec.EmployeeID, dateParam(rec.Date),
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update attendance record: no record for employee %s on %s", rec.EmployeeID, dateParam(rec.Date))
	}
	if err != nil {
		return fmt.Errorf("update attendance record: %w", err)
	}

	query := `
		UPDATE attendance_records
		SET arrival_time = ?, departure_time = ?, hours_worked = ?, status = ?
		WHERE employee_id = ? AND date = ?
	`
	_, err = r.pool.db.ExecContext(ctx, query,
		utc(rec.ArrivalTime), utc(rec.DepartureTime), rec.HoursWorked, string(rec.Status),
		rec.EmployeeID, dateParam(rec.Date),
	)
	if err != nil {
		return fmt.Errorf("update attendance record: %w", err)
	}
	return nil
}

// ListRecords returns all records of a date ordered by name
func (r *AttendanceRepository) ListRecords(ctx context.Context, date time.Time) ([]attendance.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE date = ? ORDER BY name`

	rows, err := r.pool.db.QueryContext(ctx, query, dateParam(date))
	if err != nil {
		return nil, fmt.Errorf("query attendance records: %w", err)
	}
	defer rows.Close()

	var records []attendance.Record
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}
	return records, nil
}
