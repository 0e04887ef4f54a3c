package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

// AttendanceRepository provides PostgreSQL-backed daily attendance records
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

const recordColumns = `employee_id::text, name, date, arrival_time, departure_time, hours_worked, status,
	COALESCE(camera_used, ''), company`

// scanner is implemented by *sql.Row and *sql.Rows
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

// dateParam formats a calendar day for a DATE column without a time zone shift.
func dateParam(d time.Time) string {
	return d.Format(time.DateOnly)
}

// GetTodayRecord retrieves the record of an employee for a date, returns nil if not found
func (r *AttendanceRepository) GetTodayRecord(ctx context.Context, employeeID string, date time.Time) (*attendance.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE employee_id = $1 AND date = $2`

	rec, err := r.scanRecord(r.pool.QueryRow(ctx, query, employeeID, dateParam(date)))
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
		INSERT INTO attendance_records
			(employee_id, name, date, arrival_time, departure_time, hours_worked, status, camera_used, company)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (employee_id, date) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		rec.EmployeeID, rec.Name, dateParam(rec.Date),
		rec.ArrivalTime, rec.DepartureTime, rec.HoursWorked,
		string(rec.Status), rec.CameraUsed, rec.Company,
	)
	if err != nil {
		return fmt.Errorf("create attendance record: %w", err)
	}
	return nil
}

// UpdateRecord writes the arrival, departure, hours and status of a record
func (r *AttendanceRepository) UpdateRecord(ctx context.Context, rec *attendance.Record) error {
	query := `
		UPDATE attendance_records
		SET arrival_time = $3, departure_time = $4, hours_worked = $5, status = $6
		WHERE employee_id = $1 AND date = $2
	`

	result, err := r.pool.Exec(ctx, query,
		rec.EmployeeID, dateParam(rec.Date),
		rec.ArrivalTime, rec.DepartureTime, rec.HoursWorked, string(rec.Status),
	)
	if err != nil {
		return fmt.Errorf("update attendance record: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update attendance record: no record for employee %s on %s", rec.EmployeeID, dateParam(rec.Date))
	}
	return nil
}

// ListRecords returns all records of a date ordered by name
func (r *AttendanceRepository) ListRecords(ctx context.Context, date time.Time) ([]attendance.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE date = $1 ORDER BY name`

	rows, err := r.pool.Query(ctx, query, dateParam(date))
	if err != nil {
		return nil, err
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
