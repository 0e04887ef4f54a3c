// Package attendance implements the per-employee daily attendance state machine
// and the outbound queue that persists its transitions.
package attendance

import (
	"context"
	"math"
	"time"
)

// Status of a daily record.
type Status string

const (
	StatusAbsent  Status = "absent"
	StatusPresent Status = "present"
)

// Record is one employee's attendance for one calendar day.
type Record struct {
	EmployeeID    string     `json:"employee_id"`
	Name          string     `json:"name"`
	Date          time.Time  `json:"date"`
	ArrivalTime   *time.Time `json:"arrival_time,omitempty"`
	DepartureTime *time.Time `json:"departure_time,omitempty"`
	HoursWorked   *float64   `json:"hours_worked,omitempty"`
	Status        Status     `json:"status"`
	CameraUsed    string     `json:"camera_used,omitempty"`
	Company       string     `json:"company,omitempty"`
}

// CheckedIn reports whether an arrival has been recorded.
func (r *Record) CheckedIn() bool {
	return r.ArrivalTime != nil
}

// CheckedOut reports whether the day is complete.
func (r *Record) CheckedOut() bool {
	return r.DepartureTime != nil
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	if r.ArrivalTime != nil {
		t := *r.ArrivalTime
		c.ArrivalTime = &t
	}
	if r.DepartureTime != nil {
		t := *r.DepartureTime
		c.DepartureTime = &t
	}
	if r.HoursWorked != nil {
		h := *r.HoursWorked
		c.HoursWorked = &h
	}
	return &c
}

// Store is the persistence collaborator. All calls are scoped to a single day.
type Store interface {
	// GetTodayRecord returns the record of employeeID for date, or nil if none exists.
	GetTodayRecord(ctx context.Context, employeeID string, date time.Time) (*Record, error)
	CreateRecord(ctx context.Context, rec *Record) error
	// UpdateRecord writes arrival, departure, hours and status of an existing record.
	UpdateRecord(ctx context.Context, rec *Record) error
}

// Lister lists all records of a day.
type Lister interface {
	ListRecords(ctx context.Context, date time.Time) ([]Record, error)
}

// DateOf returns midnight of t's calendar day in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// HoursBetween returns the hours from arrival to departure rounded to 2 decimals.
func HoursBetween(arrival, departure time.Time) float64 {
	return math.Round(departure.Sub(arrival).Hours()*100) / 100
}
