package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// apiTime accepts RFC 3339 timestamps and the zone-less ISO form the API emits.
// Zone-less values are interpreted in the store's location by the caller.
type apiTime struct {
	time.Time
	zoned bool
}

var apiTimeLayouts = []string{
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	time.DateOnly,
}

func (t *apiTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("time must be a string: %w", err)
	}
	if s == "" {
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time, t.zoned = parsed, true
		return nil
	}
	for _, layout := range apiTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized time %q", s)
}

// in returns the instant, reading zone-less values as wall clock in loc. Zero stays nil.
func (t apiTime) in(loc *time.Location) *time.Time {
	if t.IsZero() {
		return nil
	}
	if t.zoned {
		v := t.Time.In(loc)
		return &v
	}
	v := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
	return &v
}

type employeeImagesResponse struct {
	TotalEmployees int             `json:"total_employees"`
	Employees      []employeeImage `json:"employees"`
}

type employeeImage struct {
	EmployeeID   int64   `json:"employee_id"`
	EmployeeName string  `json:"employee_name"`
	ImageBase64  *string `json:"image_base64"`
}

type attendanceRecord struct {
	ID            int64    `json:"id"`
	EmployeeID    int64    `json:"employee_id"`
	Name          string   `json:"name"`
	Date          apiTime  `json:"date"`
	ArrivalTime   apiTime  `json:"arrival_time"`
	DepartureTime apiTime  `json:"departure_time"`
	HoursWorked   *float64 `json:"hours_worked"`
	Status        string   `json:"status"`
	CameraUsed    *string  `json:"camera_used"`
	Company       string   `json:"company"`
}

type todayResponse struct {
	Records []attendanceRecord `json:"records"`
	Summary struct {
		TotalEmployees int     `json:"total_employees"`
		Present        int     `json:"present"`
		Absent         int     `json:"absent"`
		AttendanceRate float64 `json:"attendance_rate"`
	} `json:"summary"`
}

// attendanceCreate is the body of POST admin/attendance
type attendanceCreate struct {
	EmployeeID    int64    `json:"employee_id"`
	ArrivalTime   *string  `json:"arrival_time"`
	DepartureTime *string  `json:"departure_time"`
	HoursWorked   *float64 `json:"hours_worked"`
	Status        string   `json:"status"`
	CameraUsed    *string  `json:"camera_used,omitempty"`
}

type cameraSettings struct {
	Company           string  `json:"company,omitempty"`
	CameraType        string  `json:"camera_type"`
	CameraSource      string  `json:"camera_source"`
	BlinkingThreshold float64 `json:"blinking_threshold"`
	ArrivalTime       string  `json:"arrival_time"`
	DepartureTime     string  `json:"departure_time"`
	RecognitionActive bool    `json:"recognition_active,omitempty"`
}
