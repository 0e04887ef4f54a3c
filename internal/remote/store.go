package remote

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// Store adapts the admin API to the attendance and employee store interfaces.
// The API only appends records, so every update posts a new record and reads
// resolve an employee's day to its most advanced record.
type Store struct {
	client *Client
	loc    *time.Location
	logger log.FieldLogger

	mu    sync.RWMutex
	names map[string]string // employee ID -> normalized name
}

// NewStore creates a store. Zone-less API timestamps are read in loc.
func NewStore(client *Client, loc *time.Location, logger log.FieldLogger) *Store {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Store{client: client, loc: loc, logger: logger, names: make(map[string]string)}
}

// ListIdentitiesWithImages returns every employee of the admin's company that has an image
func (s *Store) ListIdentitiesWithImages(ctx context.Context) ([]database.EmployeeImage, error) {
	resp, err := doGetJSON[employeeImagesResponse](ctx, s.client, "admin/employees/images/all")
	if err != nil {
		return nil, fmt.Errorf("list employee images: %w", err)
	}

	images := make([]database.EmployeeImage, 0, len(resp.Employees))
	names := make(map[string]string, len(resp.Employees))
	for _, e := range resp.Employees {
		id := strconv.FormatInt(e.EmployeeID, 10)
		names[id] = facematch.NormalizeIdentity(e.EmployeeName)
		if e.ImageBase64 == nil || *e.ImageBase64 == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(*e.ImageBase64)
		if err != nil {
			s.logger.WithError(err).WithField("identity", e.EmployeeName).Warn("skipping employee with undecodable image")
			continue
		}
		images = append(images, database.EmployeeImage{
			EmployeeID: id,
			Name:       e.EmployeeName,
			Company:    s.client.Company(),
			Image:      data,
		})
	}

	s.mu.Lock()
	s.names = names
	s.mu.Unlock()
	return images, nil
}

// GetTodayRecord returns the most advanced record of an employee for date, or nil
func (s *Store) GetTodayRecord(ctx context.Context, employeeID string, date time.Time) (*attendance.Record, error) {
	records, err := s.ListRecords(ctx, date)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	name := s.names[employeeID]
	s.mu.RUnlock()

	var byName *attendance.Record
	for i := range records {
		rec := &records[i]
		if rec.EmployeeID == employeeID {
			return rec, nil
		}
		if byName == nil && name != "" && facematch.NormalizeIdentity(rec.Name) == name {
			byName = rec
		}
	}
	if byName != nil {
		byName.EmployeeID = employeeID
	}
	return byName, nil
}

// CreateRecord posts a record
func (s *Store) CreateRecord(ctx context.Context, rec *attendance.Record) error {
	return s.post(ctx, rec)
}

// UpdateRecord posts the new state of a record as another record of the same day
func (s *Store) UpdateRecord(ctx context.Context, rec *attendance.Record) error {
	return s.post(ctx, rec)
}

func (s *Store) post(ctx context.Context, rec *attendance.Record) error {
	id, err := strconv.ParseInt(rec.EmployeeID, 10, 64)
	if err != nil {
		return fmt.Errorf("employee id %q is not numeric: %w", rec.EmployeeID, err)
	}

	body := attendanceCreate{
		EmployeeID:    id,
		ArrivalTime:   formatTime(rec.ArrivalTime, s.loc),
		DepartureTime: formatTime(rec.DepartureTime, s.loc),
		HoursWorked:   rec.HoursWorked,
		Status:        string(rec.Status),
	}
	if rec.CameraUsed != "" {
		body.CameraUsed = &rec.CameraUsed
	}

	if _, err := doPostJSON[attendanceRecord](ctx, s.client, "admin/attendance", body); err != nil {
		return fmt.Errorf("post attendance record: %w", err)
	}
	return nil
}

// ListRecords returns one record per employee for date, ordered as the API returns them
func (s *Store) ListRecords(ctx context.Context, date time.Time) ([]attendance.Record, error) {
	resp, err := doGetJSON[todayResponse](ctx, s.client, "admin/attendance/today")
	if err != nil {
		return nil, fmt.Errorf("get today's attendance: %w", err)
	}

	day := attendance.DateOf(date, s.loc)
	index := make(map[string]int)
	var records []attendance.Record
	for _, raw := range resp.Records {
		rec := s.toRecord(raw)
		if !raw.Date.IsZero() && !rec.Date.Equal(day) {
			continue
		}
		rec.Date = day
		if i, ok := index[rec.EmployeeID]; ok {
			if progress(&rec) > progress(&records[i]) {
				records[i] = rec
			}
			continue
		}
		index[rec.EmployeeID] = len(records)
		records = append(records, rec)
	}
	return records, nil
}

func (s *Store) toRecord(raw attendanceRecord) attendance.Record {
	rec := attendance.Record{
		EmployeeID:    strconv.FormatInt(raw.EmployeeID, 10),
		Name:          raw.Name,
		ArrivalTime:   raw.ArrivalTime.in(s.loc),
		DepartureTime: raw.DepartureTime.in(s.loc),
		HoursWorked:   raw.HoursWorked,
		Status:        attendance.Status(raw.Status),
		Company:       raw.Company,
	}
	if d := raw.Date.in(s.loc); d != nil {
		rec.Date = attendance.DateOf(*d, s.loc)
	}
	if raw.CameraUsed != nil {
		rec.CameraUsed = *raw.CameraUsed
	}
	return rec
}

// progress ranks records of the same day: departed > arrived > absent
func progress(r *attendance.Record) int {
	switch {
	case r.CheckedOut():
		return 2
	case r.CheckedIn():
		return 1
	default:
		return 0
	}
}

func formatTime(t *time.Time, loc *time.Location) *string {
	if t == nil {
		return nil
	}
	s := t.In(loc).Format(time.RFC3339)
	return &s
}

// GetCameraSettings returns the settings of the admin's company, or nil if none are configured.
// The API scopes settings by the token, so company is informational.
func (s *Store) GetCameraSettings(ctx context.Context, company string) (*database.CameraSettings, error) {
	resp, err := doGetJSON[cameraSettings](ctx, s.client, "admin/camera-settings")
	if IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get camera settings: %w", err)
	}

	if resp.Company != "" {
		company = resp.Company
	}
	return &database.CameraSettings{
		Company:           company,
		CameraType:        resp.CameraType,
		CameraSource:      resp.CameraSource,
		BlinkThreshold:    int(math.Round(resp.BlinkingThreshold)),
		ArrivalTime:       resp.ArrivalTime,
		DepartureTime:     resp.DepartureTime,
		RecognitionActive: resp.RecognitionActive,
	}, nil
}

// SaveCameraSettings creates or updates the settings of the admin's company
func (s *Store) SaveCameraSettings(ctx context.Context, settings *database.CameraSettings) error {
	body := cameraSettings{
		CameraType:        settings.CameraType,
		CameraSource:      settings.CameraSource,
		BlinkingThreshold: float64(settings.BlinkThreshold),
		ArrivalTime:       settings.ArrivalTime,
		DepartureTime:     settings.DepartureTime,
	}
	if _, err := doPostJSON[cameraSettings](ctx, s.client, "admin/camera-settings", body); err != nil {
		return fmt.Errorf("save camera settings: %w", err)
	}
	return nil
}
