package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
)

var cat = time.FixedZone("CAT", 2*60*60)

type fakeAPI struct {
	mu       sync.Mutex
	posted   []attendanceCreate
	settings *cameraSettings
	records  []map[string]any
	authSeen []string
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/auth/admin/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode login: %v", err)
			return
		}
		if body["email"] != "admin@acme.test" || body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"Incorrect email or password"}`))
			return
		}
		w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","user_id":7,"company":"acme","user_type":"admin"}`))
	})

	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			f.authSeen = append(f.authSeen, r.Header.Get("Authorization"))
			f.mu.Unlock()
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			h(w, r)
		}
	}

	mux.HandleFunc("GET /api/v1/admin/employees/images/all", authed(func(w http.ResponseWriter, r *http.Request) {
		img := base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))
		json.NewEncoder(w).Encode(map[string]any{
			"total_employees": 3,
			"format":          "base64",
			"employees": []map[string]any{
				{"employee_id": 1, "employee_name": "Jiří Novák", "image_base64": img},
				{"employee_id": 2, "employee_name": "No Image", "image_base64": nil},
				{"employee_id": 3, "employee_name": "Broken", "image_base64": "!!!"},
			},
		})
	}))

	mux.HandleFunc("GET /api/v1/admin/attendance/today", authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"records": f.records, "summary": map[string]any{"total_employees": len(f.records)}})
	}))

	mux.HandleFunc("POST /api/v1/admin/attendance", authed(func(w http.ResponseWriter, r *http.Request) {
		var body attendanceCreate
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode attendance: %v", err)
			return
		}
		f.mu.Lock()
		f.posted = append(f.posted, body)
		f.mu.Unlock()
		w.Write([]byte(`{"id":99,"employee_id":1,"name":"Jiří Novák","status":"present","date":"2026-03-02T00:00:00"}`))
	}))

	mux.HandleFunc("GET /api/v1/admin/camera-settings", authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.settings == nil {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"Camera settings not found"}`))
			return
		}
		json.NewEncoder(w).Encode(f.settings)
	}))

	mux.HandleFunc("POST /api/v1/admin/camera-settings", authed(func(w http.ResponseWriter, r *http.Request) {
		var body cameraSettings
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode settings: %v", err)
			return
		}
		body.Company = "acme"
		f.mu.Lock()
		f.settings = &body
		f.mu.Unlock()
		json.NewEncoder(w).Encode(body)
	}))

	return mux
}

func (f *fakeAPI) snapshot() ([]attendanceCreate, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]attendanceCreate(nil), f.posted...), append([]string(nil), f.authSeen...)
}

func (f *fakeAPI) setRecords(records []map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
}

func newTestStore(t *testing.T) (*Store, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	server := httptest.NewServer(api.handler(t))
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), server.URL, "admin@acme.test", "secret", time.Second)
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	return NewStore(client, cat, logger), api
}

func TestLogin(t *testing.T) {
	api := &fakeAPI{}
	server := httptest.NewServer(api.handler(t))
	defer server.Close()

	client, err := NewClient(context.Background(), server.URL+"/", "admin@acme.test", "secret", time.Second)
	require.NoError(t, err)
	assert.True(t, client.Authenticated())
	assert.Equal(t, "acme", client.Company())
	assert.Equal(t, server.URL+"/api/v1", client.URL)

	_, err = NewClient(context.Background(), server.URL, "admin@acme.test", "wrong", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incorrect email or password")
}

func TestResolveURLKeepsQuery(t *testing.T) {
	client, err := NewClientFromToken("http://api.test", "tok", 0)
	require.NoError(t, err)
	assert.Equal(t, "http://api.test/api/v1/admin/attendance/today", client.resolveURL("admin/attendance/today"))
	assert.Equal(t, "http://api.test/api/v1/admin/employees/images/all?format=base64", client.resolveURL("admin/employees/images/all?format=base64"))
}

func TestListIdentitiesWithImages(t *testing.T) {
	store, api := newTestStore(t)

	images, err := store.ListIdentitiesWithImages(context.Background())
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, database.EmployeeImage{EmployeeID: "1", Name: "Jiří Novák", Company: "acme", Image: []byte("jpeg-bytes")}, images[0])
	_, auth := api.snapshot()
	assert.Contains(t, auth, "Bearer tok-1")
}

func TestGetTodayRecordPicksMostAdvanced(t *testing.T) {
	store, api := newTestStore(t)
	api.setRecords([]map[string]any{
		{"id": 1, "employee_id": 1, "name": "Jiří Novák", "date": "2026-03-02T00:00:00", "status": "absent"},
		{"id": 2, "employee_id": 1, "name": "Jiří Novák", "date": "2026-03-02T00:00:00", "arrival_time": "2026-03-02T08:05:00", "departure_time": "2026-03-02T17:00:00", "hours_worked": 8.92, "status": "present"},
		{"id": 3, "employee_id": 1, "name": "Jiří Novák", "date": "2026-03-02T00:00:00", "arrival_time": "2026-03-02T08:05:00", "status": "present"},
		{"id": 4, "employee_id": 5, "name": "Other", "date": "2026-03-01T00:00:00", "status": "absent"},
	})

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, cat)
	rec, err := store.GetTodayRecord(context.Background(), "1", day)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.CheckedOut())
	assert.Equal(t, time.Date(2026, 3, 2, 8, 5, 0, 0, cat), *rec.ArrivalTime)
	assert.True(t, rec.Date.Equal(day))

	records, err := store.ListRecords(context.Background(), day)
	require.NoError(t, err)
	assert.Len(t, records, 1, "records of other days are dropped")

	rec, err = store.GetTodayRecord(context.Background(), "5", day)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestGetTodayRecordMatchesByName(t *testing.T) {
	store, api := newTestStore(t)
	_, err := store.ListIdentitiesWithImages(context.Background())
	require.NoError(t, err)

	api.setRecords([]map[string]any{
		{"id": 1, "employee_id": 0, "name": "jiri  novak", "date": "2026-03-02", "status": "absent"},
	})
	rec, err := store.GetTodayRecord(context.Background(), "1", time.Date(2026, 3, 2, 12, 0, 0, 0, cat))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "1", rec.EmployeeID)
}

func TestUpdateRecordPostsNewRecord(t *testing.T) {
	store, api := newTestStore(t)
	arrival := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	hours := 1.5
	departure := arrival.Add(90 * time.Minute)

	rec := &attendance.Record{
		EmployeeID:    "1",
		Date:          time.Date(2026, 3, 2, 0, 0, 0, 0, cat),
		ArrivalTime:   &arrival,
		DepartureTime: &departure,
		HoursWorked:   &hours,
		Status:        attendance.StatusPresent,
		CameraUsed:    "webcam",
	}
	require.NoError(t, store.UpdateRecord(context.Background(), rec))

	posted, _ := api.snapshot()
	require.Len(t, posted, 1)
	got := posted[0]
	assert.Equal(t, int64(1), got.EmployeeID)
	assert.Equal(t, "present", got.Status)
	require.NotNil(t, got.ArrivalTime)
	assert.Equal(t, "2026-03-02T08:00:00+02:00", *got.ArrivalTime)
	require.NotNil(t, got.CameraUsed)
	assert.Equal(t, "webcam", *got.CameraUsed)

	rec.EmployeeID = "abc"
	assert.Error(t, store.CreateRecord(context.Background(), rec))
}

func TestCameraSettings(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	settings, err := store.GetCameraSettings(ctx, "acme")
	require.NoError(t, err)
	assert.Nil(t, settings, "404 maps to no settings")

	require.NoError(t, store.SaveCameraSettings(ctx, &database.CameraSettings{
		Company: "acme", CameraType: "ip_camera", CameraSource: "rtsp://cam", BlinkThreshold: 4,
		ArrivalTime: "08:00", DepartureTime: "17:00",
	}))

	settings, err = store.GetCameraSettings(ctx, "ignored")
	require.NoError(t, err)
	require.NotNil(t, settings)
	assert.Equal(t, "acme", settings.Company)
	assert.Equal(t, 4, settings.BlinkThreshold)
	assert.Equal(t, "rtsp://cam", settings.CameraSource)
}

func TestStatusErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	client, err := NewClientFromToken(server.URL, "tok", time.Second)
	require.NoError(t, err)
	store := NewStore(client, cat, nil)

	_, err = store.ListRecords(context.Background(), time.Now())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Equal(t, "boom", se.Message)
	assert.False(t, IsNotFoundError(err))
}
