package handlers

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

// AttendanceHandler lists daily attendance records
type AttendanceHandler struct {
	records attendance.Lister
	loc     *time.Location
	now     func() time.Time
}

// NewAttendanceHandler creates a handler reading records of days in loc.
// records may be nil when the backend cannot list records.
func NewAttendanceHandler(records attendance.Lister, loc *time.Location) *AttendanceHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &AttendanceHandler{records: records, loc: loc, now: time.Now}
}

// TodayResponse is the body of GET /attendance/today
type TodayResponse struct {
	Date    string              `json:"date"`
	Records []attendance.Record `json:"records"`
	Summary attendance.Summary  `json:"summary"`
}

// Today returns today's records with a summary
func (h *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	if h.records == nil {
		respondError(w, http.StatusNotImplemented, "attendance listing is not supported by this backend")
		return
	}

	day := attendance.DateOf(h.now(), h.loc)
	records, err := h.records.ListRecords(r.Context(), day)
	if err != nil {
		log.WithError(err).Error("listing today's attendance")
		respondError(w, http.StatusInternalServerError, "failed to list attendance records")
		return
	}
	if records == nil {
		records = []attendance.Record{}
	}

	respondJSON(w, http.StatusOK, TodayResponse{
		Date:    day.Format(time.DateOnly),
		Records: records,
		Summary: attendance.Summarize(records),
	})
}
