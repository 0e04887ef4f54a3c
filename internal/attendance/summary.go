package attendance

// Summary aggregates a day's records
type Summary struct {
	TotalEmployees int     `json:"total_employees"`
	Present        int     `json:"present"`
	Absent         int     `json:"absent"`
	CheckedOut     int     `json:"checked_out"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// Summarize counts present, absent and checked-out records. AttendanceRate is a percentage.
func Summarize(records []Record) Summary {
	s := Summary{TotalEmployees: len(records)}
	for i := range records {
		if records[i].Status == StatusPresent {
			s.Present++
		} else {
			s.Absent++
		}
		if records[i].CheckedOut() {
			s.CheckedOut++
		}
	}
	if s.TotalEmployees > 0 {
		s.AttendanceRate = float64(s.Present) / float64(s.TotalEmployees) * 100
	}
	return s
}
