package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Query attendance records",
}

var attendanceTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show today's attendance records",
	Long: `Show the attendance records of today, or of --date, with a summary.
Days are computed in ATTENDANCE_TIMEZONE.`,
	RunE: runAttendanceToday,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceTodayCmd)

	attendanceTodayCmd.Flags().String("date", "", "Day to show (YYYY-MM-DD), defaults to today")
	attendanceTodayCmd.Flags().Bool("json", false, "Output as JSON")
}

// AttendanceDay is the JSON output of attendance today
type AttendanceDay struct {
	Date    string              `json:"date"`
	Records []attendance.Record `json:"records"`
	Summary attendance.Summary  `json:"summary"`
}

func runAttendanceToday(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	ctx := context.Background()
	cfg := config.Load()
	setupLogging(cmd, cfg)
	loc := cfg.Recognition.Location()

	day := attendance.DateOf(time.Now(), loc)
	if s := mustGetString(cmd, "date"); s != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, s, loc)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", s, err)
		}
		day = parsed
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	if backend.Records == nil {
		return fmt.Errorf("the %s backend cannot list attendance records", backend.Name)
	}

	records, err := backend.Records.ListRecords(ctx, day)
	if err != nil {
		return fmt.Errorf("listing attendance: %w", err)
	}
	if records == nil {
		records = []attendance.Record{}
	}
	summary := attendance.Summarize(records)

	if jsonOutput {
		return outputJSON(AttendanceDay{
			Date:    day.Format(time.DateOnly),
			Records: records,
			Summary: summary,
		})
	}

	fmt.Printf("Attendance for %s (%s)\n\n", day.Format(time.DateOnly), loc)
	if len(records) == 0 {
		fmt.Println("No records")
		return nil
	}

	fmt.Printf("%-30s %-8s %-8s %-10s %7s\n", "NAME", "ARRIVAL", "LEFT", "STATUS", "HOURS")
	for i := range records {
		rec := &records[i]
		hours := "-"
		if rec.HoursWorked != nil {
			hours = fmt.Sprintf("%.2f", *rec.HoursWorked)
		}
		fmt.Printf("%-30s %-8s %-8s %-10s %7s\n", rec.Name, clock(rec.ArrivalTime, loc), clock(rec.DepartureTime, loc), rec.Status, hours)
	}

	fmt.Printf("\nPresent: %d/%d (%.1f%%), checked out: %d\n",
		summary.Present, summary.TotalEmployees, summary.AttendanceRate, summary.CheckedOut)
	return nil
}

func clock(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "-"
	}
	return t.In(loc).Format("15:04")
}
