package recognition

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

// Metrics provides observability for the capture loop and the attendance queue.
type Metrics struct {
	FramesRead      prometheus.Counter
	FramesProcessed prometheus.Counter
	ReadErrors      prometheus.Counter
	DetectErrors    prometheus.Counter
	FacesDetected   prometheus.Counter

	// Recognitions by result: "known", "unknown"
	Recognitions *prometheus.CounterVec

	// Attendance transition attempts by outcome
	Transitions *prometheus.CounterVec

	QueueDepth    prometheus.Gauge
	StoreRetries  prometheus.Counter
	StoreFailures prometheus.Counter

	LoopDuration prometheus.Histogram
	Running      prometheus.Gauge
	FPS          prometheus.Gauge
}

// NewMetrics creates the recognition metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FramesRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "attendance_frames_read_total",
			Help: "Frames read from the capture source",
		}),
		FramesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "attendance_frames_processed_total",
			Help: "Frames sent through detection and matching",
		}),
		ReadErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "attendance_frame_read_errors_total",
			Help: "Failed frame reads",
		}),
		DetectErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "attendance_detect_errors_total",
			Help: "Face service calls that failed during the loop",
		}),
		FacesDetected: factory.NewCounter(prometheus.CounterOpts{
			Name: "attendance_faces_detected_total",
			Help: "Faces reported by the face service",
		}),
		Recognitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_recognitions_total",
			Help: "Gallery lookups by result",
		}, []string{"result"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_transitions_total",
			Help: "Attendance transition attempts by outcome",
		}, []string{"outcome"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "attendance_queue_depth",
			Help: "Pending attendance store writes",
		}),
		StoreRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "attendance_store_retries_total",
			Help: "Retried attendance store writes",
		}),
		StoreFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "attendance_store_failures_total",
			Help: "Attendance store writes given up after all retries",
		}),
		LoopDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "attendance_loop_iteration_duration_seconds",
			Help:    "Duration of one capture loop iteration, excluding the pause",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		Running: factory.NewGauge(prometheus.GaugeOpts{
			Name: "attendance_recognition_running",
			Help: "1 while the capture loop is running",
		}),
		FPS: factory.NewGauge(prometheus.GaugeOpts{
			Name: "attendance_loop_fps",
			Help: "Frames per second measured over the last second",
		}),
	}
}

func (m *Metrics) frameRead() {
	if m != nil {
		m.FramesRead.Inc()
	}
}

func (m *Metrics) readError() {
	if m != nil {
		m.ReadErrors.Inc()
	}
}

func (m *Metrics) frameProcessed(faces int) {
	if m != nil {
		m.FramesProcessed.Inc()
		m.FacesDetected.Add(float64(faces))
	}
}

func (m *Metrics) detectError() {
	if m != nil {
		m.DetectErrors.Inc()
	}
}

func (m *Metrics) recognition(known bool) {
	if m != nil {
		result := "unknown"
		if known {
			result = "known"
		}
		m.Recognitions.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) transition(o attendance.Outcome) {
	if m != nil {
		m.Transitions.WithLabelValues(string(o)).Inc()
	}
}

func (m *Metrics) queueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}

func (m *Metrics) loopIteration(d time.Duration, fps float64) {
	if m != nil {
		m.LoopDuration.Observe(d.Seconds())
		m.FPS.Set(fps)
	}
}

func (m *Metrics) setRunning(running bool) {
	if m != nil {
		if running {
			m.Running.Set(1)
		} else {
			m.Running.Set(0)
		}
	}
}

// queueHooks wires the attendance queue callbacks to the metrics.
func (m *Metrics) queueHooks() attendance.QueueHooks {
	if m == nil {
		return attendance.QueueHooks{}
	}
	return attendance.QueueHooks{
		OnRetry:  func(attendance.Intent, error) { m.StoreRetries.Inc() },
		OnFailed: func(attendance.Intent, error) { m.StoreFailures.Inc() },
	}
}
