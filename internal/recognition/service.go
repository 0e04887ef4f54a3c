// Package recognition runs the capture loop: it reads frames, identifies known
// employees, confirms liveness and drives their attendance records.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/liveness"
	"github.com/kozaktomas/face-attendance/internal/publisher"
)

var (
	ErrAlreadyRunning        = errors.New("recognition system is already running")
	ErrNotRunning            = errors.New("recognition system is not running")
	ErrCapabilityUnavailable = errors.New("face detection capability unavailable")
	ErrCameraUnavailable     = errors.New("camera unavailable")
)

// FaceService detects faces and encodes reference images.
type FaceService interface {
	Ping(ctx context.Context) error
	DetectFaces(ctx context.Context, img image.Image) ([]facematch.Face, error)
	EncodeReference(ctx context.Context, imageData []byte) ([]float32, error)
	Model() string
}

// Source is an open frame source.
type Source interface {
	Read() (image.Image, error)
	Close() error
}

// SourceOpener opens frame sources by descriptor.
type SourceOpener interface {
	Open(descriptor string) (Source, error)
}

// SourceOpenerFunc adapts a function to SourceOpener.
type SourceOpenerFunc func(descriptor string) (Source, error)

func (f SourceOpenerFunc) Open(descriptor string) (Source, error) { return f(descriptor) }

// Enhancer improves a frame before detection.
type Enhancer interface {
	Enhance(img image.Image) image.Image
}

// Preview displays annotated frames locally.
type Preview interface {
	// Show displays img and reports whether the operator asked to stop.
	Show(img image.Image) bool
	Close() error
}

// Options are the tunables of the recognition service.
type Options struct {
	CameraSource     string
	CameraType       string
	Company          string
	Tolerance        float64
	DisplayThreshold float64
	Scale            float64
	EARThreshold     float64
	BlinkFrames      int
	BlinkThreshold   int
	CheckoutDelay    time.Duration
	Location         *time.Location
	QueueSize        int
	RetryAttempts    int
	LoopInterval     time.Duration
	StopTimeout      time.Duration
}

// OptionsFromConfig builds Options from the application configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	rc := cfg.Recognition
	return Options{
		CameraSource:     cfg.Camera.Source,
		CameraType:       cfg.Camera.Type,
		Company:          rc.Company,
		Tolerance:        rc.Tolerance,
		DisplayThreshold: rc.DisplayThreshold,
		Scale:            rc.Scale,
		EARThreshold:     rc.EyeARThreshold,
		BlinkFrames:      rc.BlinkFrames,
		BlinkThreshold:   rc.BlinkThreshold,
		CheckoutDelay:    rc.CheckoutDelay(),
		Location:         rc.Location(),
		QueueSize:        rc.QueueSize,
		RetryAttempts:    rc.RetryAttempts,
		LoopInterval:     time.Duration(rc.LoopIntervalMS) * time.Millisecond,
		StopTimeout:      time.Duration(rc.StopTimeoutSeconds) * time.Second,
	}
}

func (o *Options) applyDefaults() {
	if o.Tolerance <= 0 {
		o.Tolerance = 0.6
	}
	if o.DisplayThreshold <= 0 {
		o.DisplayThreshold = 0.4
	}
	if o.Scale <= 0 || o.Scale > 1 {
		o.Scale = 0.25
	}
	if o.EARThreshold <= 0 {
		o.EARThreshold = liveness.DefaultEARThreshold
	}
	if o.BlinkFrames <= 0 {
		o.BlinkFrames = liveness.DefaultBlinkFrames
	}
	if config.ValidateBlinkThreshold(o.BlinkThreshold) != nil {
		o.BlinkThreshold = liveness.DefaultBlinkThreshold
	}
	if o.CheckoutDelay <= 0 {
		o.CheckoutDelay = attendance.DefaultCheckoutDelay
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.LoopInterval <= 0 {
		o.LoopInterval = 30 * time.Millisecond
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 5 * time.Second
	}
}

// Deps are the collaborators of the recognition service. Enhancer, NewPreview,
// Embeddings, Settings, Metrics and Logger are optional.
type Deps struct {
	Faces      FaceService
	Cameras    SourceOpener
	Enhancer   Enhancer
	NewPreview func() Preview
	Employees  database.EmployeeSource
	Attendance attendance.Store
	Embeddings database.EmbeddingCache
	Settings   database.SettingsStore
	Publisher  *publisher.Publisher
	Metrics    *Metrics
	Logger     logrus.FieldLogger
	Clock      func() time.Time
}

// StartOptions are per-start parameters.
type StartOptions struct {
	ShowPreview bool
}

// Status is a snapshot of the service state.
type Status struct {
	Running              bool    `json:"running"`
	IdentitiesLoaded     int     `json:"identities_loaded"`
	CameraDescriptor     string  `json:"camera_descriptor"`
	CameraType           string  `json:"camera_type"`
	Company              string  `json:"company"`
	LivenessThreshold    int     `json:"liveness_threshold"`
	CheckoutDelayMinutes int     `json:"checkout_delay_minutes"`
	FrameNumber          uint64  `json:"frame_number"`
	FPS                  float64 `json:"fps"`
}

// session holds everything owned by one Start..Stop run.
type session struct {
	source  Source
	queue   *attendance.Queue
	machine *attendance.Machine
	tracker *liveness.Tracker
	preview Preview
	cancel  context.CancelFunc
	done    chan struct{}
}

// Service is the recognition orchestrator. One instance per process, shared
// by the HTTP handlers.
type Service struct {
	opts      Options
	faces     FaceService
	cameras   SourceOpener
	enhancer  Enhancer
	preview   func() Preview
	employees database.EmployeeSource
	store     attendance.Store
	cache     database.EmbeddingCache
	settings  database.SettingsStore
	publisher *publisher.Publisher
	metrics   *Metrics
	log       logrus.FieldLogger
	now       func() time.Time

	gallery *facematch.Gallery

	// lifecycle serializes Start and Stop
	lifecycle sync.Mutex

	mu      sync.RWMutex
	session *session
	camera  string

	blinkThreshold atomic.Int32
	checkoutDelay  atomic.Int64
	frameNumber    atomic.Uint64
	fps            atomic.Uint64 // math.Float64bits
}

// New creates an idle recognition service.
func New(opts Options, deps Deps) *Service {
	opts.applyDefaults()
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Publisher == nil {
		deps.Publisher = publisher.New()
	}

	s := &Service{
		opts:      opts,
		faces:     deps.Faces,
		cameras:   deps.Cameras,
		enhancer:  deps.Enhancer,
		preview:   deps.NewPreview,
		employees: deps.Employees,
		store:     deps.Attendance,
		cache:     deps.Embeddings,
		settings:  deps.Settings,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		log:       deps.Logger,
		now:       deps.Clock,
		gallery:   facematch.NewGallery(),
		camera:    opts.CameraSource,
	}
	s.blinkThreshold.Store(int32(opts.BlinkThreshold))
	s.checkoutDelay.Store(int64(opts.CheckoutDelay))
	return s
}

// Publisher returns the frame publisher read by preview consumers.
func (s *Service) Publisher() *publisher.Publisher {
	return s.publisher
}

// Running reports whether the capture loop is active.
func (s *Service) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session != nil
}

// SetCameraSource changes the descriptor used by the next Start.
func (s *Service) SetCameraSource(descriptor string) {
	s.mu.Lock()
	s.camera = descriptor
	s.mu.Unlock()
}

// Start loads the gallery, opens the camera, initializes today's records and
// spawns the capture loop. On failure everything acquired is released and the
// service stays idle.
func (s *Service) Start(ctx context.Context, so StartOptions) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.Running() {
		return ErrAlreadyRunning
	}

	if err := s.faces.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrCapabilityUnavailable, err)
	}

	gallery, err := s.loadGallery(ctx)
	if err != nil {
		return err
	}

	s.mu.RLock()
	descriptor := s.camera
	s.mu.RUnlock()

	source, err := s.cameras.Open(descriptor)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}
	// self-test: a camera that opens but delivers nothing is unusable
	if _, err := source.Read(); err != nil {
		_ = source.Close()
		return fmt.Errorf("%w: test frame: %w", ErrCameraUnavailable, err)
	}

	queue := attendance.NewQueue(s.store, s.opts.QueueSize, s.opts.RetryAttempts,
		attendance.WithQueueLogger(s.log.WithField("component", "attendance-queue")),
		attendance.WithQueueHooks(s.metrics.queueHooks()),
	)
	machine := attendance.NewMachine(s.store, queue, attendance.MachineConfig{
		Location:      s.opts.Location,
		CheckoutDelay: s.CheckoutDelay(),
		Camera:        s.opts.CameraType,
		Company:       s.opts.Company,
		Logger:        s.log.WithField("component", "attendance"),
	})

	now := s.now()
	for _, e := range gallery.Entries() {
		if err := machine.Initialize(ctx, e.Identity, e.EmployeeID, now); err != nil {
			_ = source.Close()
			return err
		}
	}

	sess := &session{
		source:  source,
		queue:   queue,
		machine: machine,
		tracker: liveness.NewTracker(s.opts.EARThreshold, s.opts.BlinkFrames, s.BlinkThreshold()),
		done:    make(chan struct{}),
	}
	if so.ShowPreview && s.preview != nil {
		sess.preview = s.preview()
	}

	// the loop outlives the request that started it
	loopCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel
	// the worker is stopped separately so pending writes can be drained
	queue.Start(context.Background())

	// the new gallery is only served once nothing above can fail
	s.gallery.Replace(gallery)
	s.frameNumber.Store(0)
	s.setFPS(0)
	s.publisher.Clear()

	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
	s.metrics.setRunning(true)

	go s.run(loopCtx, sess)

	s.log.WithFields(logrus.Fields{
		"camera":     descriptor,
		"identities": s.gallery.Identities(),
		"company":    s.opts.Company,
	}).Info("recognition started")
	return nil
}

// Stop ends the capture loop, waiting up to the stop timeout, releases the
// camera and flushes pending attendance writes.
func (s *Service) Stop() error {
	return s.stop(nil)
}

// stop ends the running session. When only is set, nothing happens unless it
// is still the running session.
func (s *Service) stop(only *session) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()
	if sess == nil || (only != nil && sess != only) {
		return ErrNotRunning
	}

	sess.cancel()
	select {
	case <-sess.done:
	case <-time.After(s.opts.StopTimeout):
		s.log.Warnf("capture loop did not stop within %s", s.opts.StopTimeout)
	}

	if err := sess.source.Close(); err != nil {
		s.log.WithError(err).Warn("closing capture source")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.StopTimeout)
	defer cancel()
	if err := sess.queue.Stop(ctx); err != nil {
		s.log.WithError(err).Error("pending attendance writes were not flushed")
	}

	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
	s.metrics.setRunning(false)
	s.setFPS(0)

	s.log.Info("recognition stopped")
	return nil
}

func (s *Service) cameraDescriptor() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.camera
}

// Status returns a snapshot of the service state.
func (s *Service) Status() Status {
	s.mu.RLock()
	running := s.session != nil
	camera := s.camera
	s.mu.RUnlock()

	return Status{
		Running:              running,
		IdentitiesLoaded:     s.gallery.Identities(),
		CameraDescriptor:     camera,
		CameraType:           s.opts.CameraType,
		Company:              s.opts.Company,
		LivenessThreshold:    s.BlinkThreshold(),
		CheckoutDelayMinutes: int(s.CheckoutDelay() / time.Minute),
		FrameNumber:          s.frameNumber.Load(),
		FPS:                  s.FPS(),
	}
}

// BlinkThreshold returns the number of blinks required for liveness.
func (s *Service) BlinkThreshold() int {
	return int(s.blinkThreshold.Load())
}

// SetBlinkThreshold changes the liveness threshold; the loop observes it on
// the next frame. The value is persisted to the company's camera settings when
// a settings store is configured.
func (s *Service) SetBlinkThreshold(ctx context.Context, n int) error {
	if err := config.ValidateBlinkThreshold(n); err != nil {
		return err
	}
	s.blinkThreshold.Store(int32(n))

	s.mu.RLock()
	if s.session != nil {
		s.session.tracker.SetBlinkThreshold(n)
	}
	s.mu.RUnlock()

	s.log.WithField("blink_threshold", n).Info("blink threshold updated")
	s.persistBlinkThreshold(ctx, n)
	return nil
}

func (s *Service) persistBlinkThreshold(ctx context.Context, n int) {
	if s.settings == nil || s.opts.Company == "" {
		return
	}
	settings, err := s.settings.GetCameraSettings(ctx, s.opts.Company)
	if err != nil {
		s.log.WithError(err).Warn("loading camera settings")
		return
	}
	if settings == nil {
		settings = &database.CameraSettings{
			Company:      s.opts.Company,
			CameraType:   s.opts.CameraType,
			CameraSource: s.opts.CameraSource,
		}
	}
	settings.BlinkThreshold = n
	if err := s.settings.SaveCameraSettings(ctx, settings); err != nil {
		s.log.WithError(err).Warn("saving camera settings")
	}
}

// CheckoutDelay returns the checkout debounce window.
func (s *Service) CheckoutDelay() time.Duration {
	return time.Duration(s.checkoutDelay.Load())
}

// SetCheckoutDelay changes the checkout debounce window, effective immediately.
func (s *Service) SetCheckoutDelay(minutes int) error {
	if err := config.ValidateCheckoutDelay(minutes); err != nil {
		return err
	}
	d := time.Duration(minutes) * time.Minute
	s.checkoutDelay.Store(int64(d))

	s.mu.RLock()
	if s.session != nil {
		s.session.machine.SetCheckoutDelay(d)
	}
	s.mu.RUnlock()

	s.log.WithField("checkout_delay_minutes", minutes).Info("checkout delay updated")
	return nil
}
