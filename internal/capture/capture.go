// Package capture reads frames from cameras and video streams with OpenCV.
package capture

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"
)

var (
	// ErrOpenFailed is returned when the device or stream cannot be opened.
	ErrOpenFailed = errors.New("cannot open capture source")

	// ErrReadFailed is returned when the source produced no frame.
	ErrReadFailed = errors.New("failed to read frame")
)

// Settings are requested from the device after opening. Zero values keep the device defaults.
type Settings struct {
	Width  int
	Height int
	FPS    int
}

// ParseDescriptor converts a camera descriptor to what OpenCV expects: a
// device index for numeric descriptors, otherwise a file path or stream URL.
func ParseDescriptor(descriptor string) (any, error) {
	d := strings.TrimSpace(descriptor)
	if d == "" {
		return nil, fmt.Errorf("%w: empty descriptor", ErrOpenFailed)
	}
	if idx, err := strconv.Atoi(d); err == nil {
		if idx < 0 {
			return nil, fmt.Errorf("%w: negative device index %d", ErrOpenFailed, idx)
		}
		return idx, nil
	}
	return d, nil
}

// Opener opens gocv capture sources.
type Opener struct {
	Settings Settings
}

// NewOpener creates an opener applying the given settings to every source.
func NewOpener(s Settings) *Opener {
	return &Opener{Settings: s}
}

// videoReader is the part of gocv.VideoCapture a Camera uses.
type videoReader interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// Camera is an open OpenCV capture source.
//
// Close never waits for a read in flight. When a read is blocked inside the
// device, Close returns at once and the device is released as soon as that
// read returns.
type Camera struct {
	descriptor string
	closed     atomic.Bool

	// mu serializes reads and the release of vc and frame
	mu       sync.Mutex
	vc       videoReader
	frame    gocv.Mat
	released bool
}

func newCamera(descriptor string, vc videoReader) *Camera {
	return &Camera{
		descriptor: descriptor,
		vc:         vc,
		frame:      gocv.NewMat(),
	}
}

// Open opens the source named by descriptor and applies the configured settings.
func (o *Opener) Open(descriptor string) (*Camera, error) {
	device, err := ParseDescriptor(descriptor)
	if err != nil {
		return nil, err
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrOpenFailed, descriptor, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w %q", ErrOpenFailed, descriptor)
	}

	if o.Settings.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(o.Settings.Width))
	}
	if o.Settings.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(o.Settings.Height))
	}
	if o.Settings.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(o.Settings.FPS))
	}
	// keep only the newest frame queued so reads stay close to real time
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	return newCamera(descriptor, vc), nil
}

// Descriptor returns the descriptor the camera was opened with.
func (c *Camera) Descriptor() string {
	return c.descriptor
}

var errCameraClosed = fmt.Errorf("%w: camera closed", ErrReadFailed)

// Read grabs the next frame. A frame that arrives after Close is dropped.
func (c *Camera) Read() (image.Image, error) {
	if c.closed.Load() {
		return nil, errCameraClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released || c.closed.Load() {
		return nil, errCameraClosed
	}

	ok := c.vc.Read(&c.frame)
	if c.closed.Load() {
		return nil, errCameraClosed
	}
	if !ok || c.frame.Empty() {
		return nil, ErrReadFailed
	}

	img, err := c.frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	return img, nil
}

// Close releases the device, or schedules its release when a read is in
// flight. Safe to call more than once.
func (c *Camera) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.mu.TryLock() {
		defer c.mu.Unlock()
		return c.release()
	}
	go func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		_ = c.release()
	}()
	return nil
}

// release must be called with mu held.
func (c *Camera) release() error {
	if c.released {
		return nil
	}
	c.released = true
	c.frame.Close()
	return c.vc.Close()
}
