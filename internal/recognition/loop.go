package recognition

import (
	"context"
	"image"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-attendance/internal/annotate"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/fingerprint"
	"github.com/kozaktomas/face-attendance/internal/liveness"
	"github.com/kozaktomas/face-attendance/internal/publisher"
)

// fpsCounter measures frames per second over a sliding one-second window.
type fpsCounter struct {
	windowStart time.Time
	frames      int
	fps         float64
}

func (c *fpsCounter) tick(now time.Time) float64 {
	if c.windowStart.IsZero() {
		c.windowStart = now
	}
	c.frames++
	if elapsed := now.Sub(c.windowStart); elapsed >= time.Second {
		c.fps = float64(c.frames) / elapsed.Seconds()
		c.frames = 0
		c.windowStart = now
	}
	return c.fps
}

// run is the capture loop. It owns the session's tracker and machine.
func (s *Service) run(ctx context.Context, sess *session) {
	defer close(sess.done)
	if sess.preview != nil {
		defer func() { _ = sess.preview.Close() }()
	}

	log := s.log.WithField("component", "capture-loop")
	var (
		frameCount int
		fps        fpsCounter
		annotated  image.Image
		faces      int
	)

	for {
		if ctx.Err() != nil {
			return
		}
		started := time.Now()

		frame, err := sess.source.Read()
		if err != nil {
			s.metrics.readError()
			log.WithError(err).Debug("frame read failed")
			if !sleepCtx(ctx, constants.ReadRetryDelay*time.Millisecond) {
				return
			}
			continue
		}
		s.metrics.frameRead()

		frameCount++
		number := s.frameNumber.Add(1)
		current := s.setFPS(fps.tick(time.Now()))

		out := frame
		if frameCount%constants.ProcessEveryNthFrame == 0 {
			if processed, n, ok := s.processFrame(ctx, sess, frame, log); ok {
				annotated, faces, out = processed, n, processed
			} else {
				annotated, faces = nil, 0
			}
		} else if annotated != nil {
			out = annotated
		}
		s.publish(sess, out, number, current, faces, log)

		if sess.preview != nil && sess.preview.Show(out) {
			log.Info("stop requested from preview window")
			go func() {
				if err := s.stop(sess); err != nil {
					log.WithError(err).Debug("stop from preview")
				}
			}()
			return
		}

		if !s.pause(ctx, sess, started, current) {
			return
		}
	}
}

// pause records the iteration metrics and sleeps the loop interval.
func (s *Service) pause(ctx context.Context, sess *session, started time.Time, fps float64) bool {
	s.metrics.loopIteration(time.Since(started), fps)
	s.metrics.queueDepth(sess.queue.Len())
	return sleepCtx(ctx, s.opts.LoopInterval)
}

// processFrame runs detection, matching, liveness and attendance on frame and
// returns the annotated full-resolution image. ok is false when the face
// service failed.
func (s *Service) processFrame(ctx context.Context, sess *session, frame image.Image, log logrus.FieldLogger) (image.Image, int, bool) {
	input := frame
	if s.enhancer != nil {
		input = s.enhancer.Enhance(frame)
	}
	small := fingerprint.Downscale(input, s.opts.Scale)

	detected, err := s.faces.DetectFaces(ctx, small)
	if err != nil {
		s.metrics.detectError()
		if ctx.Err() == nil {
			log.WithError(err).Warn("face detection failed")
		}
		return nil, 0, false
	}
	s.metrics.frameProcessed(len(detected))

	// the downscaled image may be rounded, so map back with the actual ratio
	factor := 1 / s.opts.Scale
	if w := small.Bounds().Dx(); w > 0 {
		factor = float64(frame.Bounds().Dx()) / float64(w)
	}

	now := s.now()
	matches := make([]facematch.Match, len(detected))
	closest := make(map[string]int, len(detected))
	for i, face := range detected {
		match := s.gallery.Match(face.Embedding, s.opts.Tolerance)
		s.metrics.recognition(match.Known())
		matches[i] = match
		if !match.Actionable(s.opts.DisplayThreshold) {
			continue
		}
		if j, ok := closest[match.Identity]; !ok || match.Distance < matches[j].Distance {
			closest[match.Identity] = i
		}
	}

	// each identity is observed once per frame, through its closest face
	for i, face := range detected {
		if j, ok := closest[matches[i].Identity]; ok && j == i {
			s.observe(sess, matches[i].Identity, face.Landmarks, now, log)
		}
	}

	labels := make([]annotate.FaceLabel, 0, len(detected))
	for i, face := range detected {
		match := matches[i]
		label := annotate.FaceLabel{
			BBox:  facematch.ScaleBBox(face.BBox, factor),
			Match: match,
		}
		if match.Known() {
			if rec, ok := sess.machine.Record(match.Identity); ok {
				label.CheckedIn = rec.CheckedIn()
				label.CheckedOut = rec.CheckedOut()
			}
			label.Blinks = sess.tracker.Blinks(match.Identity)
		}
		labels = append(labels, label)
	}

	overlay := annotate.Overlay{
		Company:         s.opts.Company,
		EmployeesLoaded: s.gallery.Identities(),
		CameraType:      s.opts.CameraType,
		CameraSource:    s.cameraDescriptor(),
		BlinkThreshold:  sess.tracker.BlinkThreshold(),
		Time:            now.In(s.opts.Location),
	}
	return annotate.Draw(frame, labels, overlay), len(detected), true
}

// observe feeds liveness for identity and, once live, dispatches the due
// attendance transition. Blinks are reset after a successful transition.
func (s *Service) observe(sess *session, identity string, landmarks []facematch.Point, now time.Time, log logrus.FieldLogger) {
	ear, ok := liveness.FrameEAR(landmarks)
	if !ok {
		return
	}
	if !sess.tracker.Observe(identity, ear) {
		return
	}

	outcome := sess.machine.Dispatch(identity, now)
	s.metrics.transition(outcome)
	if outcome.Changed() {
		sess.tracker.Reset(identity)
		log.WithFields(logrus.Fields{"identity": identity, "outcome": outcome}).Info("attendance updated")
	}
	if outcome == attendance.OutcomeFailed {
		log.WithField("identity", identity).Warn("attendance transition failed, will retry on next confirmation")
	}
}

func (s *Service) publish(sess *session, img image.Image, number uint64, fps float64, faces int, log logrus.FieldLogger) {
	data, err := annotate.EncodeJPEG(img, constants.JPEGQuality)
	if err != nil {
		log.WithError(err).Warn("encoding frame")
		return
	}
	b := img.Bounds()
	s.publisher.Publish(publisher.Frame{
		JPEG:        data,
		Width:       b.Dx(),
		Height:      b.Dy(),
		Timestamp:   s.now(),
		FrameNumber: number,
		FPS:         fps,
		BlinkCounts: sess.tracker.Counts(),
		Faces:       faces,
	})
}

// FPS returns the last measured loop frame rate.
func (s *Service) FPS() float64 {
	return math.Float64frombits(s.fps.Load())
}

func (s *Service) setFPS(v float64) float64 {
	s.fps.Store(math.Float64bits(v))
	return v
}

// sleepCtx sleeps for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
