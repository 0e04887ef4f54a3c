package handlers

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/publisher"
)

const (
	defaultVideoInterval = constants.MJPEGReadInterval * time.Millisecond
	defaultPushInterval  = constants.WebSocketPushInterval * time.Millisecond
	defaultMaxEmptyReads = constants.MJPEGMaxConsecutiveMisses
	wsWriteTimeout       = constants.WebSocketWriteTimeout * time.Second
	mjpegBoundary        = constants.MJPEGBoundary
)

// FrameSource provides the latest annotated frame
type FrameSource interface {
	Latest() (publisher.Frame, bool)
}

// StreamHandler serves the preview frames. Every consumer paces its own reads
// and only ever reads the published frame.
type StreamHandler struct {
	frames        FrameSource
	videoInterval time.Duration
	pushInterval  time.Duration
	maxEmptyReads int
	upgrader      websocket.Upgrader
}

// NewStreamHandler creates a new stream handler. WebSocket upgrades use gorilla's
// same-origin check unless checkOrigin is set.
func NewStreamHandler(frames FrameSource, checkOrigin func(r *http.Request) bool) *StreamHandler {
	return &StreamHandler{
		frames:        frames,
		videoInterval: defaultVideoInterval,
		pushInterval:  defaultPushInterval,
		maxEmptyReads: defaultMaxEmptyReads,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// SetIntervals overrides the read cadence of the MJPEG and WebSocket streams
func (h *StreamHandler) SetIntervals(video, push time.Duration) {
	h.videoInterval = video
	h.pushInterval = push
}

func dataURL(jpeg []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
}

// Video streams frames as multipart/x-mixed-replace JPEG. The stream ends
// after maxEmptyReads consecutive reads without a frame.
func (h *StreamHandler) Video(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.videoInterval)
	defer ticker.Stop()

	sent, empty := 0, 0
	defer func() {
		log.WithFields(log.Fields{"frames": sent, "empty_reads": empty}).Debug("video stream ended")
	}()

	for empty < h.maxEmptyReads {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		frame, ok := h.frames.Latest()
		if !ok || len(frame.JPEG) == 0 {
			empty++
			continue
		}
		empty = 0

		header := fmt.Sprintf("--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(frame.JPEG))
		if _, err := w.Write([]byte(header)); err != nil {
			return
		}
		if _, err := w.Write(frame.JPEG); err != nil {
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return
		}
		flusher.Flush()
		sent++
	}
}

// SnapshotResponse is the base64 form of a single frame
type SnapshotResponse struct {
	Frame       string  `json:"frame"`
	Timestamp   string  `json:"timestamp"`
	Resolution  string  `json:"resolution"`
	FrameNumber uint64  `json:"frame_number"`
	FPS         float64 `json:"fps"`
}

// Frame returns the latest frame as JSON with a base64 data URL (default) or as raw JPEG with ?format=jpeg
func (h *StreamHandler) Frame(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "base64"
	}
	if format != "base64" && format != "jpeg" {
		respondError(w, http.StatusBadRequest, "format must be base64 or jpeg")
		return
	}

	frame, ok := h.frames.Latest()
	if !ok || len(frame.JPEG) == 0 {
		respondError(w, http.StatusNotFound, "no frame available")
		return
	}

	if format == "jpeg" {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(frame.JPEG)))
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Frame-Number", strconv.FormatUint(frame.FrameNumber, 10))
		w.WriteHeader(http.StatusOK)
		w.Write(frame.JPEG)
		return
	}

	respondJSON(w, http.StatusOK, SnapshotResponse{
		Frame:       dataURL(frame.JPEG),
		Timestamp:   frame.Timestamp.Format(time.RFC3339Nano),
		Resolution:  fmt.Sprintf("%dx%d", frame.Width, frame.Height),
		FrameNumber: frame.FrameNumber,
		FPS:         frame.FPS,
	})
}

// FrameMessage is pushed over the WebSocket
type FrameMessage struct {
	Type        string         `json:"type"`
	Frame       string         `json:"frame"`
	Timestamp   string         `json:"timestamp"`
	BlinkCounts map[string]int `json:"blink_counts"`
	FrameNumber uint64         `json:"frame_number"`
	FPS         float64        `json:"fps"`
}

// WebSocket pushes new frames with the per-identity blink counts. The socket
// is closed after maxEmptyReads consecutive ticks without a frame.
func (h *StreamHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// The client never sends anything meaningful; reading detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pushInterval)
	defer ticker.Stop()

	var last uint64
	empty := 0
	for empty < h.maxEmptyReads {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		frame, ok := h.frames.Latest()
		if !ok || len(frame.JPEG) == 0 {
			empty++
			continue
		}
		empty = 0
		if frame.FrameNumber == last {
			continue
		}
		last = frame.FrameNumber

		msg := FrameMessage{
			Type:        "frame",
			Frame:       dataURL(frame.JPEG),
			Timestamp:   frame.Timestamp.Format(time.RFC3339Nano),
			BlinkCounts: frame.BlinkCounts,
			FrameNumber: frame.FrameNumber,
			FPS:         frame.FPS,
		}
		if msg.BlinkCounts == nil {
			msg.BlinkCounts = map[string]int{}
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Debug("websocket write failed")
			}
			return
		}
	}

	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "no frames"))
}
