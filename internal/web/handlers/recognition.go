package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// Recognizer is the control surface of the recognition service
type Recognizer interface {
	Start(ctx context.Context, opts recognition.StartOptions) error
	Stop() error
	Status() recognition.Status
	SetBlinkThreshold(ctx context.Context, n int) error
	SetCheckoutDelay(minutes int) error
}

// RecognitionHandler starts, stops and tunes the recognition loop
type RecognitionHandler struct {
	service Recognizer
}

// NewRecognitionHandler creates a new recognition handler
func NewRecognitionHandler(service Recognizer) *RecognitionHandler {
	return &RecognitionHandler{service: service}
}

type startRequest struct {
	ShowPreview bool `json:"show_preview"`
}

// ControlResponse is returned by start and stop
type ControlResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

func statusName(running bool) string {
	if running {
		return "active"
	}
	return "inactive"
}

// Start starts the recognition loop. The body is optional.
func (h *RecognitionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	err := h.service.Start(r.Context(), recognition.StartOptions{ShowPreview: req.ShowPreview})
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, ControlResponse{Message: "Recognition system started", Status: statusName(true)})
	case errors.Is(err, recognition.ErrAlreadyRunning):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, recognition.ErrCapabilityUnavailable), errors.Is(err, recognition.ErrCameraUnavailable):
		log.WithError(err).Warn("recognition start failed")
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, facematch.ErrEmptyGallery):
		log.WithError(err).Warn("recognition start failed")
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.WithError(err).Error("recognition start failed")
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// Stop stops the recognition loop
func (h *RecognitionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	err := h.service.Stop()
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, ControlResponse{Message: "Recognition system stopped", Status: statusName(false)})
	case errors.Is(err, recognition.ErrNotRunning):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// RecognitionStatusResponse is the service snapshot with the textual status
type RecognitionStatusResponse struct {
	State string `json:"status"`
	recognition.Status
}

// Status returns the service snapshot
func (h *RecognitionHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.service.Status()
	respondJSON(w, http.StatusOK, RecognitionStatusResponse{State: statusName(st.Running), Status: st})
}

// ConfigResponse holds the runtime tunables
type ConfigResponse struct {
	BlinkThreshold       int `json:"blink_threshold"`
	CheckoutDelayMinutes int `json:"checkout_delay_minutes"`
}

type configRequest struct {
	BlinkThreshold       *int `json:"blink_threshold"`
	CheckoutDelayMinutes *int `json:"checkout_delay_minutes"`
}

// GetConfig returns the runtime tunables
func (h *RecognitionHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	st := h.service.Status()
	respondJSON(w, http.StatusOK, ConfigResponse{
		BlinkThreshold:       st.LivenessThreshold,
		CheckoutDelayMinutes: st.CheckoutDelayMinutes,
	})
}

// UpdateConfig changes the blink threshold and/or checkout delay.
// Both values are validated before either is applied.
func (h *RecognitionHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.BlinkThreshold == nil && req.CheckoutDelayMinutes == nil {
		respondError(w, http.StatusBadRequest, "blink_threshold or checkout_delay_minutes is required")
		return
	}

	if req.BlinkThreshold != nil {
		if err := config.ValidateBlinkThreshold(*req.BlinkThreshold); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.CheckoutDelayMinutes != nil {
		if err := config.ValidateCheckoutDelay(*req.CheckoutDelayMinutes); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if req.BlinkThreshold != nil {
		if err := h.service.SetBlinkThreshold(r.Context(), *req.BlinkThreshold); err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if req.CheckoutDelayMinutes != nil {
		if err := h.service.SetCheckoutDelay(*req.CheckoutDelayMinutes); err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	h.GetConfig(w, r)
}
