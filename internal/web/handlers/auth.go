package handlers

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

// AuthHandler handles admin login with the configured password
type AuthHandler struct {
	passwordHash   [32]byte
	enabled        bool
	sessionManager *middleware.SessionManager
}

// NewAuthHandler creates a new auth handler. An empty password disables authentication.
func NewAuthHandler(adminPassword string, sm *middleware.SessionManager) *AuthHandler {
	return &AuthHandler{
		passwordHash:   sha256.Sum256([]byte(adminPassword)),
		enabled:        adminPassword != "",
		sessionManager: sm,
	}
}

// loginRequest keeps the password in an unexported field so it is never re-encoded
type loginRequest struct {
	password string
}

func (l *loginRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal login request: %w", err)
	}
	l.password = raw["password"]
	return nil
}

// LoginResponse represents a login response
type LoginResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Login creates a session when the admin password matches
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.enabled {
		respondError(w, http.StatusNotFound, "authentication is disabled")
		return
	}

	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.password == "" {
		respondError(w, http.StatusBadRequest, "password is required")
		return
	}

	got := sha256.Sum256([]byte(req.password))
	if subtle.ConstantTimeCompare(got[:], h.passwordHash[:]) != 1 {
		respondJSON(w, http.StatusUnauthorized, LoginResponse{Success: false, Error: "invalid credentials"})
		return
	}

	session, err := h.sessionManager.CreateSession()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	h.sessionManager.SetSessionCookie(w, r, session)

	data := session.ToJSON()
	respondJSON(w, http.StatusOK, LoginResponse{
		Success:   true,
		SessionID: data.SessionID,
		ExpiresAt: data.ExpiresAt,
	})
}

// Logout deletes the current session
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessionManager.GetSessionFromRequest(r); session != nil {
		h.sessionManager.DeleteSession(session.ID)
	}
	h.sessionManager.ClearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// StatusResponse represents the auth status response
type StatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	AuthRequired  bool   `json:"auth_required"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

// Status reports whether the caller holds a valid session
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !h.enabled {
		respondJSON(w, http.StatusOK, StatusResponse{Authenticated: true})
		return
	}
	session := h.sessionManager.GetSessionFromRequest(r)
	if session == nil {
		respondJSON(w, http.StatusOK, StatusResponse{AuthRequired: true})
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{
		Authenticated: true,
		AuthRequired:  true,
		ExpiresAt:     session.ToJSON().ExpiresAt,
	})
}
