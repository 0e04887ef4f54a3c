package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

func newAuth(t *testing.T, password string) (*AuthHandler, *middleware.SessionManager) {
	t.Helper()
	sm := middleware.NewSessionManager("secret", nil)
	t.Cleanup(sm.Stop)
	return NewAuthHandler(password, sm), sm
}

func TestAuthHandler_Login(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCookie bool
	}{
		{"valid password", `{"password":"hunter2"}`, http.StatusOK, true},
		{"wrong password", `{"password":"nope"}`, http.StatusUnauthorized, false},
		{"missing password", `{}`, http.StatusBadRequest, false},
		{"invalid JSON", `{`, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newAuth(t, "hunter2")
			w := httptest.NewRecorder()
			h.Login(w, httptest.NewRequest("POST", "/api/v1/auth/login", strings.NewReader(tt.body)))

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if got := len(w.Result().Cookies()) > 0; got != tt.wantCookie {
				t.Errorf("cookie set = %v, want %v", got, tt.wantCookie)
			}
			if tt.wantStatus == http.StatusOK {
				resp := decodeJSON[LoginResponse](t, w)
				if !resp.Success || resp.SessionID == "" {
					t.Errorf("unexpected response %+v", resp)
				}
			}
		})
	}
}

func TestAuthHandler_StatusAndLogout(t *testing.T) {
	h, sm := newAuth(t, "hunter2")
	session, _ := sm.CreateSession()

	req := httptest.NewRequest("GET", "/api/v1/auth/status", nil)
	req.Header.Set("Authorization", "Bearer "+session.ID)
	w := httptest.NewRecorder()
	h.Status(w, req)
	if resp := decodeJSON[StatusResponse](t, w); !resp.Authenticated || !resp.AuthRequired {
		t.Errorf("expected authenticated, got %+v", resp)
	}

	req = httptest.NewRequest("POST", "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+session.ID)
	h.Logout(httptest.NewRecorder(), req)
	if sm.GetSession(session.ID) != nil {
		t.Error("session still valid after logout")
	}

	w = httptest.NewRecorder()
	h.Status(w, httptest.NewRequest("GET", "/api/v1/auth/status", nil))
	if resp := decodeJSON[StatusResponse](t, w); resp.Authenticated {
		t.Errorf("expected unauthenticated, got %+v", resp)
	}
}

func TestAuthHandler_Disabled(t *testing.T) {
	h, _ := newAuth(t, "")

	w := httptest.NewRecorder()
	h.Status(w, httptest.NewRequest("GET", "/api/v1/auth/status", nil))
	if resp := decodeJSON[StatusResponse](t, w); !resp.Authenticated || resp.AuthRequired {
		t.Errorf("expected open access, got %+v", resp)
	}

	w = httptest.NewRecorder()
	h.Login(w, httptest.NewRequest("POST", "/api/v1/auth/login", strings.NewReader(`{"password":""}`)))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 when auth is disabled, got %d", w.Code)
	}
}
