package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
)

func newTestManager(t *testing.T, store database.SessionStore) *SessionManager {
	t.Helper()
	sm := NewSessionManager("test-secret", store)
	t.Cleanup(sm.Stop)
	return sm
}

func TestSessionManager_CreateSession(t *testing.T) {
	sm := newTestManager(t, nil)

	session, err := sm.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if session.ID == "" {
		t.Error("session ID is empty")
	}
	if session.ExpiresAt.Before(time.Now()) {
		t.Error("session expires in the past")
	}
	if got := sm.GetSession(session.ID); got == nil || got.ID != session.ID {
		t.Errorf("GetSession() = %v, want %s", got, session.ID)
	}
	if sm.GetSession("nonexistent-id") != nil {
		t.Error("GetSession() should return nil for non-existing session")
	}
}

func TestSessionManager_DeleteSession(t *testing.T) {
	store := mock.NewMockSessionStore()
	sm := newTestManager(t, store)

	session, _ := sm.CreateSession()
	if store.Len() != 1 {
		t.Fatalf("store has %d sessions, want 1", store.Len())
	}

	sm.DeleteSession(session.ID)

	if sm.GetSession(session.ID) != nil {
		t.Error("GetSession() should return nil after deletion")
	}
	if store.Len() != 0 {
		t.Errorf("store has %d sessions after delete, want 0", store.Len())
	}
}

func TestSessionManager_ExpiredSession(t *testing.T) {
	sm := newTestManager(t, nil)
	session, _ := sm.CreateSession()
	session.ExpiresAt = time.Now().Add(-time.Minute)

	if sm.GetSession(session.ID) != nil {
		t.Error("expired session returned")
	}
}

func TestSessionManager_SurvivesRestart(t *testing.T) {
	store := mock.NewMockSessionStore()
	first := newTestManager(t, store)
	session, _ := first.CreateSession()
	first.Stop()

	second := newTestManager(t, store)
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+session.ID)

	if got := second.GetSessionFromRequest(req); got == nil || got.ID != session.ID {
		t.Errorf("session not restored from store: %v", got)
	}
}

func TestSessionManager_CleanupExpired(t *testing.T) {
	store := mock.NewMockSessionStore()
	sm := newTestManager(t, store)
	_ = store.Save(context.Background(), database.StoredSession{ID: "old", ExpiresAt: time.Now().Add(-time.Hour)})
	live, _ := sm.CreateSession()

	sm.cleanupExpired()

	if store.Len() != 1 {
		t.Errorf("store has %d sessions, want only the live one", store.Len())
	}
	if sm.GetSession(live.ID) == nil {
		t.Error("live session removed by cleanup")
	}
}

func TestSessionManager_Cookie(t *testing.T) {
	sm := newTestManager(t, nil)
	session, _ := sm.CreateSession()

	w := httptest.NewRecorder()
	sm.SetSessionCookie(w, httptest.NewRequest("GET", "/", nil), session)

	var sessionCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("Session cookie not found")
	}
	if !sessionCookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(sessionCookie)
	if got := sm.GetSessionFromRequest(req); got == nil || got.ID != session.ID {
		t.Errorf("GetSessionFromRequest() = %v, want %s", got, session.ID)
	}

	// A cookie signed with another secret is rejected
	other := newTestManager(t, nil)
	req = httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: session.ID + "." + other.signData(session.ID)})
	if sm.GetSessionFromRequest(req) != nil {
		t.Error("GetSessionFromRequest() should reject a foreign signature")
	}
}

func TestSessionManager_QueryParam(t *testing.T) {
	sm := newTestManager(t, nil)
	session, _ := sm.CreateSession()

	req := httptest.NewRequest("GET", "/api/v1/stream/ws?session="+session.ID, nil)
	if got := sm.GetSessionFromRequest(req); got == nil {
		t.Error("session from query parameter not accepted")
	}
}

func TestSessionManager_ClearSessionCookie(t *testing.T) {
	sm := newTestManager(t, nil)

	w := httptest.NewRecorder()
	sm.ClearSessionCookie(w)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != sessionCookieName {
		t.Fatalf("unexpected cookies %v", cookies)
	}
	if cookies[0].MaxAge != -1 {
		t.Errorf("MaxAge = %d, want -1 (expired)", cookies[0].MaxAge)
	}
}

func TestRequireAuth(t *testing.T) {
	sm := newTestManager(t, nil)
	session, _ := sm.CreateSession()

	handlerCalled := false
	protected := RequireAuth(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		if GetSessionFromContext(r.Context()) == nil {
			t.Error("Session not found in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid session", func(t *testing.T) {
		handlerCalled = false
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+session.ID)

		protected.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		if !handlerCalled {
			t.Error("Handler was not called")
		}
	})

	t.Run("no session", func(t *testing.T) {
		handlerCalled = false
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, httptest.NewRequest("POST", "/protected", nil))

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if handlerCalled {
			t.Error("Handler should not be called for unauthorized request")
		}
	})
}

func TestSession_MarshalJSON(t *testing.T) {
	session := &Session{ID: "test123", CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}

	data, err := session.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if !strings.Contains(string(data), `"session_id":"test123"`) {
		t.Errorf("unexpected JSON %s", data)
	}
	if strings.Contains(string(data), "created_at") {
		t.Error("JSON should only expose id and expiry")
	}
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://kiosk.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://kiosk.example.com", true},
		{"http://localhost:5173", true},
		{"http://localhost", true},
		{"http://localhost.evil.com", false},
		{"https://evil.example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			handler.ServeHTTP(w, req)

			got := w.Header().Get("Access-Control-Allow-Origin")
			if tt.allowed && got != tt.origin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.origin)
			}
			if !tt.allowed && got != "" {
				t.Errorf("Allow-Origin = %q, want none", got)
			}
		})
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("OPTIONS", "/", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
}
