package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-attendance/internal/database"
)

const (
	sessionCookieName = "face_attendance_session"
	sessionDuration   = 12 * time.Hour
	cleanupInterval   = 10 * time.Minute
	storeTimeout      = 5 * time.Second
)

// Session represents an admin session
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionManager handles session creation and validation.
// Sessions live in memory and, when a store is given, are written through to it
// so they survive restarts.
type SessionManager struct {
	secret   []byte
	sessions map[string]*Session
	mu       sync.RWMutex
	store    database.SessionStore
	stop     chan struct{}
	stopOnce sync.Once
}

// NewSessionManager creates a new session manager. store may be nil.
func NewSessionManager(secret string, store database.SessionStore) *SessionManager {
	// Use a default secret if none provided (for development)
	if secret == "" {
		secret = "face-attendance-dev-secret-change-in-production"
	}
	sm := &SessionManager{
		secret:   []byte(secret),
		sessions: make(map[string]*Session),
		store:    store,
		stop:     make(chan struct{}),
	}
	go sm.cleanupLoop()
	return sm
}

// Stop ends the background cleanup
func (sm *SessionManager) Stop() {
	sm.stopOnce.Do(func() { close(sm.stop) })
}

func (sm *SessionManager) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sm.stop:
			return
		case <-ticker.C:
			sm.cleanupExpired()
		}
	}
}

func (sm *SessionManager) cleanupExpired() {
	now := time.Now()
	sm.mu.Lock()
	for id, s := range sm.sessions {
		if now.After(s.ExpiresAt) {
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	if sm.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if n, err := sm.store.DeleteExpired(ctx); err != nil {
		log.WithError(err).Warn("deleting expired sessions")
	} else if n > 0 {
		log.WithField("count", n).Debug("deleted expired sessions")
	}
}

// CreateSession creates a new session
func (sm *SessionManager) CreateSession() (*Session, error) {
	idBytes := make([]byte, 32)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, err
	}
	now := time.Now()
	session := &Session{
		ID:        base64.URLEncoding.EncodeToString(idBytes),
		CreatedAt: now,
		ExpiresAt: now.Add(sessionDuration),
	}

	sm.mu.Lock()
	sm.sessions[session.ID] = session
	sm.mu.Unlock()

	if sm.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		err := sm.store.Save(ctx, database.StoredSession{ID: session.ID, CreatedAt: session.CreatedAt, ExpiresAt: session.ExpiresAt})
		if err != nil {
			log.WithError(err).Warn("persisting session")
		}
	}

	return session, nil
}

// GetSession retrieves a session by ID, falling back to the store on a miss
func (sm *SessionManager) GetSession(sessionID string) *Session {
	sm.mu.RLock()
	session, ok := sm.sessions[sessionID]
	sm.mu.RUnlock()

	if !ok && sm.store != nil {
		session = sm.loadSession(sessionID)
		ok = session != nil
	}
	if !ok {
		return nil
	}

	if time.Now().After(session.ExpiresAt) {
		sm.DeleteSession(sessionID)
		return nil
	}
	return session
}

func (sm *SessionManager) loadSession(sessionID string) *Session {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	stored, err := sm.store.Get(ctx, sessionID)
	if err != nil {
		log.WithError(err).Warn("loading session")
		return nil
	}
	if stored == nil {
		return nil
	}

	session := &Session{ID: stored.ID, CreatedAt: stored.CreatedAt, ExpiresAt: stored.ExpiresAt}
	sm.mu.Lock()
	sm.sessions[session.ID] = session
	sm.mu.Unlock()
	return session
}

// DeleteSession removes a session
func (sm *SessionManager) DeleteSession(sessionID string) {
	sm.mu.Lock()
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()

	if sm.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := sm.store.Delete(ctx, sessionID); err != nil {
			log.WithError(err).Warn("deleting session")
		}
	}
}

// SetSessionCookie sets the signed session cookie on the response
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, r *http.Request, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID + "." + sm.signData(session.ID),
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionDuration.Seconds()),
	})
}

// ClearSessionCookie removes the session cookie
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// GetSessionFromRequest extracts the session from the cookie or a bearer token
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) *Session {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if sessionID, signature, ok := strings.Cut(cookie.Value, "."); ok && sm.verifySignature(sessionID, signature) {
			if session := sm.GetSession(sessionID); session != nil {
				return session
			}
		}
	}

	if sessionID, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && sessionID != "" {
		return sm.GetSession(sessionID)
	}

	// Browsers cannot set headers on WebSocket upgrades
	if sessionID := r.URL.Query().Get("session"); sessionID != "" {
		return sm.GetSession(sessionID)
	}

	return nil
}

func (sm *SessionManager) signData(data string) string {
	h := hmac.New(sha256.New, sm.secret)
	h.Write([]byte(data))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

func (sm *SessionManager) verifySignature(data, signature string) bool {
	return hmac.Equal([]byte(signature), []byte(sm.signData(data)))
}

// SessionData is the public view of a session
type SessionData struct {
	SessionID string `json:"session_id"`
	ExpiresAt string `json:"expires_at"`
}

// ToJSON returns the session data for JSON response
func (s *Session) ToJSON() SessionData {
	return SessionData{
		SessionID: s.ID,
		ExpiresAt: s.ExpiresAt.Format(time.RFC3339),
	}
}

// MarshalJSON implements json.Marshaler
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToJSON())
}
