package web

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuthManager — одноразовый токен входа и cookie-сессии дашборда.
type AuthManager struct {
	mu         sync.RWMutex
	token      string
	sessions   map[string]*Session
	sessionTTL time.Duration
	now        func() time.Time
}

// Session — активная сессия браузера.
type Session struct {
	ID        string
	CreatedAt time.Time
	LastSeen  time.Time
}

func NewAuthManager(sessionTTL time.Duration) *AuthManager {
	return &AuthManager{
		sessions:   make(map[string]*Session),
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// GenerateToken выпускает новый токен и сбрасывает все сессии.
func (am *AuthManager) GenerateToken() string {
	am.mu.Lock()
	defer am.mu.Unlock()

	am.token = uuid.New().String()
	am.sessions = make(map[string]*Session)
	return am.token
}

// ValidateToken гасит токен и открывает новую сессию. Токен одноразовый.
func (am *AuthManager) ValidateToken(token string) (string, bool) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if token == "" || am.token == "" || token != am.token {
		return "", false
	}
	am.token = ""

	sessionID := uuid.New().String()
	now := am.now()
	am.sessions[sessionID] = &Session{ID: sessionID, CreatedAt: now, LastSeen: now}
	return sessionID, true
}

// ValidateSession проверяет сессию и продлевает её.
func (am *AuthManager) ValidateSession(sessionID string) bool {
	am.mu.Lock()
	defer am.mu.Unlock()

	session, exists := am.sessions[sessionID]
	if !exists {
		return false
	}
	now := am.now()
	if now.Sub(session.LastSeen) > am.sessionTTL {
		delete(am.sessions, sessionID)
		return false
	}
	session.LastSeen = now
	return true
}

func (am *AuthManager) InvalidateSession(sessionID string) {
	am.mu.Lock()
	defer am.mu.Unlock()
	delete(am.sessions, sessionID)
}

// CleanExpiredSessions удаляет истекшие сессии.
func (am *AuthManager) CleanExpiredSessions() {
	am.mu.Lock()
	defer am.mu.Unlock()

	now := am.now()
	for id, session := range am.sessions {
		if now.Sub(session.LastSeen) > am.sessionTTL {
			delete(am.sessions, id)
		}
	}
}
