// Package session хранит сессии dev-сервера в памяти.
// Каждая сессия несет CSRF токен, который проверяется по схеме double-submit.
package session

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/labportal/internal/crypto"
)

// csrfTokenBytes длина случайной части CSRF токена
const csrfTokenBytes = 32

// ErrSessionNotFound сессия не существует или истекла
var ErrSessionNotFound = errors.New("session not found")

// Session состояние одной сессии
type Session struct {
	ExpiresAt time.Time
	ID        string
	CSRFToken string
	// UserID 0 для гостевой сессии
	UserID int64
}

// Authenticated сообщает, выполнен ли вход в этой сессии
func (s Session) Authenticated() bool {
	return s.UserID != 0
}

// Manager хранилище сессий со скользящим сроком жизни
type Manager struct {
	sessions map[string]*Session
	now      func() time.Time
	lifetime time.Duration
	mu       sync.Mutex
}

// Option настраивает Manager
type Option func(*Manager)

// WithClock подменяет часы (для тестов)
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager создает хранилище сессий
func NewManager(lifetime time.Duration, opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		now:      time.Now,
		lifetime: lifetime,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start создает гостевую сессию с новым CSRF токеном
func (m *Manager) Start() (Session, error) {
	token, err := newCSRFToken()
	if err != nil {
		return Session{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store(token, 0), nil
}

// Get возвращает живую сессию и продлевает ее
func (m *Manager) Get(id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	now := m.now()
	if !now.Before(s.ExpiresAt) {
		delete(m.sessions, id)
		return Session{}, ErrSessionNotFound
	}
	s.ExpiresAt = now.Add(m.lifetime)
	return *s, nil
}

// Login привязывает пользователя к сессии, меняя ее ID.
// CSRF токен сохраняется.
func (m *Manager) Login(id string, userID int64) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	delete(m.sessions, id)
	return m.store(s.CSRFToken, userID), nil
}

// Invalidate уничтожает сессию и выдает новую гостевую с новым токеном
func (m *Manager) Invalidate(id string) (Session, error) {
	token, err := newCSRFToken()
	if err != nil {
		return Session{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return m.store(token, 0), nil
}

// Forget удаляет сессию без замены
func (m *Manager) Forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Flush удаляет все сессии (как перезапуск сервера)
func (m *Manager) Flush() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.sessions)
	clear(m.sessions)
	return n
}

// Cleanup удаляет истекшие сессии, возвращает их количество
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Len количество хранимых сессий
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// store вызывается под mu
func (m *Manager) store(token string, userID int64) Session {
	s := &Session{
		ID:        uuid.NewString(),
		CSRFToken: token,
		UserID:    userID,
		ExpiresAt: m.now().Add(m.lifetime),
	}
	m.sessions[s.ID] = s
	return *s
}

// newCSRFToken генерирует токен в стандартном base64: '+', '/' и '='
// в cookie передаются URL-кодированными
func newCSRFToken() (string, error) {
	b, err := crypto.RandomBytes(csrfTokenBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
