// Package auth gates TCP sessions: it parses connection strings, verifies
// credentials against the configured singletons, and manages time-bounded
// sessions.
package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tinycache/tinycache/config"
	"github.com/tinycache/tinycache/logger"
)

// Verifier checks a plain-text password against a stored hash. The hashing
// scheme is opaque to the rest of the system.
type Verifier interface {
	Verify(password, hash string) bool
}

// BcryptVerifier verifies bcrypt hashes.
type BcryptVerifier struct{}

// Verify reports whether password matches the bcrypt hash.
func (BcryptVerifier) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// HashPassword produces a bcrypt hash for storage in the configuration.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(h), err
}

// Session is one authenticated client's time-bounded credential.
type Session struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Database  string    `json:"database"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager owns the process-wide session map.
type Manager struct {
	cfg      *config.Config
	verifier Verifier
	log      *logger.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]Session
}

// Option adjusts a Manager; used by tests to pin the clock or verifier.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithVerifier overrides the password verifier.
func WithVerifier(v Verifier) Option { return func(m *Manager) { m.verifier = v } }

// NewManager builds a session manager over the configured credentials.
func NewManager(cfg *config.Config, log *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		verifier: BcryptVerifier{},
		log:      log,
		now:      time.Now,
		sessions: make(map[string]Session),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Authenticate validates a connection string against the configured
// credentials and mints a session on success. Expired sessions are reaped
// after every attempt that reaches the session store.
func (m *Manager) Authenticate(connStr string) (Session, error) {
	info, err := ParseConnectionString(connStr)
	if err != nil {
		return Session{}, err
	}

	if info.Username != m.cfg.Admin {
		return Session{}, errors.New("Invalid username")
	}
	if info.Database != m.cfg.Database {
		return Session{}, errors.New("Invalid database name")
	}
	if info.TypeName != m.cfg.DatabaseType {
		return Session{}, errors.New("Invalid database type")
	}
	if !m.verifier.Verify(info.Password, m.cfg.Password) {
		return Session{}, errors.New("Invalid password")
	}

	if m.log != nil {
		m.log.Info(logger.LevelSystem, info.Database, "user credentials are valid")
	}

	session := m.createSession(info.Username, info.Database)
	m.cleanupExpired()
	return session, nil
}

func (m *Manager) createSession(username, database string) Session {
	now := m.now()
	session := Session{
		ID:        uuid.NewString(),
		Username:  username,
		Database:  database,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.SessionTTL()),
	}
	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	if m.log != nil {
		m.log.Info(logger.LevelSystem, database, "session "+session.ID+" created successfully")
	}
	return session
}

// ValidateSession looks a session up; a live session has its expiry pushed
// out by a full TTL and is returned refreshed. Missing or expired sessions
// report false.
func (m *Manager) ValidateSession(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	now := m.now()
	if !session.ExpiresAt.After(now) {
		delete(m.sessions, id)
		return Session{}, false
	}
	session.ExpiresAt = now.Add(m.cfg.SessionTTL())
	m.sessions[id] = session
	return session, true
}

// cleanupExpired drops every session past its expiry.
func (m *Manager) cleanupExpired() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if !s.ExpiresAt.After(now) {
			delete(m.sessions, id)
		}
	}
}

// SessionCount reports live sessions (includes not-yet-reaped expired ones).
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
