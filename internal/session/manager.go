// Package session tracks the server-side identity of every live
// connection. A session is created when a connection registers a user,
// renewed by activity, and reaped once its lease expires.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySessions = errors.New("session limit reached")
	// ErrRegisterRateLimited is returned when a connection hammers
	// register_user; the gateway disconnects the offender.
	ErrRegisterRateLimited = errors.New("too many registration attempts")
)

const (
	registerAttemptLimit  = 3
	registerAttemptWindow = 5 * time.Second

	cleanupInterval = 30 * time.Second
)

// Session is one registered connection.
type Session struct {
	ID         string
	ConnID     string
	UserID     string
	Name       string
	CreatedAt  time.Time
	LastActive time.Time
}

// Manager owns the session table and the register_user rate limiter.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session // keyed by ConnID
	attempts    map[string][]time.Time
	leasePeriod time.Duration
	maxSessions int
	logger      *zap.Logger
	now         func() time.Time
}

// NewManager creates a session manager. A maxSessions of zero disables
// the session cap.
func NewManager(leasePeriod time.Duration, maxSessions int, logger *zap.Logger) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		attempts:    make(map[string][]time.Time),
		leasePeriod: leasePeriod,
		maxSessions: maxSessions,
		logger:      logger,
		now:         time.Now,
	}
}

// RecordRegisterAttempt notes one register_user call from a connection
// and rejects it once the connection reaches the per-window limit.
func (m *Manager) RecordRegisterAttempt(connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-registerAttemptWindow)
	kept := m.attempts[connID][:0]
	for _, at := range m.attempts[connID] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	kept = append(kept, now)
	m.attempts[connID] = kept

	if len(kept) >= registerAttemptLimit {
		m.logger.Warn("registration rate limit exceeded",
			zap.String("conn_id", connID),
			zap.Int("attempts", len(kept)),
		)
		return ErrRegisterRateLimited
	}
	return nil
}

// Register creates (or replaces) the session for a connection.
func (m *Manager) Register(connID, userID, name string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[connID]; !exists && m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		return nil, ErrTooManySessions
	}

	now := m.now()
	s := &Session{
		ID:         uuid.New().String(),
		ConnID:     connID,
		UserID:     userID,
		Name:       name,
		CreatedAt:  now,
		LastActive: now,
	}
	m.sessions[connID] = s

	m.logger.Info("session registered",
		zap.String("session_id", s.ID),
		zap.String("conn_id", connID),
		zap.String("user_id", userID),
		zap.String("name", name),
	)
	cp := *s
	return &cp, nil
}

// Get returns the session for a connection.
func (m *Manager) Get(connID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[connID]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

// Touch renews the session's lease.
func (m *Manager) Touch(connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[connID]
	if !ok {
		return ErrSessionNotFound
	}
	s.LastActive = m.now()
	return nil
}

// Remove drops a connection's session and rate-limiter history.
func (m *Manager) Remove(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[connID]; ok {
		delete(m.sessions, connID)
		m.logger.Info("session removed",
			zap.String("session_id", s.ID),
			zap.String("conn_id", connID),
		)
	}
	delete(m.attempts, connID)
}

// ActiveSessions returns the number of live sessions.
func (m *Manager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupExpiredSessions periodically reaps sessions whose lease has
// lapsed. It blocks until the context is cancelled.
func (m *Manager) CleanupExpiredSessions(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reapExpired()
		}
	}
}

func (m *Manager) reapExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.leasePeriod)
	for connID, s := range m.sessions {
		if s.LastActive.Before(cutoff) {
			delete(m.sessions, connID)
			delete(m.attempts, connID)
			m.logger.Info("session expired",
				zap.String("session_id", s.ID),
				zap.String("conn_id", connID),
				zap.Time("last_active", s.LastActive),
			)
		}
	}
}

// CloseAll drops every session; used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.sessions)
	m.sessions = make(map[string]*Session)
	m.attempts = make(map[string][]time.Time)
	if n > 0 {
		m.logger.Info("closed all sessions", zap.Int("count", n))
	}
}
