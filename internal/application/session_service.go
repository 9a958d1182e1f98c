package application

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/mapview"
)

// MapSettings are the initial viewport and service area of new sessions.
type MapSettings struct {
	Center geo.GeoPoint
	Zoom   int
	Bounds geo.Bounds
}

// SessionService is the application service owning every live map session.
type SessionService struct {
	deps     Dependencies
	settings MapSettings
	logger   *zap.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	deps Dependencies,
	settings MapSettings,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		deps:     deps,
		settings: settings,
		logger:   logger,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Create mounts a new map session.
func (s *SessionService) Create() *Session {
	id := uuid.New()
	canvas := mapview.NewCanvas(s.settings.Center, s.settings.Zoom)
	session := NewSession(id, s.settings.Bounds, canvas, s.deps, s.logger)

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	s.logger.Debug("map session created", zap.String("session_id", id.String()))
	return session
}

// Get returns a live session.
func (s *SessionService) Get(id uuid.UUID) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.NewNotFoundError("Session", id.String())
	}
	return session, nil
}

// Close tears a session down and forgets it.
func (s *SessionService) Close(id uuid.UUID) error {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return domain.NewNotFoundError("Session", id.String())
	}

	session.Teardown()
	s.logger.Debug("map session closed", zap.String("session_id", id.String()))
	return nil
}

// Count returns the number of live sessions.
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Reap closes sessions idle for longer than idleTTL and returns how many it closed.
func (s *SessionService) Reap(idleTTL time.Duration) int {
	cutoff := time.Now().Add(-idleTTL)

	s.mu.Lock()
	var expired []*Session
	for id, session := range s.sessions {
		if session.LastActive().Before(cutoff) {
			expired = append(expired, session)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, session := range expired {
		session.Teardown()
	}
	if len(expired) > 0 {
		s.logger.Info("reaped idle map sessions", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// StartReaper runs Reap every interval until ctx is cancelled.
func (s *SessionService) StartReaper(ctx context.Context, interval, idleTTL time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Reap(idleTTL)
		}
	}
}

// Shutdown tears down every session.
func (s *SessionService) Shutdown() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[uuid.UUID]*Session)
	s.mu.Unlock()

	for _, session := range sessions {
		session.Teardown()
	}
}
