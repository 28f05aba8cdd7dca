package store

import (
	"context"
	"sync"
	"time"

	"image.gen/internal/models"
)

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

type MemoryStore struct {
	sessions      map[string]*models.Session
	mu            sync.RWMutex
	cleanupCancel context.CancelFunc
}

func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	ctx, cancel := context.WithCancel(context.Background())
	store := &MemoryStore{
		sessions:      make(map[string]*models.Session),
		cleanupCancel: cancel,
	}
	go store.cleanupLoop(ctx, cleanupInterval)
	return store
}

func (s *MemoryStore) Save(ctx context.Context, session *models.Session) error {
	if session.Expired(time.Now()) {
		return ErrExpired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	if session.Expired(time.Now()) {
		return nil, ErrExpired
	}

	cp := *session
	return &cp, nil
}

// Len reports how many sessions are held, expired ones included until the
// next sweep.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) SetAuthenticated(ctx context.Context, id string, ok bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, found := s.sessions[id]
	if !found {
		return ErrNotFound
	}

	if session.Expired(time.Now()) {
		delete(s.sessions, id)
		return ErrExpired
	}

	session.Authenticated = ok
	return nil
}

func (s *MemoryStore) Close() error {
	if s.cleanupCancel != nil {
		s.cleanupCancel()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil
	return nil
}

func (s *MemoryStore) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
		}
	}
}
