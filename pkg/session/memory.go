package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a thread-safe in-memory Store with TTL-based cleanup.
// Suitable for single-node deployments; distributed setups use the
// Redis-backed store instead.
type MemoryStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	maxAge          time.Duration
	cleanupInterval time.Duration

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// MemoryOption is a functional option for configuring MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMaxAge sets the idle TTL before a session is dropped.
func WithMaxAge(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.maxAge = d
	}
}

// WithCleanupInterval sets how often the cleanup routine runs.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.cleanupInterval = d
	}
}

// NewMemoryStore creates an in-memory store and starts its cleanup
// goroutine. Close stops the goroutine.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		sessions:        make(map[string]*Session),
		maxAge:          1 * time.Hour,
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// Get retrieves a session by ID. Returns nil, nil if not found or expired;
// actual removal of stale entries happens in the cleanup loop.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	if time.Since(sess.LastTurnAt) > s.maxAge {
		return nil, nil
	}
	return sess, nil
}

// Save creates or updates a session.
func (s *MemoryStore) Save(_ context.Context, sess *Session) error {
	if sess == nil {
		return fmt.Errorf("session is nil")
	}
	if sess.ID == "" {
		return fmt.Errorf("session ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	if sess.LastTurnAt.IsZero() {
		sess.LastTurnAt = time.Now()
	}

	s.sessions[sess.ID] = sess
	return nil
}

// Delete removes a session. Deleting a missing session is a no-op.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// List returns all live sessions.
func (s *MemoryStore) List(_ context.Context) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if time.Since(sess.LastTurnAt) > s.maxAge {
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

// Count returns the number of stored sessions, including any not yet
// swept by cleanup.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, sess := range s.sessions {
		if now.Sub(sess.LastTurnAt) > s.maxAge {
			delete(s.sessions, id)
		}
	}
}
