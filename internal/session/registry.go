package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned for an unknown session id.
var ErrNotFound = errors.New("session not found")

// IDPrefix prefixes generated session ids.
const IDPrefix = "ses_"

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Loader Loader
	Logger zerolog.Logger
	// MaxSessions caps live sessions; the oldest is evicted beyond it. Default: 1000
	MaxSessions int
	// Debounce is passed to each session's URL syncer.
	Debounce time.Duration
}

// Registry keeps sessions in memory.
type Registry struct {
	loader   Loader
	logger   zerolog.Logger
	max      int
	debounce time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1000
	}
	return &Registry{
		loader:   cfg.Loader,
		logger:   cfg.Logger,
		max:      cfg.MaxSessions,
		debounce: cfg.Debounce,
		sessions: make(map[string]*Session),
	}
}

// Create initializes a session from query and registers it.
func (r *Registry) Create(ctx context.Context, query string) (*Session, error) {
	s := New(Config{
		ID:       IDPrefix + uuid.New().String(),
		Loader:   r.loader,
		Logger:   r.logger,
		Debounce: r.debounce,
	})
	if err := s.Init(ctx, query); err != nil {
		s.Close()
		return nil, err
	}

	r.mu.Lock()
	if len(r.sessions) >= r.max {
		r.evictOldestLocked()
	}
	r.sessions[s.ID()] = s
	r.mu.Unlock()
	return s, nil
}

func (r *Registry) evictOldestLocked() {
	var oldest *Session
	for _, s := range r.sessions {
		if oldest == nil || s.CreatedAt().Before(oldest.CreatedAt()) {
			oldest = s
		}
	}
	if oldest != nil {
		delete(r.sessions, oldest.ID())
		oldest.Close()
		r.logger.Info().Str("session_id", oldest.ID()).Msg("evicted session")
	}
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete closes and removes the session with id.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.Close()
	return nil
}

// Sweep removes sessions older than maxAge and returns how many were removed.
func (r *Registry) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if s.CreatedAt().Before(cutoff) {
			delete(r.sessions, id)
			s.Close()
			n++
		}
	}
	return n
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
