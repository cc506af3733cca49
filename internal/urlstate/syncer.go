package urlstate

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultDebounce is the write window for URL updates.
const DefaultDebounce = 300 * time.Millisecond

// HistoryWriter replaces the current history entry's query without adding a
// navigation entry.
type HistoryWriter interface {
	ReplaceState(query string) error
}

// HistoryWriterFunc adapts a function to HistoryWriter.
type HistoryWriterFunc func(query string) error

// ReplaceState implements HistoryWriter.
func (f HistoryWriterFunc) ReplaceState(query string) error { return f(query) }

// Timer is the handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Phase is the syncer lifecycle.
type Phase int

const (
	// Initializing suppresses every write.
	Initializing Phase = iota
	// Ready debounces writes.
	Ready
	// Stopped drops every write.
	Stopped
)

func (p Phase) String() string {
	switch p {
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	default:
		return "stopped"
	}
}

// SyncerConfig configures a Syncer.
type SyncerConfig struct {
	Writer HistoryWriter
	// Debounce is the quiet period before a write. Default: 300ms
	Debounce time.Duration
	Clock    Clock
	Logger   zerolog.Logger
}

// Syncer writes state to the URL. It starts Initializing, where notifications
// are dropped, and moves to Ready on MarkReady. While Ready, a burst of
// notifications collapses into one write of the latest state once the
// debounce window passes without a new one.
type Syncer struct {
	writer   HistoryWriter
	debounce time.Duration
	clock    Clock
	logger   zerolog.Logger

	mu         sync.Mutex
	phase      Phase
	pending    *State
	timer      Timer
	seq        uint64
	last       string
	writes     int
	suppressed int
}

// NewSyncer creates a syncer in the Initializing phase.
func NewSyncer(cfg SyncerConfig) *Syncer {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	return &Syncer{
		writer:   cfg.Writer,
		debounce: cfg.Debounce,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
}

// Phase returns the lifecycle phase.
func (s *Syncer) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// MarkReady ends initialization. Only notifications after this call are written.
func (s *Syncer) MarkReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == Initializing {
		s.phase = Ready
		s.logger.Debug().Int("suppressed", s.suppressed).Msg("url sync ready")
	}
}

// Notify schedules a write of state, restarting the debounce window.
func (s *Syncer) Notify(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != Ready {
		s.suppressed++
		return
	}

	c := state.Clone()
	s.pending = &c
	if s.timer != nil {
		s.timer.Stop()
	}
	s.seq++
	seq := s.seq
	s.timer = s.clock.AfterFunc(s.debounce, func() { s.fire(seq) })
}

func (s *Syncer) fire(seq uint64) {
	s.mu.Lock()
	if seq != s.seq || s.pending == nil || s.phase != Ready {
		s.mu.Unlock()
		return
	}
	query := s.takeLocked()
	s.mu.Unlock()

	s.write(query)
}

// takeLocked consumes the pending state and returns its query, or nil when it
// matches the last write.
func (s *Syncer) takeLocked() *string {
	state := *s.pending
	s.pending = nil
	s.timer = nil

	query := Encode(state)
	if query == s.last && s.writes > 0 {
		return nil
	}
	s.last = query
	s.writes++
	return &query
}

func (s *Syncer) write(query *string) {
	if query == nil || s.writer == nil {
		return
	}
	if err := s.writer.ReplaceState(*query); err != nil {
		s.logger.Warn().Err(err).Msg("failed to update url")
	}
}

// Flush writes any pending state immediately.
func (s *Syncer) Flush() {
	s.mu.Lock()
	if s.pending == nil || s.phase != Ready {
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.seq++
	query := s.takeLocked()
	s.mu.Unlock()

	s.write(query)
}

// Stop cancels any pending write and drops future notifications.
func (s *Syncer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
	s.phase = Stopped
}

// Last returns the most recently written query.
func (s *Syncer) Last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Pending reports whether a write is scheduled.
func (s *Syncer) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}
