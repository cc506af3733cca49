// Package session holds the explicit application state of one map view and
// dispatches typed commands against it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sewik-mapa/sewikmapa/internal/accident"
	"github.com/sewik-mapa/sewikmapa/internal/dataset"
	"github.com/sewik-mapa/sewikmapa/internal/drawing"
	"github.com/sewik-mapa/sewikmapa/internal/filter"
	"github.com/sewik-mapa/sewikmapa/internal/spatial"
	"github.com/sewik-mapa/sewikmapa/internal/urlstate"
)

// Loader builds working sets. *dataset.Loader implements it.
type Loader interface {
	LoadMetadata(ctx context.Context) dataset.Metadata
	LoadIndex(ctx context.Context) dataset.Index
	Load(ctx context.Context, sel dataset.Selection) (*dataset.WorkingSet, error)
}

// Publisher receives the derived view after every change that affects it.
type Publisher interface {
	Publish(View)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(View)

// Publish implements Publisher.
func (f PublisherFunc) Publish(v View) { f(v) }

// View is what a renderer needs to draw the current state.
type View struct {
	Generation uint64                    `json:"generation"`
	Selection  dataset.Selection         `json:"selection"`
	Loaded     int                       `json:"loaded"`
	Failed     []string                  `json:"failed,omitempty"`
	Visible    []accident.Record         `json:"-"`
	Counts     map[accident.Severity]int `json:"counts"`
	Polygons   []*spatial.Polygon        `json:"-"`
	InProgress []spatial.Point           `json:"inProgress,omitempty"`
	Drawing    bool                      `json:"drawing"`
	Analysis   *spatial.AnalysisResult   `json:"analysis,omitempty"`
	State      urlstate.State            `json:"-"`
	Query      string                    `json:"query"`
}

// Config configures a Session.
type Config struct {
	ID        string
	Loader    Loader
	Publisher Publisher
	// History receives debounced URL writes. Optional.
	History  urlstate.HistoryWriter
	Debounce time.Duration
	Clock    urlstate.Clock
	Logger   zerolog.Logger
}

// Session is the state of one map view. It is safe for concurrent use.
type Session struct {
	id        string
	loader    Loader
	publisher Publisher
	syncer    *urlstate.Syncer
	logger    zerolog.Logger
	created   time.Time

	mu       sync.Mutex
	state    urlstate.State
	meta     dataset.Metadata
	tool     *drawing.Tool
	analyzer spatial.Analyzer
	ready    bool

	working atomic.Pointer[dataset.WorkingSet]
	stale   atomic.Int64
}

// New creates a session with the default state. Call Init before dispatching.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if cfg.ID != "" {
		logger = logger.With().Str("session_id", cfg.ID).Logger()
	}
	s := &Session{
		id:        cfg.ID,
		loader:    cfg.Loader,
		publisher: cfg.Publisher,
		logger:    logger,
		created:   time.Now(),
		state:     urlstate.DefaultState(),
		meta:      dataset.DefaultMetadata(),
		tool:      drawing.New(),
		syncer: urlstate.NewSyncer(urlstate.SyncerConfig{
			Writer:   cfg.History,
			Debounce: cfg.Debounce,
			Clock:    cfg.Clock,
			Logger:   logger,
		}),
	}
	s.tool.OnCommit = func(p *spatial.Polygon) {
		s.analyzer.Invalidate()
		s.logger.Debug().Str("polygon_id", p.ID).Int("vertices", len(p.Ring)-1).Msg("polygon committed")
	}
	s.tool.OnClear = s.analyzer.Invalidate
	s.working.Store(dataset.EmptyWorkingSet(dataset.Selection{}))
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the creation time.
func (s *Session) CreatedAt() time.Time { return s.created }

// Init restores state from query, selects the latest year when the query
// names no years or regions, loads the first working set and enables URL
// writes. Nothing written to the URL during Init reaches the history.
func (s *Session) Init(ctx context.Context, query string) error {
	partial := urlstate.Decode(query)

	meta := s.loader.LoadMetadata(ctx)
	s.loader.LoadIndex(ctx)

	s.mu.Lock()
	s.meta = meta
	s.state = restore(partial, meta)
	if len(s.state.Polygon) > 0 {
		if _, err := s.tool.Commit(s.state.Polygon); err != nil {
			s.logger.Debug().Err(err).Msg("ignoring polygon from url")
			s.state.Polygon = nil
		}
	}
	sel := s.selectionLocked()
	s.mu.Unlock()

	if err := s.reload(ctx, sel); err != nil {
		return err
	}

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()

	s.publish()
	s.syncer.MarkReady()
	return nil
}

// RestoreState decodes query over the defaults. A query naming no years or
// regions selects the latest year of meta.
func RestoreState(query string, meta dataset.Metadata) urlstate.State {
	return restore(urlstate.Decode(query), meta)
}

func restore(partial urlstate.Partial, meta dataset.Metadata) urlstate.State {
	state := partial.Apply(urlstate.DefaultState())
	if !partial.HasSelection() {
		if y, ok := meta.LatestYear(); ok {
			state.Years = []int{y}
		}
	}
	return state
}

// Ready reports whether Init completed.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Dispatch applies cmd. Selection changes reload the working set before
// Dispatch returns.
func (s *Session) Dispatch(ctx context.Context, cmd Command) error {
	h, ok := handlers[cmd.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Kind)
	}

	s.mu.Lock()
	eff, err := h(s, cmd)
	sel := s.selectionLocked()
	state := s.state.Clone()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.logger.Debug().Str("command", string(cmd.Kind)).Msg("command applied")

	if eff&effectSync != 0 {
		s.syncer.Notify(state)
	}
	if eff&effectReload != 0 {
		if err := s.reload(ctx, sel); err != nil {
			return err
		}
	}
	if eff&effectPublish != 0 {
		s.publish()
	}
	return nil
}

func (s *Session) selectionLocked() dataset.Selection {
	return dataset.NewSelection(s.state.Years, s.state.Regions)
}

// reload loads sel and installs the result unless the selection changed
// while loading.
func (s *Session) reload(ctx context.Context, sel dataset.Selection) error {
	ws, err := s.loader.Load(ctx, sel)
	if err != nil {
		return fmt.Errorf("reloading: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.selectionLocked().Equal(sel) {
		s.stale.Add(1)
		s.logger.Debug().Str("selection", sel.Key()).Msg("discarding stale working set")
		return nil
	}
	s.working.Store(ws)
	return nil
}

// WorkingSet returns the current working set.
func (s *Session) WorkingSet() *dataset.WorkingSet {
	return s.working.Load()
}

// StaleLoads counts working sets discarded because the selection moved on.
func (s *Session) StaleLoads() int64 {
	return s.stale.Load()
}

// State returns a copy of the current state.
func (s *Session) State() urlstate.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Metadata returns the metadata loaded by Init.
func (s *Session) Metadata() dataset.Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// Query returns the encoded current state.
func (s *Session) Query() string {
	return urlstate.Encode(s.State())
}

// Syncer exposes the URL syncer.
func (s *Session) Syncer() *urlstate.Syncer { return s.syncer }

// Snapshot derives the view from the current state and working set.
func (s *Session) Snapshot() View {
	ws := s.working.Load()

	s.mu.Lock()
	state := s.state.Clone()
	s.mu.Unlock()

	visible := filter.Apply(ws.Records(), state.Visibility)
	v := View{
		Generation: ws.Generation(),
		Selection:  ws.Selection(),
		Loaded:     ws.Len(),
		Failed:     ws.Failed(),
		Visible:    visible,
		Counts:     filter.Counts(visible),
		Polygons:   s.tool.Polygons(),
		InProgress: s.tool.InProgress(),
		Drawing:    s.tool.State() == drawing.Drawing,
		State:      state,
		Query:      urlstate.Encode(state),
	}
	if active := s.tool.Active(); active != nil {
		res := s.analyzer.Result(ws.Generation(), ws.Records(), state.Visibility, active)
		v.Analysis = &res
	}
	return v
}

func (s *Session) publish() {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(s.Snapshot())
}

// Close stops URL writes.
func (s *Session) Close() {
	s.syncer.Stop()
}

// IsCommandError reports whether err was caused by the command itself.
func IsCommandError(err error) bool {
	return errors.Is(err, ErrUnknownCommand) || errors.Is(err, ErrInvalidCommand)
}
