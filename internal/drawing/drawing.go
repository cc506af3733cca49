// Package drawing implements the polygon drawing state machine and the
// collection of committed analysis polygons.
package drawing

import (
	"strconv"
	"sync"

	"github.com/sewik-mapa/sewikmapa/internal/spatial"
)

// State of the drawing tool.
type State int

const (
	Idle State = iota
	Drawing
)

func (s State) String() string {
	if s == Drawing {
		return "drawing"
	}
	return "idle"
}

// MaxVertices closes a polygon automatically when reached.
const MaxVertices = 20

// Tool tracks the in-progress polygon and the committed collection. Committing
// never removes earlier polygons; only ClearAll does. The most recently
// committed polygon is the active one.
type Tool struct {
	mu       sync.Mutex
	state    State
	vertices []spatial.Point
	polygons []*spatial.Polygon
	next     int

	// OnCommit is called with the new polygon after each commit, outside the lock.
	OnCommit func(*spatial.Polygon)
	// OnClear is called after ClearAll.
	OnClear func()
}

// New returns an idle tool.
func New() *Tool {
	return &Tool{}
}

// State returns the current state.
func (t *Tool) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// StartDrawing enters Drawing with an empty vertex list. Calling it while
// already drawing restarts the polygon.
func (t *Tool) StartDrawing() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = Drawing
	t.vertices = nil
}

// AddVertex appends a vertex while drawing. Reaching MaxVertices finishes the
// polygon and returns it. Vertices are ignored when idle.
func (t *Tool) AddVertex(p spatial.Point) *spatial.Polygon {
	t.mu.Lock()
	if t.state != Drawing {
		t.mu.Unlock()
		return nil
	}
	t.vertices = append(t.vertices, p)
	if len(t.vertices) < MaxVertices {
		t.mu.Unlock()
		return nil
	}
	polygon := t.finishLocked()
	t.mu.Unlock()

	t.notifyCommit(polygon)
	return polygon
}

// FinishDrawing returns to Idle. With at least three vertices a polygon is
// committed and returned; otherwise the vertices are discarded and nil is
// returned.
func (t *Tool) FinishDrawing() *spatial.Polygon {
	t.mu.Lock()
	if t.state != Drawing {
		t.mu.Unlock()
		return nil
	}
	polygon := t.finishLocked()
	t.mu.Unlock()

	t.notifyCommit(polygon)
	return polygon
}

func (t *Tool) finishLocked() *spatial.Polygon {
	vertices := t.vertices
	t.vertices = nil
	t.state = Idle

	if len(vertices) < spatial.MinVertices {
		return nil
	}
	t.next++
	polygon, err := spatial.NewPolygon("polygon-"+strconv.Itoa(t.next), vertices)
	if err != nil {
		return nil
	}
	t.polygons = append(t.polygons, polygon)
	return polygon
}

func (t *Tool) notifyCommit(p *spatial.Polygon) {
	if p != nil && t.OnCommit != nil {
		t.OnCommit(p)
	}
}

// CancelDrawing discards the in-progress vertices and returns to Idle.
func (t *Tool) CancelDrawing() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = Idle
	t.vertices = nil
}

// Toggle starts drawing when idle and finishes when drawing.
func (t *Tool) Toggle() *spatial.Polygon {
	if t.State() == Drawing {
		return t.FinishDrawing()
	}
	t.StartDrawing()
	return nil
}

// Commit adds a complete polygon, as restored from a URL, and makes it active.
func (t *Tool) Commit(vertices []spatial.Point) (*spatial.Polygon, error) {
	t.mu.Lock()
	t.next++
	polygon, err := spatial.NewPolygon("polygon-"+strconv.Itoa(t.next), vertices)
	if err != nil {
		t.next--
		t.mu.Unlock()
		return nil, err
	}
	t.polygons = append(t.polygons, polygon)
	t.mu.Unlock()

	t.notifyCommit(polygon)
	return polygon, nil
}

// ClearAll removes every polygon and any drawing in progress.
func (t *Tool) ClearAll() {
	t.mu.Lock()
	t.polygons = nil
	t.vertices = nil
	t.state = Idle
	t.mu.Unlock()

	if t.OnClear != nil {
		t.OnClear()
	}
}

// Active returns the most recently committed polygon, or nil.
func (t *Tool) Active() *spatial.Polygon {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.polygons) == 0 {
		return nil
	}
	return t.polygons[len(t.polygons)-1]
}

// Polygons returns the committed polygons, oldest first.
func (t *Tool) Polygons() []*spatial.Polygon {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*spatial.Polygon(nil), t.polygons...)
}

// InProgress returns a copy of the vertices placed so far.
func (t *Tool) InProgress() []spatial.Point {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]spatial.Point(nil), t.vertices...)
}
