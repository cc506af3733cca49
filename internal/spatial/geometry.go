// Package spatial provides polygon containment and the per-polygon accident
// aggregation used by area analysis.
package spatial

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/sewik-mapa/sewikmapa/pkg/polyline"
)

// Geometry errors.
var (
	ErrTooFewVertices  = errors.New("polygon needs at least 3 vertices")
	ErrInvalidVertex   = errors.New("polygon vertex is not a finite coordinate")
	ErrMalformedCoords = errors.New("malformed coordinate list")
)

// MinVertices is the smallest vertex count that forms a polygon.
const MinVertices = 3

// Point is a (lon, lat) position.
type Point struct {
	Lon float64
	Lat float64
}

// Ring is a closed vertex sequence: the last vertex repeats the first.
type Ring []Point

// Close returns vertices as a closed ring. A sequence that is already closed
// is returned as a copy.
func Close(vertices []Point) Ring {
	ring := make(Ring, 0, len(vertices)+1)
	ring = append(ring, vertices...)
	if len(vertices) > 0 && vertices[0] != vertices[len(vertices)-1] {
		ring = append(ring, vertices[0])
	}
	return ring
}

// Vertices returns the ring without its closing vertex.
func (r Ring) Vertices() []Point {
	if len(r) > 1 && r[0] == r[len(r)-1] {
		return append([]Point(nil), r[:len(r)-1]...)
	}
	return append([]Point(nil), r...)
}

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	MinLon, MinLat float64
	MaxLon, MaxLat float64
}

// Contains reports whether p lies within the box, edges included.
func (b Bounds) Contains(p Point) bool {
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon && p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

// Bounds returns the bounding box of the ring.
func (r Ring) Bounds() Bounds {
	b := Bounds{
		MinLon: math.Inf(1), MinLat: math.Inf(1),
		MaxLon: math.Inf(-1), MaxLat: math.Inf(-1),
	}
	for _, p := range r {
		b.MinLon = math.Min(b.MinLon, p.Lon)
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MaxLon = math.Max(b.MaxLon, p.Lon)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
	}
	return b
}

// Polygon is a committed analysis polygon.
type Polygon struct {
	ID     string
	Ring   Ring
	bounds Bounds
}

// NewPolygon validates vertices and closes them into a polygon.
func NewPolygon(id string, vertices []Point) (*Polygon, error) {
	open := Ring(vertices).Vertices()
	if len(open) < MinVertices {
		return nil, ErrTooFewVertices
	}
	for _, v := range open {
		if math.IsNaN(v.Lon) || math.IsInf(v.Lon, 0) || math.IsNaN(v.Lat) || math.IsInf(v.Lat, 0) {
			return nil, ErrInvalidVertex
		}
	}
	ring := Close(open)
	return &Polygon{ID: id, Ring: ring, bounds: ring.Bounds()}, nil
}

// Contains reports whether p lies inside the polygon.
func (p *Polygon) Contains(pt Point) bool {
	if !p.bounds.Contains(pt) {
		return false
	}
	return PointInPolygon(pt, p.Ring)
}

// Fingerprint identifies the polygon geometry.
func (p *Polygon) Fingerprint() string {
	var b strings.Builder
	b.WriteString(p.ID)
	for _, v := range p.Ring {
		b.WriteByte(';')
		b.WriteString(strconv.FormatFloat(v.Lon, 'g', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(v.Lat, 'g', -1, 64))
	}
	return b.String()
}

// PerimeterMeters returns the great-circle length of the closed ring.
func (p *Polygon) PerimeterMeters() float64 {
	return polyline.Length(toCoordinates(p.Ring))
}

// EncodeVertices encodes the open vertex list as a Google polyline.
func EncodeVertices(vertices []Point) string {
	return polyline.Encode(toCoordinates(Ring(vertices).Vertices()))
}

// DecodeVertices decodes a Google polyline into vertices.
func DecodeVertices(encoded string) ([]Point, error) {
	coords, err := polyline.Decode(encoded)
	if err != nil {
		return nil, err
	}
	points := make([]Point, 0, len(coords))
	for _, c := range coords {
		points = append(points, Point{Lon: c.Lon, Lat: c.Lat})
	}
	return points, nil
}

// ParsePoints parses "lon,lat;lon,lat;..." into points.
func ParsePoints(s string) ([]Point, error) {
	var points []Point
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.Split(pair, ",")
		if len(parts) != 2 {
			return nil, ErrMalformedCoords
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, ErrMalformedCoords
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, ErrMalformedCoords
		}
		points = append(points, Point{Lon: lon, Lat: lat})
	}
	return points, nil
}

func toCoordinates(points []Point) []polyline.Coordinate {
	coords := make([]polyline.Coordinate, 0, len(points))
	for _, p := range points {
		coords = append(coords, polyline.Coordinate{Lat: p.Lat, Lon: p.Lon})
	}
	return coords
}
