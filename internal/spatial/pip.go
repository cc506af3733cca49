package spatial

// PointInPolygon tests containment with the crossing-number rule: a ray cast
// towards +lon toggles the result at every edge it crosses.
//
// Points exactly on an edge are not special-cased. With the strict
// comparisons below, for an axis-aligned rectangle the lower and left edges
// test inside while the upper and right edges test outside.
func PointInPolygon(pt Point, ring Ring) bool {
	n := len(ring)
	if n < MinVertices {
		return false
	}

	inside := false
	x, y := pt.Lon, pt.Lat
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lon, ring[i].Lat
		xj, yj := ring[j].Lon, ring[j].Lat
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
