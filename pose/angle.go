package pose

import "math"

// degenerateNorm is the squared-length floor below which a ray is considered
// collapsed and the angle convention of 180 degrees applies.
const degenerateNorm = 1e-8

// Angle returns the unsigned angle at vertex b between rays b->a and b->c,
// in degrees in [0, 180]. A collapsed ray (a or c coincident with b) returns
// 180, the straight-line convention.
func Angle(a, b, c Keypoint) float64 {
	abx, aby := a.X-b.X, a.Y-b.Y
	cbx, cby := c.X-b.X, c.Y-b.Y
	na := math.Hypot(abx, aby)
	nc := math.Hypot(cbx, cby)
	if na < degenerateNorm || nc < degenerateNorm {
		return 180
	}
	cos := (abx*cbx + aby*cby) / (na * nc)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

// Triple names an angle measured at vertex B between rays toward A and C.
type Triple struct {
	Name string `json:"name"`
	A    Joint  `json:"a"`
	B    Joint  `json:"b"`
	C    Joint  `json:"c"`
}

// Measure evaluates the triple on one keypoint set. ok is false when any of
// the three joints misses the visibility floor.
func (t Triple) Measure(ks *KeypointSet, minVis float64) (float64, bool) {
	if !ks.Visible(t.A, minVis) || !ks.Visible(t.B, minVis) || !ks.Visible(t.C, minVis) {
		return 0, false
	}
	return Angle(ks[t.A], ks[t.B], ks[t.C]), true
}
