// Package kinematics turns raw per-frame keypoints into conditioned signals:
// normalized coordinates, de-jittered and smoothed joint trajectories, angle
// series over the profile's joint triples, and the normalized phase driver.
package kinematics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Series is one scalar signal sampled once per frame. Missing samples are
// NaN so arithmetic never silently mixes them with data.
type Series struct {
	Name   string
	Values []float64
}

// NewSeries returns an all-missing series of n samples.
func NewSeries(name string, n int) *Series {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = math.NaN()
	}
	return &Series{Name: name, Values: vals}
}

// Len returns the sample count.
func (s *Series) Len() int { return len(s.Values) }

// Missing reports whether sample i is absent.
func (s *Series) Missing(i int) bool { return math.IsNaN(s.Values[i]) }

// ValidCount returns the number of present samples.
func (s *Series) ValidCount() int {
	n := 0
	for i := range s.Values {
		if !s.Missing(i) {
			n++
		}
	}
	return n
}

// Clone returns an independent copy.
func (s *Series) Clone() *Series {
	vals := make([]float64, len(s.Values))
	copy(vals, s.Values)
	return &Series{Name: s.Name, Values: vals}
}

// Mean returns the mean of present samples, or NaN when none exist.
func (s *Series) Mean() float64 {
	var valid []float64
	for i, v := range s.Values {
		if !s.Missing(i) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return math.NaN()
	}
	return stat.Mean(valid, nil)
}

// run is one maximal stretch of present samples, [start, end).
type run struct {
	start, end int
}

// validRuns lists the maximal stretches of present samples in order.
func (s *Series) validRuns() []run {
	var runs []run
	start := -1
	for i := range s.Values {
		if s.Missing(i) {
			if start >= 0 {
				runs = append(runs, run{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		runs = append(runs, run{start, len(s.Values)})
	}
	return runs
}

// Smooth returns a moving-average copy with the given window width. The
// filter is zero phase (centered) and never crosses a gap: each run of
// present samples is smoothed on its own and the window shrinks at run
// boundaries. Missing samples stay missing.
func (s *Series) Smooth(window int) *Series {
	out := s.Clone()
	if window <= 1 {
		return out
	}
	half := window / 2
	for _, r := range s.validRuns() {
		for i := r.start; i < r.end; i++ {
			lo := i - half
			if lo < r.start {
				lo = r.start
			}
			hi := i + half + 1
			if hi > r.end {
				hi = r.end
			}
			out.Values[i] = floats.Sum(s.Values[lo:hi]) / float64(hi-lo)
		}
	}
	return out
}

// FillGaps returns a copy with interior gaps of at most maxGap samples
// linearly interpolated between their anchors. Gaps touching either end of
// the series have only one anchor and stay missing, as do gaps wider than
// maxGap.
func (s *Series) FillGaps(maxGap int) *Series {
	out := s.Clone()
	if maxGap <= 0 {
		return out
	}
	runs := s.validRuns()
	for k := 0; k+1 < len(runs); k++ {
		left := runs[k].end - 1
		right := runs[k+1].start
		gap := right - left - 1
		if gap > maxGap {
			continue
		}
		lv, rv := s.Values[left], s.Values[right]
		span := float64(right - left)
		for i := left + 1; i < right; i++ {
			frac := float64(i-left) / span
			out.Values[i] = lv + (rv-lv)*frac
		}
	}
	return out
}

// MeanOf combines several equal-length series into their per-sample mean over
// the present values. A sample missing from every part stays missing. Driver
// angles built from paired left/right joints use this to survive one side
// dropping out.
func MeanOf(name string, parts ...*Series) *Series {
	if len(parts) == 0 {
		return NewSeries(name, 0)
	}
	out := NewSeries(name, parts[0].Len())
	for i := range out.Values {
		sum, n := 0.0, 0
		for _, p := range parts {
			if !p.Missing(i) {
				sum += p.Values[i]
				n++
			}
		}
		if n > 0 {
			out.Values[i] = sum / float64(n)
		}
	}
	return out
}

// Clamp returns a copy with present samples limited to [lo, hi].
func (s *Series) Clamp(lo, hi float64) *Series {
	out := s.Clone()
	for i, v := range out.Values {
		if out.Missing(i) {
			continue
		}
		out.Values[i] = math.Max(lo, math.Min(hi, v))
	}
	return out
}
