// Package phase segments a normalized driver signal into repetition phases
// and counts completed repetitions. The driver is d in [0,1] with d=1 at the
// top of a rep; transitions follow local extrema of d gated by the top and
// bottom thresholds.
package phase

import "math"

// Label is one frame's position within the repetition cycle.
type Label string

// The five cycle phases plus the bounding labels.
const (
	Ready      Label = "ready"
	Descending Label = "descending"
	Bottom     Label = "bottom"
	Ascending  Label = "ascending"
	Top        Label = "top"
	Finish     Label = "finish"
)

// Params gate the state machine.
type Params struct {
	// DTop and DBot are the driver thresholds for the top and bottom of the
	// cycle.
	DTop float64
	DBot float64
	// MinRepSeconds is the smallest believable spacing between extrema of the
	// same kind; closer candidates collapse to the more extreme one.
	MinRepSeconds float64
	// SampleRate is the driver's sampling rate in frames per second.
	SampleRate float64
}

// DefaultParams returns the standard gating thresholds.
func DefaultParams(sampleRate float64) Params {
	return Params{DTop: 0.80, DBot: 0.20, MinRepSeconds: 0.4, SampleRate: sampleRate}
}

// Result is the segmentation of one contiguous active bout.
type Result struct {
	// Labels holds one phase label per driver sample.
	Labels []Label
	// Reps is the number of completed repetitions, one per ascent that
	// reached the top.
	Reps int
}

type extremumKind int

const (
	minimum extremumKind = iota
	maximum
)

type extremum struct {
	idx   int
	value float64
	kind  extremumKind
}

// Segment labels every sample of the driver and counts repetitions. Missing
// samples (NaN) are carried forward so the machine holds its state across
// short dropouts; an all-missing driver stays in ready with zero reps.
func Segment(d []float64, p Params) *Result {
	n := len(d)
	labels := make([]Label, n)
	for i := range labels {
		labels[i] = Ready
	}
	res := &Result{Labels: labels}

	vals, ok := carryForward(d)
	if !ok {
		return res
	}

	minSep := int(p.MinRepSeconds*p.SampleRate + 0.5)
	events := consolidate(qualified(findExtrema(vals), vals, p), minSep)

	state := Ready
	next := 0
	lastTopEnd := -1
	for i := 0; i < n; i++ {
		var ev *extremum
		if next < len(events) && events[next].idx == i {
			ev = &events[next]
			next++
		}
		switch state {
		case Ready:
			if vals[i] >= p.DTop {
				state = Top
			} else if vals[i] <= p.DBot {
				// a bout that opens on the hang orients to bottom so its
				// first ascent still counts
				state = Bottom
			} else if ev != nil && ev.kind == minimum {
				state = Bottom
			}
		case Top:
			if vals[i] < p.DTop {
				state = Descending
			}
		case Descending:
			if ev != nil && ev.kind == minimum {
				state = Bottom
			} else if vals[i] >= p.DTop {
				// bounced without reaching the bottom, not a rep
				state = Top
			}
		case Bottom:
			if vals[i] > p.DBot {
				state = Ascending
			}
		case Ascending:
			if ev != nil && ev.kind == maximum {
				state = Top
				res.Reps++
			} else if ev != nil && ev.kind == minimum {
				// collapsed before locking out, not a rep
				state = Bottom
			}
		}
		labels[i] = state
		if state == Top {
			lastTopEnd = i
		}
	}

	// everything after the final top run is wind-down
	if lastTopEnd >= 0 {
		for i := lastTopEnd + 1; i < n; i++ {
			labels[i] = Finish
		}
	}
	return res
}

// carryForward replaces missing (NaN) samples with the nearest earlier value,
// or the first valid value for a missing prefix. Returns false when no sample
// is valid.
func carryForward(d []float64) ([]float64, bool) {
	first := -1
	for i := range d {
		if !math.IsNaN(d[i]) {
			first = i
			break
		}
	}
	if first < 0 {
		return nil, false
	}
	vals := make([]float64, len(d))
	last := d[first]
	for i := range d {
		if !math.IsNaN(d[i]) {
			last = d[i]
		}
		vals[i] = last
	}
	return vals, true
}

// findExtrema scans for direction reversals. A plateau's extremum sits at its
// midpoint. A terminal rise or fall also closes an extremum at the end of the
// signal so a rep that finishes on a hold still registers.
func findExtrema(vals []float64) []extremum {
	var out []extremum
	n := len(vals)
	if n < 2 {
		return out
	}
	dir := 0 // -1 falling, +1 rising
	// flatStart is where the value last changed; a reversal after a plateau
	// places the extremum at the plateau midpoint
	flatStart := 0
	for i := 1; i < n; i++ {
		switch {
		case vals[i] > vals[i-1]:
			if dir < 0 {
				out = append(out, extremum{idx: (flatStart + i - 1) / 2, value: vals[i-1], kind: minimum})
			}
			dir = 1
			flatStart = i
		case vals[i] < vals[i-1]:
			if dir > 0 {
				out = append(out, extremum{idx: (flatStart + i - 1) / 2, value: vals[i-1], kind: maximum})
			}
			dir = -1
			flatStart = i
		}
	}
	// close the trailing run
	if dir > 0 {
		out = append(out, extremum{idx: (flatStart + n - 1) / 2, value: vals[n-1], kind: maximum})
	} else if dir < 0 {
		out = append(out, extremum{idx: (flatStart + n - 1) / 2, value: vals[n-1], kind: minimum})
	}
	return out
}

// qualified keeps maxima above DTop and minima below DBot.
func qualified(candidates []extremum, vals []float64, p Params) []extremum {
	out := make([]extremum, 0, len(candidates))
	for _, e := range candidates {
		if e.kind == maximum && e.value > p.DTop {
			out = append(out, e)
		}
		if e.kind == minimum && e.value < p.DBot {
			out = append(out, e)
		}
	}
	return out
}

// consolidate suppresses extrema that would imply a rep faster than minSep
// samples: same-kind neighbors in the gated stream collapse to the more
// extreme one, and a full oscillation (max-min-max or min-max-min) inside the
// window loses its middle event. Ties keep the earlier extremum.
func consolidate(events []extremum, minSep int) []extremum {
	if minSep <= 0 || len(events) < 2 {
		return events
	}
	evs := append([]extremum(nil), events...)
	for changed := true; changed; {
		changed = false
		for i := 0; i+1 < len(evs) && !changed; i++ {
			if evs[i+1].kind == evs[i].kind && evs[i+1].idx-evs[i].idx < minSep {
				evs[i] = pickExtreme(evs[i], evs[i+1])
				evs = append(evs[:i+1], evs[i+2:]...)
				changed = true
			}
		}
		if changed {
			continue
		}
		for i := 0; i+2 < len(evs) && !changed; i++ {
			if evs[i+2].kind == evs[i].kind && evs[i+2].idx-evs[i].idx < minSep {
				evs[i] = pickExtreme(evs[i], evs[i+2])
				evs = append(evs[:i+1], evs[i+3:]...)
				changed = true
			}
		}
	}
	return evs
}

func pickExtreme(a, b extremum) extremum {
	if (b.kind == maximum && b.value > a.value) ||
		(b.kind == minimum && b.value < a.value) {
		return b
	}
	return a
}

// CountTransitions returns how many times the label stream moves from one
// label directly to another.
func CountTransitions(labels []Label, from, to Label) int {
	n := 0
	for i := 1; i < len(labels); i++ {
		if labels[i-1] == from && labels[i] == to {
			n++
		}
	}
	return n
}
