// Package activity classifies frames as exercising or resting. The primary
// rule thresholds a motion-energy signal derived from the driver angle and
// stabilizes it with hysteresis; a pre-trained classifier takes over when the
// rule selects implausibly little or implausibly much of the video.
package activity

import (
	"fmt"
	"math"
	"strings"

	"github.com/edaniels/golog"
	"github.com/montanaflynn/stats"

	"github.com/posecoach/posecoach/kinematics"
)

// Method names which selector produced the labels.
type Method string

// Selector methods recorded in the provenance.
const (
	MethodMotion     Method = "motion"
	MethodClassifier Method = "classifier"
	MethodNone       Method = "none"
)

// Options tune the segmenter.
type Options struct {
	// MotionThreshold is the floor for the motion-energy gate in degrees per
	// sample. The effective gate adapts upward from the energy distribution.
	MotionThreshold float64
	// WindowRadius is K: energy at a frame compares it with neighbors in
	// [i-K, i+K].
	WindowRadius int
	// OnCount and OffCount are the hysteresis run lengths for entering and
	// leaving the active state.
	OnCount, OffCount int
	// MinActiveFraction and MaxActiveFraction bound the believable share of
	// active frames; outside them the classifier is consulted.
	MinActiveFraction, MaxActiveFraction float64
}

// DefaultOptions returns the standard gate settings.
func DefaultOptions() Options {
	return Options{
		MotionThreshold:   1.5,
		WindowRadius:      3,
		OnCount:           3,
		OffCount:          5,
		MinActiveFraction: 0.30,
		MaxActiveFraction: 0.95,
	}
}

// Percentile settings for the adaptive gate: static-camera noise sits well
// under the configured floor, while genuine exercise lifts the estimate above
// it.
const (
	adaptivePercentile = 62.5
	adaptiveScale      = 0.48
)

// Provenance records how the frame selection was made.
type Provenance struct {
	Method Method `json:"method"`
	Reason string `json:"reason"`
	// Threshold is the effective motion gate in degrees per sample.
	Threshold    float64 `json:"threshold"`
	ActiveFrames int     `json:"active_frames"`
	RestFrames   int     `json:"rest_frames"`
	// GapFrames counts frames whose driver angle was missing entirely.
	GapFrames int `json:"gap_frames"`
}

// Result is the segmentation outcome.
type Result struct {
	// Active holds one label per frame.
	Active []bool
	// SelectedIndices lists the active frame indices in order.
	SelectedIndices []int
	Provenance      Provenance
}

// Segmenter labels frames as active or resting.
type Segmenter struct {
	opts       Options
	classifier Classifier
	logger     golog.Logger
}

// NewSegmenter builds a segmenter. classifier may be nil, in which case the
// rule's labels stand even when its selection looks implausible.
func NewSegmenter(opts Options, classifier Classifier, logger golog.Logger) *Segmenter {
	return &Segmenter{opts: opts, classifier: classifier, logger: logger}
}

// Segment labels every frame. driverAngles is the driver angle in degrees
// (missing samples NaN); visFraction is the per-frame share of joints above
// the visibility floor, used only by the fallback classifier.
func (s *Segmenter) Segment(driverAngles *kinematics.Series, visFraction []float64) *Result {
	n := driverAngles.Len()
	res := &Result{Active: make([]bool, n)}
	if n == 0 {
		res.Provenance = Provenance{Method: MethodNone, Reason: "no frames"}
		return res
	}

	energies := MotionEnergy(driverAngles, s.opts.WindowRadius)
	gate := s.effectiveGate(energies)
	above := make([]bool, n)
	for i := 0; i < n; i++ {
		above[i] = !energies.Missing(i) && energies.Values[i] > gate
	}
	active := hysteresis(above, s.opts.OnCount, s.opts.OffCount)

	var notes []string
	method := MethodMotion
	frac := fraction(active)
	if frac < s.opts.MinActiveFraction || frac > s.opts.MaxActiveFraction {
		note := fmt.Sprintf("motion rule kept %.0f%% of frames", frac*100)
		if s.classifier == nil {
			notes = append(notes, note+", no classifier available")
		} else if relabeled, err := s.classify(energies, driverAngles, visFraction); err != nil {
			notes = append(notes, note+", classifier failed: "+err.Error())
			if s.logger != nil {
				s.logger.Warnw("activity classifier failed, keeping motion labels", "error", err)
			}
		} else {
			active = relabeled
			method = MethodClassifier
			notes = append(notes, note+", used classifier")
		}
	}

	gapFrames, longestGap, gapStart := gapStats(driverAngles)
	if longestGap > 0 {
		notes = append(notes, fmt.Sprintf("detection gap of %d frames at %d", longestGap, gapStart))
	}

	for i, a := range active {
		if a {
			res.SelectedIndices = append(res.SelectedIndices, i)
		}
	}
	res.Active = active
	res.Provenance = Provenance{
		Method:       method,
		Reason:       strings.Join(notes, "; "),
		Threshold:    gate,
		ActiveFrames: len(res.SelectedIndices),
		RestFrames:   n - len(res.SelectedIndices),
		GapFrames:    gapFrames,
	}
	if len(res.SelectedIndices) == 0 {
		res.Provenance.Method = MethodNone
	}
	if s.logger != nil {
		s.logger.Infow("activity segmentation",
			"method", res.Provenance.Method,
			"active", res.Provenance.ActiveFrames,
			"rest", res.Provenance.RestFrames,
			"gate", fmt.Sprintf("%.2f", gate),
		)
	}
	return res
}

// MotionEnergy is the mean absolute driver-angle difference between a frame
// and its valid neighbors within the radius, in degrees per sample. Frames
// with a missing driver angle, or with no valid neighbor, have no energy.
func MotionEnergy(driverAngles *kinematics.Series, radius int) *kinematics.Series {
	n := driverAngles.Len()
	out := kinematics.NewSeries("motion_energy", n)
	for i := 0; i < n; i++ {
		if driverAngles.Missing(i) {
			continue
		}
		sum, cnt := 0.0, 0
		for j := i - radius; j <= i+radius; j++ {
			if j < 0 || j >= n || j == i || driverAngles.Missing(j) {
				continue
			}
			sum += math.Abs(driverAngles.Values[i] - driverAngles.Values[j])
			cnt++
		}
		if cnt > 0 {
			out.Values[i] = sum / float64(cnt)
		}
	}
	return out
}

// effectiveGate lifts the configured floor by a percentile estimate of the
// energy distribution so camera noise on a static scene cannot saturate the
// rule.
func (s *Segmenter) effectiveGate(energies *kinematics.Series) float64 {
	var valid []float64
	for i, v := range energies.Values {
		if !energies.Missing(i) {
			valid = append(valid, v)
		}
	}
	gate := s.opts.MotionThreshold
	if len(valid) == 0 {
		return gate
	}
	p, err := stats.Percentile(valid, adaptivePercentile)
	if err != nil {
		return gate
	}
	return math.Max(gate, p*adaptiveScale)
}

// hysteresis debounces the raw gate labels: entering the active state takes
// onCount consecutive above-gate frames, leaving it takes offCount below.
// The qualifying run is relabeled with the new state so bouts keep their
// first frames.
func hysteresis(above []bool, onCount, offCount int) []bool {
	n := len(above)
	out := make([]bool, n)
	state := false
	streak, start := 0, 0
	for i := 0; i < n; i++ {
		if above[i] == state {
			streak = 0
			out[i] = state
			continue
		}
		if streak == 0 {
			start = i
		}
		streak++
		out[i] = state
		need := onCount
		if state {
			need = offCount
		}
		if streak >= need {
			state = !state
			for j := start; j <= i; j++ {
				out[j] = state
			}
			streak = 0
		}
	}
	return out
}

func (s *Segmenter) classify(
	energies, driverAngles *kinematics.Series,
	visFraction []float64,
) ([]bool, error) {
	n := energies.Len()
	raw := make([]bool, n)
	for i := 0; i < n; i++ {
		feats := FrameFeatures(energies, driverAngles, visFraction, i)
		active, err := s.classifier.Classify(feats)
		if err != nil {
			return nil, err
		}
		raw[i] = active
	}
	// the classifier is per-frame; debounce it the same way as the rule
	return hysteresis(raw, s.opts.OnCount, s.opts.OffCount), nil
}

func fraction(active []bool) float64 {
	if len(active) == 0 {
		return 0
	}
	n := 0
	for _, a := range active {
		if a {
			n++
		}
	}
	return float64(n) / float64(len(active))
}

// gapStats reports how much of the driver is missing: total missing frames,
// the longest run, and where it starts.
func gapStats(driverAngles *kinematics.Series) (total, longest, start int) {
	runLen, runStart := 0, 0
	for i := 0; i < driverAngles.Len(); i++ {
		if driverAngles.Missing(i) {
			if runLen == 0 {
				runStart = i
			}
			runLen++
			total++
			if runLen > longest {
				longest = runLen
				start = runStart
			}
			continue
		}
		runLen = 0
	}
	return total, longest, start
}
