// Package score applies an exercise profile's rule catalog to per-frame
// angles, producing graded frame scores with ranked fault messages, and
// aggregates them into the report's summary metrics.
package score

import (
	"fmt"
	"sort"

	"github.com/edaniels/golog"
	"gonum.org/v1/gonum/stat"

	"github.com/posecoach/posecoach/phase"
	"github.com/posecoach/posecoach/profile"
)

// Status grades one rule on one frame.
type Status string

// Rule statuses, ordered by severity.
const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Detail is one rule's outcome on one frame.
type Detail struct {
	Status   Status `json:"status"`
	Value    string `json:"value"`
	Feedback string `json:"feedback,omitempty"`
}

// FrameScore is the scored record for one active, in-phase frame.
type FrameScore struct {
	FrameIdx int               `json:"frame_idx"`
	Phase    phase.Label       `json:"phase"`
	Score    float64           `json:"score"`
	Errors   []string          `json:"errors"`
	Details  map[string]Detail `json:"details"`
}

// AngleLookup resolves a triple's conditioned angle on a frame. ok is false
// when the angle is missing there.
type AngleLookup func(triple string, frameIdx int) (float64, bool)

// Evaluator scores frames against one profile.
type Evaluator struct {
	prof    *profile.Profile
	softDeg float64
	hardDeg float64
	logger  golog.Logger
}

// NewEvaluator binds a profile and the soft-scoring widths: deviations up to
// softDeg degrees outside a band are warnings, beyond that errors, and a
// rule's credit fades to zero at hardDeg.
func NewEvaluator(prof *profile.Profile, softDeg, hardDeg float64, logger golog.Logger) *Evaluator {
	return &Evaluator{prof: prof, softDeg: softDeg, hardDeg: hardDeg, logger: logger}
}

// Evaluate scores every frame whose phase the profile marks as scorable.
// indices are global frame indices with labels parallel to them. Frames
// where no applicable rule can be measured produce no record.
func (e *Evaluator) Evaluate(indices []int, labels []phase.Label, angles AngleLookup) []FrameScore {
	out := make([]FrameScore, 0, len(indices))
	skipped := 0
	for i, frameIdx := range indices {
		fs, ok := e.evaluateFrame(frameIdx, labels[i], angles)
		if !ok {
			skipped++
			continue
		}
		out = append(out, fs)
	}
	if skipped > 0 && e.logger != nil {
		e.logger.Debugw("frames without measurable rules", "count", skipped)
	}
	return out
}

type ruleOutcome struct {
	name     string
	message  string
	severity float64 // w * (1 - c), ranks the fault list
}

func (e *Evaluator) evaluateFrame(frameIdx int, label phase.Label, angles AngleLookup) (FrameScore, bool) {
	if !e.prof.Scored(label) {
		return FrameScore{}, false
	}
	details := make(map[string]Detail, len(e.prof.Rules))
	var contribs, weights []float64
	var faults []ruleOutcome

	for i := range e.prof.Rules {
		rule := &e.prof.Rules[i]
		if !rule.AppliesTo(label) {
			continue
		}
		theta, ok := e.measure(rule, frameIdx, angles)
		if !ok {
			// missing angle skips the rule rather than zeroing it
			continue
		}
		status, contrib := e.grade(rule, theta)
		detail := Detail{Status: status, Value: fmt.Sprintf("%.1f°", theta)}
		switch status {
		case StatusWarning:
			detail.Feedback = rule.Warn
		case StatusError:
			detail.Feedback = rule.Fault
		}
		details[rule.Name] = detail
		contribs = append(contribs, contrib)
		weights = append(weights, rule.Weight)
		if status != StatusOK {
			faults = append(faults, ruleOutcome{
				name:     rule.Name,
				message:  detail.Feedback,
				severity: rule.Weight * (1 - contrib),
			})
		}
	}
	if len(weights) == 0 {
		return FrameScore{}, false
	}

	sort.SliceStable(faults, func(a, b int) bool {
		if faults[a].severity != faults[b].severity {
			return faults[a].severity > faults[b].severity
		}
		return faults[a].name < faults[b].name
	})
	msgs := make([]string, 0, len(faults))
	seen := make(map[string]bool, len(faults))
	for _, f := range faults {
		if seen[f.message] {
			continue
		}
		seen[f.message] = true
		msgs = append(msgs, f.message)
	}

	return FrameScore{
		FrameIdx: frameIdx,
		Phase:    label,
		Score:    stat.Mean(contribs, weights),
		Errors:   msgs,
		Details:  details,
	}, true
}

// measure returns the mean of the rule's triple angles present on the frame.
func (e *Evaluator) measure(rule *profile.Rule, frameIdx int, angles AngleLookup) (float64, bool) {
	sum, n := 0.0, 0
	for _, name := range rule.Triples {
		if v, ok := angles(name, frameIdx); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// grade maps a measured angle onto (status, contribution). Inside the band is
// full credit; outside, credit fades linearly to zero at hardDeg from the
// nearer edge.
func (e *Evaluator) grade(rule *profile.Rule, theta float64) (Status, float64) {
	if theta >= rule.LowDeg && theta <= rule.HighDeg {
		return StatusOK, 1
	}
	var delta float64
	if theta < rule.LowDeg {
		delta = rule.LowDeg - theta
	} else {
		delta = theta - rule.HighDeg
	}
	contrib := 1 - delta/e.hardDeg
	if contrib < 0 {
		contrib = 0
	}
	if delta <= e.softDeg {
		return StatusWarning, contrib
	}
	return StatusError, contrib
}
