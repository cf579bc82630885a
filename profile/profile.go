// Package profile defines exercise profiles as data: which angle drives the
// repetition cycle, which rules score posture and on which phases, and how a
// grip variant adjusts the bands. Nothing outside this package branches on
// the exercise type.
package profile

import (
	"embed"
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/posecoach/posecoach/phase"
	"github.com/posecoach/posecoach/pose"
)

//go:embed data/pushup.json data/pullup.json
var builtinFS embed.FS

// Exercise is a recognized exercise kind.
type Exercise string

// The built-in exercises.
const (
	Pushup Exercise = "pushup"
	Pullup Exercise = "pullup"
)

// Grip is a pull-up grip variant.
type Grip string

// The recognized grips. Overhand is the default.
const (
	Overhand  Grip = "overhand"
	Underhand Grip = "underhand"
	Wide      Grip = "wide"
)

// ParseExercise canonicalizes the user-facing spelling of an exercise.
func ParseExercise(s string) (Exercise, error) {
	c := strings.ToLower(strings.TrimSpace(s))
	c = strings.NewReplacer("-", "", "_", "", " ", "").Replace(c)
	c = strings.TrimSuffix(c, "s")
	switch c {
	case "pushup":
		return Pushup, nil
	case "pullup":
		return Pullup, nil
	}
	return "", errors.Errorf("unknown exercise type %q", s)
}

// ParseGrip canonicalizes a grip name; empty input means overhand.
func ParseGrip(s string) (Grip, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(Overhand):
		return Overhand, nil
	case string(Underhand):
		return Underhand, nil
	case string(Wide):
		return Wide, nil
	}
	return "", errors.Errorf("unknown grip type %q", s)
}

// Driver describes the angle whose trajectory defines the repetition cycle.
// Multiple triples are averaged per frame so one occluded side does not stall
// the cycle. Invert flips the normalized sense for exercises whose driver
// angle closes toward the top.
type Driver struct {
	Triples []string `json:"triples"`
	MinDeg  float64  `json:"min_deg"`
	MaxDeg  float64  `json:"max_deg"`
	Invert  bool     `json:"invert"`
}

// Rule is one posture check: on the given phases, the mean of the named
// triple angles must sit inside [LowDeg, HighDeg]. Weight sets the rule's
// share of the frame score; Warn and Fault are the user-facing messages for
// the two violation levels.
type Rule struct {
	Name    string        `json:"name"`
	Triples []string      `json:"triples"`
	Phases  []phase.Label `json:"phases"`
	LowDeg  float64       `json:"low_deg"`
	HighDeg float64       `json:"high_deg"`
	Weight  float64       `json:"weight"`
	Warn    string        `json:"warn"`
	Fault   string        `json:"fault"`
}

// AppliesTo reports whether the rule scores the given phase.
func (r *Rule) AppliesTo(l phase.Label) bool {
	for _, p := range r.Phases {
		if p == l {
			return true
		}
	}
	return false
}

// Override adjusts one rule's band or weight for a grip variant. Nil fields
// keep the base value.
type Override struct {
	Rule    string   `json:"rule"`
	LowDeg  *float64 `json:"low_deg,omitempty"`
	HighDeg *float64 `json:"high_deg,omitempty"`
	Weight  *float64 `json:"weight,omitempty"`
}

// Profile is one exercise's complete description.
type Profile struct {
	Name          string              `json:"name"`
	Exercise      Exercise            `json:"exercise"`
	Grip          Grip                `json:"grip,omitempty"`
	Driver        Driver              `json:"driver"`
	Triples       []pose.Triple       `json:"triples"`
	Rules         []Rule              `json:"rules"`
	ScoredPhases  []phase.Label       `json:"scored_phases"`
	GripOverrides map[Grip][]Override `json:"grip_overrides,omitempty"`
}

// cyclePhases are the labels a rule or scored-phase list may name.
var cyclePhases = map[phase.Label]bool{
	phase.Descending: true,
	phase.Bottom:     true,
	phase.Ascending:  true,
	phase.Top:        true,
}

// Validate checks internal consistency. path prefixes field references in
// returned errors.
func (p *Profile) Validate(path string) error {
	if p.Name == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if p.Exercise != Pushup && p.Exercise != Pullup {
		return goutils.NewConfigValidationError(path, errors.Errorf("unknown exercise %q", p.Exercise))
	}
	if len(p.Triples) == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "triples")
	}
	byName := map[string]bool{}
	for _, tr := range p.Triples {
		if tr.Name == "" {
			return goutils.NewConfigValidationFieldRequiredError(path, "triples.name")
		}
		if byName[tr.Name] {
			return goutils.NewConfigValidationError(path, errors.Errorf("duplicate triple %q", tr.Name))
		}
		byName[tr.Name] = true
		for _, j := range []pose.Joint{tr.A, tr.B, tr.C} {
			if j < 0 || j >= pose.NumJoints {
				return goutils.NewConfigValidationError(path, errors.Errorf("triple %q references an unknown joint", tr.Name))
			}
		}
	}
	if len(p.Driver.Triples) == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "driver.triples")
	}
	for _, name := range p.Driver.Triples {
		if !byName[name] {
			return goutils.NewConfigValidationError(path, errors.Errorf("driver references undefined triple %q", name))
		}
	}
	if p.Driver.MinDeg < 0 || p.Driver.MaxDeg > 180 || p.Driver.MinDeg >= p.Driver.MaxDeg {
		return goutils.NewConfigValidationError(path, errors.Errorf(
			"driver range [%v, %v] is not a subrange of [0, 180]", p.Driver.MinDeg, p.Driver.MaxDeg))
	}
	if len(p.Rules) == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "rules")
	}
	ruleNames := map[string]bool{}
	for _, r := range p.Rules {
		if r.Name == "" {
			return goutils.NewConfigValidationFieldRequiredError(path, "rules.name")
		}
		if ruleNames[r.Name] {
			return goutils.NewConfigValidationError(path, errors.Errorf("duplicate rule %q", r.Name))
		}
		ruleNames[r.Name] = true
		if len(r.Triples) == 0 {
			return goutils.NewConfigValidationError(path, errors.Errorf("rule %q names no triples", r.Name))
		}
		for _, name := range r.Triples {
			if !byName[name] {
				return goutils.NewConfigValidationError(path, errors.Errorf("rule %q references undefined triple %q", r.Name, name))
			}
		}
		if len(r.Phases) == 0 {
			return goutils.NewConfigValidationError(path, errors.Errorf("rule %q applies to no phases", r.Name))
		}
		for _, ph := range r.Phases {
			if !cyclePhases[ph] {
				return goutils.NewConfigValidationError(path, errors.Errorf("rule %q names unscorable phase %q", r.Name, ph))
			}
		}
		if r.Weight <= 0 {
			return goutils.NewConfigValidationError(path, errors.Errorf("rule %q needs a positive weight", r.Name))
		}
		if r.LowDeg < 0 || r.LowDeg >= r.HighDeg {
			return goutils.NewConfigValidationError(path, errors.Errorf(
				"rule %q band [%v, %v] is malformed", r.Name, r.LowDeg, r.HighDeg))
		}
		if r.Warn == "" || r.Fault == "" {
			return goutils.NewConfigValidationError(path, errors.Errorf("rule %q is missing its messages", r.Name))
		}
	}
	if len(p.ScoredPhases) == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "scored_phases")
	}
	for _, ph := range p.ScoredPhases {
		if !cyclePhases[ph] {
			return goutils.NewConfigValidationError(path, errors.Errorf("scored phase %q is not a cycle phase", ph))
		}
	}
	for grip, ovs := range p.GripOverrides {
		if grip != Overhand && grip != Underhand && grip != Wide {
			return goutils.NewConfigValidationError(path, errors.Errorf("override for unknown grip %q", grip))
		}
		for _, ov := range ovs {
			if !ruleNames[ov.Rule] {
				return goutils.NewConfigValidationError(path, errors.Errorf("grip %q overrides undefined rule %q", grip, ov.Rule))
			}
		}
	}
	return nil
}

// TripleByName resolves one of the profile's triples.
func (p *Profile) TripleByName(name string) (pose.Triple, bool) {
	for _, tr := range p.Triples {
		if tr.Name == name {
			return tr, true
		}
	}
	return pose.Triple{}, false
}

// Scored reports whether the phase participates in scoring.
func (p *Profile) Scored(l phase.Label) bool {
	for _, ph := range p.ScoredPhases {
		if ph == l {
			return true
		}
	}
	return false
}

// applyGrip folds the grip's overrides into the rule catalog and records the
// grip on the profile.
func (p *Profile) applyGrip(grip Grip) {
	p.Grip = grip
	for _, ov := range p.GripOverrides[grip] {
		for i := range p.Rules {
			if p.Rules[i].Name != ov.Rule {
				continue
			}
			if ov.LowDeg != nil {
				p.Rules[i].LowDeg = *ov.LowDeg
			}
			if ov.HighDeg != nil {
				p.Rules[i].HighDeg = *ov.HighDeg
			}
			if ov.Weight != nil {
				p.Rules[i].Weight = *ov.Weight
			}
		}
	}
}

// Builtin returns the embedded profile for an exercise, with the grip's
// adjustments applied. The grip only matters for exercises that define
// variants.
func Builtin(ex Exercise, grip Grip) (*Profile, error) {
	data, err := builtinFS.ReadFile("data/" + string(ex) + ".json")
	if err != nil {
		return nil, errors.Wrapf(err, "no built-in profile for exercise %q", ex)
	}
	return parse(data, string(ex), grip)
}

// Load reads a custom profile from disk.
func Load(path string, grip Grip) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read profile %q", path)
	}
	return parse(data, path, grip)
}

func parse(data []byte, path string, grip Grip) (*Profile, error) {
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrapf(err, "cannot parse profile %q", path)
	}
	if err := p.Validate(path); err != nil {
		return nil, err
	}
	p.applyGrip(grip)
	return &p, nil
}
