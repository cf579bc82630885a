// Package pose defines the 2D keypoint vocabulary shared by the analysis
// pipeline: the 17 COCO joints a detector reports, the virtual joints derived
// from them, and the angle geometry computed over joint triples.
package pose

import (
	"encoding/json"
	"math"

	"github.com/pkg/errors"
)

// Joint indexes one landmark in a KeypointSet. The first NumDetected joints
// follow the COCO-17 ordering used by the detector; the remaining joints are
// virtual and filled in by FillVirtual.
type Joint int

// The COCO-17 joints, in detector output order.
const (
	Nose Joint = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle

	// NumDetected is the number of joints a detector reports.
	NumDetected
)

// Virtual joints derived from detected ones.
const (
	Neck Joint = NumDetected + iota // midpoint of the shoulders
	Waist                           // midpoint of the hips
	AnkleCenter                     // midpoint of the ankles

	// NumJoints is the total slot count of a KeypointSet, detected plus
	// virtual.
	NumJoints
)

// DefaultMinVisibility is the confidence below which a joint is treated as
// missing for geometry. The raw record is still kept for provenance.
const DefaultMinVisibility = 0.3

var jointNames = [NumJoints]string{
	"nose",
	"left_eye",
	"right_eye",
	"left_ear",
	"right_ear",
	"left_shoulder",
	"right_shoulder",
	"left_elbow",
	"right_elbow",
	"left_wrist",
	"right_wrist",
	"left_hip",
	"right_hip",
	"left_knee",
	"right_knee",
	"left_ankle",
	"right_ankle",
	"neck",
	"waist",
	"ankle_center",
}

// String returns the snake_case joint name used in profiles and reports.
func (j Joint) String() string {
	if j < 0 || j >= NumJoints {
		return "unknown"
	}
	return jointNames[j]
}

// ParseJoint maps a snake_case joint name back to its Joint index.
func ParseJoint(name string) (Joint, error) {
	for i, n := range jointNames {
		if n == name {
			return Joint(i), nil
		}
	}
	return 0, errors.Errorf("unknown joint name %q", name)
}

// MarshalJSON emits the joint name rather than its index.
func (j Joint) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.String())
}

// UnmarshalJSON parses a joint name.
func (j *Joint) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseJoint(name)
	if err != nil {
		return err
	}
	*j = parsed
	return nil
}

// Keypoint is one detected landmark. X and Y are image coordinates (pixels
// from the detector, normalized to [0,1] by the signal conditioner) and Vis
// is the detector confidence in [0,1].
type Keypoint struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Vis float64 `json:"vis"`
}

// KeypointSet holds one frame's landmarks, detected joints first and virtual
// joints after. The zero value is the canonical "all-missing" detection.
type KeypointSet [NumJoints]Keypoint

// Visible reports whether joint j clears the visibility floor.
func (ks *KeypointSet) Visible(j Joint, minVis float64) bool {
	return ks[j].Vis >= minVis
}

// AllMissing reports whether no detected joint clears the visibility floor.
func (ks *KeypointSet) AllMissing(minVis float64) bool {
	for j := Joint(0); j < NumDetected; j++ {
		if ks.Visible(j, minVis) {
			return false
		}
	}
	return true
}

// Normalize maps pixel coordinates into [0,1] by the frame dimensions.
func (ks KeypointSet) Normalize(width, height int) KeypointSet {
	if width <= 0 || height <= 0 {
		return ks
	}
	w, h := float64(width), float64(height)
	for i := range ks {
		ks[i].X /= w
		ks[i].Y /= h
	}
	return ks
}

// BBoxArea returns the area of the axis-aligned box around the visible
// detected joints. Used to pick the primary person when a detector returns
// several candidates.
func (ks *KeypointSet) BBoxArea(minVis float64) float64 {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	any := false
	for j := Joint(0); j < NumDetected; j++ {
		if !ks.Visible(j, minVis) {
			continue
		}
		any = true
		minX = math.Min(minX, ks[j].X)
		minY = math.Min(minY, ks[j].Y)
		maxX = math.Max(maxX, ks[j].X)
		maxY = math.Max(maxY, ks[j].Y)
	}
	if !any {
		return 0
	}
	return (maxX - minX) * (maxY - minY)
}

// FillVirtual computes the virtual joints from their parents. A virtual
// joint's visibility is the smaller of its parents' so a missing parent makes
// the virtual joint missing too.
func (ks *KeypointSet) FillVirtual() {
	ks[Neck] = midpoint(ks[LeftShoulder], ks[RightShoulder])
	ks[Waist] = midpoint(ks[LeftHip], ks[RightHip])
	ks[AnkleCenter] = midpoint(ks[LeftAnkle], ks[RightAnkle])
}

func midpoint(a, b Keypoint) Keypoint {
	return Keypoint{
		X:   (a.X + b.X) / 2,
		Y:   (a.Y + b.Y) / 2,
		Vis: math.Min(a.Vis, b.Vis),
	}
}

// MarshalJSON emits the detected joints as a name-keyed object, the shape
// reports carry for overlay rendering.
func (ks KeypointSet) MarshalJSON() ([]byte, error) {
	out := make(map[string]Keypoint, NumDetected)
	for j := Joint(0); j < NumDetected; j++ {
		out[j.String()] = ks[j]
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses a name-keyed object back into a KeypointSet. Virtual
// joints are refilled from the parsed landmarks.
func (ks *KeypointSet) UnmarshalJSON(data []byte) error {
	var in map[string]Keypoint
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	var parsed KeypointSet
	for name, kp := range in {
		j, err := ParseJoint(name)
		if err != nil {
			return err
		}
		if j >= NumDetected {
			continue
		}
		parsed[j] = kp
	}
	parsed.FillVirtual()
	*ks = parsed
	return nil
}
