package pose

import (
	"encoding/json"
	"testing"

	"go.viam.com/test"
)

func TestAngle(t *testing.T) {
	b := Keypoint{X: 0, Y: 0, Vis: 1}

	// right angle at the vertex
	a := Keypoint{X: 1, Y: 0, Vis: 1}
	c := Keypoint{X: 0, Y: 1, Vis: 1}
	test.That(t, Angle(a, b, c), test.ShouldAlmostEqual, 90, 1e-9)

	// opposite rays are a straight line
	c = Keypoint{X: -1, Y: 0, Vis: 1}
	test.That(t, Angle(a, b, c), test.ShouldAlmostEqual, 180, 1e-9)

	// coincident rays close the angle entirely
	c = Keypoint{X: 2, Y: 0, Vis: 1}
	test.That(t, Angle(a, b, c), test.ShouldAlmostEqual, 0, 1e-9)

	// collapsed ray falls back to the straight-line convention
	test.That(t, Angle(b, b, c), test.ShouldEqual, 180.0)

	// results never leave [0, 180] even with near-parallel rays
	a = Keypoint{X: 1, Y: 1e-12, Vis: 1}
	c = Keypoint{X: 1, Y: -1e-12, Vis: 1}
	got := Angle(a, b, c)
	test.That(t, got, test.ShouldBeGreaterThanOrEqualTo, 0.0)
	test.That(t, got, test.ShouldBeLessThanOrEqualTo, 180.0)
}

func TestTripleMeasure(t *testing.T) {
	var ks KeypointSet
	ks[LeftShoulder] = Keypoint{X: 0, Y: 0, Vis: 0.9}
	ks[LeftElbow] = Keypoint{X: 1, Y: 0, Vis: 0.9}
	ks[LeftWrist] = Keypoint{X: 1, Y: 1, Vis: 0.9}
	tr := Triple{Name: "left_elbow", A: LeftShoulder, B: LeftElbow, C: LeftWrist}

	deg, ok := tr.Measure(&ks, DefaultMinVisibility)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, deg, test.ShouldAlmostEqual, 90, 1e-9)

	// a low-confidence joint makes the whole angle missing
	ks[LeftWrist].Vis = 0.1
	_, ok = tr.Measure(&ks, DefaultMinVisibility)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestJointNames(t *testing.T) {
	for j := Joint(0); j < NumJoints; j++ {
		parsed, err := ParseJoint(j.String())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, parsed, test.ShouldEqual, j)
	}
	_, err := ParseJoint("third_arm")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestNormalizeAndBBox(t *testing.T) {
	var ks KeypointSet
	ks[LeftShoulder] = Keypoint{X: 100, Y: 50, Vis: 0.8}
	ks[RightShoulder] = Keypoint{X: 300, Y: 50, Vis: 0.8}
	ks[LeftAnkle] = Keypoint{X: 100, Y: 450, Vis: 0.8}

	norm := ks.Normalize(400, 500)
	test.That(t, norm[LeftShoulder].X, test.ShouldAlmostEqual, 0.25)
	test.That(t, norm[LeftShoulder].Y, test.ShouldAlmostEqual, 0.1)
	test.That(t, norm[RightShoulder].X, test.ShouldAlmostEqual, 0.75)

	area := norm.BBoxArea(DefaultMinVisibility)
	test.That(t, area, test.ShouldAlmostEqual, 0.5*0.8, 1e-9)

	var empty KeypointSet
	test.That(t, empty.BBoxArea(DefaultMinVisibility), test.ShouldEqual, 0.0)
	test.That(t, empty.AllMissing(DefaultMinVisibility), test.ShouldBeTrue)
}

func TestFillVirtual(t *testing.T) {
	var ks KeypointSet
	ks[LeftShoulder] = Keypoint{X: 0.2, Y: 0.3, Vis: 0.9}
	ks[RightShoulder] = Keypoint{X: 0.4, Y: 0.3, Vis: 0.7}
	ks[LeftHip] = Keypoint{X: 0.25, Y: 0.6, Vis: 0.9}
	ks[RightHip] = Keypoint{X: 0.35, Y: 0.6, Vis: 0.1}
	ks.FillVirtual()

	test.That(t, ks[Neck].X, test.ShouldAlmostEqual, 0.3)
	test.That(t, ks[Neck].Y, test.ShouldAlmostEqual, 0.3)
	test.That(t, ks[Neck].Vis, test.ShouldAlmostEqual, 0.7)

	// one hidden hip hides the waist as well
	test.That(t, ks[Waist].Vis, test.ShouldAlmostEqual, 0.1)

	// ankles were never seen
	test.That(t, ks[AnkleCenter].Vis, test.ShouldEqual, 0.0)
}

func TestKeypointSetJSON(t *testing.T) {
	var ks KeypointSet
	ks[Nose] = Keypoint{X: 0.5, Y: 0.2, Vis: 0.95}
	ks[LeftShoulder] = Keypoint{X: 0.4, Y: 0.35, Vis: 0.9}
	ks[RightShoulder] = Keypoint{X: 0.6, Y: 0.35, Vis: 0.9}
	ks.FillVirtual()

	data, err := json.Marshal(ks)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldContainSubstring, `"nose"`)
	// virtual joints never leave the process
	test.That(t, string(data), test.ShouldNotContainSubstring, `"neck"`)

	var back KeypointSet
	test.That(t, json.Unmarshal(data, &back), test.ShouldBeNil)
	test.That(t, back[Nose], test.ShouldResemble, ks[Nose])
	test.That(t, back[Neck].X, test.ShouldAlmostEqual, 0.5)

	// marshaling is deterministic for repeated runs
	data2, err := json.Marshal(ks)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data2), test.ShouldEqual, string(data))
}
