// Package testutils generates synthetic keypoint and angle sequences with
// known ground truth, shared by the pipeline package tests and by CLI smoke
// runs against the fake detector.
package testutils

import (
	"math"

	"github.com/posecoach/posecoach/pose"
)

// Body proportions of the synthetic subject, in normalized image units.
const (
	upperArmLen = 0.15
	forearmLen  = 0.13
	torsoLen    = 0.18
	thighLen    = 0.15
	shinLen     = 0.15
)

// ElbowCycle builds an elbow-angle trajectory of reps repetitions, period
// samples each, swinging cosine-shaped from topDeg down to bottomDeg and
// back. The sequence starts and ends at topDeg.
func ElbowCycle(reps, period int, topDeg, bottomDeg float64) []float64 {
	out := make([]float64, reps*period+1)
	mid := (topDeg + bottomDeg) / 2
	amp := (topDeg - bottomDeg) / 2
	for i := range out {
		t := float64(i%period) / float64(period)
		if i == len(out)-1 {
			t = 0
		}
		out[i] = mid + amp*math.Cos(2*math.Pi*t)
	}
	return out
}

// Constant returns n copies of v.
func Constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// PushupFrames synthesizes a side-view push-up pose per frame. elbowDeg
// drives the shoulder-elbow-wrist angle; hipDeg drives the
// shoulder-hip-knee angle (180 is a straight body line). Knees stay
// straight, the upper arm is tucked about 50 degrees off the torso, and
// every joint reports 0.9 visibility.
func PushupFrames(elbowDeg, hipDeg []float64) []pose.KeypointSet {
	n := len(elbowDeg)
	out := make([]pose.KeypointSet, n)
	for i := 0; i < n; i++ {
		out[i] = pushupPoseAt(elbowDeg[i], hipDeg[minInt(i, len(hipDeg)-1)])
	}
	return out
}

// PullupFrames synthesizes a pull-up: vertical body, arms overhead. elbowDeg
// closes toward the top of the rep.
func PullupFrames(elbowDeg []float64) []pose.KeypointSet {
	out := make([]pose.KeypointSet, len(elbowDeg))
	for i := range elbowDeg {
		out[i] = pullupPoseAt(elbowDeg[i])
	}
	return out
}

// AllMissing returns n frames with no detection.
func AllMissing(n int) []pose.KeypointSet {
	return make([]pose.KeypointSet, n)
}

// rotate turns unit vector (x, y) by deg degrees.
func rotate(x, y, deg float64) (float64, float64) {
	a := deg * math.Pi / 180
	return x*math.Cos(a) - y*math.Sin(a), x*math.Sin(a) + y*math.Cos(a)
}

// armJoints places the elbow and wrist for one arm. The elbow sits at
// upperArmLen along armDir from the shoulder; the wrist realizes elbowDeg at
// the elbow, measured against the ray back to the shoulder.
func armJoints(sx, sy, armDirX, armDirY, elbowDeg float64) (ex, ey, wx, wy float64) {
	ex = sx + upperArmLen*armDirX
	ey = sy + upperArmLen*armDirY
	ux, uy := -armDirX, -armDirY // elbow -> shoulder
	rx, ry := rotate(ux, uy, elbowDeg)
	wx = ex + forearmLen*rx
	wy = ey + forearmLen*ry
	return ex, ey, wx, wy
}

// pushupPoseAt places the subject for one push-up frame: horizontal torso
// toward +x, arms tilted toward the hips so the shoulder abduction sits near
// 50 degrees.
func pushupPoseAt(elbowDeg, hipDeg float64) pose.KeypointSet {
	var ks pose.KeypointSet
	set := func(left, right pose.Joint, x, y float64) {
		// a slight left/right split keeps the two sides distinct
		ks[left] = pose.Keypoint{X: x - 0.004, Y: y, Vis: 0.9}
		ks[right] = pose.Keypoint{X: x + 0.004, Y: y, Vis: 0.9}
	}

	sx, sy := 0.40, 0.35
	set(pose.LeftShoulder, pose.RightShoulder, sx, sy)

	armDirX, armDirY := math.Sin(40*math.Pi/180), math.Cos(40*math.Pi/180)
	ex, ey, wx, wy := armJoints(sx, sy, armDirX, armDirY, elbowDeg)
	set(pose.LeftElbow, pose.RightElbow, ex, ey)
	set(pose.LeftWrist, pose.RightWrist, wx, wy)

	// horizontal torso; the knee direction realizes the hip angle
	hx, hy := sx+torsoLen, sy
	set(pose.LeftHip, pose.RightHip, hx, hy)
	h := hipDeg * math.Pi / 180
	dx, dy := -math.Cos(h), math.Sin(h)
	kx, ky := hx+thighLen*dx, hy+thighLen*dy
	set(pose.LeftKnee, pose.RightKnee, kx, ky)
	set(pose.LeftAnkle, pose.RightAnkle, kx+shinLen*dx, ky+shinLen*dy)

	set(pose.LeftEye, pose.RightEye, sx-0.05, sy-0.04)
	set(pose.LeftEar, pose.RightEar, sx-0.04, sy-0.03)
	ks[pose.Nose] = pose.Keypoint{X: sx - 0.07, Y: sy - 0.02, Vis: 0.9}
	return ks
}

// pullupPoseAt places the subject hanging from a bar: vertical body line,
// arms overhead and flared wide so the shoulder abduction sits near 100
// degrees.
func pullupPoseAt(elbowDeg float64) pose.KeypointSet {
	var ks pose.KeypointSet
	side := func(sign float64, shoulder, elbow, wrist pose.Joint) {
		sx, sy := 0.50+sign*0.06, 0.40
		ks[shoulder] = pose.Keypoint{X: sx, Y: sy, Vis: 0.9}

		armDirX := sign * math.Sin(80*math.Pi/180)
		armDirY := -math.Cos(80 * math.Pi / 180)
		ex, ey, wx, wy := armJoints(sx, sy, armDirX, armDirY, elbowDeg)
		ks[elbow] = pose.Keypoint{X: ex, Y: ey, Vis: 0.9}
		ks[wrist] = pose.Keypoint{X: wx, Y: wy, Vis: 0.9}
	}
	side(-1, pose.LeftShoulder, pose.LeftElbow, pose.LeftWrist)
	side(1, pose.RightShoulder, pose.RightElbow, pose.RightWrist)

	set := func(left, right pose.Joint, x, y float64) {
		ks[left] = pose.Keypoint{X: x - 0.05, Y: y, Vis: 0.9}
		ks[right] = pose.Keypoint{X: x + 0.05, Y: y, Vis: 0.9}
	}
	hx, hy := 0.50, 0.40+torsoLen
	set(pose.LeftHip, pose.RightHip, hx, hy)
	set(pose.LeftKnee, pose.RightKnee, hx, hy+thighLen)
	set(pose.LeftAnkle, pose.RightAnkle, hx, hy+thighLen+shinLen)

	set(pose.LeftEye, pose.RightEye, 0.50, 0.34)
	set(pose.LeftEar, pose.RightEar, 0.50, 0.35)
	ks[pose.Nose] = pose.Keypoint{X: 0.50, Y: 0.33, Vis: 0.9}
	return ks
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
