package kinematics

import (
	"math"

	"github.com/edaniels/golog"

	"github.com/posecoach/posecoach/pose"
)

// Options tune the signal conditioner. The zero value is not usable; start
// from DefaultOptions.
type Options struct {
	// SmoothingWindow is the moving-average width in samples.
	SmoothingWindow int
	// GapFill is the widest missing stretch, in samples, that linear
	// interpolation may bridge.
	GapFill int
	// MinVisibility is the confidence floor below which a joint is missing.
	MinVisibility float64
	// JumpThreshold is the normalized per-sample displacement above which a
	// joint reading is treated as jitter and blended toward its predecessor.
	JumpThreshold float64
}

// DefaultOptions returns the conditioner defaults.
func DefaultOptions() Options {
	return Options{
		SmoothingWindow: 5,
		GapFill:         3,
		MinVisibility:   pose.DefaultMinVisibility,
		JumpThreshold:   0.15,
	}
}

// jumpBlend is the weight kept from the previous sample when a reading
// exceeds JumpThreshold.
const jumpBlend = 0.7

// Result is the conditioned output for one frame stream.
type Result struct {
	// Keypoints are normalized, de-jittered, smoothed and gap-filled, with
	// virtual joints populated. Same length and order as the input.
	Keypoints []pose.KeypointSet
	// Angles holds one series per requested triple, in request order.
	Angles []*Series
}

// Angle returns the named angle series, or nil when the triple was not
// requested.
func (r *Result) Angle(name string) *Series {
	for _, s := range r.Angles {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Condition runs the full stage: pixel coordinates are normalized by the
// frame dimensions, single-sample jumps are suppressed, each joint trajectory
// is smoothed within its valid runs and short gaps are filled, virtual joints
// are derived, and the requested triple angles are measured per frame.
func Condition(
	raw []pose.KeypointSet,
	width, height int,
	triples []pose.Triple,
	opts Options,
	logger golog.Logger,
) *Result {
	n := len(raw)
	norm := make([]pose.KeypointSet, n)
	for i, ks := range raw {
		norm[i] = ks.Normalize(width, height)
	}
	suppressJumps(norm, opts)

	out := make([]pose.KeypointSet, n)
	copy(out, norm)
	for j := pose.Joint(0); j < pose.NumDetected; j++ {
		xs := jointSeries(norm, j, opts.MinVisibility, func(kp pose.Keypoint) float64 { return kp.X })
		ys := jointSeries(norm, j, opts.MinVisibility, func(kp pose.Keypoint) float64 { return kp.Y })
		vs := jointSeries(norm, j, opts.MinVisibility, func(kp pose.Keypoint) float64 { return kp.Vis })

		xs = xs.Smooth(opts.SmoothingWindow).FillGaps(opts.GapFill)
		ys = ys.Smooth(opts.SmoothingWindow).FillGaps(opts.GapFill)
		vs = vs.FillGaps(opts.GapFill)

		for i := 0; i < n; i++ {
			if xs.Missing(i) || ys.Missing(i) {
				// below the visibility floor and not bridgeable; keep the raw
				// record for provenance
				out[i][j] = norm[i][j]
				continue
			}
			out[i][j] = pose.Keypoint{X: xs.Values[i], Y: ys.Values[i], Vis: vs.Values[i]}
		}
	}
	for i := range out {
		out[i].FillVirtual()
	}

	angles := make([]*Series, 0, len(triples))
	for _, tr := range triples {
		s := NewSeries(tr.Name, n)
		for i := range out {
			if deg, ok := tr.Measure(&out[i], opts.MinVisibility); ok {
				s.Values[i] = deg
			}
		}
		filled := s.FillGaps(opts.GapFill)
		if logger != nil {
			logger.Debugw("conditioned angle series",
				"triple", tr.Name,
				"valid", filled.ValidCount(),
				"frames", n,
			)
		}
		angles = append(angles, filled)
	}
	return &Result{Keypoints: out, Angles: angles}
}

// suppressJumps blends a joint reading toward its previous valid position
// when the displacement between consecutive samples exceeds the threshold.
// Detector jitter shows up as exactly these single-sample teleports.
func suppressJumps(kps []pose.KeypointSet, opts Options) {
	if opts.JumpThreshold <= 0 {
		return
	}
	for j := pose.Joint(0); j < pose.NumDetected; j++ {
		prev := -1
		for i := range kps {
			if !kps[i].Visible(j, opts.MinVisibility) {
				continue
			}
			if prev >= 0 && i-prev == 1 {
				dx := kps[i][j].X - kps[prev][j].X
				dy := kps[i][j].Y - kps[prev][j].Y
				if math.Hypot(dx, dy) > opts.JumpThreshold {
					kps[i][j].X = jumpBlend*kps[prev][j].X + (1-jumpBlend)*kps[i][j].X
					kps[i][j].Y = jumpBlend*kps[prev][j].Y + (1-jumpBlend)*kps[i][j].Y
				}
			}
			prev = i
		}
	}
}

func jointSeries(
	kps []pose.KeypointSet,
	j pose.Joint,
	minVis float64,
	get func(pose.Keypoint) float64,
) *Series {
	s := NewSeries(j.String(), len(kps))
	for i := range kps {
		if kps[i].Visible(j, minVis) {
			s.Values[i] = get(kps[i][j])
		}
	}
	return s
}

// DriverSignal maps an angle series into the normalized phase driver
// d in [0,1], where d=1 is the top of a repetition. minDeg and maxDeg bound
// the exercise's working range; invert flips the sense for exercises whose
// driver angle closes toward the top.
func DriverSignal(angles *Series, minDeg, maxDeg float64, invert bool) *Series {
	out := NewSeries("driver", angles.Len())
	span := maxDeg - minDeg
	if span <= 0 {
		return out
	}
	for i, v := range angles.Values {
		if angles.Missing(i) {
			continue
		}
		d := (v - minDeg) / span
		d = math.Max(0, math.Min(1, d))
		if invert {
			d = 1 - d
		}
		out.Values[i] = d
	}
	return out
}
