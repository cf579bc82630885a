package phase

import (
	"math"
	"testing"

	"go.viam.com/test"
)

// cycleDriver builds a driver that starts on a top hold and completes reps
// full cycles: hold at 1, fall to 0, hold, rise back to 1.
func cycleDriver(reps, hold, ramp int) []float64 {
	var d []float64
	for i := 0; i < hold; i++ {
		d = append(d, 1)
	}
	for r := 0; r < reps; r++ {
		for i := 1; i <= ramp; i++ {
			d = append(d, 1-float64(i)/float64(ramp))
		}
		for i := 0; i < hold; i++ {
			d = append(d, 0)
		}
		for i := 1; i <= ramp; i++ {
			d = append(d, float64(i)/float64(ramp))
		}
		for i := 0; i < hold; i++ {
			d = append(d, 1)
		}
	}
	return d
}

func countRuns(labels []Label, want Label) int {
	runs := 0
	for i, l := range labels {
		if l == want && (i == 0 || labels[i-1] != want) {
			runs++
		}
	}
	return runs
}

func TestSegmentCleanReps(t *testing.T) {
	d := cycleDriver(3, 3, 5)
	res := Segment(d, DefaultParams(10))

	test.That(t, res.Reps, test.ShouldEqual, 3)
	test.That(t, countRuns(res.Labels, Top), test.ShouldEqual, 4)
	test.That(t, countRuns(res.Labels, Bottom), test.ShouldEqual, 3)
	test.That(t, CountTransitions(res.Labels, Ascending, Top), test.ShouldEqual, res.Reps)

	// the stream ends on a hold at the top, which still closes the last rep
	test.That(t, res.Labels[len(res.Labels)-1], test.ShouldEqual, Top)
}

func TestSegmentBottomStartCountsFirstAscent(t *testing.T) {
	// a hang start orients to bottom, so all three ascents count
	d := []float64{0.1, 0.05, 0.1, 0.4, 0.8, 1, 1, 0.6, 0.1, 0.1, 0.5, 0.9, 1, 1,
		0.6, 0.1, 0.1, 0.5, 0.9, 1, 1}
	res := Segment(d, DefaultParams(10))
	test.That(t, res.Reps, test.ShouldEqual, 3)
	test.That(t, res.Labels[0], test.ShouldEqual, Bottom)
	test.That(t, CountTransitions(res.Labels, Ascending, Top), test.ShouldEqual, 3)
}

func TestSegmentBounceDoesNotCount(t *testing.T) {
	// dips to 0.5, never below the bottom gate, then returns
	d := []float64{1, 1, 0.9, 0.7, 0.5, 0.6, 0.8, 0.95, 1, 1}
	res := Segment(d, DefaultParams(10))
	test.That(t, res.Reps, test.ShouldEqual, 0)
	test.That(t, countRuns(res.Labels, Bottom), test.ShouldEqual, 0)
	test.That(t, CountTransitions(res.Labels, Ascending, Top), test.ShouldEqual, 0)
}

func TestSegmentSuppressesResidualOscillation(t *testing.T) {
	// one clean rep whose lockout rings: a sub-minimum wiggle at the top
	d := []float64{
		1, 1, 0.8, 0.6, 0.4, 0.2, 0.1, 0.05, 0.1, 0.3, 0.5, 0.7, 0.9, 1,
		0.85, 1, // ringing well inside the min rep window
		1, 1,
	}
	p := DefaultParams(10) // 0.4s at 10 fps = 4 samples
	res := Segment(d, p)
	test.That(t, res.Reps, test.ShouldEqual, 1)
}

func TestSegmentFastFullOscillation(t *testing.T) {
	// a whole bounce faster than a believable rep collapses into its
	// neighbors and counts once
	d := []float64{
		1, 1, 0.6, 0.1, 0.6, 1, 0.6, 0.1, // two dips 4-5 samples apart
		0.5, 0.9, 1, 1,
	}
	p := Params{DTop: 0.8, DBot: 0.2, MinRepSeconds: 0.8, SampleRate: 10}
	res := Segment(d, p)
	test.That(t, res.Reps, test.ShouldEqual, 1)
}

func TestSegmentMissingDriver(t *testing.T) {
	nan := math.NaN()

	res := Segment([]float64{nan, nan, nan}, DefaultParams(10))
	test.That(t, res.Reps, test.ShouldEqual, 0)
	test.That(t, res.Labels, test.ShouldResemble, []Label{Ready, Ready, Ready})

	// a short dropout mid-descent holds state instead of inventing motion
	d := []float64{1, 1, 0.7, nan, nan, 0.1, 0.05, 0.3, 0.6, 0.95, 1, 1}
	res = Segment(d, DefaultParams(10))
	test.That(t, res.Reps, test.ShouldEqual, 1)
}

func TestSegmentFinishAfterLastTop(t *testing.T) {
	// one rep then an abandoned half descent
	d := []float64{1, 1, 0.6, 0.1, 0.1, 0.5, 0.9, 1, 1, 0.7, 0.5, 0.5}
	res := Segment(d, DefaultParams(10))
	test.That(t, res.Reps, test.ShouldEqual, 1)

	// the abandoned descent after the last completed rep is wind-down
	for i := 9; i < len(res.Labels); i++ {
		test.That(t, res.Labels[i], test.ShouldEqual, Finish)
	}
	test.That(t, res.Labels[8], test.ShouldEqual, Top)
}

func TestSegmentRateInvariance(t *testing.T) {
	// the same motion sampled at 10 and 6 fps counts identically
	at10 := cycleDriver(4, 4, 10)
	var at6 []float64
	for i := 0; i < len(at10); i++ {
		if i*6/10 > (i-1)*6/10 {
			at6 = append(at6, at10[i])
		}
	}
	r10 := Segment(at10, DefaultParams(10))
	r6 := Segment(at6, DefaultParams(6))
	test.That(t, r10.Reps, test.ShouldEqual, 4)
	test.That(t, r6.Reps, test.ShouldEqual, r10.Reps)
}

func TestFindExtrema(t *testing.T) {
	// plateau extrema land on the plateau midpoint
	vals := []float64{0, 1, 1, 1, 0, 0, 1}
	evs := findExtrema(vals)
	test.That(t, evs, test.ShouldHaveLength, 3)
	test.That(t, evs[0].kind, test.ShouldEqual, maximum)
	test.That(t, evs[0].idx, test.ShouldEqual, 2)
	test.That(t, evs[1].kind, test.ShouldEqual, minimum)
	test.That(t, evs[2].kind, test.ShouldEqual, maximum)

	test.That(t, findExtrema([]float64{1}), test.ShouldBeEmpty)
	test.That(t, findExtrema([]float64{1, 1, 1}), test.ShouldBeEmpty)
}

func TestConsolidateTieBreak(t *testing.T) {
	events := []extremum{
		{idx: 10, value: 0.9, kind: maximum},
		{idx: 12, value: 0.95, kind: maximum},
	}
	out := consolidate(events, 5)
	test.That(t, out, test.ShouldHaveLength, 1)
	test.That(t, out[0].value, test.ShouldEqual, 0.95)

	// minima keep the deeper value
	events = []extremum{
		{idx: 10, value: 0.05, kind: minimum},
		{idx: 12, value: 0.1, kind: minimum},
	}
	out = consolidate(events, 5)
	test.That(t, out, test.ShouldHaveLength, 1)
	test.That(t, out[0].value, test.ShouldEqual, 0.05)

	// far enough apart, both survive
	events = []extremum{
		{idx: 10, value: 0.9, kind: maximum},
		{idx: 30, value: 0.95, kind: maximum},
	}
	test.That(t, consolidate(events, 5), test.ShouldHaveLength, 2)
}
