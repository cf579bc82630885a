package kinematics

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func seriesOf(vals ...float64) *Series {
	s := &Series{Name: "test", Values: make([]float64, len(vals))}
	copy(s.Values, vals)
	return s
}

var gap = math.NaN()

func TestSmoothWithinRuns(t *testing.T) {
	s := seriesOf(0, 10, 0, 10, 0)
	sm := s.Smooth(3)
	test.That(t, sm.Values[1], test.ShouldAlmostEqual, 10.0/3)
	test.That(t, sm.Values[2], test.ShouldAlmostEqual, 20.0/3)
	// window shrinks at the edges instead of zero-padding
	test.That(t, sm.Values[0], test.ShouldAlmostEqual, 5)
	test.That(t, sm.Values[4], test.ShouldAlmostEqual, 5)

	// a gap splits the signal into independent runs
	s = seriesOf(0, 0, gap, 100, 100)
	sm = s.Smooth(5)
	test.That(t, sm.Values[0], test.ShouldAlmostEqual, 0)
	test.That(t, sm.Values[1], test.ShouldAlmostEqual, 0)
	test.That(t, sm.Missing(2), test.ShouldBeTrue)
	test.That(t, sm.Values[3], test.ShouldAlmostEqual, 100)

	// window of 1 is the identity
	test.That(t, seriesOf(1, 2, 3).Smooth(1).Values, test.ShouldResemble, []float64{1, 2, 3})
}

func TestFillGaps(t *testing.T) {
	s := seriesOf(0, gap, gap, gap, 8)
	filled := s.FillGaps(3)
	test.That(t, filled.Values[1], test.ShouldAlmostEqual, 2)
	test.That(t, filled.Values[2], test.ShouldAlmostEqual, 4)
	test.That(t, filled.Values[3], test.ShouldAlmostEqual, 6)

	// a four-sample gap exceeds the limit and stays missing
	s = seriesOf(0, gap, gap, gap, gap, 10)
	filled = s.FillGaps(3)
	for i := 1; i <= 4; i++ {
		test.That(t, filled.Missing(i), test.ShouldBeTrue)
	}

	// leading and trailing gaps have a single anchor and stay missing
	s = seriesOf(gap, 5, 5, gap)
	filled = s.FillGaps(3)
	test.That(t, filled.Missing(0), test.ShouldBeTrue)
	test.That(t, filled.Missing(3), test.ShouldBeTrue)

	// the original is untouched
	test.That(t, s.Missing(0), test.ShouldBeTrue)
}

func TestValidRunsAndCounts(t *testing.T) {
	s := seriesOf(gap, 1, 2, gap, gap, 3, gap)
	runs := s.validRuns()
	test.That(t, runs, test.ShouldResemble, []run{{1, 3}, {5, 6}})
	test.That(t, s.ValidCount(), test.ShouldEqual, 3)
	test.That(t, s.Mean(), test.ShouldAlmostEqual, 2)

	empty := NewSeries("none", 4)
	test.That(t, empty.validRuns(), test.ShouldBeNil)
	test.That(t, math.IsNaN(empty.Mean()), test.ShouldBeTrue)
}

func TestClamp(t *testing.T) {
	s := seriesOf(-5, 0.5, gap, 7)
	c := s.Clamp(0, 1)
	test.That(t, c.Values[0], test.ShouldEqual, 0.0)
	test.That(t, c.Values[1], test.ShouldEqual, 0.5)
	test.That(t, c.Missing(2), test.ShouldBeTrue)
	test.That(t, c.Values[3], test.ShouldEqual, 1.0)
}
