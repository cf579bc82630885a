package posedet

import (
	"context"
	"image"
	"sync"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"github.com/posecoach/posecoach/pose"
)

// markedSet builds a keypoint set whose nose X encodes an ordinal, so tests
// can verify ordering survived batching.
func markedSet(ord int) pose.KeypointSet {
	var ks pose.KeypointSet
	for j := pose.Joint(0); j < pose.NumDetected; j++ {
		ks[j] = pose.Keypoint{X: float64(ord), Y: float64(j), Vis: 0.9}
	}
	return ks
}

func images(n int) []image.Image {
	imgs := make([]image.Image, n)
	for i := range imgs {
		imgs[i] = image.NewRGBA(image.Rect(0, 0, 4, 4))
	}
	return imgs
}

func TestRunPreservesOrder(t *testing.T) {
	logger := golog.NewTestLogger(t)
	script := make([]pose.KeypointSet, 20)
	for i := range script {
		script[i] = markedSet(i)
	}
	out, err := Run(context.Background(), NewFake(script), images(20), 8, 0.3, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldHaveLength, 20)
	for i, ks := range out {
		test.That(t, ks[pose.Nose].X, test.ShouldEqual, float64(i))
	}
}

func TestRunMissingDetections(t *testing.T) {
	logger := golog.NewTestLogger(t)
	script := []pose.KeypointSet{markedSet(0), {}, markedSet(2)}
	out, err := Run(context.Background(), NewFake(script), images(3), 2, 0.3, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out[1].AllMissing(0.3), test.ShouldBeTrue)
	test.That(t, out[0].AllMissing(0.3), test.ShouldBeFalse)
	test.That(t, out[2].AllMissing(0.3), test.ShouldBeFalse)
}

func TestRunScriptExhaustion(t *testing.T) {
	logger := golog.NewTestLogger(t)
	out, err := Run(context.Background(), NewFake([]pose.KeypointSet{markedSet(0)}), images(4), 8, 0.3, logger)
	test.That(t, err, test.ShouldBeNil)
	for i := 1; i < 4; i++ {
		test.That(t, out[i].AllMissing(0.3), test.ShouldBeTrue)
	}
}

func TestRunCancellation(t *testing.T) {
	logger := golog.NewTestLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, NewFake(nil), images(4), 2, 0.3, logger)
	test.That(t, err, test.ShouldBeError, context.Canceled)
}

func TestRunDetectorFailure(t *testing.T) {
	logger := golog.NewTestLogger(t)
	_, err := Run(context.Background(), &Erroring{}, images(4), 2, 0.3, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBestPerson(t *testing.T) {
	// a small person near the camera edge and a large centered one
	var small, large pose.KeypointSet
	for j := pose.Joint(0); j < pose.NumDetected; j++ {
		small[j] = pose.Keypoint{X: 0.1 + 0.01*float64(j), Y: 0.1, Vis: 0.9}
		large[j] = pose.Keypoint{X: 0.1 * float64(j), Y: 0.05 * float64(j), Vis: 0.9}
	}
	best, ok := BestPerson([]pose.KeypointSet{small, large}, 0.3)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, best, test.ShouldResemble, large)

	_, ok = BestPerson(nil, 0.3)
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = BestPerson([]pose.KeypointSet{{}}, 0.3)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestFakeConcurrentUse(t *testing.T) {
	// the detector handle is shared across requests; concurrent Detect calls
	// must not race
	f := NewFake(make([]pose.KeypointSet, 64))
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			//nolint:errcheck
			f.Detect(context.Background(), images(16))
		}()
	}
	wg.Wait()
}
