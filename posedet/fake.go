package posedet

import (
	"context"
	"image"
	"sync"

	"github.com/pkg/errors"

	"github.com/posecoach/posecoach/pose"
)

// Fake replays a scripted keypoint stream instead of running a model. It
// serves tests and CLI smoke runs; images are ignored, only their count
// matters.
type Fake struct {
	mu     sync.Mutex
	script []pose.KeypointSet
	cursor int
}

// NewFake builds a detector that yields script entries in order, one per
// image, and all-missing sets once the script runs out.
func NewFake(script []pose.KeypointSet) *Fake {
	return &Fake{script: script}
}

// Detect replays the next len(imgs) script entries.
func (f *Fake) Detect(ctx context.Context, imgs []image.Image) ([][]pose.KeypointSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]pose.KeypointSet, len(imgs))
	for i := range imgs {
		if f.cursor < len(f.script) {
			out[i] = []pose.KeypointSet{f.script[f.cursor]}
			f.cursor++
		}
	}
	return out, nil
}

// Reset rewinds the script so the same handle can serve a second pass, e.g. a
// reference analysis.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursor = 0
}

// Close implements Detector.
func (f *Fake) Close() error { return nil }

// Erroring is a detector that always fails, for exercising failure paths.
type Erroring struct{}

// Detect implements Detector.
func (e *Erroring) Detect(context.Context, []image.Image) ([][]pose.KeypointSet, error) {
	return nil, errors.New("detector hardware unavailable")
}

// Close implements Detector.
func (e *Erroring) Close() error { return nil }
