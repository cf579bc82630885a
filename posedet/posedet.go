// Package posedet runs 2D human pose detection over frame images. The batch
// runner feeds a Detector fixed-size batches, keeps output aligned with input
// order, and reduces multi-person candidates to the primary subject.
package posedet

import (
	"context"
	"image"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/posecoach/posecoach/pose"
)

// Detector infers candidate person keypoint sets for a batch of images.
// Implementations must return one candidate slice per input image, in input
// order; an image with no detectable person gets an empty slice. Detectors
// must be safe for concurrent use so one handle can serve every request.
type Detector interface {
	Detect(ctx context.Context, imgs []image.Image) ([][]pose.KeypointSet, error)
	Close() error
}

// DefaultBatchSize is the inference batch width. A tuning knob, not a
// correctness one.
const DefaultBatchSize = 8

// Run pushes the images through the detector in batches of batchSize and
// returns exactly one keypoint set per image: the candidate with the largest
// visible bounding box, or the all-missing set when nothing was detected.
// Cancellation is honored between batches.
func Run(
	ctx context.Context,
	det Detector,
	imgs []image.Image,
	batchSize int,
	minVis float64,
	logger golog.Logger,
) ([]pose.KeypointSet, error) {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	out := make([]pose.KeypointSet, len(imgs))
	misses := 0
	for start := 0; start < len(imgs); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + batchSize
		if end > len(imgs) {
			end = len(imgs)
		}
		candidates, err := det.Detect(ctx, imgs[start:end])
		if err != nil {
			return nil, errors.Wrapf(err, "pose inference failed on batch at frame %d", start)
		}
		if len(candidates) != end-start {
			return nil, errors.Errorf("detector returned %d results for a batch of %d", len(candidates), end-start)
		}
		for i, cands := range candidates {
			best, ok := BestPerson(cands, minVis)
			if !ok {
				misses++
				continue
			}
			out[start+i] = best
		}
	}
	if logger != nil {
		logger.Infow("pose detection complete", "frames", len(imgs), "undetected", misses)
	}
	return out, nil
}

// BestPerson picks the candidate with the largest visible bounding-box area.
// ok is false when no candidate has any visible joint.
func BestPerson(cands []pose.KeypointSet, minVis float64) (pose.KeypointSet, bool) {
	bestArea := 0.0
	bestIdx := -1
	for i := range cands {
		if area := cands[i].BBoxArea(minVis); area > bestArea {
			bestArea = area
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return pose.KeypointSet{}, false
	}
	return cands[bestIdx], true
}
