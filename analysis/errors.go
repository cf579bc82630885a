package analysis

import (
	"context"

	"github.com/pkg/errors"
)

// The five failure kinds the analyzer surfaces. Wrapped errors keep their
// kind, so callers classify with errors.Is.
var (
	// ErrInput marks an unusable request: missing or non-video file, unknown
	// exercise or grip, out-of-range configuration.
	ErrInput = errors.New("invalid analysis input")
	// ErrDecode marks an extraction that lost more than half of its frames.
	ErrDecode = errors.New("video decoding failed")
	// ErrDetection marks a run where pose detection missed on more than 80%
	// of frames, leaving nothing to analyze.
	ErrDetection = errors.New("pose detection found no usable subject")
	// ErrInsufficientMotion marks a video with no completed repetition. The
	// analyzer still returns a warning-level report alongside this error,
	// with a zero count and no frame scores.
	ErrInsufficientMotion = errors.New("insufficient motion for analysis")
	// ErrCancelled marks a request stopped by its caller's context.
	ErrCancelled = errors.New("analysis cancelled")
)

// wrapCancel converts context errors into the Cancelled kind; other errors
// pass through untouched.
func wrapCancel(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(ErrCancelled, err.Error())
	}
	return err
}
