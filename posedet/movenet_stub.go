//go:build no_tflite || no_cgo

package posedet

import "github.com/pkg/errors"

// MoveNetConfig configures the TFLite pose model.
type MoveNetConfig struct {
	ModelPath  string `json:"model_path"`
	NumThreads int    `json:"num_threads"`
}

// NewMoveNet is unavailable without the TFLite runtime.
func NewMoveNet(conf MoveNetConfig) (Detector, error) {
	return nil, errors.New("tflite pose detection is not compiled into this binary")
}
