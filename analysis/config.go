package analysis

import (
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/posecoach/posecoach/pose"
)

// Config carries every pipeline knob. The analyzer reads nothing from the
// environment; all tuning travels here.
type Config struct {
	// ExtractFPS is the frame sampling rate, 1 to 30.
	ExtractFPS int `json:"extract_fps"`
	// BatchSize is the pose inference batch width.
	BatchSize int `json:"batch_size"`
	// SmoothingWindow is the keypoint moving-filter width in samples.
	SmoothingWindow int `json:"smoothing_window"`
	// GapFill is the widest missing stretch, in samples, imputation bridges.
	GapFill int `json:"gap_fill"`
	// MinVisibility is the keypoint confidence floor.
	MinVisibility float64 `json:"min_visibility"`
	// MotionThreshold is the activity gate floor in degrees per sample.
	MotionThreshold float64 `json:"motion_threshold"`
	// HysteresisOn and HysteresisOff are the activity debounce run lengths.
	HysteresisOn  int `json:"hysteresis_on"`
	HysteresisOff int `json:"hysteresis_off"`
	// DTop and DBot are the normalized driver thresholds for the phase
	// machine.
	DTop float64 `json:"d_top"`
	DBot float64 `json:"d_bot"`
	// TMinRep is the minimum believable repetition duration in seconds.
	TMinRep float64 `json:"t_min_rep"`
	// SoftDeg and HardDeg are the soft-scoring widths in degrees.
	SoftDeg float64 `json:"soft_deg"`
	HardDeg float64 `json:"hard_deg"`
	// DTWBandFrac is the Sakoe-Chiba band fraction.
	DTWBandFrac float64 `json:"dtw_band_frac"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		ExtractFPS:      10,
		BatchSize:       8,
		SmoothingWindow: 5,
		GapFill:         3,
		MinVisibility:   pose.DefaultMinVisibility,
		MotionThreshold: 1.5,
		HysteresisOn:    3,
		HysteresisOff:   5,
		DTop:            0.80,
		DBot:            0.20,
		TMinRep:         0.4,
		SoftDeg:         8,
		HardDeg:         20,
		DTWBandFrac:     0.15,
	}
}

// Validate checks every knob's range. path prefixes field references in the
// returned error.
func (c *Config) Validate(path string) error {
	if c.ExtractFPS < 1 || c.ExtractFPS > 30 {
		return goutils.NewConfigValidationError(path, errors.Errorf("extract_fps %d outside [1, 30]", c.ExtractFPS))
	}
	if c.BatchSize < 1 {
		return goutils.NewConfigValidationError(path, errors.Errorf("batch_size %d must be at least 1", c.BatchSize))
	}
	if c.SmoothingWindow < 1 {
		return goutils.NewConfigValidationError(path, errors.Errorf("smoothing_window %d must be at least 1", c.SmoothingWindow))
	}
	if c.GapFill < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("gap_fill %d must not be negative", c.GapFill))
	}
	if c.MinVisibility < 0 || c.MinVisibility > 1 {
		return goutils.NewConfigValidationError(path, errors.Errorf("min_visibility %v outside [0, 1]", c.MinVisibility))
	}
	if c.MotionThreshold <= 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("motion_threshold %v must be positive", c.MotionThreshold))
	}
	if c.HysteresisOn < 1 || c.HysteresisOff < 1 {
		return goutils.NewConfigValidationError(path, errors.Errorf(
			"hysteresis runs %d/%d must be at least 1", c.HysteresisOn, c.HysteresisOff))
	}
	if c.DBot <= 0 || c.DTop >= 1 || c.DBot >= c.DTop {
		return goutils.NewConfigValidationError(path, errors.Errorf(
			"phase thresholds d_bot=%v, d_top=%v must satisfy 0 < d_bot < d_top < 1", c.DBot, c.DTop))
	}
	if c.TMinRep <= 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("t_min_rep %v must be positive", c.TMinRep))
	}
	if c.SoftDeg <= 0 || c.HardDeg <= c.SoftDeg {
		return goutils.NewConfigValidationError(path, errors.Errorf(
			"scoring widths soft=%v, hard=%v must satisfy 0 < soft < hard", c.SoftDeg, c.HardDeg))
	}
	if c.DTWBandFrac <= 0 || c.DTWBandFrac > 1 {
		return goutils.NewConfigValidationError(path, errors.Errorf("dtw_band_frac %v outside (0, 1]", c.DTWBandFrac))
	}
	return nil
}
