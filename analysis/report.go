package analysis

import (
	"github.com/posecoach/posecoach/activity"
	"github.com/posecoach/posecoach/dtw"
	"github.com/posecoach/posecoach/phase"
	"github.com/posecoach/posecoach/pose"
	"github.com/posecoach/posecoach/score"
)

// FrameRecord is the per-frame provenance kept for overlay rendering: the
// smoothed keypoints, timing, and the phase the frame landed in.
type FrameRecord struct {
	FrameIdx  int              `json:"frame_idx"`
	Timestamp float64          `json:"timestamp"`
	ThumbPath string           `json:"thumb_path,omitempty"`
	Phase     phase.Label      `json:"phase,omitempty"`
	Keypoints pose.KeypointSet `json:"keypoints"`
}

// Report is the analyzer's sole product. Every field is set exactly once
// during assembly; the report is immutable afterwards.
type Report struct {
	VideoName    string `json:"video_name"`
	ExerciseType string `json:"exercise_type"`
	GripType     string `json:"grip_type,omitempty"`

	Duration    float64 `json:"duration"`
	FPS         int     `json:"fps"`
	TotalFrames int     `json:"total_frames"`

	ExerciseCount int `json:"exercise_count"`

	FrameScores []score.FrameScore `json:"frame_scores"`
	// ErrorFrames is the subset of FrameScores carrying at least one fault.
	ErrorFrames []score.FrameScore `json:"error_frames"`

	Keypoints            []FrameRecord `json:"keypoints"`
	SelectedFrameIndices []int         `json:"selected_frame_indices"`

	Filtering activity.Provenance `json:"filtering"`

	AvgScore    float64            `json:"avg_score"`
	PhaseScores map[string]float64 `json:"phase_scores"`
	Grade       string             `json:"grade"`

	DTWActive bool        `json:"dtw_active"`
	DTWResult *dtw.Result `json:"dtw_result"`

	// Warning is set on warning-level reports, e.g. insufficient motion.
	Warning string `json:"warning,omitempty"`
}
