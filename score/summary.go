package score

import (
	"gonum.org/v1/gonum/stat"

	"github.com/posecoach/posecoach/phase"
)

// Grade letters, best to worst.
const (
	GradeS = "S"
	GradeA = "A"
	GradeB = "B"
	GradeC = "C"
)

// dtwWeight is the share of the combined grade taken by the DTW similarity
// when a reference is active.
const dtwWeight = 0.3

// Summary aggregates the frame scores for the report.
type Summary struct {
	// AvgScore is the mean frame score over scored frames.
	AvgScore float64 `json:"avg_score"`
	// PhaseScores is the mean frame score per cycle phase.
	PhaseScores map[string]float64 `json:"phase_scores"`
	// Grade is the letter grade of the combined score.
	Grade string `json:"grade"`
}

// Summarize folds frame scores into the summary. dtwScore is nil when no
// reference was in play; otherwise it shifts the graded score by dtwWeight.
func Summarize(scores []FrameScore, dtwScore *float64) Summary {
	byPhase := map[phase.Label][]float64{}
	var all []float64
	for _, fs := range scores {
		all = append(all, fs.Score)
		byPhase[fs.Phase] = append(byPhase[fs.Phase], fs.Score)
	}
	s := Summary{PhaseScores: make(map[string]float64, len(byPhase))}
	if len(all) > 0 {
		s.AvgScore = stat.Mean(all, nil)
	}
	for ph, vals := range byPhase {
		s.PhaseScores[string(ph)] = stat.Mean(vals, nil)
	}
	combined := s.AvgScore
	if dtwScore != nil {
		combined = s.AvgScore*(1-dtwWeight) + *dtwScore*dtwWeight
	}
	s.Grade = gradeFor(combined)
	return s
}

func gradeFor(combined float64) string {
	switch {
	case combined >= 0.9:
		return GradeS
	case combined >= 0.7:
		return GradeA
	case combined >= 0.5:
		return GradeB
	default:
		return GradeC
	}
}
