// Package dtw scores a user's movement against a reference recording with
// band-limited Dynamic Time Warping. Alignment runs per phase and per
// repetition so a slow descent is compared with the reference's descent, not
// smeared across the whole set.
package dtw

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/posecoach/posecoach/phase"
)

// Options tune the alignment.
type Options struct {
	// BandFrac is the Sakoe-Chiba band half-width as a fraction of the longer
	// sequence.
	BandFrac float64
	// Alpha maps normalized path cost to a similarity via exp(-Alpha*cost).
	Alpha float64
}

// DefaultOptions returns the calibrated settings: a comparison of a recording
// against itself scores above 0.95 and randomized angles fall near 0.1.
func DefaultOptions() Options {
	return Options{BandFrac: 0.15, Alpha: 6.0}
}

// Stream is one analyzed movement restricted to its active frames, in order.
type Stream struct {
	// Features holds one row per frame, one column per triple, in degrees.
	// NaN marks a missing angle.
	Features [][]float64
	// TripleNames names the feature columns.
	TripleNames []string
	// Labels is the phase stream, parallel to Features.
	Labels []phase.Label
}

// JointDiff reports one triple's mean absolute angle difference across
// aligned frame pairs.
type JointDiff struct {
	Triple         string  `json:"triple"`
	MeanAbsDiffDeg float64 `json:"mean_abs_diff_deg"`
}

// Result is the similarity outcome.
type Result struct {
	OverallScore float64            `json:"overall_dtw_score"`
	PhaseScores  map[string]float64 `json:"phase_dtw_scores"`
	WorstJoints  []JointDiff        `json:"worst_joints"`
}

// featureScale maps degrees into [0,1] so the per-step distance is unitless.
const featureScale = 1.0 / 180.0

// maxWorstJoints caps the reported per-joint difference list.
const maxWorstJoints = 4

// alignedPhases are aligned independently; ready and finish frames carry no
// form information.
var alignedPhases = []phase.Label{phase.Descending, phase.Bottom, phase.Ascending, phase.Top}

// Compare aligns the user stream against the reference. It fails when either
// stream contains no completed repetition; callers treat that as "no DTW"
// rather than a request failure.
func Compare(user, ref Stream, opts Options) (*Result, error) {
	if len(user.TripleNames) == 0 || len(user.TripleNames) != len(ref.TripleNames) {
		return nil, errors.New("user and reference streams measure different triples")
	}
	userReps := repSpans(user.Labels)
	refReps := repSpans(ref.Labels)
	if len(userReps) == 0 {
		return nil, errors.New("user stream has no completed repetition")
	}
	if len(refReps) == 0 {
		return nil, errors.New("reference stream has no completed repetition")
	}

	dims := len(user.TripleNames)
	phaseScores := make(map[string][]float64, len(alignedPhases))
	diffSums := make([]float64, dims)
	diffCounts := 0

	for _, ph := range alignedPhases {
		for i, ur := range userReps {
			// pair rep i with the reference's rep i, or its last rep when the
			// reference has fewer
			rr := refReps[minInt(i, len(refReps)-1)]
			a := phaseRows(user, ur, ph)
			b := phaseRows(ref, rr, ph)
			if len(a) == 0 || len(b) == 0 {
				continue
			}
			cost, path := align(a, b, opts.BandFrac)
			norm := cost / (float64(len(path)) * math.Sqrt(float64(dims)))
			phaseScores[string(ph)] = append(phaseScores[string(ph)], math.Exp(-opts.Alpha*norm))
			for _, pr := range path {
				for d := 0; d < dims; d++ {
					diffSums[d] += math.Abs(a[pr[0]][d]-b[pr[1]][d]) / featureScale
				}
				diffCounts++
			}
		}
	}
	if diffCounts == 0 {
		return nil, errors.New("no phase segments overlapped between user and reference")
	}

	res := &Result{PhaseScores: make(map[string]float64, len(phaseScores))}
	totalPairs := 0
	for ph, scores := range phaseScores {
		sum := 0.0
		for _, s := range scores {
			sum += s
		}
		res.PhaseScores[ph] = sum / float64(len(scores))
		res.OverallScore += sum
		totalPairs += len(scores)
	}
	res.OverallScore /= float64(totalPairs)

	diffs := make([]JointDiff, dims)
	for d := 0; d < dims; d++ {
		diffs[d] = JointDiff{
			Triple:         user.TripleNames[d],
			MeanAbsDiffDeg: diffSums[d] / float64(diffCounts),
		}
	}
	sort.SliceStable(diffs, func(i, j int) bool {
		return diffs[i].MeanAbsDiffDeg > diffs[j].MeanAbsDiffDeg
	})
	if len(diffs) > maxWorstJoints {
		diffs = diffs[:maxWorstJoints]
	}
	res.WorstJoints = diffs
	return res, nil
}

// span is a half-open frame range [start, end).
type span struct {
	start, end int
}

// repSpans slices the label stream into completed repetitions. A rep runs
// from the descending onset to the end of the top run that closes it; the
// closing top run also opens the next rep's context but belongs to the rep it
// finished.
func repSpans(labels []phase.Label) []span {
	var spans []span
	start := -1
	closing := false
	for i := 0; i < len(labels); i++ {
		cur := labels[i]
		prev := phase.Label("")
		if i > 0 {
			prev = labels[i-1]
		}
		if cur == phase.Descending && prev != phase.Descending && !closing {
			if start < 0 {
				start = i
			}
		}
		if cur == phase.Top && prev == phase.Ascending && start >= 0 {
			closing = true
		}
		if closing && cur != phase.Top {
			spans = append(spans, span{start, i})
			closing = false
			start = -1
			if cur == phase.Descending {
				start = i
			}
		}
	}
	if closing && start >= 0 {
		spans = append(spans, span{start, len(labels)})
	}
	return spans
}

// phaseRows collects the rep's rows for one phase, scaled and gap-patched:
// missing values carry forward within the segment, and rows that stay
// unmeasured are dropped.
func phaseRows(s Stream, r span, ph phase.Label) [][]float64 {
	dims := len(s.TripleNames)
	last := make([]float64, dims)
	haveLast := make([]bool, dims)
	var rows [][]float64
	for i := r.start; i < r.end && i < len(s.Labels); i++ {
		if s.Labels[i] != ph {
			continue
		}
		row := make([]float64, dims)
		complete := true
		for d := 0; d < dims; d++ {
			v := s.Features[i][d]
			if math.IsNaN(v) {
				if !haveLast[d] {
					complete = false
					continue
				}
				v = last[d]
			}
			last[d] = v
			haveLast[d] = true
			row[d] = v * featureScale
		}
		if complete {
			rows = append(rows, row)
		}
	}
	return rows
}

// align runs band-limited DTW over two row sequences and returns the
// accumulated cost with the warping path as (i, j) index pairs.
func align(a, b [][]float64, bandFrac float64) (float64, [][2]int) {
	n, m := len(a), len(b)
	longer := n
	if m > longer {
		longer = m
	}
	band := int(math.Ceil(bandFrac * float64(longer)))
	// a band narrower than the length mismatch leaves the corner unreachable,
	// so widen it to the Sakoe-Chiba feasibility floor
	if diff := maxInt(n, m) - minInt(n, m); band < diff {
		band = diff
	}
	if band < 1 {
		band = 1
	}

	acc := mat.NewDense(n+1, m+1, nil)
	for i := 0; i <= n; i++ {
		for j := 0; j <= m; j++ {
			acc.Set(i, j, math.Inf(1))
		}
	}
	acc.Set(0, 0, 0)
	for i := 1; i <= n; i++ {
		// center the band on the stretched diagonal
		center := i * m / n
		lo := maxInt(1, center-band)
		hi := minInt(m, center+band)
		for j := lo; j <= hi; j++ {
			d := rowDist(a[i-1], b[j-1])
			best := math.Min(acc.At(i-1, j), math.Min(acc.At(i, j-1), acc.At(i-1, j-1)))
			acc.Set(i, j, d+best)
		}
	}

	// walk the path back from the corner
	var path [][2]int
	i, j := n, m
	for i > 0 && j > 0 {
		path = append(path, [2]int{i - 1, j - 1})
		diag, up, left := acc.At(i-1, j-1), acc.At(i-1, j), acc.At(i, j-1)
		switch {
		case diag <= up && diag <= left:
			i, j = i-1, j-1
		case up <= left:
			i--
		default:
			j--
		}
	}
	for k, l := 0, len(path)-1; k < l; k, l = k+1, l-1 {
		path[k], path[l] = path[l], path[k]
	}
	return acc.At(n, m), path
}

func rowDist(a, b []float64) float64 {
	sum := 0.0
	for d := range a {
		diff := a[d] - b[d]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
