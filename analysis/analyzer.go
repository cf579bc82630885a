// Package analysis wires the pipeline stages into the one public entry
// point: frame extraction, pose detection, signal conditioning, activity
// segmentation, phase counting, posture scoring, and the optional DTW
// comparison, assembled into a single immutable report.
package analysis

import (
	"context"
	"image"
	"math"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/posecoach/posecoach/activity"
	"github.com/posecoach/posecoach/dtw"
	"github.com/posecoach/posecoach/kinematics"
	"github.com/posecoach/posecoach/overlay"
	"github.com/posecoach/posecoach/phase"
	"github.com/posecoach/posecoach/pose"
	"github.com/posecoach/posecoach/posedet"
	"github.com/posecoach/posecoach/profile"
	"github.com/posecoach/posecoach/score"
	"github.com/posecoach/posecoach/video"
)

// detectionFloor is the minimum fraction of frames that must carry a usable
// detection for the run to proceed.
const detectionFloor = 0.2

// Request describes one analysis.
type Request struct {
	// VideoPath is the recording to analyze.
	VideoPath string
	// Exercise is the exercise name; common alias spellings are accepted.
	Exercise string
	// Grip is the pull-up grip variant; empty means overhand.
	Grip string
	// ReferencePath, when set, is a reference recording to compare against
	// with DTW.
	ReferencePath string
	// ThumbDir, when set, receives per-frame thumbnails.
	ThumbDir string
	// OverlayDir, when set, receives skeleton overlays for faulted frames.
	// Requires ThumbDir.
	OverlayDir string
}

// FrameExtractor produces sampled frames from a video file. The ffmpeg
// implementation lives in the video package; tests substitute scripted ones.
type FrameExtractor interface {
	Extract(ctx context.Context, req video.ExtractRequest) (*video.Result, error)
}

// Analyzer runs the pipeline. One analyzer serves many requests concurrently;
// it holds only read-only configuration and thread-safe handles.
type Analyzer struct {
	extractor  FrameExtractor
	detector   posedet.Detector
	cfg        Config
	classifier activity.Classifier
	logger     golog.Logger
}

// New validates the config and builds an analyzer around the given extractor
// and detector handles.
func New(extractor FrameExtractor, detector posedet.Detector, cfg Config, logger golog.Logger) (*Analyzer, error) {
	if err := cfg.Validate("config"); err != nil {
		return nil, errors.Wrap(ErrInput, err.Error())
	}
	a := &Analyzer{extractor: extractor, detector: detector, cfg: cfg, logger: logger}
	classifier, err := activity.NewDefaultClassifier()
	if err != nil {
		// the motion rule still works alone
		logger.Warnw("activity fallback classifier unavailable", "error", err)
	} else {
		a.classifier = classifier
	}
	return a, nil
}

// Analyze runs the full pipeline and assembles the report. Failures surface
// as one of the five error kinds; an insufficient-motion run returns both a
// warning-level report and ErrInsufficientMotion.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Report, error) {
	ex, err := profile.ParseExercise(req.Exercise)
	if err != nil {
		return nil, errors.Wrap(ErrInput, err.Error())
	}
	grip, err := profile.ParseGrip(req.Grip)
	if err != nil {
		return nil, errors.Wrap(ErrInput, err.Error())
	}
	prof, err := profile.Builtin(ex, grip)
	if err != nil {
		return nil, errors.Wrap(ErrInput, err.Error())
	}

	m, err := a.runMovement(ctx, req.VideoPath, req.ThumbDir, prof)
	if err != nil {
		return nil, err
	}

	report := a.newReport(req, prof, m)
	if m.reps == 0 {
		report.Warning = "no completed repetition detected"
		report.PhaseScores = map[string]float64{}
		a.logger.Warnw("insufficient motion", "video", req.VideoPath,
			"active_frames", len(m.seg.SelectedIndices))
		return report, ErrInsufficientMotion
	}

	evaluator := score.NewEvaluator(prof, a.cfg.SoftDeg, a.cfg.HardDeg, a.logger)
	var frameScores []score.FrameScore
	var dtwResult *dtw.Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		frameScores = evaluator.Evaluate(m.seg.SelectedIndices, m.labels, m.angleLookup())
		return nil
	})
	if req.ReferencePath != "" {
		g.Go(func() error {
			res, err := a.compareReference(gctx, req.ReferencePath, prof, m)
			if err != nil {
				if gctx.Err() != nil {
					return wrapCancel(gctx.Err())
				}
				// DTW is failure-isolated: a bad reference downgrades the
				// comparison, never the request
				a.logger.Warnw("reference comparison skipped", "reference", req.ReferencePath, "error", err)
				return nil
			}
			dtwResult = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, wrapCancel(err)
	}

	report.FrameScores = frameScores
	for _, fs := range frameScores {
		if len(fs.Errors) > 0 {
			report.ErrorFrames = append(report.ErrorFrames, fs)
		}
	}
	if dtwResult != nil {
		report.DTWActive = true
		report.DTWResult = dtwResult
	}

	var dtwScore *float64
	if dtwResult != nil {
		dtwScore = &dtwResult.OverallScore
	}
	summary := score.Summarize(frameScores, dtwScore)
	report.AvgScore = summary.AvgScore
	report.PhaseScores = summary.PhaseScores
	report.Grade = summary.Grade

	if req.OverlayDir != "" {
		a.writeOverlays(req.OverlayDir, report)
	}
	return report, nil
}

// movement is the outcome of stages 1 through 5 on one recording.
type movement struct {
	info      video.Info
	frames    []video.Frame
	prof      *profile.Profile
	cond      *kinematics.Result
	driverDeg *kinematics.Series
	seg       *activity.Result
	// labels holds one phase label per selected frame, parallel to
	// seg.SelectedIndices.
	labels []phase.Label
	reps   int
}

// runMovement executes extraction through phase counting.
func (a *Analyzer) runMovement(
	ctx context.Context,
	path, thumbDir string,
	prof *profile.Profile,
) (*movement, error) {
	ext, err := a.extractor.Extract(ctx, video.ExtractRequest{
		Path:     path,
		FPS:      a.cfg.ExtractFPS,
		ThumbDir: thumbDir,
	})
	if err != nil {
		return nil, classifyExtractErr(err)
	}
	if len(ext.Frames) == 0 {
		return nil, errors.Wrapf(ErrInput, "%q produced no frames", path)
	}

	imgs := make([]image.Image, len(ext.Frames))
	for i := range ext.Frames {
		imgs[i] = ext.Frames[i].Image
	}
	raw, err := posedet.Run(ctx, a.detector, imgs, a.cfg.BatchSize, a.cfg.MinVisibility, a.logger)
	if err != nil {
		if cerr := wrapCancel(err); errors.Is(cerr, ErrCancelled) {
			return nil, cerr
		}
		return nil, errors.Wrap(ErrDetection, err.Error())
	}
	// pixels are no longer needed; thumbnails carry the visual record
	for i := range ext.Frames {
		ext.Frames[i].Image = nil
	}

	detected := 0
	for i := range raw {
		if !raw[i].AllMissing(a.cfg.MinVisibility) {
			detected++
		}
	}
	if float64(detected) < detectionFloor*float64(len(raw)) {
		return nil, errors.Wrapf(ErrDetection,
			"usable detections on %d of %d frames", detected, len(raw))
	}

	condOpts := kinematics.Options{
		SmoothingWindow: a.cfg.SmoothingWindow,
		GapFill:         a.cfg.GapFill,
		MinVisibility:   a.cfg.MinVisibility,
		JumpThreshold:   0.15,
	}
	cond := kinematics.Condition(raw, ext.Info.Width, ext.Info.Height, prof.Triples, condOpts, a.logger)

	driverParts := make([]*kinematics.Series, 0, len(prof.Driver.Triples))
	for _, name := range prof.Driver.Triples {
		driverParts = append(driverParts, cond.Angle(name))
	}
	driverDeg := kinematics.MeanOf("driver_angle", driverParts...)

	visFraction := make([]float64, len(cond.Keypoints))
	for i := range cond.Keypoints {
		vis := 0
		for j := pose.Joint(0); j < pose.NumDetected; j++ {
			if cond.Keypoints[i].Visible(j, a.cfg.MinVisibility) {
				vis++
			}
		}
		visFraction[i] = float64(vis) / float64(pose.NumDetected)
	}

	segOpts := activity.DefaultOptions()
	segOpts.MotionThreshold = a.cfg.MotionThreshold
	segOpts.OnCount = a.cfg.HysteresisOn
	segOpts.OffCount = a.cfg.HysteresisOff
	seg := activity.NewSegmenter(segOpts, a.classifier, a.logger).Segment(driverDeg, visFraction)

	m := &movement{
		info:      ext.Info,
		frames:    ext.Frames,
		prof:      prof,
		cond:      cond,
		driverDeg: driverDeg,
		seg:       seg,
	}
	a.labelPhases(m)
	return m, nil
}

// labelPhases runs the phase machine over every contiguous active bout and
// sums the repetition counts. Splitting per bout keeps a detection gap or
// rest break from aliasing into a repetition.
func (a *Analyzer) labelPhases(m *movement) {
	d := kinematics.DriverSignal(m.driverDeg, m.prof.Driver.MinDeg, m.prof.Driver.MaxDeg, m.prof.Driver.Invert)
	params := phase.Params{
		DTop:          a.cfg.DTop,
		DBot:          a.cfg.DBot,
		MinRepSeconds: a.cfg.TMinRep,
		SampleRate:    float64(a.cfg.ExtractFPS),
	}
	m.labels = make([]phase.Label, len(m.seg.SelectedIndices))
	pos := 0
	for _, bout := range contiguousRuns(m.seg.SelectedIndices) {
		res := phase.Segment(d.Values[bout[0]:bout[1]+1], params)
		copy(m.labels[pos:], res.Labels)
		pos += len(res.Labels)
		m.reps += res.Reps
	}
}

// angleLookup exposes the conditioned angle series to the evaluator.
func (m *movement) angleLookup() score.AngleLookup {
	return func(triple string, frameIdx int) (float64, bool) {
		s := m.cond.Angle(triple)
		if s == nil || frameIdx >= s.Len() || s.Missing(frameIdx) {
			return 0, false
		}
		return s.Values[frameIdx], true
	}
}

// dtwStream restricts the movement to its active frames as DTW input.
func (m *movement) dtwStream() dtw.Stream {
	names := make([]string, len(m.prof.Triples))
	for i, tr := range m.prof.Triples {
		names[i] = tr.Name
	}
	s := dtw.Stream{TripleNames: names, Labels: m.labels}
	s.Features = make([][]float64, len(m.seg.SelectedIndices))
	for i, frameIdx := range m.seg.SelectedIndices {
		row := make([]float64, len(names))
		for d, name := range names {
			series := m.cond.Angle(name)
			if series == nil || series.Missing(frameIdx) {
				row[d] = math.NaN()
				continue
			}
			row[d] = series.Values[frameIdx]
		}
		s.Features[i] = row
	}
	return s
}

// compareReference runs stages 1 through 5 on the reference recording and
// aligns the two movements.
func (a *Analyzer) compareReference(
	ctx context.Context,
	refPath string,
	prof *profile.Profile,
	user *movement,
) (*dtw.Result, error) {
	ref, err := a.runMovement(ctx, refPath, "", prof)
	if err != nil {
		return nil, err
	}
	if ref.reps == 0 {
		return nil, errors.New("reference has no completed repetition")
	}
	opts := dtw.DefaultOptions()
	opts.BandFrac = a.cfg.DTWBandFrac
	return dtw.Compare(user.dtwStream(), ref.dtwStream(), opts)
}

// newReport assembles the report skeleton shared by full and warning-level
// outcomes.
func (a *Analyzer) newReport(req Request, prof *profile.Profile, m *movement) *Report {
	labelByFrame := make(map[int]phase.Label, len(m.labels))
	for i, frameIdx := range m.seg.SelectedIndices {
		labelByFrame[frameIdx] = m.labels[i]
	}
	records := make([]FrameRecord, len(m.frames))
	for i := range m.frames {
		records[i] = FrameRecord{
			FrameIdx:  m.frames[i].Index,
			Timestamp: m.frames[i].Timestamp,
			ThumbPath: m.frames[i].ThumbPath,
			Phase:     labelByFrame[m.frames[i].Index],
			Keypoints: m.cond.Keypoints[i],
		}
	}
	grip := ""
	if prof.Exercise == profile.Pullup {
		grip = string(prof.Grip)
	}
	return &Report{
		VideoName:            filepath.Base(req.VideoPath),
		ExerciseType:         string(prof.Exercise),
		GripType:             grip,
		Duration:             m.info.Duration,
		FPS:                  a.cfg.ExtractFPS,
		TotalFrames:          len(m.frames),
		ExerciseCount:        m.reps,
		Keypoints:            records,
		SelectedFrameIndices: append([]int(nil), m.seg.SelectedIndices...),
		Filtering:            m.seg.Provenance,
	}
}

// writeOverlays renders fault-tinted skeletons over the thumbnails of error
// frames. Failures only log; overlays are a convenience artifact.
func (a *Analyzer) writeOverlays(dir string, report *Report) {
	byFrame := make(map[int]FrameRecord, len(report.Keypoints))
	for _, rec := range report.Keypoints {
		byFrame[rec.FrameIdx] = rec
	}
	style := overlay.DefaultStyle()
	style.Faulted = true
	written := 0
	for _, fs := range report.ErrorFrames {
		rec, ok := byFrame[fs.FrameIdx]
		if !ok || rec.ThumbPath == "" {
			continue
		}
		img, err := imaging.Open(rec.ThumbPath)
		if err != nil {
			a.logger.Warnw("cannot open thumbnail for overlay", "path", rec.ThumbPath, "error", err)
			continue
		}
		out := overlay.Render(img, &rec.Keypoints, style)
		path := filepath.Join(dir, filepath.Base(rec.ThumbPath))
		if err := imaging.Save(out, path, imaging.JPEGQuality(85)); err != nil {
			a.logger.Warnw("cannot write overlay", "path", path, "error", err)
			continue
		}
		written++
	}
	a.logger.Infow("overlays written", "dir", dir, "count", written)
}

// contiguousRuns groups sorted indices into [first, last] runs.
func contiguousRuns(indices []int) [][2]int {
	var runs [][2]int
	for i := 0; i < len(indices); {
		j := i
		for j+1 < len(indices) && indices[j+1] == indices[j]+1 {
			j++
		}
		runs = append(runs, [2]int{indices[i], indices[j]})
		i = j + 1
	}
	return runs
}

// classifyExtractErr maps extraction failures onto the public error kinds.
func classifyExtractErr(err error) error {
	if cerr := wrapCancel(err); errors.Is(cerr, ErrCancelled) {
		return cerr
	}
	if errors.Is(err, video.ErrTooManyDropped) {
		return errors.Wrap(ErrDecode, err.Error())
	}
	if errors.Is(err, video.ErrInvalidVideo) {
		return errors.Wrap(ErrInput, err.Error())
	}
	return errors.Wrap(ErrInput, err.Error())
}
