// Package main is the posecoach command.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/posecoach/posecoach/analysis"
	"github.com/posecoach/posecoach/pose"
	"github.com/posecoach/posecoach/posedet"
	"github.com/posecoach/posecoach/profile"
	"github.com/posecoach/posecoach/testutils"
	"github.com/posecoach/posecoach/video"
)

const (
	flagVideo      = "video"
	flagExercise   = "exercise"
	flagGrip       = "grip"
	flagReference  = "reference"
	flagOut        = "out"
	flagThumbDir   = "thumb-dir"
	flagOverlayDir = "overlay-dir"
	flagConfig     = "config"
	flagDetector   = "detector"
	flagModel      = "model"
	flagNumThreads = "num-threads"

	detectorMoveNet = "movenet"
	detectorFake    = "fake"
)

func main() {
	goutils.ContextualMain(mainWithArgs, golog.NewDevelopmentLogger("posecoach"))
}

// mainWithArgs runs the CLI app under a signal-cancelled context so SIGTERM
// aborts an in-flight analysis cleanly.
func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	app := &cli.App{
		Name:            "posecoach",
		Usage:           "analyze exercise form in workout videos",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				logger = golog.NewDebugLogger("posecoach")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "analyze",
				Usage: "score one workout video and write the report",
				UsageText: fmt.Sprintf("posecoach analyze <%s> <%s> [other options]",
					flagVideo, flagExercise),
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     flagVideo,
						Required: true,
						Usage:    "video file to analyze",
					},
					&cli.StringFlag{
						Name:     flagExercise,
						Required: true,
						Usage:    "exercise type: pushup or pullup",
					},
					&cli.StringFlag{
						Name:  flagGrip,
						Usage: "pull-up grip variant: overhand, underhand or wide",
					},
					&cli.PathFlag{
						Name:  flagReference,
						Usage: "reference video to compare against with DTW",
					},
					&cli.PathFlag{
						Name:  flagOut,
						Value: "report.json",
						Usage: "report output path",
					},
					&cli.PathFlag{
						Name:  flagThumbDir,
						Usage: "directory for per-frame thumbnails",
					},
					&cli.PathFlag{
						Name:  flagOverlayDir,
						Usage: "directory for fault overlays (requires " + flagThumbDir + ")",
					},
					&cli.PathFlag{
						Name:  flagConfig,
						Usage: "pipeline configuration `FILE` (JSON)",
					},
					&cli.StringFlag{
						Name:  flagDetector,
						Value: detectorMoveNet,
						Usage: "pose detector: movenet, or fake for a synthetic smoke run",
					},
					&cli.PathFlag{
						Name:  flagModel,
						Value: "movenet.tflite",
						Usage: "MoveNet .tflite model file",
					},
					&cli.IntFlag{
						Name:  flagNumThreads,
						Usage: "interpreter thread cap; 0 uses all CPUs",
					},
				},
				Action: func(c *cli.Context) error {
					return analyzeAction(c, logger)
				},
			},
			{
				Name:  "version",
				Usage: "print version info for this program",
				Action: func(c *cli.Context) error {
					info, ok := debug.ReadBuildInfo()
					if !ok {
						return errors.New("error reading build info")
					}
					version := "(dev)"
					for _, setting := range info.Settings {
						if setting.Key == "vcs.revision" && setting.Value != "" {
							version = shortRevision(setting.Value)
							break
						}
					}
					fmt.Fprintf(c.App.Writer, "posecoach %s\n", version)
					return nil
				},
			},
		},
	}

	return app.RunContext(ctx, args)
}

func analyzeAction(c *cli.Context, logger golog.Logger) (err error) {
	cfg := analysis.DefaultConfig()
	if path := c.Path(flagConfig); path != "" {
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return errors.Wrapf(rerr, "cannot read config %q", path)
		}
		if jerr := json.Unmarshal(data, &cfg); jerr != nil {
			return errors.Wrapf(jerr, "cannot parse config %q", path)
		}
	}

	var extractor analysis.FrameExtractor
	var detector posedet.Detector
	switch c.String(flagDetector) {
	case detectorMoveNet:
		ext, eerr := video.NewExtractor(logger)
		if eerr != nil {
			return eerr
		}
		det, derr := posedet.NewMoveNet(posedet.MoveNetConfig{
			ModelPath:  c.Path(flagModel),
			NumThreads: c.Int(flagNumThreads),
		})
		if derr != nil {
			return derr
		}
		extractor, detector = ext, det
	case detectorFake:
		clip, serr := syntheticClip(c.String(flagExercise))
		if serr != nil {
			return serr
		}
		script := clip
		if c.Path(flagReference) != "" {
			// the reference run replays the same motion
			script = append(append([]pose.KeypointSet{}, clip...), clip...)
		}
		extractor = &syntheticExtractor{frames: len(clip)}
		detector = posedet.NewFake(script)
	default:
		return errors.Errorf("unknown detector %q", c.String(flagDetector))
	}
	defer func() {
		err = multierr.Combine(err, detector.Close())
	}()

	analyzer, err := analysis.New(extractor, detector, cfg, logger)
	if err != nil {
		return err
	}
	report, err := analyzer.Analyze(c.Context, analysis.Request{
		VideoPath:     c.Path(flagVideo),
		Exercise:      c.String(flagExercise),
		Grip:          c.String(flagGrip),
		ReferencePath: c.Path(flagReference),
		ThumbDir:      c.Path(flagThumbDir),
		OverlayDir:    c.Path(flagOverlayDir),
	})
	if err != nil && !errors.Is(err, analysis.ErrInsufficientMotion) {
		return err
	}
	if report.Warning != "" {
		fmt.Fprintf(c.App.Writer, "warning: %s\n", report.Warning)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	outPath := c.Path(flagOut)
	if werr := os.WriteFile(outPath, data, 0o644); werr != nil {
		return errors.Wrapf(werr, "cannot write report %q", outPath)
	}

	fmt.Fprintf(c.App.Writer, "%s: %d reps, score %.2f, grade %s\n",
		report.ExerciseType, report.ExerciseCount, report.AvgScore, report.Grade)
	if report.DTWActive {
		fmt.Fprintf(c.App.Writer, "reference similarity %.2f\n", report.DTWResult.OverallScore)
	}
	fmt.Fprintf(c.App.Writer, "report written to %s\n", outPath)
	return nil
}

// shortRevision abbreviates a VCS revision to at most eight characters.
func shortRevision(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// syntheticExtractor backs the fake detector with empty frames so a smoke run
// needs neither ffmpeg nor a real video.
type syntheticExtractor struct {
	frames int
}

func (s *syntheticExtractor) Extract(ctx context.Context, req video.ExtractRequest) (*video.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frames := make([]video.Frame, s.frames)
	for i := range frames {
		frames[i] = video.Frame{Index: i, SourceIndex: i, Timestamp: float64(i) / float64(req.FPS)}
	}
	return &video.Result{
		Info: video.Info{
			Duration:    float64(s.frames) / float64(req.FPS),
			FPS:         float64(req.FPS),
			TotalFrames: s.frames,
		},
		Frames: frames,
	}, nil
}

// syntheticClip builds a clean five-rep clip for the exercise.
func syntheticClip(exercise string) ([]pose.KeypointSet, error) {
	ex, err := profile.ParseExercise(exercise)
	if err != nil {
		return nil, err
	}
	var clip []pose.KeypointSet
	switch ex {
	case profile.Pushup:
		elbow := append(testutils.Constant(20, 170), testutils.ElbowCycle(5, 24, 170, 70)...)
		elbow = append(elbow, testutils.Constant(20, 170)...)
		clip = testutils.PushupFrames(elbow, testutils.Constant(len(elbow), 178))
	case profile.Pullup:
		elbow := append(testutils.Constant(20, 155), testutils.ElbowCycle(5, 30, 155, 80)...)
		elbow = append(elbow, testutils.Constant(20, 155)...)
		clip = testutils.PullupFrames(elbow)
	}
	return clip, nil
}
