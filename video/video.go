// Package video decodes an exercise recording into an ordered frame sequence
// sampled at a target rate, using an ffmpeg subprocess for demuxing and rate
// conversion. It also writes the thumbnails later overlay rendering draws on.
package video

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	goutils "go.viam.com/utils"
)

// Exported failure modes. Callers classify extraction errors with errors.Is.
var (
	// ErrInvalidVideo marks inputs ffmpeg cannot treat as a video: missing
	// files, unsupported codecs, streams with no video track or no duration.
	ErrInvalidVideo = errors.New("input is not a decodable video")
	// ErrTooManyDropped marks an extraction where more than half of the
	// expected frames failed to decode.
	ErrTooManyDropped = errors.New("too many frames failed to decode")
)

// Info describes the source stream.
type Info struct {
	Duration float64 `json:"duration"`
	FPS      float64 `json:"fps"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	// TotalFrames is the source frame count estimated from duration and rate.
	TotalFrames int `json:"total_frames"`
}

// Frame is one sampled frame in pipeline order.
type Frame struct {
	// Index is the frame's position in the sampled stream, from 0.
	Index int
	// SourceIndex is the frame's position in the source stream.
	SourceIndex int
	// Timestamp is the frame's source time in seconds.
	Timestamp float64
	// Image is the decoded frame. Nil once downstream stages no longer need
	// pixels.
	Image image.Image
	// ThumbPath is where the thumbnail was written, or empty. Opaque to the
	// pipeline.
	ThumbPath string
}

// ExtractRequest configures one extraction.
type ExtractRequest struct {
	// Path is the video file.
	Path string
	// FPS is the target sampling rate in frames per second.
	FPS int
	// ThumbDir, when set, receives one JPEG thumbnail per sampled frame.
	ThumbDir string
}

// Result is the extraction output.
type Result struct {
	Info   Info
	Frames []Frame
}

// thumbWidth is the thumbnail pixel width; height follows the aspect ratio.
const thumbWidth = 320

// Extractor pulls sampled frames out of video files via ffmpeg.
type Extractor struct {
	logger golog.Logger
}

// NewExtractor returns an ffmpeg-backed extractor. It fails when no ffmpeg
// binary is reachable on the path.
func NewExtractor(logger golog.Logger) (*Extractor, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.Wrap(err, "ffmpeg binary not found")
	}
	return &Extractor{logger: logger}, nil
}

// Probe inspects the container and returns the stream parameters. Inputs
// without a video stream or with zero duration fail with ErrInvalidVideo.
func (e *Extractor) Probe(ctx context.Context, path string) (Info, error) {
	if _, err := os.Stat(path); err != nil {
		return Info{}, errors.Wrapf(ErrInvalidVideo, "cannot stat %q", path)
	}
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	raw, err := ffmpeg.Probe(path)
	if err != nil {
		return Info{}, errors.Wrapf(ErrInvalidVideo, "ffprobe failed on %q: %v", path, err)
	}
	info, err := parseProbe(raw)
	if err != nil {
		return Info{}, errors.Wrapf(ErrInvalidVideo, "%q: %v", path, err)
	}
	return info, nil
}

// Extract decodes the video at the requested rate. Individual frames that
// fail to decode are logged and dropped; losing more than half of the
// expected frames fails the extraction with ErrTooManyDropped.
func (e *Extractor) Extract(ctx context.Context, req ExtractRequest) (*Result, error) {
	info, err := e.Probe(ctx, req.Path)
	if err != nil {
		return nil, err
	}

	srcIndices := SampleIndices(info.FPS, float64(req.FPS), info.TotalFrames)
	expected := len(srcIndices)

	// a per-extraction prefix keeps runs sharing a thumbnail directory, e.g. a
	// user clip and its reference, from overwriting each other
	var thumbPrefix string
	if req.ThumbDir != "" {
		if err := os.MkdirAll(req.ThumbDir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "cannot create thumbnail dir %q", req.ThumbDir)
		}
		thumbPrefix = uuid.NewString()[:8]
	}

	in, out := io.Pipe()
	ffmpegDone := make(chan error, 1)
	goutils.PanicCapturingGo(func() {
		stream := ffmpeg.Input(req.Path).
			Filter("fps", ffmpeg.Args{strconv.Itoa(req.FPS)}).
			Output("pipe:", ffmpeg.KwArgs{"format": "image2pipe", "vcodec": "mjpeg", "q:v": 2})
		stream.Context = ctx
		err := stream.WithOutput(out).Run()
		out.CloseWithError(err)
		ffmpegDone <- err
	})

	var frames []Frame
	dropped := 0
	for {
		if ctx.Err() != nil {
			goutils.UncheckedError(in.Close())
			<-ffmpegDone
			return nil, ctx.Err()
		}
		img, err := jpeg.Decode(in)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
				break
			}
			dropped++
			e.logger.Warnw("dropping undecodable frame", "frame", len(frames)+dropped, "error", err)
			continue
		}
		idx := len(frames)
		f := Frame{Index: idx, Image: img}
		if idx < len(srcIndices) {
			f.SourceIndex = srcIndices[idx]
			f.Timestamp = float64(srcIndices[idx]) / info.FPS
		} else {
			f.Timestamp = float64(idx) / float64(req.FPS)
		}
		if req.ThumbDir != "" {
			f.ThumbPath, err = writeThumb(req.ThumbDir, thumbPrefix, idx, img)
			if err != nil {
				return nil, errors.Wrap(err, "cannot write thumbnail")
			}
		}
		frames = append(frames, f)
	}
	goutils.UncheckedError(in.Close())
	if err := <-ffmpegDone; err != nil && ctx.Err() == nil && len(frames) == 0 {
		return nil, errors.Wrapf(ErrInvalidVideo, "ffmpeg decode of %q: %v", req.Path, err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if expected > 0 && len(frames)*2 < expected {
		return nil, errors.Wrapf(ErrTooManyDropped, "decoded %d of %d expected frames", len(frames), expected)
	}
	e.logger.Infow("extracted frames",
		"path", req.Path,
		"frames", len(frames),
		"dropped", dropped,
		"target_fps", req.FPS,
	)
	return &Result{Info: info, Frames: frames}, nil
}

func writeThumb(dir, prefix string, idx int, img image.Image) (string, error) {
	thumb := imaging.Resize(img, thumbWidth, 0, imaging.Linear)
	path := filepath.Join(dir, fmt.Sprintf("%s_frame_%05d.jpg", prefix, idx))
	if err := imaging.Save(thumb, path, imaging.JPEGQuality(85)); err != nil {
		return "", err
	}
	return path, nil
}

// probe payload subset we care about.
type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbe(raw string) (Info, error) {
	var p probeOutput
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Info{}, errors.Wrap(err, "cannot parse probe output")
	}
	for _, s := range p.Streams {
		if s.CodecType != "video" {
			continue
		}
		fps, err := parseRate(s.AvgFrameRate)
		if err != nil {
			return Info{}, err
		}
		dur, _ := strconv.ParseFloat(s.Duration, 64)
		if dur <= 0 {
			dur, _ = strconv.ParseFloat(p.Format.Duration, 64)
		}
		if dur <= 0 {
			return Info{}, errors.New("video has zero duration")
		}
		total, _ := strconv.Atoi(s.NbFrames)
		if total <= 0 {
			total = int(dur * fps)
		}
		return Info{
			Duration:    dur,
			FPS:         fps,
			Width:       s.Width,
			Height:      s.Height,
			TotalFrames: total,
		}, nil
	}
	return Info{}, errors.New("no video stream")
}

// parseRate parses ffprobe's fractional rate notation, e.g. "30000/1001".
func parseRate(r string) (float64, error) {
	parts := strings.SplitN(r, "/", 2)
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, errors.Errorf("malformed frame rate %q", r)
	}
	if len(parts) == 1 {
		return num, nil
	}
	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || den == 0 {
		return 0, errors.Errorf("malformed frame rate %q", r)
	}
	fps := num / den
	if fps <= 0 {
		return 0, errors.Errorf("non-positive frame rate %q", r)
	}
	return fps, nil
}
