//go:build !no_tflite && !no_cgo

package posedet

import (
	"context"
	"image"
	"runtime"
	"sync"

	tflite "github.com/mattn/go-tflite"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/posecoach/posecoach/pose"
)

// MoveNet-style single-pose models take a square uint8 RGB input and emit a
// [1, 1, 17, 3] float32 tensor of (y, x, score) rows in COCO joint order.
const movenetOutputName = "keypoints_with_scores"

// MoveNetConfig configures the TFLite pose model.
type MoveNetConfig struct {
	// ModelPath is the .tflite file.
	ModelPath string `json:"model_path"`
	// NumThreads caps interpreter threads; zero or less means all CPUs.
	NumThreads int `json:"num_threads"`
}

// MoveNet runs a single-pose TFLite model on the CPU. One interpreter is
// guarded by a mutex, so concurrent requests serialize on inference while
// sharing the loaded model weights.
type MoveNet struct {
	mu      sync.Mutex
	model   *tflite.Model
	interp  *tflite.Interpreter
	options *tflite.InterpreterOptions
	inSize  int
}

// NewMoveNet loads the model file and prepares an interpreter.
func NewMoveNet(conf MoveNetConfig) (*MoveNet, error) {
	model := tflite.NewModelFromFile(conf.ModelPath)
	if model == nil {
		return nil, errors.Errorf("failed to load tflite model from %q", conf.ModelPath)
	}
	options := tflite.NewInterpreterOptions()
	threads := conf.NumThreads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	options.SetNumThread(threads)

	interp := tflite.NewInterpreter(model, options)
	if interp == nil {
		options.Delete()
		model.Delete()
		return nil, errors.New("failed to create tflite interpreter")
	}
	if status := interp.AllocateTensors(); status != tflite.OK {
		interp.Delete()
		options.Delete()
		model.Delete()
		return nil, errors.New("failed to allocate tflite tensors")
	}

	in := interp.GetInputTensor(0)
	if in.NumDims() != 4 || in.Dim(1) != in.Dim(2) {
		interp.Delete()
		options.Delete()
		model.Delete()
		return nil, errors.Errorf("unexpected input shape for a single-pose model: %d dims", in.NumDims())
	}
	return &MoveNet{model: model, interp: interp, options: options, inSize: in.Dim(1)}, nil
}

// Detect infers each image in the batch. Single-pose models yield at most one
// candidate per image.
func (m *MoveNet) Detect(ctx context.Context, imgs []image.Image) ([][]pose.KeypointSet, error) {
	out := make([][]pose.KeypointSet, len(imgs))
	for i, img := range imgs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ks, ok, err := m.inferOne(img)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = []pose.KeypointSet{ks}
		}
	}
	return out, nil
}

func (m *MoveNet) inferOne(img image.Image) (pose.KeypointSet, bool, error) {
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()
	resized := resize.Resize(uint(m.inSize), uint(m.inSize), img, resize.Bilinear)

	m.mu.Lock()
	defer m.mu.Unlock()

	in := m.interp.GetInputTensor(0)
	buf := in.UInt8s()
	fillRGB(buf, resized, m.inSize)
	if status := m.interp.Invoke(); status != tflite.OK {
		return pose.KeypointSet{}, false, errors.New("tflite invoke failed")
	}

	raw := m.interp.GetOutputTensor(0).Float32s()
	if len(raw) < int(pose.NumDetected)*3 {
		return pose.KeypointSet{}, false, errors.Errorf("pose output has %d values, want %d", len(raw), pose.NumDetected*3)
	}
	backing := make([]float32, len(raw))
	copy(backing, raw)
	scores := tensor.New(
		tensor.WithShape(1, 1, int(pose.NumDetected), 3),
		tensor.WithBacking(backing),
	)
	return decodeKeypoints(scores, origW, origH)
}

// decodeKeypoints reads (y, x, score) rows out of the model's output tensor
// and scales them into source pixel coordinates.
func decodeKeypoints(scores *tensor.Dense, width, height int) (pose.KeypointSet, bool, error) {
	var ks pose.KeypointSet
	anyVisible := false
	for j := 0; j < int(pose.NumDetected); j++ {
		yv, err := scores.At(0, 0, j, 0)
		if err != nil {
			return ks, false, errors.Wrap(err, "malformed pose output tensor")
		}
		xv, err := scores.At(0, 0, j, 1)
		if err != nil {
			return ks, false, errors.Wrap(err, "malformed pose output tensor")
		}
		sv, err := scores.At(0, 0, j, 2)
		if err != nil {
			return ks, false, errors.Wrap(err, "malformed pose output tensor")
		}
		kp := pose.Keypoint{
			X:   float64(xv.(float32)) * float64(width),
			Y:   float64(yv.(float32)) * float64(height),
			Vis: float64(sv.(float32)),
		}
		ks[pose.Joint(j)] = kp
		if kp.Vis >= pose.DefaultMinVisibility {
			anyVisible = true
		}
	}
	return ks, anyVisible, nil
}

// fillRGB packs an image into the interpreter's HWC uint8 input buffer.
func fillRGB(buf []uint8, img image.Image, size int) {
	bounds := img.Bounds()
	idx := 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			buf[idx] = uint8(r >> 8)
			buf[idx+1] = uint8(g >> 8)
			buf[idx+2] = uint8(b >> 8)
			idx += 3
		}
	}
}

// Close releases the interpreter and model.
func (m *MoveNet) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.interp != nil {
		m.interp.Delete()
		m.interp = nil
	}
	if m.options != nil {
		m.options.Delete()
		m.options = nil
	}
	if m.model != nil {
		m.model.Delete()
		m.model = nil
	}
	return nil
}
