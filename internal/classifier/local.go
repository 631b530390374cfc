package classifier

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/owulveryck/onnx-go"
	"github.com/owulveryck/onnx-go/backend/x/gorgonnx"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"gorgonia.org/tensor"

	"github.com/example/smartbin/internal/camera"
)

// Layout is the memory order of the model input tensor.
type Layout string

const (
	NHWC Layout = "NHWC"
	NCHW Layout = "NCHW"
)

// LocalOptions describes the input and output contract of the fallback model.
type LocalOptions struct {
	Width   int
	Height  int
	Layout  Layout
	Classes []string
}

type inferencer interface {
	Infer(input tensor.Tensor) ([]float32, error)
}

// Local runs the fallback model in-process. It is loaded once and only read afterwards.
type Local struct {
	opts   LocalOptions
	model  inferencer
	logger *zap.Logger
}

// LoadLocal reads ONNX weights from path.
func LoadLocal(path string, opts LocalOptions, logger *zap.Logger) (*Local, error) {
	if len(opts.Classes) < 2 {
		return nil, fmt.Errorf("model needs at least two classes, got %d", len(opts.Classes))
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model weights: %w", err)
	}

	backend := gorgonnx.NewGraph()
	model := onnx.NewModel(backend)
	if err := model.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("failed to decode model %s: %w", path, err)
	}

	logger.Named("local_classifier").Info("model loaded",
		zap.String("path", path),
		zap.Int("width", opts.Width),
		zap.Int("height", opts.Height),
		zap.String("layout", string(opts.Layout)))

	return newLocal(&onnxModel{model: model, backend: backend}, opts, logger), nil
}

func newLocal(model inferencer, opts LocalOptions, logger *zap.Logger) *Local {
	return &Local{opts: opts, model: model, logger: logger.Named("local_classifier")}
}

// Classify runs the model over the photo. Undecodable input yields ErrInvalidImage.
func (l *Local) Classify(ctx context.Context, photo camera.Photo) (Label, error) {
	input, err := l.preprocess(photo.Path)
	if err != nil {
		return Unknown, err
	}

	scores, err := l.model.Infer(input)
	if err != nil {
		return Unknown, fmt.Errorf("%w: inference: %v", ErrClassify, err)
	}

	label, err := l.decide(scores)
	if err != nil {
		return Unknown, err
	}
	l.logger.Debug("local prediction", zap.Float32s("scores", scores), zap.Stringer("label", label))
	return label, nil
}

func (l *Local) preprocess(path string) (tensor.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidImage, path, err)
	}

	w, h := l.opts.Width, l.opts.Height
	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Src, nil)

	data := make([]float32, 3*w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := scaled.PixOffset(x, y)
			rgb := scaled.Pix[off : off+3]
			for c := 0; c < 3; c++ {
				v := float32(rgb[c]) / 255
				if l.opts.Layout == NCHW {
					data[c*w*h+y*w+x] = v
				} else {
					data[(y*w+x)*3+c] = v
				}
			}
		}
	}

	shape := []int{1, h, w, 3}
	if l.opts.Layout == NCHW {
		shape = []int{1, 3, h, w}
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)), nil
}

// decide maps raw scores to a label. A single score is a sigmoid over the
// first two classes; several scores are resolved by argmax.
func (l *Local) decide(scores []float32) (Label, error) {
	if len(scores) == 0 {
		return Unknown, fmt.Errorf("%w: model returned no scores", ErrClassify)
	}

	idx := 0
	if len(scores) == 1 {
		if scores[0] >= 0.5 {
			idx = 1
		}
	} else {
		for i, s := range scores {
			if s > scores[idx] {
				idx = i
			}
		}
	}

	if idx >= len(l.opts.Classes) {
		return Unknown, fmt.Errorf("%w: class index %d out of range", ErrClassify, idx)
	}
	return ParseLabel(l.opts.Classes[idx]), nil
}

type onnxModel struct {
	model   *onnx.Model
	backend *gorgonnx.Graph
}

func (m *onnxModel) Infer(input tensor.Tensor) ([]float32, error) {
	if err := m.model.SetInput(0, input); err != nil {
		return nil, err
	}
	if err := m.backend.Run(); err != nil {
		return nil, err
	}
	outputs, err := m.model.GetOutputTensors()
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("model produced no outputs")
	}

	switch v := outputs[0].Data().(type) {
	case []float32:
		return append([]float32(nil), v...), nil
	case float32:
		return []float32{v}, nil
	default:
		return nil, fmt.Errorf("unexpected output type %T", v)
	}
}
