package predictor

import (
	"context"
	"math"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	ModeResNet = "resnet"

	InputDim  = 3
	HiddenDim = 10
	OutputDim = 1
)

func init() {
	if err := RegisterNewPredictor(ModeResNet, func(ctx context.Context, cfg *Config) (Predictor, error) {
		return LoadResNet(cfg.WeightsPath)
	}); err != nil {
		panic(err)
	}
}

// Linear is a dense layer. Weight is indexed [out][in].
type Linear struct {
	Weight [][]float32 `yaml:"weight"`
	Bias   []float32   `yaml:"bias"`
}

func (l *Linear) check(name string, in, out int) error {
	if len(l.Weight) != out || len(l.Bias) != out {
		return errors.Errorf("%s: want %d outputs, got weight %d bias %d", name, out, len(l.Weight), len(l.Bias))
	}
	for i, row := range l.Weight {
		if len(row) != in {
			return errors.Errorf("%s: row %d has %d inputs, want %d", name, i, len(row), in)
		}
	}
	return nil
}

func (l *Linear) forward(x []float32) []float32 {
	out := make([]float32, len(l.Weight))
	for i, row := range l.Weight {
		sum := l.Bias[i]
		for j, w := range row {
			sum += w * x[j]
		}
		out[i] = sum
	}
	return out
}

// ResNetWeights is the on-disk layout of the residual network.
type ResNetWeights struct {
	Input Linear `yaml:"input"`
	Block struct {
		Linear1 Linear `yaml:"linear1"`
		Linear2 Linear `yaml:"linear2"`
	} `yaml:"block"`
	Output Linear `yaml:"output"`
}

// ResNet is a small residual MLP: input -> relu -> residual block -> output -> sigmoid.
type ResNet struct {
	w ResNetWeights
}

func NewResNet(w ResNetWeights) (*ResNet, error) {
	checks := []struct {
		name    string
		l       *Linear
		in, out int
	}{
		{"input", &w.Input, InputDim, HiddenDim},
		{"block.linear1", &w.Block.Linear1, HiddenDim, HiddenDim},
		{"block.linear2", &w.Block.Linear2, HiddenDim, HiddenDim},
		{"output", &w.Output, HiddenDim, OutputDim},
	}
	for _, c := range checks {
		if err := c.l.check(c.name, c.in, c.out); err != nil {
			return nil, err
		}
	}
	return &ResNet{w: w}, nil
}

func ParseResNet(data []byte) (*ResNet, error) {
	var w ResNetWeights
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, errors.Wrap(err, "parse resnet weights")
	}
	return NewResNet(w)
}

func LoadResNet(path string) (*ResNet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read resnet weights %s", path)
	}
	return ParseResNet(data)
}

func relu(x []float32) []float32 {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
	return x
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

func (r *ResNet) Predict(features []float32) (uint32, float32, error) {
	if len(features) != InputDim {
		return 0, 0, errors.Errorf("want %d features, got %d", InputDim, len(features))
	}
	h := relu(r.w.Input.forward(features))

	b := relu(r.w.Block.Linear1.forward(h))
	b = r.w.Block.Linear2.forward(b)
	for i := range h {
		h[i] += b[i]
	}
	h = relu(h)

	p := sigmoid(r.w.Output.forward(h)[0])
	if p >= 0.5 {
		return 1, p, nil
	}
	return 0, p, nil
}
