package predictor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Gthulhu/scx_netland/engine"
	"github.com/Gthulhu/scx_netland/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func snapshotRegistry() map[string]Factory {
	registryMu.RLock()
	defer registryMu.RUnlock()
	m := make(map[string]Factory, len(registry))
	for k, v := range registry {
		m[k] = v
	}
	return m
}

func restoreRegistry(m map[string]Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = m
}

func zeroLinear(in, out int) Linear {
	l := Linear{Weight: make([][]float32, out), Bias: make([]float32, out)}
	for i := range l.Weight {
		l.Weight[i] = make([]float32, in)
	}
	return l
}

// gateWeights builds a network whose output logit is bias - gain*relu(feature0).
func gateWeights(gain, bias float32) ResNetWeights {
	var w ResNetWeights
	w.Input = zeroLinear(InputDim, HiddenDim)
	w.Input.Weight[0][0] = 1
	w.Block.Linear1 = zeroLinear(HiddenDim, HiddenDim)
	w.Block.Linear2 = zeroLinear(HiddenDim, HiddenDim)
	w.Output = zeroLinear(HiddenDim, OutputDim)
	w.Output.Weight[0][0] = -gain
	w.Output.Bias[0] = bias
	return w
}

func TestResNetPredict(t *testing.T) {
	r, err := NewResNet(gateWeights(10, 0))
	require.NoError(t, err)

	class, p, err := r.Predict([]float32{0, 0.3, 0.1})
	require.NoError(t, err)
	assert.EqualValues(t, 1, class, "p == 0.5 is class 1")
	assert.InDelta(t, 0.5, p, 1e-6)

	class, p, err = r.Predict([]float32{1, 0.3, 0.1})
	require.NoError(t, err)
	assert.EqualValues(t, 0, class)
	assert.Less(t, p, float32(0.001))

	// Negative inputs are cut by the first relu.
	class, _, err = r.Predict([]float32{-5, 0, 0})
	require.NoError(t, err)
	assert.EqualValues(t, 1, class)

	_, _, err = r.Predict([]float32{1, 2})
	assert.Error(t, err)
}

func TestResNetResidualBlock(t *testing.T) {
	w := gateWeights(1, 0)
	// The block doubles hidden unit 0 before the output layer sees it.
	w.Block.Linear1.Weight[0][0] = 1
	w.Block.Linear2.Weight[0][0] = 1
	r, err := NewResNet(w)
	require.NoError(t, err)

	_, p, err := r.Predict([]float32{1, 0, 0})
	require.NoError(t, err)
	assert.InDelta(t, sigmoid(-2), p, 1e-6)
}

func TestNewResNetRejectsBadShapes(t *testing.T) {
	w := gateWeights(1, 0)
	w.Output.Bias = nil
	_, err := NewResNet(w)
	assert.Error(t, err)

	w = gateWeights(1, 0)
	w.Block.Linear1.Weight[3] = []float32{1}
	_, err = NewResNet(w)
	assert.Error(t, err)
}

func TestLoadResNetFromYAML(t *testing.T) {
	raw, err := yaml.Marshal(gateWeights(10, 0))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "weights.yaml")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	r, err := LoadResNet(path)
	require.NoError(t, err)
	class, _, err := r.Predict([]float32{1, 0, 0})
	require.NoError(t, err)
	assert.EqualValues(t, 0, class)

	_, err = LoadResNet(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParseResNet([]byte("input: [unclosed"))
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	saved := snapshotRegistry()
	defer restoreRegistry(saved)

	assert.Contains(t, RegisteredModes(), ModeResNet)
	assert.Error(t, RegisterNewPredictor("", func(ctx context.Context, cfg *Config) (Predictor, error) { return nil, nil }))
	assert.Error(t, RegisterNewPredictor("x", nil))
	assert.Error(t, RegisterNewPredictor(ModeResNet, func(ctx context.Context, cfg *Config) (Predictor, error) { return nil, nil }))

	fixed := &stubPredictor{class: 1, p: 0.9}
	require.NoError(t, RegisterNewPredictor("fixed", func(ctx context.Context, cfg *Config) (Predictor, error) { return fixed, nil }))
	p, err := NewPredictor(context.Background(), &Config{Mode: "fixed"})
	require.NoError(t, err)
	assert.Same(t, fixed, p)

	_, err = NewPredictor(context.Background(), &Config{Mode: "nope"})
	assert.ErrorIs(t, err, ErrUnknownMode)
	_, err = NewPredictor(context.Background(), nil)
	assert.Error(t, err)
}

func TestNewPredictorResNet(t *testing.T) {
	raw, err := yaml.Marshal(gateWeights(10, 0))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "weights.yaml")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	p, err := NewPredictor(context.Background(), &Config{Mode: ModeResNet, WeightsPath: path})
	require.NoError(t, err)
	assert.IsType(t, &ResNet{}, p)
}

type stubPredictor struct {
	class uint32
	p     float32
	err   error
	got   []float32
}

func (s *stubPredictor) Predict(features []float32) (uint32, float32, error) {
	s.got = features
	return s.class, s.p, s.err
}

func TestFeatures(t *testing.T) {
	task := &models.QueuedTask{ExecRuntime: 10_000_000}
	got := Features(task, engine.Load{NrWaiting: 8, NrCpus: 4, Congestion: 50, SliceNsDefault: 20_000_000})
	assert.InDeltaSlice(t, []float32{0.5, 2, 0.5}, got, 1e-6)

	got = Features(task, engine.Load{NrWaiting: 3, Congestion: 250})
	assert.InDelta(t, 3, got[1], 1e-6, "zero cpus treated as one")
	assert.InDelta(t, 1, got[2], 1e-6)
}

func TestAdvisor(t *testing.T) {
	task := &models.QueuedTask{Pid: 1, Cpu: 2}
	load := engine.Load{NrWaiting: 2, NrCpus: 4, SliceNsDefault: 20_000_000}

	stub := &stubPredictor{class: 0, p: 0.1}
	adv := NewAdvisor(context.Background(), stub, 0.8)
	assert.True(t, adv.KeepLocal(task, load))
	assert.Len(t, stub.got, InputDim)

	stub.p = 0.3
	assert.False(t, adv.KeepLocal(task, load), "class 0 below threshold")

	stub.class, stub.p = 1, 0.9
	assert.False(t, adv.KeepLocal(task, load))

	stub.class, stub.err = 0, errors.New("bad input")
	assert.False(t, adv.KeepLocal(task, load))

	assert.Equal(t, float32(DefaultThreshold), NewAdvisor(context.Background(), stub, 0).threshold)
}
