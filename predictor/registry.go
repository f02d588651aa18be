package predictor

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var ErrUnknownMode = errors.New("unknown predictor mode")

// Predictor classifies a feature vector. class is 0 or 1 and confidence is the
// probability of class 1.
type Predictor interface {
	Predict(features []float32) (class uint32, confidence float32, err error)
}

// Config selects and parameterises a predictor.
type Config struct {
	Mode        string  `yaml:"mode" mapstructure:"mode"`
	WeightsPath string  `yaml:"weights" mapstructure:"weights"`
	Threshold   float32 `yaml:"threshold" mapstructure:"threshold"`
}

// Factory builds a predictor from its configuration.
type Factory func(ctx context.Context, cfg *Config) (Predictor, error)

var (
	registry   = make(map[string]Factory)
	registryMu sync.RWMutex
)

// RegisterNewPredictor makes a factory available under mode. It is meant to be called
// from init.
func RegisterNewPredictor(mode string, factory Factory) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if mode == "" {
		return errors.New("predictor mode cannot be empty")
	}
	if factory == nil {
		return errors.New("predictor factory cannot be nil")
	}
	if _, exists := registry[mode]; exists {
		return errors.Errorf("predictor mode '%s' is already registered", mode)
	}
	registry[mode] = factory
	return nil
}

// NewPredictor builds the predictor registered for cfg.Mode.
func NewPredictor(ctx context.Context, cfg *Config) (Predictor, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	registryMu.RLock()
	factory, exists := registry[cfg.Mode]
	registryMu.RUnlock()

	if !exists {
		return nil, errors.Wrap(ErrUnknownMode, cfg.Mode)
	}
	return factory(ctx, cfg)
}

// RegisteredModes returns the registered modes in sorted order.
func RegisteredModes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	modes := make([]string, 0, len(registry))
	for mode := range registry {
		modes = append(modes, mode)
	}
	sort.Strings(modes)
	return modes
}
