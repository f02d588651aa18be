package predictor

import (
	"context"

	"github.com/Gthulhu/scx_netland/engine"
	"github.com/Gthulhu/scx_netland/logger"
	"github.com/Gthulhu/scx_netland/models"
)

const DefaultThreshold = 0.5

var _ engine.PlacementAdvisor = (*Advisor)(nil)

// Advisor asks a predictor whether a task should stay on its previous CPU.
type Advisor struct {
	ctx       context.Context
	p         Predictor
	threshold float32
}

func NewAdvisor(ctx context.Context, p Predictor, threshold float32) *Advisor {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Advisor{ctx: logger.WithComponent(ctx, "predictor"), p: p, threshold: threshold}
}

// Features builds the normalised input vector for t.
func Features(t *models.QueuedTask, load engine.Load) []float32 {
	slice := max(load.SliceNsDefault, 1)
	cpus := max(load.NrCpus, 1)
	return []float32{
		float32(float64(t.ExecRuntime) / float64(slice)),
		float32(float64(load.NrWaiting) / float64(cpus)),
		float32(min(load.Congestion, 100)) / 100,
	}
}

// KeepLocal reports true when the predictor says class 0 with at least the configured
// confidence. Errors count as no advice.
func (a *Advisor) KeepLocal(t *models.QueuedTask, load engine.Load) bool {
	class, p, err := a.p.Predict(Features(t, load))
	if err != nil {
		logger.Logger(a.ctx).Debug().Err(err).Int32("pid", t.Pid).Msg("predict failed")
		return false
	}
	return class == 0 && 1-p >= a.threshold
}
