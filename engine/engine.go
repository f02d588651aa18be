package engine

import (
	"context"
	"math"
	"math/bits"

	"github.com/Gthulhu/scx_netland/logger"
	"github.com/Gthulhu/scx_netland/models"
	"github.com/Gthulhu/scx_netland/util"
)

const (
	NSEC_PER_USEC = 1000

	SLICE_NS_DEFAULT = 20000 * NSEC_PER_USEC // 20ms
	SLICE_NS_MIN     = 1000 * NSEC_PER_USEC  // 1ms

	// exec_runtime is capped at this many default slices when computing a deadline.
	execRuntimeCapSlices = 100
)

type Config struct {
	SliceNsDefault uint64
	SliceNsMin     uint64
	// PerCPULocal dispatches tasks allowed on a single CPU straight to that CPU.
	PerCPULocal bool
	// CongestionBias shrinks slices by up to this percentage at full congestion (0 disables).
	CongestionBias uint32
}

func DefaultConfig() Config {
	return Config{
		SliceNsDefault: SLICE_NS_DEFAULT,
		SliceNsMin:     SLICE_NS_MIN,
	}
}

// State is the per-session engine state.
type State struct {
	VruntimeNow uint64 // max vtime observed, never decreases

	NrDispatched     uint64
	NrRequeued       uint64
	NrReplaced       uint64
	NrDequeueErrors  uint64
	NrScored         uint64
	NrPredictorHints uint64
}

type Engine struct {
	cfg        Config
	state      State
	pool       *TaskPool
	ch         TaskChannel
	congestion CongestionReader
	advisor    PlacementAdvisor
	nrCpus     uint64
	now        func() uint64
}

type Option func(*Engine)

// WithCongestion makes the engine read slice bias input from r.
func WithCongestion(r CongestionReader) Option {
	return func(e *Engine) { e.congestion = r }
}

func WithAdvisor(a PlacementAdvisor) Option {
	return func(e *Engine) { e.advisor = a }
}

// WithClock overrides the arrival timestamp source.
func WithClock(now func() uint64) Option {
	return func(e *Engine) { e.now = now }
}

func New(cfg Config, ch TaskChannel, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.SliceNsDefault == 0 {
		cfg.SliceNsDefault = def.SliceNsDefault
	}
	if cfg.SliceNsMin == 0 {
		cfg.SliceNsMin = def.SliceNsMin
	}
	if cfg.CongestionBias > 100 {
		cfg.CongestionBias = 100
	}
	e := &Engine{
		cfg:  cfg,
		pool: NewTaskPool(),
		ch:   ch,
		now:  util.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) State() State {
	return e.state
}

func (e *Engine) Pool() *TaskPool {
	return e.pool
}

// SetNrCpus records the online CPU count used to normalise predictor features.
func (e *Engine) SetNrCpus(n uint64) {
	e.nrCpus = n
}

// ScaleInverse returns ns * 100 / weight, saturating on overflow. A zero weight is treated
// as 1.
func ScaleInverse(weight, ns uint64) uint64 {
	if weight < models.WEIGHT_MIN {
		weight = models.WEIGHT_MIN
	}
	hi, lo := bits.Mul64(ns, 100)
	if hi >= weight {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, weight)
	return q
}

// Score updates t.Vtime and returns the deadline used to order t.
func (e *Engine) Score(t *models.QueuedTask) uint64 {
	if e.state.VruntimeNow < t.Vtime {
		e.state.VruntimeNow = t.Vtime
	}

	// A task may not lag the high-water mark by more than one slice.
	floor := util.SaturatingSub(e.state.VruntimeNow, e.cfg.SliceNsDefault)
	if t.Vtime == 0 {
		// New tasks are charged one extra slice.
		t.Vtime = util.SaturatingAdd(floor, ScaleInverse(t.Weight, e.cfg.SliceNsDefault))
	} else if t.Vtime < floor {
		t.Vtime = floor
	}
	ran := util.SaturatingSub(t.StopTs, t.StartTs)
	t.Vtime = util.SaturatingAdd(t.Vtime, ScaleInverse(t.Weight, ran))

	e.state.NrScored++
	return util.SaturatingAdd(t.Vtime, min(t.ExecRuntime, e.cfg.SliceNsDefault*execRuntimeCapSlices))
}

// NrWaiting is the number of tasks queued in the kernel plus those held in the pool.
func (e *Engine) NrWaiting() uint64 {
	return e.ch.NrQueued() + uint64(e.pool.Len())
}

// SliceFor returns the slice granted when nrWaiting tasks (including the one being
// dispatched) compete for the CPUs.
func (e *Engine) SliceFor(nrWaiting uint64, congestion uint32) uint64 {
	if nrWaiting == 0 {
		nrWaiting = 1
	}
	slice := e.cfg.SliceNsDefault / nrWaiting
	if e.cfg.CongestionBias > 0 && congestion > 0 {
		cut := uint64(min(congestion, 100)) * uint64(e.cfg.CongestionBias) / 100
		slice = slice * (100 - cut) / 100
	}
	return max(slice, e.cfg.SliceNsMin)
}

func (e *Engine) congestionScore() uint32 {
	if e.congestion == nil {
		return 0
	}
	return e.congestion.Score()
}

func (e *Engine) selectCPU(t *models.QueuedTask, nrWaiting uint64, congestion uint32) int32 {
	if cpu, ok := e.ch.SelectIdleCPU(t.Pid, t.Cpu, t.Flags); ok && cpu >= 0 {
		return cpu
	}
	if e.cfg.PerCPULocal && t.NrCpusAllowed == 1 {
		return t.Cpu
	}
	load := Load{NrWaiting: nrWaiting, NrCpus: e.nrCpus, Congestion: congestion, SliceNsDefault: e.cfg.SliceNsDefault}
	if e.advisor != nil && t.Cpu >= 0 && e.advisor.KeepLocal(t, load) {
		e.state.NrPredictorHints++
		return t.Cpu
	}
	return models.RL_CPU_ANY
}

// DispatchHead sends the minimum pool entry to the kernel. It returns false when the
// transport refused the dispatch; the entry is then back in the pool and the caller must
// stop dispatching for this cycle.
func (e *Engine) DispatchHead(ctx context.Context) bool {
	nrWaiting := e.NrWaiting() + 1

	st, ok := e.pool.PopMin()
	if !ok {
		return true
	}

	congestion := e.congestionScore()
	task := models.NewDispatchedTask(&st.Task)
	task.SliceNs = e.SliceFor(nrWaiting, congestion)
	task.Vtime = st.Deadline
	task.Cpu = e.selectCPU(&st.Task, nrWaiting, congestion)

	if err := e.ch.DispatchTask(task); err != nil {
		e.pool.Insert(st)
		e.state.NrRequeued++
		logger.Logger(ctx).Debug().Err(err).Int32("pid", st.Task.Pid).Msg("dispatch refused, task kept in pool")
		return false
	}
	e.state.NrDispatched++
	logger.Logger(ctx).Trace().
		Int32("pid", task.Pid).
		Int32("cpu", task.Cpu).
		Int32("prev_cpu", st.Task.Cpu).
		Uint64("slice_ns", task.SliceNs).
		Uint64("deadline", task.Vtime).
		Msg("dispatched")
	return true
}

// DrainAndScore moves every pending task from the channel into the pool, then dispatches at
// most one task.
func (e *Engine) DrainAndScore(ctx context.Context) {
	for {
		t, err := e.ch.DequeueTask()
		if err != nil {
			e.state.NrDequeueErrors++
			logger.Logger(ctx).Warn().Err(err).Msg("dequeue failed")
			break
		}
		if t == nil {
			break
		}
		deadline := e.Score(t)
		if e.pool.Insert(ScheduledTask{Task: *t, Deadline: deadline, Timestamp: e.now()}) {
			e.state.NrReplaced++
		}
	}

	if e.pool.Len() > 0 {
		e.DispatchHead(ctx)
	}
}

// Schedule runs one scheduling cycle and tells the kernel how many tasks are still pending.
func (e *Engine) Schedule(ctx context.Context) {
	e.DrainAndScore(ctx)
	if err := e.ch.NotifyComplete(uint64(e.pool.Len())); err != nil {
		logger.Logger(ctx).Warn().Err(err).Msg("notify complete failed")
	}
}

// Reset discards every pooled task and returns how many were dropped.
func (e *Engine) Reset() int {
	return e.pool.Drain()
}
