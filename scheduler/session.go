package scheduler

import (
	"context"
	"runtime"

	"github.com/Gthulhu/scx_netland/engine"
	"github.com/Gthulhu/scx_netland/logger"
	"github.com/Gthulhu/scx_netland/models"
	"github.com/Gthulhu/scx_netland/stats"
	"github.com/rs/xid"
)

type State int

const (
	Running State = iota
	Exiting
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Exiting:
		return "exiting"
	default:
		return "unknown"
	}
}

type sessionDeps struct {
	congestion engine.CongestionReader
	advisor    engine.PlacementAdvisor
	stats      *stats.Server
	pageFaults *stats.PageFaultTracker
	clock      func() uint64
}

type Option func(*sessionDeps)

func WithCongestion(r engine.CongestionReader) Option {
	return func(d *sessionDeps) { d.congestion = r }
}

func WithAdvisor(a engine.PlacementAdvisor) Option {
	return func(d *sessionDeps) { d.advisor = a }
}

// WithStats makes the session answer metrics requests from srv once per iteration.
func WithStats(srv *stats.Server) Option {
	return func(d *sessionDeps) { d.stats = srv }
}

func WithPageFaults(pf *stats.PageFaultTracker) Option {
	return func(d *sessionDeps) { d.pageFaults = pf }
}

func WithClock(now func() uint64) Option {
	return func(d *sessionDeps) { d.clock = now }
}

// Session drives one attached instance of the scheduler from load to exit.
type Session struct {
	id    xid.ID
	ch    Channel
	eng   *engine.Engine
	deps  sessionDeps
	state State
}

func NewSession(ch Channel, cfg engine.Config, opts ...Option) *Session {
	var deps sessionDeps
	for _, opt := range opts {
		opt(&deps)
	}
	engOpts := []engine.Option{}
	if deps.congestion != nil {
		engOpts = append(engOpts, engine.WithCongestion(deps.congestion))
	}
	if deps.advisor != nil {
		engOpts = append(engOpts, engine.WithAdvisor(deps.advisor))
	}
	if deps.clock != nil {
		engOpts = append(engOpts, engine.WithClock(deps.clock))
	}
	deps.pageFaults.Reset()
	return &Session{
		id:   xid.New(),
		ch:   ch,
		eng:  engine.New(cfg, ch, engOpts...),
		deps: deps,
	}
}

func (s *Session) ID() string {
	return s.id.String()
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) Engine() *engine.Engine {
	return s.eng
}

func (s *Session) congestionScore() uint32 {
	if s.deps.congestion == nil {
		return 0
	}
	return s.deps.congestion.Score()
}

// Snapshot collects the current kernel and engine counters.
func (s *Session) Snapshot(ctx context.Context) stats.Metrics {
	var m stats.Metrics
	counters, err := s.ch.Counters()
	if err != nil {
		logger.Logger(ctx).Debug().Err(err).Msg("read counters failed")
	} else {
		m.SetCounters(counters)
	}
	st := s.eng.State()
	m.NrPageFaults = s.deps.pageFaults.Delta()
	m.CongestionScore = s.congestionScore()
	m.NrPool = uint64(s.eng.Pool().Len())
	m.NrDispatched = st.NrDispatched
	m.NrRequeued = st.NrRequeued
	m.NrReplaced = st.NrReplaced
	m.NrDequeueErrors = st.NrDequeueErrors
	m.VruntimeNow = st.VruntimeNow
	m.SessionID = s.ID()
	return m
}

// Step runs one loop iteration and returns false once the session is exiting.
func (s *Session) Step(ctx context.Context) bool {
	if s.state == Exiting {
		return false
	}
	if ctx.Err() != nil || s.ch.Exited() {
		s.state = Exiting
		return false
	}
	if s.deps.stats != nil {
		s.deps.stats.Poll(func() stats.Metrics { return s.Snapshot(ctx) })
	}
	s.eng.Schedule(ctx)
	return true
}

// Run loops until the kernel side exits or ctx is cancelled, then drops the pooled tasks
// and returns the exit report.
func (s *Session) Run(ctx context.Context) (*models.ExitReport, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ctx = logger.WithComponent(ctx, "scheduler")
	ctx = logger.Logger(ctx).With().Str("session", s.ID()).Logger().WithContext(ctx)

	if counters, err := s.ch.Counters(); err == nil {
		s.eng.SetNrCpus(counters.NrOnlineCpus)
	}
	cfg := s.eng.Config()
	logger.Logger(ctx).Info().
		Uint64("slice_ns", cfg.SliceNsDefault).
		Uint64("slice_ns_min", cfg.SliceNsMin).
		Bool("percpu_local", cfg.PerCPULocal).
		Uint32("congestion_bias", cfg.CongestionBias).
		Msg("scheduler session started")

	for s.Step(ctx) {
	}

	dropped := s.eng.Reset()
	report, err := s.ch.ShutdownAndReport()
	if err != nil {
		return nil, err
	}
	st := s.eng.State()
	logger.Logger(ctx).Info().
		Int("dropped", dropped).
		Uint64("dispatched", st.NrDispatched).
		Uint64("requeued", st.NrRequeued).
		Str("exit", report.String()).
		Msg("scheduler session ended")
	return report, nil
}
