package congestion

import (
	"context"
	"sync"
	"time"

	"github.com/Gthulhu/scx_netland/logger"
)

const DefaultInterval = 500 * time.Millisecond

// Monitor periodically samples a Source and publishes a congestion score.
type Monitor struct {
	src      Source
	cell     *Cell
	interval time.Duration

	prev    Sample
	hasPrev bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewMonitor(src Source, cell *Cell, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		src:      src,
		cell:     cell,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (m *Monitor) Cell() *Cell {
	return m.cell
}

// Tick takes one sample and publishes the resulting score. A read failure publishes 0
// and drops the baseline so the next good sample does not count the outage as congestion.
func (m *Monitor) Tick(ctx context.Context) {
	cur, err := m.src.Read()
	if err != nil {
		m.cell.Store(0)
		m.hasPrev = false
		logger.Logger(ctx).Warn().Err(err).Msg("congestion sample failed")
		return
	}
	if !m.hasPrev {
		m.prev, m.hasPrev = cur, true
		m.cell.Store(0)
		return
	}
	score := CalculateScore(m.prev, cur)
	m.prev = cur
	m.cell.Store(score)
	if score > 0 {
		logger.Logger(ctx).Debug().Uint32("score", score).Uint64("rx_dropped", cur.RxDropped).Uint64("tx_errors", cur.TxErrors).Msg("congestion")
	}
}

// Run samples every interval until ctx is cancelled or Stop is called.
func (m *Monitor) Run(ctx context.Context) {
	defer close(m.doneCh)
	ctx = logger.WithComponent(ctx, "congestion")
	logger.Logger(ctx).Info().Msgf("congestion monitor starting, interval %s", m.interval)

	m.Tick(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Tick(ctx)
		case <-ctx.Done():
			logger.Logger(ctx).Info().Msg("congestion monitor stopped")
			return
		case <-m.stopCh:
			logger.Logger(ctx).Info().Msg("congestion monitor stopped")
			return
		}
	}
}

// Start runs the monitor on its own goroutine.
func (m *Monitor) Start(ctx context.Context) {
	go m.Run(ctx)
}

// Stop ends Run and waits for it to return. It must only be called after Start.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.doneCh
}
