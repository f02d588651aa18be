package congestion

import (
	"sync"

	"github.com/Gthulhu/scx_netland/util"
)

// MaxDelta is the combined per-interval drop/error count that maps to a score of 100.
const MaxDelta = 500

// Sample is one reading of an interface's error counters.
type Sample struct {
	RxDropped uint64
	TxErrors  uint64
}

// CalculateScore turns the counter movement between two samples into a score in [0, 100].
// A counter that went backwards (wrap or reset) contributes nothing.
func CalculateScore(prev, cur Sample) uint32 {
	delta := util.SaturatingAdd(
		util.SaturatingSub(cur.RxDropped, prev.RxDropped),
		util.SaturatingSub(cur.TxErrors, prev.TxErrors),
	)
	delta = min(delta, MaxDelta)
	return uint32((delta*100 + MaxDelta/2) / MaxDelta)
}

// Cell holds the last published score. It is the only state shared between the monitor
// and the scheduling loop.
type Cell struct {
	mu    sync.Mutex
	score uint32
}

func (c *Cell) Score() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.score
}

func (c *Cell) Store(score uint32) {
	c.mu.Lock()
	c.score = min(score, 100)
	c.mu.Unlock()
}
