package stats

import (
	"fmt"

	"github.com/Gthulhu/scx_netland/models"
)

// Metrics is one snapshot of scheduler state as served to monitors.
type Metrics struct {
	NrRunning          uint64 `json:"nr_running"`
	NrCpus             uint64 `json:"nr_cpus"`
	NrQueued           uint64 `json:"nr_queued"`
	NrScheduled        uint64 `json:"nr_scheduled"`
	NrPageFaults       uint64 `json:"nr_page_faults"`
	NrUserDispatches   uint64 `json:"nr_user_dispatches"`
	NrKernelDispatches uint64 `json:"nr_kernel_dispatches"`
	NrCancelDispatches uint64 `json:"nr_cancel_dispatches"`
	NrBounceDispatches uint64 `json:"nr_bounce_dispatches"`
	NrFailedDispatches uint64 `json:"nr_failed_dispatches"`
	NrSchedCongested   uint64 `json:"nr_sched_congested"`
	CongestionScore    uint32 `json:"congestion_score"`

	NrPool          uint64 `json:"nr_pool"`
	NrDispatched    uint64 `json:"nr_dispatched"`
	NrRequeued      uint64 `json:"nr_requeued"`
	NrReplaced      uint64 `json:"nr_replaced"`
	NrDequeueErrors uint64 `json:"nr_dequeue_errors"`
	VruntimeNow     uint64 `json:"vruntime_now"`

	SessionID string `json:"session_id"`
}

// SetCounters copies the kernel-side counters into m.
func (m *Metrics) SetCounters(c models.Counters) {
	m.NrRunning = c.NrRunning
	m.NrCpus = c.NrOnlineCpus
	m.NrQueued = c.NrQueued
	m.NrScheduled = c.NrScheduled
	m.NrUserDispatches = c.NrUserDispatches
	m.NrKernelDispatches = c.NrKernelDispatches
	m.NrCancelDispatches = c.NrCancelDispatches
	m.NrBounceDispatches = c.NrBounceDispatches
	m.NrFailedDispatches = c.NrFailedDispatches
	m.NrSchedCongested = c.NrSchedCongested
}

// Format renders m as a single monitor line.
func (m Metrics) Format() string {
	return fmt.Sprintf(
		"[netland] tasks -> r: %2d/%-2d q: %-3d s: %-3d pool: %-3d | pf: %-5d | dispatch -> u: %-5d k: %-5d c: %-4d b: %-4d f: %-4d | cg: %-3d score: %3d",
		m.NrRunning, m.NrCpus, m.NrQueued, m.NrScheduled, m.NrPool,
		m.NrPageFaults,
		m.NrUserDispatches, m.NrKernelDispatches, m.NrCancelDispatches, m.NrBounceDispatches, m.NrFailedDispatches,
		m.NrSchedCongested, m.CongestionScore,
	)
}
