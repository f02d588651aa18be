package engine

import "github.com/Gthulhu/scx_netland/models"

// TaskChannel is the part of the kernel transport the engine drives.
type TaskChannel interface {
	// DequeueTask never blocks; (nil, nil) means nothing is pending.
	DequeueTask() (*models.QueuedTask, error)
	// SelectIdleCPU is best effort; ok is false when no idle CPU was found.
	SelectIdleCPU(pid int32, prevCpu int32, flags uint64) (cpu int32, ok bool)
	// DispatchTask returns an error when the transport cannot take more dispatches.
	DispatchTask(t *models.DispatchedTask) error
	// NotifyComplete reports the tasks still held user-side and may suspend the caller.
	NotifyComplete(nrPending uint64) error
	// NrQueued is the number of tasks waiting on the kernel side to be dequeued.
	NrQueued() uint64
}

// CongestionReader exposes the latest published congestion score in [0, 100].
type CongestionReader interface {
	Score() uint32
}

// Load describes the machine at the moment a task is placed.
type Load struct {
	NrWaiting      uint64
	NrCpus         uint64
	Congestion     uint32
	SliceNsDefault uint64
}

// PlacementAdvisor is consulted when no idle CPU is available and the per-CPU rule does not
// apply. Returning true keeps the task on its previous CPU.
type PlacementAdvisor interface {
	KeepLocal(t *models.QueuedTask, load Load) bool
}
