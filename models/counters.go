package models

import "fmt"

// Counters mirrors the statistics exported by the BPF dispatcher in .bss.
type Counters struct {
	NrRunning          uint64 // Number of tasks currently running
	NrOnlineCpus       uint64 // Number of online CPUs in the system
	NrQueued           uint64 // Number of tasks queued to the user-space scheduler
	NrScheduled        uint64 // Number of tasks scheduled by the user-space scheduler
	NrUserDispatches   uint64 // Number of user-space dispatches
	NrKernelDispatches uint64 // Number of kernel-space dispatches
	NrCancelDispatches uint64 // Number of cancelled dispatches
	NrBounceDispatches uint64 // Number of bounce dispatches
	NrFailedDispatches uint64 // Number of failed dispatches
	NrSchedCongested   uint64 // Number of times the scheduler was congested
}

// Exit kinds and codes shared with sched_ext (see include/linux/sched/ext.h).
const (
	SCX_EXIT_NONE = 0
	SCX_EXIT_DONE = 1

	SCX_ECODE_RSN_HOTPLUG = uint64(1) << 32
	SCX_ECODE_ACT_RESTART = uint64(1) << 48
)

// ExitReport is what the kernel side leaves behind when the scheduler is unregistered.
type ExitReport struct {
	Kind     int32
	ExitCode int64
	Reason   string
	Message  string
}

// ShouldRestart reports whether the kernel asked for the scheduler to be reloaded.
func (r *ExitReport) ShouldRestart() bool {
	if r == nil {
		return false
	}
	return uint64(r.ExitCode)&SCX_ECODE_ACT_RESTART != 0
}

func (r *ExitReport) String() string {
	if r == nil {
		return "<nil>"
	}
	s := fmt.Sprintf("kind=%d exit_code=%#x", r.Kind, uint64(r.ExitCode))
	if r.Reason != "" {
		s += " reason=" + r.Reason
	}
	if r.Message != "" {
		s += " msg=" + r.Message
	}
	return s
}
